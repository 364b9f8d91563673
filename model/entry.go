package model

import (
	"strings"
	"time"
)

// Category is a competition category. Each category carries its own fee.
type Category string

const (
	CategoryOpen  Category = "Open"
	CategoryTeen  Category = "Teen"
	CategoryCover Category = "Cover"
	CategorySync  Category = "Sync"
)

// AllCategories lists the categories in display order.
var AllCategories = []Category{CategoryOpen, CategoryTeen, CategoryCover, CategorySync}

// Valid reports whether c is one of the four known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryOpen, CategoryTeen, CategoryCover, CategorySync:
		return true
	}
	return false
}

// EntryStatus is the lifecycle state of an entry. Entries are always created
// pending; qualification is decided by administration outside this service.
type EntryStatus string

const (
	EntryStatusPending      EntryStatus = "pending"
	EntryStatusQualified    EntryStatus = "qualified"
	EntryStatusDisqualified EntryStatus = "disqualified"
)

// CompetitionEntry is one contestant's submission for one song.
type CompetitionEntry struct {
	ID                  string      `json:"id"`
	CreatedAt           time.Time   `json:"createdAt"`
	ArtistName          string      `json:"artistName"`
	Email               string      `json:"email"`
	SongTitle           string      `json:"songTitle"`
	StreamURL           string      `json:"streamUrl,omitempty"`
	Lyrics              string      `json:"lyrics,omitempty"`
	Categories          []Category  `json:"categories"`
	DOB                 string      `json:"dob,omitempty"`
	AudioPath           string      `json:"audioPath"`             // relative to the upload root
	ConsentPath         string      `json:"consentPath,omitempty"` // set only for Teen entries
	PaymentClientSecret string      `json:"paymentClientSecret"`
	Paid                bool        `json:"paid"`
	Status              EntryStatus `json:"status"`
	Locked              bool        `json:"locked"`
}

// HasCategory reports whether the entry was submitted in c.
func (e *CompetitionEntry) HasCategory(c Category) bool {
	for _, got := range e.Categories {
		if got == c {
			return true
		}
	}
	return false
}

// DuplicateKey is the normalised (email, song title) pair that must be unique
// across the ledger.
func (e *CompetitionEntry) DuplicateKey() (string, string) {
	return NormalizeKey(e.Email), NormalizeKey(e.SongTitle)
}

// EntryDraft is everything the ledger needs to create an entry. Identity,
// timestamp, status and lock are assigned by the ledger.
type EntryDraft struct {
	ArtistName          string
	Email               string
	SongTitle           string
	StreamURL           string
	Lyrics              string
	Categories          []Category
	DOB                 string
	AudioPath           string
	ConsentPath         string
	PaymentClientSecret string
	Paid                bool
}

// DuplicateKey mirrors CompetitionEntry.DuplicateKey for a draft.
func (d *EntryDraft) DuplicateKey() (string, string) {
	return NormalizeKey(d.Email), NormalizeKey(d.SongTitle)
}

// NewEntry turns a draft into a locked, pending entry.
func NewEntry(id string, createdAt time.Time, d EntryDraft) *CompetitionEntry {
	categories := make([]Category, len(d.Categories))
	copy(categories, d.Categories)
	return &CompetitionEntry{
		ID:                  id,
		CreatedAt:           createdAt.UTC(),
		ArtistName:          d.ArtistName,
		Email:               d.Email,
		SongTitle:           d.SongTitle,
		StreamURL:           d.StreamURL,
		Lyrics:              d.Lyrics,
		Categories:          categories,
		DOB:                 d.DOB,
		AudioPath:           d.AudioPath,
		ConsentPath:         d.ConsentPath,
		PaymentClientSecret: d.PaymentClientSecret,
		Paid:                d.Paid,
		Status:              EntryStatusPending,
		Locked:              true,
	}
}

// NormalizeKey trims and lower-cases a value for duplicate comparison.
func NormalizeKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
