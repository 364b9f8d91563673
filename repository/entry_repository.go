package repository

import (
	"context"
	"time"

	"youbble/core/apperr"
	"youbble/model"

	"github.com/google/uuid"
)

// EntryRepository is the append-only ledger of competition entries.
// It has no update or delete.
type EntryRepository interface {
	// Create atomically rejects a duplicate (email, song title) pair, then
	// assigns id and timestamp and appends a locked, pending entry.
	Create(ctx context.Context, draft model.EntryDraft) (*model.CompetitionEntry, error)
	// List returns every entry. Order is stable for one call only.
	List(ctx context.Context) ([]*model.CompetitionEntry, error)
	// GetByID fails with apperr.NotFound on a miss.
	GetByID(ctx context.Context, id string) (*model.CompetitionEntry, error)
	Close() error
}

// idClock produces entry identifiers and creation timestamps. The default
// uses UUIDv4 and the wall clock.
type idClock struct {
	newID func() string
	now   func() time.Time
}

func defaultIDClock() idClock {
	return idClock{
		newID: func() string { return uuid.New().String() },
		now:   func() time.Time { return time.Now().UTC() },
	}
}

func errDuplicate() error {
	return apperr.New(apperr.DuplicateEntry, "Duplicate entry: this song has already been submitted by this email")
}

func errEntryNotFound(id string) error {
	return apperr.Newf(apperr.NotFound, "entry %q not found", id)
}
