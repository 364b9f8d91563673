// Package rules holds the competition's business rules. Every function here is
// pure: no I/O, no clock reads, no shared state.
package rules

import (
	"path"
	"strings"
	"time"

	"youbble/core/apperr"
	"youbble/model"

	"github.com/dustin/go-humanize"
)

// DefaultMaxAudioBytes is the per-file cap on audio uploads (50 MiB).
const DefaultMaxAudioBytes int64 = 50 << 20

// Policy is the configurable part of the rules.
type Policy struct {
	Deadline        time.Time // zero means submissions never close
	MaxAudioBytes   int64
	AudioTypes      []string // accepted declared media types, e.g. audio/mpeg
	AudioExtensions []string // accepted filename extensions, e.g. .mp3
}

// DefaultPolicy returns the competition defaults with no deadline.
func DefaultPolicy() Policy {
	return Policy{
		MaxAudioBytes:   DefaultMaxAudioBytes,
		AudioTypes:      []string{"audio/mpeg", "audio/mp4", "audio/x-m4a", "audio/aac"},
		AudioExtensions: []string{".mp3", ".m4a"},
	}
}

// Attachment describes an uploaded file without its bytes.
type Attachment struct {
	Filename    string
	ContentType string
	Size        int64
}

// Submission is the subset of a competition submission the rules look at.
type Submission struct {
	ArtistName          string
	Email               string
	SongTitle           string
	Categories          []string
	DOB                 string
	Audio               *Attachment
	Consent             *Attachment
	PaymentClientSecret string
}

// Validate applies every rule in order and returns the first failure. On
// success it returns the parsed category set.
func Validate(now time.Time, p Policy, s Submission) ([]model.Category, error) {
	if err := CheckDeadline(now, p.Deadline); err != nil {
		return nil, err
	}
	if err := CheckRequiredFields(s.ArtistName, s.Email, s.SongTitle); err != nil {
		return nil, err
	}
	categories, err := ParseCategories(s.Categories)
	if err != nil {
		return nil, err
	}
	if err := CheckSync(categories); err != nil {
		return nil, err
	}
	if err := CheckTeenProof(categories, s.DOB, s.Consent); err != nil {
		return nil, err
	}
	if err := CheckAudio(p, s.Audio); err != nil {
		return nil, err
	}
	if err := CheckPaymentProof(s.PaymentClientSecret); err != nil {
		return nil, err
	}
	return categories, nil
}

// CheckDeadline rejects submissions made after the deadline.
func CheckDeadline(now, deadline time.Time) error {
	if !deadline.IsZero() && now.After(deadline) {
		return apperr.Newf(apperr.SubmissionClosed,
			"Submissions closed at %s", deadline.UTC().Format(time.RFC3339))
	}
	return nil
}

// CheckRequiredFields requires artist name, email and song title.
func CheckRequiredFields(artistName, email, songTitle string) error {
	fields := []struct{ name, value string }{
		{"artistName", artistName},
		{"email", email},
		{"songTitle", songTitle},
	}
	for _, f := range fields {
		if strings.TrimSpace(f.value) == "" {
			return apperr.Newf(apperr.MissingRequiredField, "Field %q is required", f.name)
		}
	}
	return nil
}

// ParseCategories checks that raw is a non-empty subset of the known
// categories. Repeated values are collapsed, keeping first-seen order.
func ParseCategories(raw []string) ([]model.Category, error) {
	if len(raw) == 0 {
		return nil, apperr.New(apperr.InvalidCategory, "Select at least one category")
	}
	seen := make(map[model.Category]bool, len(raw))
	out := make([]model.Category, 0, len(raw))
	for _, r := range raw {
		c := model.Category(strings.TrimSpace(r))
		if !c.Valid() {
			return nil, apperr.Newf(apperr.InvalidCategory,
				"Unknown category %q, expected one of Open, Teen, Cover, Sync", r)
		}
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out, nil
}

// CheckSync requires Sync to be paired with at least one other category.
func CheckSync(categories []model.Category) error {
	if contains(categories, model.CategorySync) && len(categories) < 2 {
		return apperr.New(apperr.SyncRequiresAdditionalCategory,
			"Sync requires at least one other category")
	}
	return nil
}

// CheckTeenProof requires a date of birth and a consent document for Teen.
func CheckTeenProof(categories []model.Category, dob string, consent *Attachment) error {
	if !contains(categories, model.CategoryTeen) {
		return nil
	}
	if strings.TrimSpace(dob) == "" {
		return apperr.New(apperr.TeenProofRequired, "Date of birth is required for the Teen category")
	}
	if consent == nil || consent.Size <= 0 {
		return apperr.New(apperr.TeenProofRequired, "Parental consent upload is required for the Teen category")
	}
	return nil
}

// CheckAudio requires an audio attachment within the size cap whose extension
// or declared media type is accepted.
func CheckAudio(p Policy, audio *Attachment) error {
	if audio == nil || audio.Size <= 0 {
		return apperr.New(apperr.AudioMissing, "Please upload an audio file")
	}
	if p.MaxAudioBytes > 0 && audio.Size > p.MaxAudioBytes {
		return apperr.Newf(apperr.AudioTooLarge,
			"Audio must be %s or less", humanize.IBytes(uint64(p.MaxAudioBytes)))
	}
	if !acceptedType(p.AudioTypes, audio.ContentType) && !acceptedExtension(p.AudioExtensions, audio.Filename) {
		return apperr.New(apperr.AudioFormatInvalid, "Only MP3 or M4A files are accepted")
	}
	return nil
}

// CheckPaymentProof only checks that a payment handle was supplied. The
// handle is never verified against the payment processor.
func CheckPaymentProof(handle string) error {
	if strings.TrimSpace(handle) == "" {
		return apperr.New(apperr.PaymentProofMissing, "Please complete payment before submitting your entry")
	}
	return nil
}

func acceptedType(accepted []string, contentType string) bool {
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if i := strings.IndexByte(mediaType, ';'); i >= 0 {
		mediaType = strings.TrimSpace(mediaType[:i])
	}
	if mediaType == "" {
		return false
	}
	for _, a := range accepted {
		if strings.EqualFold(a, mediaType) {
			return true
		}
	}
	return false
}

func acceptedExtension(accepted []string, filename string) bool {
	ext := strings.ToLower(path.Ext(strings.ReplaceAll(filename, `\`, "/")))
	if ext == "" {
		return false
	}
	for _, a := range accepted {
		if strings.EqualFold(a, ext) {
			return true
		}
	}
	return false
}

func contains(categories []model.Category, c model.Category) bool {
	for _, got := range categories {
		if got == c {
			return true
		}
	}
	return false
}
