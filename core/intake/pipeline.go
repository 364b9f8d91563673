// Package intake turns a competition submission into a stored, locked entry.
package intake

import (
	"context"
	"io"
	"time"

	"youbble/core/apperr"
	"youbble/core/payment"
	"youbble/core/rules"
	"youbble/logger"
	"youbble/model"
	"youbble/storage"
)

// Ledger is the part of the entry ledger the pipeline writes to.
type Ledger interface {
	Create(ctx context.Context, draft model.EntryDraft) (*model.CompetitionEntry, error)
}

// UploadStore persists attachments and can take one back.
type UploadStore interface {
	Store(ctx context.Context, r io.Reader, size int64, originalFilename, category string) (string, error)
	Remove(ctx context.Context, relPath string) error
}

// File is one uploaded attachment. Size is the declared byte count; the
// store verifies it while copying Body.
type File struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

func (f *File) attachment() *rules.Attachment {
	if f == nil {
		return nil
	}
	return &rules.Attachment{Filename: f.Filename, ContentType: f.ContentType, Size: f.Size}
}

// Submission is a decoded competition form.
type Submission struct {
	ArtistName          string
	Email               string
	SongTitle           string
	StreamURL           string
	Lyrics              string
	Categories          []string
	DOB                 string
	PaymentClientSecret string
	Audio               *File
	Consent             *File
}

// Receipt is what the submitter gets back for an accepted entry.
type Receipt struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"createdAt"`
	AudioPath   string    `json:"audioPath"`
	ConsentPath string    `json:"consentPath,omitempty"`
}

// Pipeline 投稿流水线：校验 -> 存储附件 -> 写入台账
type Pipeline struct {
	policy rules.Policy
	store  UploadStore
	ledger Ledger
	now    func() time.Time
}

// NewPipeline wires the pipeline to its collaborators.
func NewPipeline(policy rules.Policy, store UploadStore, ledger Ledger) *Pipeline {
	return &Pipeline{
		policy: policy,
		store:  store,
		ledger: ledger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Policy returns the rules the pipeline enforces.
func (p *Pipeline) Policy() rules.Policy { return p.policy }

// Submit validates s, stores its attachments and appends the entry. Nothing
// is written unless every rule passes. If a later step fails, attachments
// already stored are removed before the error is returned.
func (p *Pipeline) Submit(ctx context.Context, s Submission) (Receipt, error) {
	categories, err := rules.Validate(p.now(), p.policy, rules.Submission{
		ArtistName:          s.ArtistName,
		Email:               s.Email,
		SongTitle:           s.SongTitle,
		Categories:          s.Categories,
		DOB:                 s.DOB,
		Audio:               s.Audio.attachment(),
		Consent:             s.Consent.attachment(),
		PaymentClientSecret: s.PaymentClientSecret,
	})
	if err != nil {
		logger.Info("competition submission rejected",
			logger.String("kind", string(apperr.KindOf(err))),
			logger.String("email", s.Email),
			logger.String("songTitle", s.SongTitle))
		return Receipt{}, err
	}
	if payment.IsPlaceholder(s.PaymentClientSecret) {
		logger.Warn("submission carries a placeholder payment handle", logger.String("email", s.Email))
	}

	var stored []string
	cleanup := func() { p.discard(ctx, stored) }

	audioPath, err := p.store.Store(ctx, s.Audio.Body, s.Audio.Size, s.Audio.Filename, storage.CategoryAudio)
	if err != nil {
		logger.Error("failed to store audio upload", logger.ErrorField(err))
		return Receipt{}, err
	}
	stored = append(stored, audioPath)

	var consentPath string
	if hasTeen(categories) {
		consentPath, err = p.store.Store(ctx, s.Consent.Body, s.Consent.Size, s.Consent.Filename, storage.CategoryConsents)
		if err != nil {
			logger.Error("failed to store consent upload", logger.ErrorField(err))
			cleanup()
			return Receipt{}, err
		}
		stored = append(stored, consentPath)
	}

	entry, err := p.ledger.Create(ctx, model.EntryDraft{
		ArtistName:          s.ArtistName,
		Email:               s.Email,
		SongTitle:           s.SongTitle,
		StreamURL:           s.StreamURL,
		Lyrics:              s.Lyrics,
		Categories:          categories,
		DOB:                 s.DOB,
		AudioPath:           audioPath,
		ConsentPath:         consentPath,
		PaymentClientSecret: s.PaymentClientSecret,
	})
	if err != nil {
		if apperr.Is(err, apperr.DuplicateEntry) {
			logger.Info("duplicate competition entry", logger.String("email", s.Email), logger.String("songTitle", s.SongTitle))
		} else {
			logger.Error("failed to record competition entry", logger.ErrorField(err))
		}
		cleanup()
		return Receipt{}, err
	}

	logger.Info("competition entry accepted",
		logger.String("id", entry.ID),
		logger.Strings("categories", categoryNames(categories)))
	return Receipt{
		ID:          entry.ID,
		CreatedAt:   entry.CreatedAt,
		AudioPath:   entry.AudioPath,
		ConsentPath: entry.ConsentPath,
	}, nil
}

// discard removes attachments of a failed submission. Failures leave an
// orphan for the uploads sweep command and are only logged.
func (p *Pipeline) discard(ctx context.Context, paths []string) {
	ctx = context.WithoutCancel(ctx)
	for _, rel := range paths {
		if err := p.store.Remove(ctx, rel); err != nil {
			logger.Warn("failed to remove orphaned upload", logger.String("path", rel), logger.ErrorField(err))
		}
	}
}

func hasTeen(categories []model.Category) bool {
	for _, c := range categories {
		if c == model.CategoryTeen {
			return true
		}
	}
	return false
}

func categoryNames(categories []model.Category) []string {
	names := make([]string, len(categories))
	for i, c := range categories {
		names[i] = string(c)
	}
	return names
}
