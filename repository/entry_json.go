package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"youbble/logger"
	"youbble/model"

	"github.com/gofrs/flock"
)

const lockRetryDelay = 10 * time.Millisecond

// jsonEntryRepository keeps the whole ledger in one JSON array file. The
// read-check-append-write of Create runs under an in-process mutex and an
// exclusive file lock, so neither goroutines nor a second process sharing the
// file can lose an update.
type jsonEntryRepository struct {
	path  string
	mu    sync.Mutex
	lock  *flock.Flock
	clock idClock
	last  time.Time
}

// NewJSONEntryRepository opens (creating if needed) a ledger file.
func NewJSONEntryRepository(path string) (EntryRepository, error) {
	return newJSONEntryRepository(path, defaultIDClock())
}

func newJSONEntryRepository(path string, clock idClock) (*jsonEntryRepository, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create ledger directory: %w", err)
	}
	r := &jsonEntryRepository{
		path:  path,
		lock:  flock.New(path + ".lock"),
		clock: clock,
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := r.write(nil); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, fmt.Errorf("stat ledger %s: %w", path, err)
	}
	return r, nil
}

func (r *jsonEntryRepository) Create(ctx context.Context, draft model.EntryDraft) (*model.CompetitionEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	locked, err := r.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("acquire ledger lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("acquire ledger lock: %s is held elsewhere", r.lock.Path())
	}
	defer func() {
		if err := r.lock.Unlock(); err != nil {
			logger.Warn("failed to release ledger lock", logger.ErrorField(err))
		}
	}()

	rows, err := r.read()
	if err != nil {
		return nil, err
	}

	email, title := draft.DuplicateKey()
	for _, row := range rows {
		e, t := row.DuplicateKey()
		if e == email && t == title {
			return nil, errDuplicate()
		}
	}

	now := r.clock.now()
	if now.Before(r.last) {
		now = r.last
	}
	entry := model.NewEntry(r.clock.newID(), now, draft)

	rows = append(rows, entry)
	if err := r.write(rows); err != nil {
		return nil, err
	}
	r.last = now
	return entry, nil
}

func (r *jsonEntryRepository) List(ctx context.Context) ([]*model.CompetitionEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read()
}

func (r *jsonEntryRepository) GetByID(ctx context.Context, id string) (*model.CompetitionEntry, error) {
	rows, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, row := range rows {
		if row.ID == id {
			return row, nil
		}
	}
	return nil, errEntryNotFound(id)
}

func (r *jsonEntryRepository) Close() error { return nil }

func (r *jsonEntryRepository) read() ([]*model.CompetitionEntry, error) {
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return nil, fmt.Errorf("read ledger %s: %w", r.path, err)
	}
	rows := make([]*model.CompetitionEntry, 0)
	if len(raw) == 0 {
		return rows, nil
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("decode ledger %s: %w", r.path, err)
	}
	return rows, nil
}

// write replaces the ledger file via a temp file and rename, so readers
// never observe a half-written array.
func (r *jsonEntryRepository) write(rows []*model.CompetitionEntry) error {
	if rows == nil {
		rows = []*model.CompetitionEntry{}
	}
	data, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".entries-*.tmp")
	if err != nil {
		return fmt.Errorf("create ledger temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write ledger: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync ledger: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close ledger temp file: %w", err)
	}
	if err := os.Rename(tmpName, r.path); err != nil {
		return fmt.Errorf("replace ledger %s: %w", r.path, err)
	}
	return nil
}
