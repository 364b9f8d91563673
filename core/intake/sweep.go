package intake

import (
	"context"
	"fmt"
	"sort"

	"youbble/logger"
	"youbble/model"
)

// EntryLister reads the whole ledger.
type EntryLister interface {
	List(ctx context.Context) ([]*model.CompetitionEntry, error)
}

// StoredLister enumerates and removes stored attachments.
type StoredLister interface {
	List(ctx context.Context) ([]string, error)
	Remove(ctx context.Context, relPath string) error
}

// SweepResult reports orphaned attachments and what happened to them.
type SweepResult struct {
	Orphans []string
	Removed int
	Failed  map[string]error
}

// Orphans returns the stored paths that no entry references, sorted.
func Orphans(entries []*model.CompetitionEntry, stored []string) []string {
	referenced := make(map[string]struct{}, len(entries)*2)
	for _, e := range entries {
		if e.AudioPath != "" {
			referenced[e.AudioPath] = struct{}{}
		}
		if e.ConsentPath != "" {
			referenced[e.ConsentPath] = struct{}{}
		}
	}
	var out []string
	for _, p := range stored {
		if _, ok := referenced[p]; !ok {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// Sweep finds attachments left behind by submissions that never reached the
// ledger. Nothing is removed unless remove is set.
func Sweep(ctx context.Context, ledger EntryLister, store StoredLister, remove bool) (SweepResult, error) {
	entries, err := ledger.List(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list entries: %w", err)
	}
	stored, err := store.List(ctx)
	if err != nil {
		return SweepResult{}, fmt.Errorf("list uploads: %w", err)
	}

	res := SweepResult{Orphans: Orphans(entries, stored), Failed: map[string]error{}}
	if !remove {
		return res, nil
	}
	for _, p := range res.Orphans {
		if err := store.Remove(ctx, p); err != nil {
			logger.Warn("failed to remove orphaned upload", logger.String("path", p), logger.ErrorField(err))
			res.Failed[p] = err
			continue
		}
		res.Removed++
	}
	logger.Info("upload sweep finished",
		logger.Int("orphans", len(res.Orphans)),
		logger.Int("removed", res.Removed))
	return res, nil
}
