package app

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/Agfare/comet-watcher/internal/logging"
	"github.com/Agfare/comet-watcher/internal/processor"
	"github.com/Agfare/comet-watcher/internal/record"
)

// PruneReport lists the entries Prune removed (or would remove).
type PruneReport struct {
	Results []record.Result
	Skipped []record.Skipped
}

// Empty reports whether nothing was stale.
func (r PruneReport) Empty() bool {
	return len(r.Results) == 0 && len(r.Skipped) == 0
}

// Prune drops results whose input file is gone or no longer produces the
// same key, and skipped entries whose file is gone. With dryRun the stores
// are left untouched.
func (o *Orchestrator) Prune(dryRun bool) (PruneReport, error) {
	var rep PruneReport
	if err := o.Load(); err != nil {
		return rep, err
	}

	var staleKeys []string
	for _, key := range o.results.Keys() {
		rec, _ := o.results.Get(key)
		if o.resultIsStale(rec) {
			staleKeys = append(staleKeys, key)
			rep.Results = append(rep.Results, rec)
		}
	}
	for _, rec := range o.skipped.Snapshot() {
		if _, err := os.Stat(filepath.Join(o.cfg.InputDir, rec.File)); errors.Is(err, os.ErrNotExist) {
			rep.Skipped = append(rep.Skipped, rec)
		}
	}

	if dryRun || rep.Empty() {
		return rep, nil
	}

	for _, key := range staleKeys {
		o.results.Delete(key)
	}
	for _, rec := range rep.Skipped {
		o.skipped.Remove(rec.File)
	}
	logging.Store("pruned %d results and %d skipped entries", len(rep.Results), len(rep.Skipped))
	return rep, o.Flush()
}

func (o *Orchestrator) resultIsStale(rec record.Result) bool {
	lines, err := processor.ReadLines(filepath.Join(o.cfg.InputDir, rec.File))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return true
		}
		// Unreadable files are kept; the content may come back.
		logging.StoreWarn("prune: cannot read %s, keeping its results: %v", rec.File, err)
		return false
	}
	if len(lines) < 2 {
		return true
	}
	return record.Key(rec.File, lines[0], lines[1]) != rec.Key()
}
