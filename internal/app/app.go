// Package app wires the stores, processor, watcher and report into the
// cometwatch lifecycle: load, batch, watch, flush.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Agfare/comet-watcher/internal/config"
	"github.com/Agfare/comet-watcher/internal/console"
	"github.com/Agfare/comet-watcher/internal/history"
	"github.com/Agfare/comet-watcher/internal/logging"
	"github.com/Agfare/comet-watcher/internal/processor"
	"github.com/Agfare/comet-watcher/internal/report"
	"github.com/Agfare/comet-watcher/internal/scorer"
	"github.com/Agfare/comet-watcher/internal/store"
	"github.com/Agfare/comet-watcher/internal/watcher"
)

// Options configures an Orchestrator.
type Options struct {
	Config *config.Config
	Scorer scorer.Scorer    // nil builds one from Config.Scorer
	Out    io.Writer        // console output, default os.Stdout
	Now    func() time.Time // report clock, default time.Now
}

// SessionStats counts what happened since the process started.
type SessionStats struct {
	Processed int
	Warnings  int
	Skipped   int
	Failed    int
	ScoreSum  float64
}

// Average returns the mean score of the results processed this session.
func (s SessionStats) Average() float64 {
	if s.Processed == 0 {
		return 0
	}
	return s.ScoreSum / float64(s.Processed)
}

// Orchestrator owns the stores and drives every cometwatch command.
type Orchestrator struct {
	cfg     *config.Config
	scorer  scorer.Scorer
	printer *console.Printer
	history *history.Store
	now     func() time.Time

	loadOnce sync.Once
	loadErr  error
	results  *store.Results
	skipped  *store.Skipped
	proc     *processor.Processor

	mu      sync.Mutex
	session SessionStats
}

// New validates the config and prepares an Orchestrator. Nothing is read
// from the input folder until the first command runs.
func New(opts Options) (*Orchestrator, error) {
	if opts.Config == nil {
		return nil, errors.New("app: config is required")
	}
	if err := opts.Config.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		cfg:    opts.Config,
		scorer: opts.Scorer,
		now:    opts.Now,
	}
	if o.now == nil {
		o.now = time.Now
	}
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	o.printer = console.NewPrinter(out)

	if o.scorer == nil {
		sc, err := scorer.New(o.cfg.Scorer, o.cfg.ModelName)
		if err != nil {
			return nil, err
		}
		o.scorer = sc
	}

	if o.cfg.History.Enabled {
		h, err := history.Open(o.cfg.History.DatabasePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		o.history = h
	}

	logging.BootDebug("orchestrator ready: scorer=%s model=%s threshold=%v", o.scorer.Name(), o.cfg.ModelName, o.cfg.WarningThreshold)
	return o, nil
}

// Close releases the history database, if any.
func (o *Orchestrator) Close() error {
	if o.history != nil {
		return o.history.Close()
	}
	return nil
}

// Printer returns the console printer.
func (o *Orchestrator) Printer() *console.Printer {
	return o.printer
}

// Load creates the input folder and rehydrates both stores from their logs.
// It runs once; later calls return the first result.
func (o *Orchestrator) Load() error {
	o.loadOnce.Do(func() {
		o.loadErr = o.load()
	})
	return o.loadErr
}

func (o *Orchestrator) load() error {
	timer := logging.StartTimer(logging.CategoryBoot, "Load")
	defer timer.Stop()

	if err := os.MkdirAll(o.cfg.InputDir, 0755); err != nil {
		return fmt.Errorf("failed to create input folder %s: %w", o.cfg.InputDir, err)
	}

	results, err := store.LoadResults(o.cfg.OutputFile, o.cfg.WarningThreshold)
	if err != nil {
		return err
	}
	skipped, err := store.LoadSkipped(o.cfg.SkippedFile)
	if err != nil {
		return err
	}

	pcfg := processor.Config{
		Results:   results,
		Skipped:   skipped,
		Scorer:    o.scorer,
		Persister: o,
		Threshold: o.cfg.WarningThreshold,
	}
	if o.history != nil {
		pcfg.Recorder = o.history
	}
	proc, err := processor.New(pcfg)
	if err != nil {
		return err
	}

	o.results, o.skipped, o.proc = results, skipped, proc
	logging.Boot("loaded %d results and %d skipped entries", results.Len(), skipped.Len())
	return nil
}

// Run batch-processes the existing files, then watches the input folder
// until ctx is cancelled. The stores are flushed once more on the way out.
func (o *Orchestrator) Run(ctx context.Context) error {
	if _, err := o.Batch(ctx); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return nil
	}

	w, err := watcher.New(watcher.Options{
		Dir:      o.cfg.InputDir,
		Suffix:   o.cfg.Suffix,
		Debounce: o.cfg.Watcher.GetDebounce(),
		Handler:  o.handle,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := w.Start(gctx); err != nil {
			return err
		}
		o.printer.Info("Watching folder: %s", o.cfg.InputDir)
		logging.Watcher("watch list: %v", w.WatchedDirs())
		<-gctx.Done()
		logging.Boot("shutting down")
		return w.Stop()
	})
	runErr := g.Wait()

	st := w.Stats()
	if st.Errors > 0 {
		logging.WatcherWarn("%d filesystem notification errors this session", st.Errors)
	}
	o.printer.Info("Watcher: %d events dispatched, %d ignored, %d errors", st.Dispatched, st.Ignored, st.Errors)

	if err := o.Flush(); err != nil {
		logging.BootError("final flush failed: %v", err)
	}
	o.PrintSummary()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// Batch loads the stores, processes every matching file already in the
// input folder, flushes and prints the session summary. It returns the
// number of files dispatched.
func (o *Orchestrator) Batch(ctx context.Context) (int, error) {
	if err := o.Load(); err != nil {
		return 0, err
	}

	o.printer.Info("Running batch processing on existing files in %s...", o.cfg.InputDir)
	w, err := watcher.New(watcher.Options{
		Dir:     o.cfg.InputDir,
		Suffix:  o.cfg.Suffix,
		Handler: o.handle,
	})
	if err != nil {
		return 0, err
	}
	n, err := w.ScanExisting(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		return n, err
	}

	if err := o.Flush(); err != nil {
		logging.BootError("flush after batch failed: %v", err)
	}
	o.PrintSummary()
	return n, nil
}

// handle is the single processing path for both batch and watch mode.
func (o *Orchestrator) handle(ctx context.Context, path string) {
	out := o.proc.Process(ctx, path)
	o.printer.Outcome(out, o.cfg.WarningThreshold)

	o.mu.Lock()
	defer o.mu.Unlock()
	switch out.Status {
	case processor.StatusScored:
		o.session.Processed++
		o.session.ScoreSum += out.Result.Score
		if out.Result.Warning {
			o.session.Warnings++
		}
	case processor.StatusSkipped:
		o.session.Skipped++
	case processor.StatusFailed:
		o.session.Failed++
	}
}

// Flush implements processor.Persister. It rewrites the results, warnings
// and skipped logs and the report. Every failure is logged; the first one
// is returned.
func (o *Orchestrator) Flush() error {
	if o.results == nil {
		return errors.New("app: stores are not loaded")
	}

	var g errgroup.Group
	write := func(what string, fn func() error) {
		g.Go(func() error {
			if err := fn(); err != nil {
				logging.StoreWarn("failed to write %s: %v", what, err)
				return err
			}
			return nil
		})
	}
	write("results", func() error { return store.FlushResults(o.cfg.OutputFile, o.results) })
	write("warnings", func() error { return store.FlushWarnings(o.cfg.WarningFile, o.results) })
	write("skipped", func() error { return store.FlushSkipped(o.cfg.SkippedFile, o.skipped) })
	write("report", o.writeReport)
	return g.Wait()
}

// RenderReport rehydrates the stores and rewrites only the report.
func (o *Orchestrator) RenderReport() error {
	if err := o.Load(); err != nil {
		return err
	}
	if err := o.writeReport(); err != nil {
		return err
	}
	o.printer.Info("Report written to %s", o.cfg.ReportFile)
	return nil
}

func (o *Orchestrator) writeReport() error {
	html, err := report.Render(report.Data{
		Results:        o.results.Snapshot(),
		Skipped:        o.skipped.Snapshot(),
		Threshold:      o.cfg.WarningThreshold,
		ModelName:      o.cfg.ModelName,
		RefreshSeconds: o.cfg.AutoRefreshSeconds,
		Now:            o.now(),
	})
	if err != nil {
		return err
	}
	return report.WriteFile(o.cfg.ReportFile, html)
}

// Summary returns the session counters.
func (o *Orchestrator) Summary() SessionStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.session
}

// PrintSummary prints the session counters to the console.
func (o *Orchestrator) PrintSummary() {
	s := o.Summary()
	if s.Processed == 0 && s.Skipped == 0 && s.Failed == 0 {
		o.printer.Info("No files processed yet.")
		return
	}
	o.printer.Summary("SUMMARY", []console.Field{
		{Label: "Total processed", Value: fmt.Sprintf("%d", s.Processed)},
		{Label: fmt.Sprintf("Warnings (< %v)", o.cfg.WarningThreshold), Value: fmt.Sprintf("%d", s.Warnings)},
		{Label: "Skipped", Value: fmt.Sprintf("%d", s.Skipped)},
		{Label: "Failed", Value: fmt.Sprintf("%d", s.Failed)},
		{Label: "Average score", Value: fmt.Sprintf("%.4f", s.Average())},
	})
}
