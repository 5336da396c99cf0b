// Package processor turns one input file into a scored result or a skipped
// entry and hands the updated stores to a Persister.
package processor

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/Agfare/comet-watcher/internal/logging"
	"github.com/Agfare/comet-watcher/internal/record"
	"github.com/Agfare/comet-watcher/internal/scorer"
	"github.com/Agfare/comet-watcher/internal/store"
)

// slowScoreThreshold is the scorer latency above which a call is logged as a
// warning.
const slowScoreThreshold = 30 * time.Second

// Status is the result of one Process call.
type Status string

const (
	StatusScored  Status = "scored"
	StatusSkipped Status = "skipped"
	StatusFailed  Status = "failed"
)

// Outcome describes what happened to one file.
type Outcome struct {
	Path     string
	File     string
	Status   Status
	Key      string          // set when scored
	Result   *record.Result  // set when scored
	Skipped  *record.Skipped // set when skipped
	Err      error           // set when failed
	Duration time.Duration
}

// Persister writes the stores (and derived artifacts) to disk.
type Persister interface {
	Flush() error
}

// Recorder observes every outcome, e.g. to keep an attempt history.
type Recorder interface {
	Record(ctx context.Context, out Outcome)
}

// Config wires a Processor.
type Config struct {
	Results   *store.Results
	Skipped   *store.Skipped
	Scorer    scorer.Scorer
	Persister Persister
	Recorder  Recorder // optional
	Threshold float64
}

// Processor scores input files one at a time.
type Processor struct {
	mu        sync.Mutex
	results   *store.Results
	skipped   *store.Skipped
	scorer    scorer.Scorer
	persister Persister
	recorder  Recorder
	threshold float64
}

// New validates cfg and returns a Processor.
func New(cfg Config) (*Processor, error) {
	switch {
	case cfg.Results == nil:
		return nil, errors.New("processor: results store is required")
	case cfg.Skipped == nil:
		return nil, errors.New("processor: skipped store is required")
	case cfg.Scorer == nil:
		return nil, errors.New("processor: scorer is required")
	case cfg.Persister == nil:
		return nil, errors.New("processor: persister is required")
	}
	return &Processor{
		results:   cfg.Results,
		skipped:   cfg.Skipped,
		scorer:    cfg.Scorer,
		persister: cfg.Persister,
		recorder:  cfg.Recorder,
		threshold: cfg.Threshold,
	}, nil
}

// Process reads, validates and scores path, then persists the stores.
// Failures are logged and reported in the Outcome; they never panic and are
// not retried.
func (p *Processor) Process(ctx context.Context, path string) Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()

	start := time.Now()
	out := p.process(ctx, path)
	out.Duration = time.Since(start)

	if out.Status == StatusFailed {
		logging.ProcessorError("error processing %s: %v", path, out.Err)
	}
	if p.recorder != nil {
		p.recorder.Record(ctx, out)
	}
	return out
}

func (p *Processor) process(ctx context.Context, path string) Outcome {
	file := filepath.Base(path)
	out := Outcome{Path: path, File: file}

	lines, err := ReadLines(path)
	if err != nil {
		out.Status = StatusFailed
		out.Err = fmt.Errorf("failed to read: %w", err)
		return out
	}

	if len(lines) < 2 {
		rec := record.Skipped{File: file, Reason: record.SkipReasonInsufficientLines, Lines: lines}
		p.skipped.Upsert(file, rec)
		logging.ProcessorWarn("skipping %s: needs at least source + MT output, got %d line(s)", path, len(lines))
		p.persist()
		out.Status = StatusSkipped
		out.Skipped = &rec
		return out
	}

	source, mt := lines[0], lines[1]
	var reference *string
	if len(lines) > 2 {
		reference = record.StringPtr(lines[2])
	}

	timer := logging.StartTimer(logging.CategoryScorer, "scoring "+file)
	score, err := p.scorer.Score(ctx, []scorer.Triple{{Source: source, MT: mt, Reference: reference}})
	timer.StopWithThreshold(slowScoreThreshold)
	if err != nil {
		out.Status = StatusFailed
		out.Err = fmt.Errorf("scoring failed: %w", err)
		return out
	}

	rec := record.NewResult(file, source, mt, reference, score, p.threshold)
	key := rec.Key()
	p.results.Upsert(key, rec)
	if p.skipped.Remove(file) {
		logging.ProcessorDebug("%s is no longer skipped", file)
	}
	logging.Processor("scored %s: %.4f (warning=%v)", file, rec.Score, rec.Warning)

	p.persist()
	out.Status = StatusScored
	out.Key = key
	out.Result = &rec
	return out
}

// persist flushes the stores. A failed flush leaves the in-memory state
// intact; the next successful flush writes it.
func (p *Processor) persist() {
	if err := p.persister.Flush(); err != nil {
		logging.ProcessorWarn("persisting after update failed: %v", err)
	}
}
