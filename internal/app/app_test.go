package app

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Agfare/comet-watcher/internal/config"
	"github.com/Agfare/comet-watcher/internal/history"
	"github.com/Agfare/comet-watcher/internal/processor"
	"github.com/Agfare/comet-watcher/internal/scorer"
	"github.com/Agfare/comet-watcher/internal/store"
)

// syncBuffer guards console output written from the watcher goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.InputDir = filepath.Join(dir, "in")
	cfg.OutputFile = filepath.Join(dir, "out", "comet_scores.jsonl")
	cfg.WarningFile = filepath.Join(dir, "out", "warnings.jsonl")
	cfg.SkippedFile = filepath.Join(dir, "out", "skipped.jsonl")
	cfg.ReportFile = filepath.Join(dir, "out", "report.html")
	cfg.Watcher.Debounce = "50ms"
	return cfg
}

// fakeScorer fails on MT output containing "fail", scores 0.5 when it
// contains "bad" and 0.9 otherwise.
func fakeScorer() scorer.Scorer {
	return scorer.Func(func(_ context.Context, data []scorer.Triple) (float64, error) {
		if strings.Contains(data[0].MT, "fail") {
			return 0, errors.New("model unavailable")
		}
		if strings.Contains(data[0].MT, "bad") {
			return 0.5, nil
		}
		return 0.9, nil
	})
}

func newTestOrchestrator(t *testing.T, cfg *config.Config) (*Orchestrator, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	o, err := New(Options{
		Config: cfg,
		Scorer: fakeScorer(),
		Out:    out,
		Now:    func() time.Time { return time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC) },
	})
	require.NoError(t, err)
	t.Cleanup(func() { o.Close() })
	return o, out
}

func writeInput(t *testing.T, cfg *config.Config, name, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(cfg.InputDir, 0755))
	path := filepath.Join(cfg.InputDir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Count(string(data), "\n")
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.WarningThreshold = 2

	_, err := New(Options{Config: cfg, Scorer: fakeScorer()})
	assert.ErrorIs(t, err, config.ErrInvalidConfig)

	_, err = New(Options{})
	assert.Error(t, err)
}

func TestBatch_ProcessesExistingFiles(t *testing.T) {
	cfg := testConfig(t)
	writeInput(t, cfg, "good.txt", "Hello\nHallo\n")
	writeInput(t, cfg, "low.txt", "Hello\nbad translation\nReference\n")
	writeInput(t, cfg, "short.txt", "only source\n")
	writeInput(t, cfg, "ignored.md", "a\nb\n")

	o, out := newTestOrchestrator(t, cfg)
	n, err := o.Batch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	assert.Equal(t, 2, countLines(t, cfg.OutputFile))
	assert.Equal(t, 1, countLines(t, cfg.WarningFile))
	assert.Equal(t, 1, countLines(t, cfg.SkippedFile))

	html, err := os.ReadFile(cfg.ReportFile)
	require.NoError(t, err)
	assert.Contains(t, string(html), "good.txt")
	assert.Contains(t, string(html), "2026-05-01 12:00:00")

	s := o.Summary()
	assert.Equal(t, 2, s.Processed)
	assert.Equal(t, 1, s.Warnings)
	assert.Equal(t, 1, s.Skipped)
	assert.InDelta(t, 0.7, s.Average(), 1e-9)

	console := out.String()
	assert.Contains(t, console, "Processed "+filepath.Join(cfg.InputDir, "good.txt")+" → COMET score: 0.9000")
	assert.Regexp(t, `Total processed:\s+2`, console)
}

func TestBatch_RestartDoesNotDuplicate(t *testing.T) {
	cfg := testConfig(t)
	writeInput(t, cfg, "a.txt", "s\nm\n")

	first, _ := newTestOrchestrator(t, cfg)
	_, err := first.Batch(context.Background())
	require.NoError(t, err)

	second, _ := newTestOrchestrator(t, cfg)
	_, err = second.Batch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, countLines(t, cfg.OutputFile))
}

func TestBatch_EmptyFolderStillWritesReport(t *testing.T) {
	cfg := testConfig(t)
	o, out := newTestOrchestrator(t, cfg)

	n, err := o.Batch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	assert.DirExists(t, cfg.InputDir)
	assert.FileExists(t, cfg.ReportFile)
	assert.Contains(t, out.String(), "No files processed yet.")
}

func TestBatch_ScorerFailureIsCounted(t *testing.T) {
	cfg := testConfig(t)
	writeInput(t, cfg, "a.txt", "s\nfail please\n")

	o, out := newTestOrchestrator(t, cfg)
	_, err := o.Batch(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, o.Summary().Failed)
	assert.Equal(t, 0, countLines(t, cfg.OutputFile))
	assert.Contains(t, out.String(), "model unavailable")
}

func TestLoad_UncreatableInputDirIsFatal(t *testing.T) {
	cfg := testConfig(t)
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))
	cfg.InputDir = filepath.Join(blocker, "in")

	o, _ := newTestOrchestrator(t, cfg)
	_, err := o.Batch(context.Background())
	require.Error(t, err)
}

func TestRun_WatchesUntilCancelled(t *testing.T) {
	cfg := testConfig(t)
	o, out := newTestOrchestrator(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "Watching folder:")
	}, 5*time.Second, 10*time.Millisecond)

	writeInput(t, cfg, "live.txt", "Hello\nHallo\n")
	require.Eventually(t, func() bool { return o.Summary().Processed == 1 }, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	results, err := store.LoadResults(cfg.OutputFile, cfg.WarningThreshold)
	require.NoError(t, err)
	assert.Equal(t, 1, results.Len())
	assert.Regexp(t, `Watcher: [1-9]\d* events dispatched, \d+ ignored, 0 errors`, out.String())
}

func TestPrune(t *testing.T) {
	cfg := testConfig(t)
	writeInput(t, cfg, "keep.txt", "s\nm\n")
	gone := writeInput(t, cfg, "gone.txt", "s\nm\n")
	edited := writeInput(t, cfg, "edited.txt", "s\nm\n")
	short := writeInput(t, cfg, "short.txt", "s\n")

	o, _ := newTestOrchestrator(t, cfg)
	_, err := o.Batch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 3, o.results.Len())

	require.NoError(t, os.Remove(gone))
	require.NoError(t, os.WriteFile(edited, []byte("s\nm edited\n"), 0644))
	require.NoError(t, os.Remove(short))

	rep, err := o.Prune(true)
	require.NoError(t, err)
	assert.Len(t, rep.Results, 2)
	assert.Len(t, rep.Skipped, 1)
	assert.Equal(t, 3, o.results.Len(), "dry run leaves the store alone")

	rep, err = o.Prune(false)
	require.NoError(t, err)
	assert.False(t, rep.Empty())
	assert.Equal(t, 1, o.results.Len())
	assert.Equal(t, 0, o.skipped.Len())
	assert.Equal(t, 1, countLines(t, cfg.OutputFile))

	rep, err = o.Prune(false)
	require.NoError(t, err)
	assert.True(t, rep.Empty())
}

func TestRenderReport_FromPersistedLogs(t *testing.T) {
	cfg := testConfig(t)
	writeInput(t, cfg, "a.txt", "s\nm\n")
	first, _ := newTestOrchestrator(t, cfg)
	_, err := first.Batch(context.Background())
	require.NoError(t, err)
	require.NoError(t, os.Remove(cfg.ReportFile))

	second, _ := newTestOrchestrator(t, cfg)
	require.NoError(t, second.RenderReport())

	html, err := os.ReadFile(cfg.ReportFile)
	require.NoError(t, err)
	assert.Contains(t, string(html), "a.txt")
	assert.Equal(t, 0, second.Summary().Processed)
}

func TestRenderReport_RaisedThresholdReclassifiesLoadedResults(t *testing.T) {
	cfg := testConfig(t)
	writeInput(t, cfg, "a.txt", "s\nm\n")
	first, _ := newTestOrchestrator(t, cfg)
	_, err := first.Batch(context.Background())
	require.NoError(t, err)
	require.Equal(t, 0, countLines(t, cfg.WarningFile))

	cfg.WarningThreshold = 0.95
	second, _ := newTestOrchestrator(t, cfg)
	require.NoError(t, second.RenderReport())

	html, err := os.ReadFile(cfg.ReportFile)
	require.NoError(t, err)
	assert.Contains(t, string(html), `id="kpi-warnings">1 `)
	assert.Contains(t, string(html), "Warnings (below 0.95) (1)")

	require.NoError(t, second.Flush())
	assert.Equal(t, 1, countLines(t, cfg.WarningFile))
}

func TestExport(t *testing.T) {
	cfg := testConfig(t)
	writeInput(t, cfg, "a.txt", "s\nm\n")
	o, _ := newTestOrchestrator(t, cfg)
	_, err := o.Batch(context.Background())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "results.xlsx")
	require.NoError(t, o.Export(path))
	assert.FileExists(t, path)
}

func TestHistory_RecordsAttempts(t *testing.T) {
	cfg := testConfig(t)
	cfg.History.Enabled = true
	cfg.History.DatabasePath = filepath.Join(t.TempDir(), "history.db")
	writeInput(t, cfg, "a.txt", "s\nm\n")
	writeInput(t, cfg, "b.txt", "s\n")

	o, _ := newTestOrchestrator(t, cfg)
	_, err := o.Batch(context.Background())
	require.NoError(t, err)
	require.NoError(t, o.Close())

	h, err := history.Open(cfg.History.DatabasePath)
	require.NoError(t, err)
	defer h.Close()

	counts, err := h.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, counts[processor.StatusScored])
	assert.Equal(t, 1, counts[processor.StatusSkipped])
}
