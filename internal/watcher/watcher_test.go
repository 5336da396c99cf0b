package watcher

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type collector struct {
	mu    sync.Mutex
	paths []string
}

func (c *collector) handle(_ context.Context, path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, path)
}

func (c *collector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

func (c *collector) count(path string) int {
	n := 0
	for _, p := range c.snapshot() {
		if p == path {
			n++
		}
	}
	return n
}

func startWatcher(t *testing.T, debounce time.Duration) (*FolderWatcher, *collector, string) {
	t.Helper()
	dir := t.TempDir()
	c := &collector{}
	fw, err := New(Options{Dir: dir, Suffix: ".txt", Debounce: debounce, Handler: c.handle})
	require.NoError(t, err)
	require.NoError(t, fw.Start(context.Background()))
	t.Cleanup(func() { _ = fw.Stop() })
	return fw, c, dir
}

func TestNew_Validation(t *testing.T) {
	_, err := New(Options{Suffix: ".txt", Handler: func(context.Context, string) {}})
	require.Error(t, err)

	_, err = New(Options{Dir: t.TempDir(), Suffix: ".txt"})
	require.Error(t, err)
}

func TestStart_MissingDirFails(t *testing.T) {
	fw, err := New(Options{
		Dir:     filepath.Join(t.TempDir(), "nope"),
		Suffix:  ".txt",
		Handler: func(context.Context, string) {},
	})
	require.NoError(t, err)

	require.Error(t, fw.Start(context.Background()))
	assert.Empty(t, fw.WatchedDirs())
	assert.ErrorIs(t, fw.Stop(), ErrNotRunning)
}

func TestStartStop(t *testing.T) {
	fw, _, dir := startWatcher(t, 0)

	assert.Equal(t, []string{dir}, fw.WatchedDirs())
	assert.NoError(t, fw.Start(context.Background()), "second start is a no-op")
	assert.Equal(t, []string{dir}, fw.WatchedDirs())

	require.NoError(t, fw.Stop())
	assert.Empty(t, fw.WatchedDirs())
	assert.ErrorIs(t, fw.Stop(), ErrNotRunning)
}

func TestStop_NeverStarted(t *testing.T) {
	fw, err := New(Options{Dir: t.TempDir(), Suffix: ".txt", Handler: func(context.Context, string) {}})
	require.NoError(t, err)
	assert.ErrorIs(t, fw.Stop(), ErrNotRunning)
}

func TestDispatchesMatchingFile(t *testing.T) {
	fw, c, dir := startWatcher(t, 0)
	path := filepath.Join(dir, "a.txt")

	require.NoError(t, os.WriteFile(path, []byte("s\nm\n"), 0644))

	require.Eventually(t, func() bool { return c.count(path) > 0 }, 5*time.Second, 10*time.Millisecond)
	stats := fw.Stats()
	assert.GreaterOrEqual(t, stats.FilesCreated, 1)
	assert.Equal(t, path, stats.LastEventPath)
	assert.GreaterOrEqual(t, stats.Dispatched, 1)
}

func TestIgnoresOtherSuffixesAndDirectories(t *testing.T) {
	fw, c, dir := startWatcher(t, 0)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("x"), 0644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "folder.txt"), 0755))
	marker := filepath.Join(dir, "marker.txt")
	require.NoError(t, os.WriteFile(marker, []byte("s\nm\n"), 0644))

	// Events arrive in order, so once the marker is seen the others were filtered.
	require.Eventually(t, func() bool { return c.count(marker) > 0 }, 5*time.Second, 10*time.Millisecond)
	for _, p := range c.snapshot() {
		assert.Equal(t, marker, p)
	}
	assert.GreaterOrEqual(t, fw.Stats().Ignored, 2)
}

func TestDebounceCoalescesRapidWrites(t *testing.T) {
	_, c, dir := startWatcher(t, 150*time.Millisecond)
	path := filepath.Join(dir, "a.txt")

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(path, []byte("s\nm\n"), 0644))
	}

	require.Eventually(t, func() bool { return c.count(path) == 1 }, 5*time.Second, 10*time.Millisecond)
	time.Sleep(400 * time.Millisecond)
	assert.Equal(t, 1, c.count(path))
}

func TestSettled_OrderedByFirstEvent(t *testing.T) {
	fw, err := New(Options{Dir: t.TempDir(), Suffix: ".txt", Debounce: time.Second, Handler: func(context.Context, string) {}})
	require.NoError(t, err)

	base := time.Now()
	fw.pending["b.txt"] = pendingEvent{first: base, last: base}
	fw.pending["a.txt"] = pendingEvent{first: base.Add(time.Millisecond), last: base}
	fw.pending["c.txt"] = pendingEvent{first: base, last: base.Add(5 * time.Second)}

	got := fw.settled(base.Add(2 * time.Second))

	assert.Equal(t, []string{"b.txt", "a.txt"}, got)
	assert.Len(t, fw.pending, 1, "c.txt is still inside its window")
}

func TestScanExisting(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.txt", "a.txt", "skip.md"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.txt"), 0755))

	c := &collector{}
	fw, err := New(Options{Dir: dir, Suffix: ".txt", Handler: c.handle})
	require.NoError(t, err)

	n, err := fw.ScanExisting(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{filepath.Join(dir, "a.txt"), filepath.Join(dir, "b.txt")}, c.snapshot())
}

func TestScanExisting_CancelledContext(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("x"), 0644))

	c := &collector{}
	fw, err := New(Options{Dir: dir, Suffix: ".txt", Handler: c.handle})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = fw.ScanExisting(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, c.snapshot())
}

func TestContextCancelEndsLoop(t *testing.T) {
	dir := t.TempDir()
	fw, err := New(Options{Dir: dir, Suffix: ".txt", Handler: func(context.Context, string) {}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, fw.Start(ctx))
	cancel()

	require.NoError(t, fw.Stop())
}
