// Package watcher delivers create and modify events for matching files in a
// single directory to a handler, one at a time.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Agfare/comet-watcher/internal/logging"
)

// ErrNotRunning is returned by Stop when the watcher was never started or
// has already been stopped.
var ErrNotRunning = errors.New("watcher is not running")

// Handler processes one settled file path. It is never called concurrently.
type Handler func(ctx context.Context, path string)

// Options configures a FolderWatcher.
type Options struct {
	Dir      string
	Suffix   string        // e.g. ".txt"; matched case-sensitively
	Debounce time.Duration // 0 dispatches every event immediately
	Handler  Handler
}

// Stats tracks watcher activity.
type Stats struct {
	FilesCreated  int
	FilesModified int
	Dispatched    int
	Ignored       int
	Errors        int
	LastEventTime time.Time
	LastEventPath string
	LastEventType string
}

type pendingEvent struct {
	first time.Time
	last  time.Time
}

// FolderWatcher watches Dir (non-recursively) for files ending in Suffix.
type FolderWatcher struct {
	mu      sync.RWMutex
	opts    Options
	watcher *fsnotify.Watcher
	pending map[string]pendingEvent
	stopCh  chan struct{}
	doneCh  chan struct{}
	running bool
	stats   Stats
}

// New creates a FolderWatcher. It does not touch the filesystem until Start.
func New(opts Options) (*FolderWatcher, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("watcher: directory is required")
	}
	if opts.Handler == nil {
		return nil, fmt.Errorf("watcher: handler is required")
	}
	if opts.Debounce < 0 {
		opts.Debounce = 0
	}
	return &FolderWatcher{
		opts:    opts,
		pending: make(map[string]pendingEvent),
	}, nil
}

// Start begins watching the directory. This method is non-blocking; events
// are handled on a background goroutine until Stop is called or ctx ends.
func (fw *FolderWatcher) Start(ctx context.Context) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if fw.running {
		return nil // Already running
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := w.Add(fw.opts.Dir); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", fw.opts.Dir, err)
	}

	fw.watcher = w
	fw.pending = make(map[string]pendingEvent)
	fw.stopCh = make(chan struct{})
	fw.doneCh = make(chan struct{})
	fw.running = true

	logging.Watcher("watching %s for *%s (debounce %v)", fw.opts.Dir, fw.opts.Suffix, fw.opts.Debounce)
	go fw.run(ctx, w, fw.stopCh, fw.doneCh)
	return nil
}

// Stop stops the watcher and waits for an in-flight handler call to return.
// Paths still waiting out their debounce window are discarded.
func (fw *FolderWatcher) Stop() error {
	fw.mu.Lock()
	if !fw.running {
		fw.mu.Unlock()
		return ErrNotRunning
	}
	fw.running = false
	w, stopCh, doneCh := fw.watcher, fw.stopCh, fw.doneCh
	fw.mu.Unlock()

	close(stopCh)
	<-doneCh

	fw.mu.Lock()
	if n := len(fw.pending); n > 0 {
		logging.WatcherDebug("discarding %d pending events", n)
	}
	fw.pending = make(map[string]pendingEvent)
	fw.mu.Unlock()

	if err := w.Close(); err != nil {
		logging.WatcherError("error closing watcher: %v", err)
		return err
	}
	logging.Watcher("stopped watching %s", fw.opts.Dir)
	return nil
}

func (fw *FolderWatcher) run(ctx context.Context, w *fsnotify.Watcher, stopCh, doneCh chan struct{}) {
	defer close(doneCh)

	var tick <-chan time.Time
	if fw.opts.Debounce > 0 {
		ticker := time.NewTicker(tickInterval(fw.opts.Debounce))
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			logging.WatcherDebug("context cancelled")
			return

		case <-stopCh:
			return

		case event, ok := <-w.Events:
			if !ok {
				return
			}
			path, ok := fw.accept(event)
			if !ok {
				continue
			}
			if fw.opts.Debounce == 0 {
				fw.dispatch(ctx, path)
				continue
			}
			fw.mu.Lock()
			now := time.Now()
			p, exists := fw.pending[path]
			if !exists {
				p.first = now
			}
			p.last = now
			fw.pending[path] = p
			fw.mu.Unlock()

		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			logging.WatcherError("fsnotify error: %v", err)
			fw.mu.Lock()
			fw.stats.Errors++
			fw.mu.Unlock()

		case <-tick:
			for _, path := range fw.settled(time.Now()) {
				select {
				case <-stopCh:
					return
				default:
				}
				fw.dispatch(ctx, path)
			}
		}
	}
}

// accept filters an event down to create/modify of a matching regular file.
func (fw *FolderWatcher) accept(event fsnotify.Event) (string, bool) {
	var eventType string
	switch {
	case event.Has(fsnotify.Create):
		eventType = "create"
	case event.Has(fsnotify.Write):
		eventType = "modify"
	default:
		return "", false // remove, rename, chmod
	}

	if !fw.matches(event.Name) {
		fw.ignore(event.Name, eventType)
		return "", false
	}
	if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
		fw.ignore(event.Name, eventType)
		return "", false
	}

	logging.WatcherDebug("%s event for %s", eventType, event.Name)

	fw.mu.Lock()
	fw.stats.LastEventTime = time.Now()
	fw.stats.LastEventPath = event.Name
	fw.stats.LastEventType = eventType
	if eventType == "create" {
		fw.stats.FilesCreated++
	} else {
		fw.stats.FilesModified++
	}
	fw.mu.Unlock()
	return event.Name, true
}

func (fw *FolderWatcher) ignore(path, eventType string) {
	logging.WatcherDebug("ignoring %s event for %s", eventType, path)
	fw.mu.Lock()
	fw.stats.Ignored++
	fw.mu.Unlock()
}

func (fw *FolderWatcher) matches(path string) bool {
	return strings.HasSuffix(filepath.Base(path), fw.opts.Suffix)
}

// settled removes and returns the paths quiet for at least the debounce
// window, ordered by their first event.
func (fw *FolderWatcher) settled(now time.Time) []string {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	type entry struct {
		path  string
		first time.Time
	}
	var ready []entry
	for path, p := range fw.pending {
		if now.Sub(p.last) >= fw.opts.Debounce {
			ready = append(ready, entry{path: path, first: p.first})
			delete(fw.pending, path)
		}
	}
	sort.Slice(ready, func(i, j int) bool {
		if ready[i].first.Equal(ready[j].first) {
			return ready[i].path < ready[j].path
		}
		return ready[i].first.Before(ready[j].first)
	})

	paths := make([]string, len(ready))
	for i, e := range ready {
		paths[i] = e.path
	}
	return paths
}

func (fw *FolderWatcher) dispatch(ctx context.Context, path string) {
	fw.mu.Lock()
	fw.stats.Dispatched++
	fw.mu.Unlock()
	fw.opts.Handler(ctx, path)
}

// ScanExisting dispatches every matching file already in the directory, in
// name order, on the caller's goroutine. It returns the number dispatched.
func (fw *FolderWatcher) ScanExisting(ctx context.Context) (int, error) {
	entries, err := os.ReadDir(fw.opts.Dir)
	if err != nil {
		return 0, fmt.Errorf("failed to list %s: %w", fw.opts.Dir, err)
	}

	n := 0
	for _, entry := range entries {
		if entry.IsDir() || !fw.matches(entry.Name()) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return n, err
		}
		fw.dispatch(ctx, filepath.Join(fw.opts.Dir, entry.Name()))
		n++
	}
	logging.WatcherDebug("scanned %d existing files in %s", n, fw.opts.Dir)
	return n, nil
}

// Stats returns the current watcher statistics.
func (fw *FolderWatcher) Stats() Stats {
	fw.mu.RLock()
	defer fw.mu.RUnlock()
	return fw.stats
}

// WatchedDirs returns the directories being watched.
func (fw *FolderWatcher) WatchedDirs() []string {
	fw.mu.RLock()
	defer fw.mu.RUnlock()
	if !fw.running || fw.watcher == nil {
		return nil
	}
	return fw.watcher.WatchList()
}

func tickInterval(debounce time.Duration) time.Duration {
	interval := debounce / 3
	if interval < 10*time.Millisecond {
		interval = 10 * time.Millisecond
	}
	if interval > 100*time.Millisecond {
		interval = 100 * time.Millisecond
	}
	return interval
}
