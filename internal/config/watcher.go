package config

import "time"

// WatcherConfig configures the folder watcher.
type WatcherConfig struct {
	// Debounce coalesces repeated events for one file. "0" dispatches immediately.
	Debounce string `yaml:"debounce"`
}

// GetDebounce returns the debounce window as a duration.
func (w WatcherConfig) GetDebounce() time.Duration {
	if w.Debounce == "" {
		return 0
	}
	d, err := time.ParseDuration(w.Debounce)
	if err != nil || d < 0 {
		return 300 * time.Millisecond
	}
	return d
}
