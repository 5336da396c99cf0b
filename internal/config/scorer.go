package config

import (
	"fmt"
	"time"
)

// Scorer backends.
const (
	BackendHTTP    = "http"
	BackendCommand = "command"
)

// ScorerConfig configures how the COMET model is reached.
type ScorerConfig struct {
	Backend    string   `yaml:"backend"`     // http, command
	BaseURL    string   `yaml:"base_url"`    // http backend
	Timeout    string   `yaml:"timeout"`     // per call, empty or 0 = none
	MaxRetries int      `yaml:"max_retries"` // http backend, 429/5xx only
	Command    []string `yaml:"command"`     // command backend argv
}

// GetTimeout returns the scorer timeout as a duration. Zero means the
// scorer call is not bounded.
func (s ScorerConfig) GetTimeout() time.Duration {
	if s.Timeout == "" {
		return 0
	}
	d, err := time.ParseDuration(s.Timeout)
	if err != nil || d < 0 {
		return 0
	}
	return d
}

func (s ScorerConfig) validate() error {
	switch s.Backend {
	case BackendHTTP:
		if s.BaseURL == "" {
			return fmt.Errorf("%w: scorer.base_url is required for the http backend", ErrInvalidConfig)
		}
	case BackendCommand:
		if len(s.Command) == 0 {
			return fmt.Errorf("%w: scorer.command is required for the command backend", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown scorer backend %q (valid: %s, %s)", ErrInvalidConfig, s.Backend, BackendHTTP, BackendCommand)
	}
	if s.Timeout != "" {
		if d, err := time.ParseDuration(s.Timeout); err != nil || d < 0 {
			return fmt.Errorf("%w: scorer.timeout must be a non-negative duration, got %q", ErrInvalidConfig, s.Timeout)
		}
	}
	if s.MaxRetries < 0 {
		return fmt.Errorf("%w: scorer.max_retries must be >= 0", ErrInvalidConfig)
	}
	return nil
}
