// Package config loads, validates and saves the cometwatch YAML
// configuration. Environment variables override file values.
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up when no --config flag is given.
const DefaultPath = "cometwatch.yaml"

// ErrInvalidConfig is wrapped by every Validate failure.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds all cometwatch configuration. It is fixed at process start.
type Config struct {
	// Input folder and file filter
	InputDir string `yaml:"input_dir"`
	Suffix   string `yaml:"suffix"`

	// Persisted logs and report
	OutputFile  string `yaml:"output_file"`
	WarningFile string `yaml:"warning_file"`
	SkippedFile string `yaml:"skipped_file"`
	ReportFile  string `yaml:"report_file"`

	// Scoring
	ModelName        string  `yaml:"model_name"`
	WarningThreshold float64 `yaml:"warning_threshold"`

	// Report auto-refresh in seconds, 0 disables
	AutoRefreshSeconds int `yaml:"auto_refresh_seconds"`

	Scorer  ScorerConfig  `yaml:"scorer"`
	Watcher WatcherConfig `yaml:"watcher"`
	History HistoryConfig `yaml:"history"`
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		InputDir: "./translations",
		Suffix:   ".txt",

		OutputFile:  "./comet_scores.jsonl",
		WarningFile: "./warnings.jsonl",
		SkippedFile: "./skipped.jsonl",
		ReportFile:  "./report.html",

		ModelName:          "Unbabel/wmt22-comet-da",
		WarningThreshold:   0.8,
		AutoRefreshSeconds: 0,

		Scorer: ScorerConfig{
			Backend:    BackendHTTP,
			BaseURL:    "http://localhost:8765",
			Timeout:    "0",
			MaxRetries: 2,
		},

		Watcher: WatcherConfig{
			Debounce: "300ms",
		},

		History: HistoryConfig{
			Enabled:      false,
			DatabasePath: "./cometwatch.db",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Defaults if config file doesn't exist
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("COMETWATCH_INPUT_DIR"); dir != "" {
		c.InputDir = dir
	}
	if model := os.Getenv("COMET_MODEL"); model != "" {
		c.ModelName = model
	}
	if url := os.Getenv("COMET_SCORER_URL"); url != "" {
		c.Scorer.BaseURL = url
		c.Scorer.Backend = BackendHTTP
	}
	if raw := os.Getenv("COMETWATCH_THRESHOLD"); raw != "" {
		// Unparseable values keep the configured threshold.
		if v, err := strconv.ParseFloat(raw, 64); err == nil {
			c.WarningThreshold = v
		}
	}
	if path := os.Getenv("COMETWATCH_HISTORY_DB"); path != "" {
		c.History.DatabasePath = path
		c.History.Enabled = true
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.InputDir == "" {
		return fmt.Errorf("%w: input_dir is required", ErrInvalidConfig)
	}
	if c.Suffix == "" {
		return fmt.Errorf("%w: suffix is required", ErrInvalidConfig)
	}
	for name, p := range map[string]string{
		"output_file":  c.OutputFile,
		"warning_file": c.WarningFile,
		"skipped_file": c.SkippedFile,
		"report_file":  c.ReportFile,
	} {
		if p == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidConfig, name)
		}
	}
	if math.IsNaN(c.WarningThreshold) || c.WarningThreshold < 0 || c.WarningThreshold > 1 {
		return fmt.Errorf("%w: warning_threshold must be within [0, 1], got %v", ErrInvalidConfig, c.WarningThreshold)
	}
	if c.AutoRefreshSeconds < 0 {
		return fmt.Errorf("%w: auto_refresh_seconds must be >= 0", ErrInvalidConfig)
	}
	if err := c.Scorer.validate(); err != nil {
		return err
	}
	if c.History.Enabled && c.History.DatabasePath == "" {
		return fmt.Errorf("%w: history.database_path is required when history is enabled", ErrInvalidConfig)
	}
	return nil
}
