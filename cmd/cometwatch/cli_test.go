package main

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Agfare/comet-watcher/internal/config"
	"github.com/Agfare/comet-watcher/internal/logging"
)

// resetState restores every flag to its default so tests can share rootCmd.
func resetState() {
	var reset func(c *cobra.Command)
	reset = func(c *cobra.Command) {
		for _, fs := range []*pflag.FlagSet{c.PersistentFlags(), c.Flags()} {
			fs.VisitAll(func(f *pflag.Flag) {
				_ = f.Value.Set(f.DefValue)
				f.Changed = false
			})
		}
		for _, sub := range c.Commands() {
			reset(sub)
		}
	}
	reset(rootCmd)
	cfg = nil
	logging.SetBase(nil, nil)
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetState()
	t.Cleanup(resetState)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func writeTestConfig(t *testing.T) (string, *config.Config) {
	t.Helper()
	dir := t.TempDir()
	c := config.DefaultConfig()
	c.InputDir = filepath.Join(dir, "in")
	c.OutputFile = filepath.Join(dir, "comet_scores.jsonl")
	c.WarningFile = filepath.Join(dir, "warnings.jsonl")
	c.SkippedFile = filepath.Join(dir, "skipped.jsonl")
	c.ReportFile = filepath.Join(dir, "report.html")
	c.History.Enabled = true
	c.History.DatabasePath = filepath.Join(dir, "history.db")
	c.Logging.Level = "error"
	c.Scorer.Backend = config.BackendCommand
	c.Scorer.Command = []string{"sh", "-c", `cat >/dev/null; echo '{"scores":[0.6],"system_score":0.6}'`}

	path := filepath.Join(dir, "cometwatch.yaml")
	require.NoError(t, c.Save(path))
	return path, c
}

func TestBatchReportHistoryExport(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("scorer stub uses /bin/sh")
	}
	path, c := writeTestConfig(t)
	require.NoError(t, os.MkdirAll(c.InputDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(c.InputDir, "a.txt"), []byte("Hello\nHallo\n"), 0644))

	out, err := execute(t, "--config", path, "batch")
	require.NoError(t, err)
	assert.Contains(t, out, "below threshold 0.8")
	assert.FileExists(t, c.OutputFile)
	assert.FileExists(t, c.ReportFile)

	require.NoError(t, os.Remove(c.ReportFile))
	_, err = execute(t, "--config", path, "report")
	require.NoError(t, err)
	assert.FileExists(t, c.ReportFile)

	out, err = execute(t, "--config", path, "history", "--limit", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "Recent attempts")
	assert.Contains(t, out, "a.txt")
	assert.Contains(t, out, "0.6000 !")

	xlsx := filepath.Join(t.TempDir(), "out.xlsx")
	_, err = execute(t, "--config", path, "export", "--out", xlsx)
	require.NoError(t, err)
	assert.FileExists(t, xlsx)

	require.NoError(t, os.Remove(filepath.Join(c.InputDir, "a.txt")))
	out, err = execute(t, "--config", path, "prune", "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "Would remove result a.txt")
}

func TestConfigInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "cometwatch.yaml")

	out, err := execute(t, "--config", path, "config", "init")
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote default config")

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultConfig().InputDir, loaded.InputDir)

	_, err = execute(t, "--config", path, "config", "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = execute(t, "--config", path, "config", "init", "--force")
	require.NoError(t, err)
}

func TestFlagsOverrideConfig(t *testing.T) {
	path, _ := writeTestConfig(t)
	dir := t.TempDir()

	out, err := execute(t, "--config", path, "--input", dir, "--threshold", "0.55", "--refresh", "10", "config", "show")
	require.NoError(t, err)

	assert.Contains(t, out, "input_dir: "+dir)
	assert.Contains(t, out, "warning_threshold: 0.55")
	assert.Contains(t, out, "auto_refresh_seconds: 10")
	assert.Contains(t, out, "backend: command", "unchanged values come from the file")
}

func TestScorerURLFlagSelectsHTTP(t *testing.T) {
	path, _ := writeTestConfig(t)

	out, err := execute(t, "--config", path, "--scorer-url", "http://comet:9000", "config", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "backend: http")
	assert.Contains(t, out, "base_url: http://comet:9000")
}

func TestHistory_Missing(t *testing.T) {
	path, c := writeTestConfig(t)
	require.NoFileExists(t, c.History.DatabasePath)

	out, err := execute(t, "--config", path, "history")
	require.NoError(t, err)
	assert.True(t, strings.Contains(out, "No history at"))
}
