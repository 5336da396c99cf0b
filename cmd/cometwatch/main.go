package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Agfare/comet-watcher/internal/app"
	"github.com/Agfare/comet-watcher/internal/config"
	"github.com/Agfare/comet-watcher/internal/logging"
)

var (
	// Global flags
	verbose    bool
	configPath string
	inputDir   string
	modelName  string
	scorerURL  string
	threshold  float64
	refresh    int

	// Effective configuration, loaded in PersistentPreRunE
	cfg *config.Config
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "cometwatch",
	Short: "Score machine translations with COMET as they land in a folder",
	Long: `cometwatch watches a folder for plain-text files holding a source sentence,
its machine translation and an optional reference, scores each with a COMET
model and keeps JSON Lines logs plus an HTML dashboard up to date.

Run without a subcommand to batch-process existing files and keep watching.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := logging.Initialize(loaded.Logging.Options()); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		cfg = loaded
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
	RunE: runWatch,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", config.DefaultPath, "Config file")
	rootCmd.PersistentFlags().StringVarP(&inputDir, "input", "i", "", "Input folder (overrides input_dir)")
	rootCmd.PersistentFlags().StringVar(&modelName, "model", "", "COMET model name (overrides model_name)")
	rootCmd.PersistentFlags().StringVar(&scorerURL, "scorer-url", "", "COMET HTTP scorer base URL (overrides scorer.base_url)")
	rootCmd.PersistentFlags().Float64Var(&threshold, "threshold", 0, "Warning threshold (overrides warning_threshold)")
	rootCmd.PersistentFlags().IntVar(&refresh, "refresh", 0, "Report auto-refresh seconds (overrides auto_refresh_seconds)")

	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies flag overrides. Flags win
// over environment variables, which win over the file.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	loaded, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("input") {
		loaded.InputDir = inputDir
	}
	if flags.Changed("model") {
		loaded.ModelName = modelName
	}
	if flags.Changed("scorer-url") {
		loaded.Scorer.Backend = config.BackendHTTP
		loaded.Scorer.BaseURL = scorerURL
	}
	if flags.Changed("threshold") {
		loaded.WarningThreshold = threshold
	}
	if flags.Changed("refresh") {
		loaded.AutoRefreshSeconds = refresh
	}
	if verbose {
		loaded.Logging.Level = "debug"
	}
	return loaded, nil
}

// newOrchestrator builds an Orchestrator from the effective config.
func newOrchestrator(out io.Writer) (*app.Orchestrator, error) {
	return app.New(app.Options{Config: cfg, Out: out})
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
