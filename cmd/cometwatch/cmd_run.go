package main

import (
	"github.com/spf13/cobra"

	"github.com/Agfare/comet-watcher/internal/logging"
)

// watchCmd batch-processes existing files then watches for new ones
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Process existing files, then watch the input folder until interrupted",
	Args:  cobra.NoArgs,
	RunE:  runWatch,
}

// batchCmd processes existing files once and exits
var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Process every existing file in the input folder and exit",
	Args:  cobra.NoArgs,
	RunE:  runBatch,
}

// reportCmd re-renders the dashboard from the persisted logs
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Re-render the HTML report from the persisted logs without scoring",
	Args:  cobra.NoArgs,
	RunE:  runReport,
}

func runWatch(cmd *cobra.Command, args []string) error {
	o, err := newOrchestrator(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer o.Close()

	ctx, stop := signalContext()
	defer stop()

	logging.Boot("starting watch mode on %s", cfg.InputDir)
	return o.Run(ctx)
}

func runBatch(cmd *cobra.Command, args []string) error {
	o, err := newOrchestrator(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer o.Close()

	ctx, stop := signalContext()
	defer stop()

	_, err = o.Batch(ctx)
	return err
}

func runReport(cmd *cobra.Command, args []string) error {
	o, err := newOrchestrator(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer o.Close()
	return o.RenderReport()
}
