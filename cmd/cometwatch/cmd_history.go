package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Agfare/comet-watcher/internal/console"
	"github.com/Agfare/comet-watcher/internal/history"
)

var historyLimit int

// historyCmd lists recent processing attempts from the SQLite history
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent processing attempts, including failures",
	Args:  cobra.NoArgs,
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of attempts to show")
}

func runHistory(cmd *cobra.Command, args []string) error {
	p := console.NewPrinter(cmd.OutOrStdout())

	if _, err := os.Stat(cfg.History.DatabasePath); errors.Is(err, os.ErrNotExist) {
		p.Info("No history at %s. Enable history in the config to record attempts.", cfg.History.DatabasePath)
		return nil
	}

	h, err := history.Open(cfg.History.DatabasePath)
	if err != nil {
		return err
	}
	defer h.Close()

	attempts, err := h.Recent(context.Background(), historyLimit)
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		p.Info("No attempts recorded yet.")
		return nil
	}

	table := console.NewTable("Recent attempts", []string{"Time", "File", "Status", "Score", "Duration", "Error"})
	for _, a := range attempts {
		score := "-"
		if a.Score != nil {
			score = fmt.Sprintf("%.4f", *a.Score)
			if a.Warning {
				score += " !"
			}
		}
		table.AddRow(
			a.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			a.File,
			string(a.Status),
			score,
			a.Duration.String(),
			a.Error,
		)
	}
	p.Table(table)
	return nil
}
