package main

import (
	"github.com/spf13/cobra"
)

var (
	pruneDryRun bool
	exportOut   string
)

// pruneCmd removes results whose input file is gone or has changed
var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove results for deleted or edited input files",
	Long: `Results are never removed implicitly: editing an input file adds a new
record next to the old one. prune drops results whose file no longer exists
or no longer produces the same source and MT text, and skipped entries whose
file is gone.`,
	Args: cobra.NoArgs,
	RunE: runPrune,
}

// exportCmd writes the stores to an XLSX workbook
var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export results, warnings and skipped files to an XLSX workbook",
	Args:  cobra.NoArgs,
	RunE:  runExport,
}

func init() {
	pruneCmd.Flags().BoolVar(&pruneDryRun, "dry-run", false, "List stale entries without removing them")
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "comet_results.xlsx", "Output workbook path")
}

func runPrune(cmd *cobra.Command, args []string) error {
	o, err := newOrchestrator(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer o.Close()

	rep, err := o.Prune(pruneDryRun)
	if err != nil {
		return err
	}

	p := o.Printer()
	if rep.Empty() {
		p.Info("Nothing to prune.")
		return nil
	}
	verb := "Removed"
	if pruneDryRun {
		verb = "Would remove"
	}
	for _, r := range rep.Results {
		p.Plain("%s result %s (%s)", verb, r.File, r.Key())
	}
	for _, s := range rep.Skipped {
		p.Plain("%s skipped entry %s", verb, s.File)
	}
	p.Info("%s %d results and %d skipped entries.", verb, len(rep.Results), len(rep.Skipped))
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	o, err := newOrchestrator(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer o.Close()
	return o.Export(exportOut)
}
