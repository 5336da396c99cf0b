package app

import (
	"github.com/Agfare/comet-watcher/internal/export"
)

// Export writes the current stores to an XLSX workbook at path.
func (o *Orchestrator) Export(path string) error {
	if err := o.Load(); err != nil {
		return err
	}
	if err := export.Workbook(path, o.results.Snapshot(), o.skipped.Snapshot()); err != nil {
		return err
	}
	o.printer.Info("Exported %d results to %s", o.results.Len(), path)
	return nil
}
