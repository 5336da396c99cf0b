// Package export writes the result and skipped stores to an XLSX workbook
// for reviewers who work in spreadsheets.
package export

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/Agfare/comet-watcher/internal/logging"
	"github.com/Agfare/comet-watcher/internal/record"
)

// Sheet names, in workbook order.
const (
	SheetResults  = "Results"
	SheetWarnings = "Warnings"
	SheetSkipped  = "Skipped"
)

var (
	resultHeaders  = []interface{}{"File", "Source", "MT Output", "Reference", "COMET Score", "Warning"}
	skippedHeaders = []interface{}{"File", "Reason", "Lines"}
)

// Workbook writes results, their warning subset and skipped entries to path.
func Workbook(path string, results []record.Result, skipped []record.Skipped) error {
	timer := logging.StartTimer(logging.CategoryExport, "Workbook")
	defer timer.Stop()

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetResults); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	for _, name := range []string{SheetWarnings, SheetSkipped} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	headerStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	var warnings []record.Result
	for _, r := range results {
		if r.Warning {
			warnings = append(warnings, r)
		}
	}

	if err := writeResults(f, SheetResults, results, headerStyle); err != nil {
		return err
	}
	if err := writeResults(f, SheetWarnings, warnings, headerStyle); err != nil {
		return err
	}
	if err := writeSkipped(f, skipped, headerStyle); err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	logging.Export("exported %d results (%d warnings) and %d skipped to %s",
		len(results), len(warnings), len(skipped), path)
	return nil
}

func writeResults(f *excelize.File, sheet string, results []record.Result, headerStyle int) error {
	if err := writeHeader(f, sheet, resultHeaders, headerStyle); err != nil {
		return err
	}
	for i, r := range results {
		row := []interface{}{r.File, r.Source, r.MTOutput, r.ReferenceText(), r.Score, r.Warning}
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(sheet, "B", "D", 48); err != nil {
		return fmt.Errorf("failed to size columns on %s: %w", sheet, err)
	}
	return nil
}

func writeSkipped(f *excelize.File, skipped []record.Skipped, headerStyle int) error {
	if err := writeHeader(f, SheetSkipped, skippedHeaders, headerStyle); err != nil {
		return err
	}
	for i, s := range skipped {
		row := []interface{}{s.File, s.Reason, strings.Join(s.Lines, "\n")}
		if err := setRow(f, SheetSkipped, i+2, row); err != nil {
			return err
		}
	}
	return nil
}

func writeHeader(f *excelize.File, sheet string, headers []interface{}, style int) error {
	if err := setRow(f, sheet, 1, headers); err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, style); err != nil {
		return fmt.Errorf("failed to style header on %s: %w", sheet, err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, rowNum int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, rowNum)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d on %s: %w", rowNum, sheet, err)
	}
	return nil
}
