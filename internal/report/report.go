// Package report renders the result and skipped stores into a static HTML
// dashboard.
package report

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Agfare/comet-watcher/internal/logging"
	"github.com/Agfare/comet-watcher/internal/record"
)

//go:embed report.html.tmpl
var reportTemplate string

var tmpl = template.Must(template.New("report").Parse(reportTemplate))

// TimeLayout is the format of the "Updated" timestamp.
const TimeLayout = "2006-01-02 15:04:05"

// Data is everything the report shows.
type Data struct {
	Results        []record.Result
	Skipped        []record.Skipped
	Threshold      float64
	ModelName      string
	RefreshSeconds int       // 0 disables the refresh meta tag
	Now            time.Time // zero means time.Now()
}

// Summary holds the headline KPIs.
type Summary struct {
	Total        int
	WarningCount int
	Average      float64 // rounded to 4 digits, 0 when empty
}

// Summarize computes the KPIs over results.
func Summarize(results []record.Result) Summary {
	s := Summary{Total: len(results)}
	if s.Total == 0 {
		return s
	}
	var sum float64
	for _, r := range results {
		sum += r.Score
		if r.Warning {
			s.WarningCount++
		}
	}
	s.Average = record.RoundScore(sum / float64(s.Total))
	return s
}

type rowView struct {
	File      string
	Source    string
	MTOutput  string
	Reference string
	Score     string
	Class     string
}

type skippedView struct {
	File   string
	Reason string
	Lines  string
}

type pageView struct {
	Updated        string
	ModelName      string
	Threshold      string
	RefreshSeconds int
	Total          int
	WarningCount   int
	Average        string
	Rows           []rowView
	WarningRows    []rowView
	Skipped        []skippedView
}

// Render produces the HTML document for d. All free text is escaped by
// html/template.
func Render(d Data) (string, error) {
	now := d.Now
	if now.IsZero() {
		now = time.Now()
	}
	summary := Summarize(d.Results)

	page := pageView{
		Updated:        now.Format(TimeLayout),
		ModelName:      d.ModelName,
		Threshold:      strconv.FormatFloat(d.Threshold, 'f', -1, 64),
		RefreshSeconds: d.RefreshSeconds,
		Total:          summary.Total,
		WarningCount:   summary.WarningCount,
		Average:        fmt.Sprintf("%.4f", summary.Average),
	}
	for _, r := range d.Results {
		row := newRow(r, d.Threshold)
		page.Rows = append(page.Rows, row)
		if r.Warning {
			page.WarningRows = append(page.WarningRows, row)
		}
	}
	for _, s := range d.Skipped {
		page.Skipped = append(page.Skipped, skippedView{
			File:   s.File,
			Reason: s.Reason,
			Lines:  formatLines(s.Lines),
		})
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, page); err != nil {
		return "", fmt.Errorf("failed to render report: %w", err)
	}
	return buf.String(), nil
}

func newRow(r record.Result, threshold float64) rowView {
	class := "bad"
	if r.Score >= threshold {
		class = "ok"
	}
	return rowView{
		File:      r.File,
		Source:    r.Source,
		MTOutput:  r.MTOutput,
		Reference: r.ReferenceText(),
		Score:     fmt.Sprintf("%.4f", r.Score),
		Class:     class,
	}
}

func formatLines(lines []string) string {
	if lines == nil {
		lines = []string{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(lines); err != nil {
		return strings.Join(lines, " | ")
	}
	return strings.TrimSpace(buf.String())
}

// WriteFile replaces the report at path with html.
func WriteFile(path, html string) error {
	timer := logging.StartTimer(logging.CategoryReport, "WriteFile")
	defer timer.Stop()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp report: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)
	_ = tmp.Chmod(0644)

	if _, err := tmp.WriteString(html); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close report: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace report %s: %w", path, err)
	}
	logging.ReportDebug("report written to %s (%d bytes)", path, len(html))
	return nil
}
