package console

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/Agfare/comet-watcher/internal/processor"
)

// Field is one labelled line of a summary box.
type Field struct {
	Label string
	Value string
}

// Printer writes styled status lines. It is safe for concurrent use.
type Printer struct {
	mu     sync.Mutex
	w      io.Writer
	styles Styles
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, styles: NewStyles(w)}
}

// Styles returns the styles the printer renders with.
func (p *Printer) Styles() Styles {
	return p.styles
}

// Outcome prints a single line describing one processing attempt.
func (p *Printer) Outcome(out processor.Outcome, threshold float64) {
	switch out.Status {
	case processor.StatusScored:
		if out.Result.Warning {
			p.line(p.styles.Error.Render(fmt.Sprintf("⚠️ WARNING: %s scored %.4f, below threshold %v!",
				out.Path, out.Result.Score, threshold)))
			return
		}
		p.line(p.styles.Success.Render(fmt.Sprintf("Processed %s → COMET score: %.4f", out.Path, out.Result.Score)))
	case processor.StatusSkipped:
		p.line(p.styles.Warning.Render(fmt.Sprintf("⚠️ Skipping %s (needs at least source + MT output)", out.Path)))
	case processor.StatusFailed:
		p.line(fmt.Sprintf("Error processing %s: %v", out.Path, out.Err))
	}
}

// Info prints an informational line.
func (p *Printer) Info(format string, args ...interface{}) {
	p.line(p.styles.Info.Render(fmt.Sprintf(format, args...)))
}

// Plain prints an unstyled line.
func (p *Printer) Plain(format string, args ...interface{}) {
	p.line(fmt.Sprintf(format, args...))
}

// Summary prints fields inside a bordered box under title.
func (p *Printer) Summary(title string, fields []Field) {
	width := 0
	for _, f := range fields {
		if len(f.Label) > width {
			width = len(f.Label)
		}
	}

	var sb strings.Builder
	sb.WriteString(p.styles.Title.Render(title))
	for _, f := range fields {
		sb.WriteString("\n")
		sb.WriteString(p.styles.Muted.Render(fmt.Sprintf("%-*s", width+1, f.Label+":")))
		sb.WriteString(" ")
		sb.WriteString(p.styles.Bold.Render(f.Value))
	}
	p.line(p.styles.Box.Render(sb.String()))
}

// Table prints t. Empty tables print nothing.
func (p *Printer) Table(t *Table) {
	if view := t.View(p.styles); view != "" {
		p.mu.Lock()
		defer p.mu.Unlock()
		fmt.Fprint(p.w, view)
	}
}

func (p *Printer) line(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.w, s)
}
