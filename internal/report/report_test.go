package report

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Agfare/comet-watcher/internal/record"
)

var fixedNow = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func sampleData() Data {
	return Data{
		Results: []record.Result{
			record.NewResult("a.txt", "Hello", "Hallo", nil, 0.91, 0.8),
			record.NewResult("b.txt", "Bye", "Tschüss", record.StringPtr("Ciao"), 0.42, 0.8),
		},
		Skipped: []record.Skipped{
			{File: "c.txt", Reason: record.SkipReasonInsufficientLines, Lines: []string{"lonely"}},
		},
		Threshold: 0.8,
		ModelName: "Unbabel/wmt22-comet-da",
		Now:       fixedNow,
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleData().Results)
	assert.Equal(t, 2, s.Total)
	assert.Equal(t, 1, s.WarningCount)
	assert.Equal(t, 0.665, s.Average)

	empty := Summarize(nil)
	assert.Equal(t, Summary{}, empty)
}

func TestRender_KPIsAndHeader(t *testing.T) {
	html, err := Render(sampleData())
	require.NoError(t, err)

	assert.Contains(t, html, `<div class="kpi" id="kpi-total">2</div>`)
	assert.Contains(t, html, `id="kpi-warnings">1 `)
	assert.Contains(t, html, `<div class="kpi" id="kpi-average">0.6650</div>`)
	assert.Contains(t, html, "Updated: 2026-03-14 09:26:53")
	assert.Contains(t, html, "<code>Unbabel/wmt22-comet-da</code>")
	assert.Contains(t, html, "Threshold: <b>0.8</b>")
	assert.Contains(t, html, `<td class="score ok">0.9100</td>`)
	assert.Contains(t, html, `<td class="score bad">0.4200</td>`)
	assert.Contains(t, html, "<details open>")
}

func TestRender_EmptyStores(t *testing.T) {
	html, err := Render(Data{Threshold: 0.8, ModelName: "m", Now: fixedNow})
	require.NoError(t, err)

	assert.Contains(t, html, `id="kpi-total">0<`)
	assert.Contains(t, html, `id="kpi-average">0.0000<`)
	assert.NotContains(t, html, "<details open>")
	assert.NotContains(t, html, "<td")
}

func TestRender_EscapesText(t *testing.T) {
	d := Data{
		Results: []record.Result{
			record.NewResult("<x>.txt", "<script>alert(1)</script>", "a & b", record.StringPtr(`"quoted"`), 0.9, 0.8),
		},
		Threshold: 0.8,
		ModelName: "<model>",
		Now:       fixedNow,
	}

	html, err := Render(d)
	require.NoError(t, err)

	assert.NotContains(t, html, "<script>alert(1)</script>")
	assert.Contains(t, html, "&lt;script&gt;alert(1)&lt;/script&gt;")
	assert.Contains(t, html, "a &amp; b")
	assert.Contains(t, html, "&lt;x&gt;.txt")
	assert.Contains(t, html, "&lt;model&gt;")
	assert.Contains(t, html, "&#34;quoted&#34;")
}

func TestRender_RefreshMeta(t *testing.T) {
	d := sampleData()

	html, err := Render(d)
	require.NoError(t, err)
	assert.NotContains(t, html, `http-equiv="refresh"`)
	assert.NotContains(t, html, "Auto-refresh is on.")

	d.RefreshSeconds = 5
	html, err = Render(d)
	require.NoError(t, err)
	assert.Contains(t, html, `<meta http-equiv="refresh" content="5">`)
	assert.Contains(t, html, "Auto-refresh is on.")
}

func TestRender_WarningAndSkippedTables(t *testing.T) {
	html, err := Render(sampleData())
	require.NoError(t, err)

	warnings := section(t, html, `<table id="warnings">`, "</table>")
	assert.Contains(t, warnings, "b.txt")
	assert.NotContains(t, warnings, "a.txt")

	skipped := section(t, html, `<table id="skipped">`, "</table>")
	assert.Contains(t, skipped, "c.txt")
	assert.Contains(t, skipped, record.SkipReasonInsufficientLines)
	assert.Contains(t, skipped, "[&#34;lonely&#34;]")
}

func TestRender_ReferenceAbsentIsEmptyCell(t *testing.T) {
	d := Data{
		Results:   []record.Result{record.NewResult("a.txt", "S", "M", nil, 0.9, 0.8)},
		Threshold: 0.8,
		Now:       fixedNow,
	}
	html, err := Render(d)
	require.NoError(t, err)
	assert.Contains(t, html, "<td>S</td><td>M</td><td></td>")
}

func TestWriteFile_ReplacesAtomically(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "report.html")

	require.NoError(t, WriteFile(path, "<p>one</p>"))
	require.NoError(t, WriteFile(path, "<p>two</p>"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<p>two</p>", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func section(t *testing.T, html, start, end string) string {
	t.Helper()
	i := strings.Index(html, start)
	require.GreaterOrEqual(t, i, 0, "missing %s", start)
	rest := html[i:]
	j := strings.Index(rest, end)
	require.GreaterOrEqual(t, j, 0)
	return rest[:j]
}
