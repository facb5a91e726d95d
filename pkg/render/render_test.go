package render

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secreport/secreport/internal/jsonutil"
	"github.com/secreport/secreport/pkg/dataset"
	"github.com/secreport/secreport/pkg/recipe"
	"github.com/secreport/secreport/pkg/report"
)

func testBundle() *report.Bundle {
	d := dataset.New("severity", "finding_count")
	d.Rows = []dataset.Row{
		{"severity": "critical", "finding_count": float64(4)},
		{"severity": "low", "finding_count": float64(12)},
	}
	return &report.Bundle{
		RunID:       "run-1",
		RecipeName:  "Findings by Severity",
		Title:       "Findings by Severity",
		GeneratedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		StartDate:   "2025-02-01",
		EndDate:     "2025-02-28",
		RawCount:    16,
		Sections:    []report.Section{{Name: "default", Data: d}},
	}
}

func testRecipe(formats ...string) *recipe.Recipe {
	return &recipe.Recipe{
		Name:   "Findings by Severity",
		Output: recipe.Output{Formats: formats},
	}
}

func newTestRenderer(t *testing.T) (*Renderer, string) {
	t.Helper()
	dir := t.TempDir()
	return New(dir, slog.New(slog.DiscardHandler)), dir
}

func TestEmitCSV(t *testing.T) {
	r, dir := newTestRenderer(t)

	paths, err := r.Emit(testRecipe("csv"), testBundle())
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "findings_by_severity.csv")}, paths)

	raw, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	content := strings.TrimPrefix(string(raw), utf8BOM)
	lines := strings.Split(strings.TrimSpace(content), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "severity,finding_count", lines[0])
	assert.Equal(t, "critical,4", lines[1])
	assert.Equal(t, "low,12", lines[2])
}

func TestEmitDefaultsToCSV(t *testing.T) {
	r, _ := newTestRenderer(t)
	paths, err := r.Emit(testRecipe(), testBundle())
	require.NoError(t, err)
	require.Len(t, paths, 1)
	assert.True(t, strings.HasSuffix(paths[0], ".csv"))
}

func TestCSVSanitizesFormulas(t *testing.T) {
	assert.Equal(t, "'=SUM(A1)", sanitizeFormula("=SUM(A1)"))
	assert.Equal(t, "'@cmd", sanitizeFormula("@cmd"))
	assert.Equal(t, "'+1+1", sanitizeFormula("+1+1"))
	assert.Equal(t, "-12.5", sanitizeFormula("-12.5"), "negative numbers pass through")
	assert.Equal(t, "'-cmd", sanitizeFormula("-cmd"))
	assert.Equal(t, "plain", sanitizeFormula("plain"))
	assert.Equal(t, "", sanitizeFormula(""))
}

func TestEmitHTML(t *testing.T) {
	r, _ := newTestRenderer(t)

	paths, err := r.Emit(testRecipe("html"), testBundle())
	require.NoError(t, err)
	require.Len(t, paths, 1)

	raw, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	html := string(raw)
	assert.Contains(t, html, "<title>Findings by Severity</title>")
	assert.Contains(t, html, "<th>Severity</th>")
	assert.Contains(t, html, "<th>Finding Count</th>")
	assert.Contains(t, html, "<td>critical</td>")
	assert.Contains(t, html, "2025-02-01 to 2025-02-28")
}

func TestEmitJSON(t *testing.T) {
	r, _ := newTestRenderer(t)

	paths, err := r.Emit(testRecipe("json"), testBundle())
	require.NoError(t, err)
	require.Len(t, paths, 1)

	raw, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, jsonutil.Unmarshal(raw, &doc))
	assert.Equal(t, "run-1", doc["run_id"])
	assert.Equal(t, float64(16), doc["raw_count"])
	sections := doc["sections"].(map[string]any)
	require.Len(t, sections["default"], 2)
}

func TestEmitPDF(t *testing.T) {
	r, _ := newTestRenderer(t)

	paths, err := r.Emit(testRecipe("pdf"), testBundle())
	require.NoError(t, err)
	require.Len(t, paths, 1)

	raw, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(raw), "%PDF-"), "pdf magic header")
}

func TestEmitMultiSectionNames(t *testing.T) {
	r, dir := newTestRenderer(t)

	b := testBundle()
	extra := dataset.New("scan_date", "scans_created")
	extra.Rows = []dataset.Row{{"scan_date": "2025-02-03", "scans_created": float64(2)}}
	b.Sections = append(b.Sections, report.Section{Name: "daily_metrics", Data: extra})
	b.Portfolio = dataset.New("project")

	paths, err := r.Emit(testRecipe("csv"), b)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "findings_by_severity.csv"),
		filepath.Join(dir, "findings_by_severity_daily_metrics.csv"),
		filepath.Join(dir, "findings_by_severity_portfolio.csv"),
	}, paths)
}

func TestEmitUnknownFormat(t *testing.T) {
	r, _ := newTestRenderer(t)
	_, err := r.Emit(testRecipe("docx"), testBundle())
	require.Error(t, err)
}

func TestColumnTitle(t *testing.T) {
	assert.Equal(t, "Finding Count", columnTitle("finding_count"))
	assert.Equal(t, "Project Name", columnTitle("project.name"))
	assert.Equal(t, "Severity", columnTitle("severity"))
}
