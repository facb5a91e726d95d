package recipe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/secreport/secreport/pkg/transform"
)

const findingsBySeverity = `
name: findings-by-severity
description: Open findings grouped by severity
query:
  endpoint: /public/v0/findings
  params:
    filter: detectedOn>=${start};detectedOn<=${end}
    limit: 400
additional_queries:
  projects:
    endpoint: /public/v0/projects
    params:
      limit: 1000
  open_issues:
    endpoint: /public/v0/findings
    params:
      filter: status=in=(IN_TRIAGE,EXPLOITABLE)
additional_transforms:
  open_issues:
    - group_by:
        keys: [severity]
transform:
  - flatten: {}
  - group_by:
      keys: [severity]
      aggs:
        total_risk: "SUM:risk"
  - sort:
      by: [severity]
      ascending: true
portfolio_transform:
  - group_by:
      keys: [project.name]
output:
  title: Findings by Severity
  table: true
  formats: [csv, html]
`

func TestParseFullRecipe(t *testing.T) {
	r, err := Parse([]byte(findingsBySeverity))
	require.NoError(t, err)

	assert.Equal(t, "findings-by-severity", r.Name)
	assert.Equal(t, "/public/v0/findings", r.Query.Endpoint)
	assert.Equal(t, 400, r.Query.Params.Limit)

	require.Len(t, r.AdditionalQueries, 2)
	assert.Equal(t, "projects", r.AdditionalQueries[0].Name, "declaration order preserved")
	assert.Equal(t, "open_issues", r.AdditionalQueries[1].Name)

	require.Len(t, r.Transform, 3)
	assert.Equal(t, transform.KindFlatten, r.Transform[0].Kind())
	assert.Equal(t, transform.KindGroupBy, r.Transform[1].Kind())
	assert.Equal(t, transform.KindSort, r.Transform[2].Kind())
	assert.Equal(t, "SUM:risk", r.Transform[1].GroupBy.Aggs["total_risk"])

	require.Len(t, r.PortfolioTransform, 1)
	assert.Equal(t, []string{"csv", "html"}, r.Output.Formats)
}

func TestParseGroupByShortForm(t *testing.T) {
	r, err := Parse([]byte(`
name: short
query:
  endpoint: /public/v0/findings
transform:
  - group_by: [severity, status]
output:
  formats: [csv]
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"severity", "status"}, r.Transform[0].GroupBy.Keys)
}

func TestParseRejectsMultiVariantStep(t *testing.T) {
	_, err := Parse([]byte(`
name: broken
query:
  endpoint: /x
transform:
  - filter: severity==HIGH
    sort:
      by: [severity]
output:
  formats: [csv]
`))
	require.Error(t, err)
}

func TestParseRejectsUnknownFields(t *testing.T) {
	_, err := Parse([]byte(`
name: typo
query:
  endpoint: /x
transfrom:
  - group_by: [severity]
output:
  formats: [csv]
`))
	require.Error(t, err, "misspelled keys must not be dropped silently")
}

func TestValidateRequirements(t *testing.T) {
	_, err := Parse([]byte("name: empty\nquery:\n  endpoint: /x\noutput: {}\n"))
	assert.Error(t, err, "recipe without transform must fail")

	_, err = Parse([]byte(`
name: badformat
query:
  endpoint: /x
transform:
  - group_by: [a]
output:
  formats: [docx]
`))
	assert.Error(t, err)

	_, err = Parse([]byte(`
name: danglingaux
query:
  endpoint: /x
transform:
  - group_by: [a]
additional_transforms:
  ghost:
    - group_by: [a]
output:
  formats: [csv]
`))
	assert.Error(t, err)
}

func TestTransformFunctionInsteadOfSteps(t *testing.T) {
	r, err := Parse([]byte(`
name: scans
query:
  endpoint: /public/v0/scans
transform_function: scan_analysis
output:
  formats: [html]
`))
	require.NoError(t, err)
	assert.Equal(t, "scan_analysis", r.TransformFunction)
	assert.Empty(t, r.Transform)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		t.Helper()
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}
	write("b-second.yaml", "name: second\nquery:\n  endpoint: /x\ntransform:\n  - group_by: [a]\noutput:\n  formats: [csv]\n")
	write("a-first.yml", "name: first\nquery:\n  endpoint: /x\ntransform:\n  - group_by: [a]\noutput:\n  formats: [csv]\n")
	write("notes.txt", "ignored")

	recipes, err := LoadDir(dir)
	require.NoError(t, err)
	require.Len(t, recipes, 2)
	assert.Equal(t, "first", recipes[0].Name, "recipes load in file name order")
	assert.Equal(t, "second", recipes[1].Name)
}

func TestLoadDirRejectsDuplicateNames(t *testing.T) {
	dir := t.TempDir()
	content := "name: dup\nquery:\n  endpoint: /x\ntransform:\n  - group_by: [a]\noutput:\n  formats: [csv]\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.yaml"), []byte(content), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.yaml"), []byte(content), 0o644))

	_, err := LoadDir(dir)
	require.Error(t, err)
}

func TestLoadDirEmpty(t *testing.T) {
	_, err := LoadDir(t.TempDir())
	require.Error(t, err)
}
