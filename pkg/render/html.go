package render

import (
	"fmt"
	"html/template"
	"os"

	"github.com/Masterminds/sprig/v3"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/secreport/secreport/pkg/report"
)

var titleCaser = cases.Title(language.English)

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{ .Title }}</title>
<style>
body { font-family: -apple-system, "Segoe UI", Helvetica, Arial, sans-serif; margin: 2rem; color: #1e293b; }
h1 { font-size: 1.4rem; }
h2 { font-size: 1.1rem; margin-top: 2rem; }
p.meta { color: #64748b; font-size: 0.85rem; }
table { border-collapse: collapse; margin-top: 0.75rem; }
th, td { border: 1px solid #cbd5e1; padding: 0.35rem 0.7rem; text-align: left; font-size: 0.85rem; }
th { background: #1e293b; color: #fff; }
tr:nth-child(even) td { background: #f8fafc; }
</style>
</head>
<body>
<h1>{{ .Title }}</h1>
<p class="meta">{{ .StartDate }} to {{ .EndDate }} &middot; generated {{ .GeneratedAt.Format "2006-01-02 15:04" }} &middot; {{ .RawCount }} source records &middot; run {{ .RunID }}</p>
{{ range .Tables }}
{{ if .Heading }}<h2>{{ .Heading }}</h2>{{ end }}
<table>
<thead><tr>{{ range .Columns }}<th>{{ columnTitle . }}</th>{{ end }}</tr></thead>
<tbody>
{{ range .Rows }}<tr>{{ range . }}<td>{{ . }}</td>{{ end }}</tr>
{{ end }}</tbody>
</table>
{{ end }}
</body>
</html>
`

type htmlTable struct {
	Heading string
	Columns []string
	Rows    [][]string
}

type htmlData struct {
	*report.Bundle
	Tables []htmlTable
}

// writeHTML emits a single page holding every section of the bundle.
func (r *Renderer) writeHTML(b *report.Bundle) (string, error) {
	funcMap := sprig.HtmlFuncMap()
	funcMap["columnTitle"] = columnTitle

	tmpl, err := template.New("report").Funcs(funcMap).Parse(htmlTemplate)
	if err != nil {
		return "", fmt.Errorf("parse report template: %w", err)
	}

	data := htmlData{Bundle: b}
	secs := sections(b)
	for _, s := range secs {
		tbl := htmlTable{Columns: s.Data.Columns}
		if len(secs) > 1 {
			tbl.Heading = columnTitle(s.Name)
		}
		for _, row := range s.Data.Rows {
			cells := make([]string, len(s.Data.Columns))
			for i, col := range s.Data.Columns {
				cells[i] = cell(row, col)
			}
			tbl.Rows = append(tbl.Rows, cells)
		}
		data.Tables = append(data.Tables, tbl)
	}

	path := r.path(b, "", "html")
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := tmpl.Execute(f, data); err != nil {
		return "", fmt.Errorf("execute report template: %w", err)
	}
	return path, f.Close()
}

// columnTitle turns a snake_case column into a display heading.
func columnTitle(col string) string {
	out := make([]byte, len(col))
	for i := 0; i < len(col); i++ {
		if col[i] == '_' || col[i] == '.' {
			out[i] = ' '
		} else {
			out[i] = col[i]
		}
	}
	return titleCaser.String(string(out))
}
