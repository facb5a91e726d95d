// Package render writes finished report bundles to disk. Each output
// format is a thin table emitter: faithful column and row order, no
// styling promises.
package render

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/secreport/secreport/pkg/dataset"
	"github.com/secreport/secreport/pkg/recipe"
	"github.com/secreport/secreport/pkg/report"
)

// DefaultFormats applies when a recipe names no output formats.
var DefaultFormats = []string{"csv"}

// Renderer implements report.Sink, fanning each bundle out to the
// formats its recipe asks for.
type Renderer struct {
	dir    string
	logger *slog.Logger
}

// New returns a renderer writing under dir. The directory is created
// on first emit.
func New(dir string, logger *slog.Logger) *Renderer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Renderer{dir: dir, logger: logger}
}

// Emit writes every section of the bundle in every requested format
// and returns the paths written.
func (r *Renderer) Emit(rec *recipe.Recipe, b *report.Bundle) ([]string, error) {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}
	formats := rec.Output.Formats
	if len(formats) == 0 {
		formats = DefaultFormats
	}

	var paths []string
	for _, format := range formats {
		written, err := r.emitFormat(format, b)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", format, err)
		}
		paths = append(paths, written...)
	}
	for _, p := range paths {
		r.logger.Info("report written", "recipe", b.RecipeName, "file", p)
	}
	return paths, nil
}

func (r *Renderer) emitFormat(format string, b *report.Bundle) ([]string, error) {
	switch format {
	case "csv":
		return r.writeCSVs(b)
	case "html":
		p, err := r.writeHTML(b)
		if err != nil {
			return nil, err
		}
		return []string{p}, nil
	case "pdf":
		p, err := r.writePDF(b)
		if err != nil {
			return nil, err
		}
		return []string{p}, nil
	case "json":
		p, err := r.writeJSON(b)
		if err != nil {
			return nil, err
		}
		return []string{p}, nil
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}

// sections returns everything worth emitting, the portfolio table
// included as its own named section.
func sections(b *report.Bundle) []report.Section {
	out := make([]report.Section, 0, len(b.Sections)+1)
	out = append(out, b.Sections...)
	if b.Portfolio != nil {
		out = append(out, report.Section{Name: "portfolio", Data: b.Portfolio})
	}
	return out
}

// path builds the output file name. The default section carries no
// suffix; named sections get one so multi-output bundles never clash.
func (r *Renderer) path(b *report.Bundle, section, ext string) string {
	name := slug(b.RecipeName)
	if section != "" && section != "default" {
		name += "_" + slug(section)
	}
	return filepath.Join(r.dir, name+"."+ext)
}

// slug maps a display name to a file-safe token.
func slug(s string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return strings.Trim(sb.String(), "_")
}

// cell renders a dataset value for tabular output.
func cell(row dataset.Row, column string) string {
	v, ok := dataset.Extract(row, column)
	if !ok {
		v = row[column]
	}
	return dataset.CanonicalString(v)
}
