package transform

import (
	"fmt"
	"sort"
	"strings"

	"github.com/secreport/secreport/pkg/dataset"
	"github.com/secreport/secreport/pkg/query"
)

// severityRank orders severities for sorting: critical first, unknown
// values last.
var severityRank = map[string]int{
	"critical": 0,
	"high":     1,
	"medium":   2,
	"low":      3,
}

const unknownSeverityRank = 99

// applyFilter keeps rows matching the expression. The grammar is the
// same RSQL subset the API accepts, so recipes can reuse filter
// strings verbatim. A != clause never matches a null field.
func (e *Engine) applyFilter(d *dataset.Dataset, expr string) (*dataset.Dataset, error) {
	f, err := query.ParseFilter(expr)
	if err != nil {
		return nil, err
	}
	out := dataset.New(d.Columns...)
	for _, row := range d.Rows {
		if f.Match(row) {
			out.Rows = append(out.Rows, row)
		}
	}
	e.logger.Debug("filter applied", "expr", expr, "in", len(d.Rows), "out", len(out.Rows))
	return out, nil
}

// applySort orders rows by the given columns. Severity columns sort
// by rank rather than alphabetically. The sort is stable so ties keep
// their incoming order.
func (e *Engine) applySort(d *dataset.Dataset, spec *SortSpec) (*dataset.Dataset, error) {
	if len(spec.By) == 0 {
		return nil, fmt.Errorf("sort requires at least one column")
	}
	for _, col := range spec.By {
		if !d.HasColumn(col) {
			return nil, fmt.Errorf("sort column %q not found", col)
		}
	}

	out := d.Clone()
	sort.SliceStable(out.Rows, func(i, j int) bool {
		for _, col := range spec.By {
			c := compareValues(col, out.Rows[i][col], out.Rows[j][col])
			if c == 0 {
				continue
			}
			if spec.Ascending {
				return c < 0
			}
			return c > 0
		}
		return false
	})
	return out, nil
}

func compareValues(column string, a, b any) int {
	if column == "severity" {
		ra, rb := rankSeverity(a), rankSeverity(b)
		switch {
		case ra < rb:
			return -1
		case ra > rb:
			return 1
		default:
			return 0
		}
	}
	if na, ok := dataset.Number(a); ok {
		if nb, ok := dataset.Number(b); ok {
			switch {
			case na < nb:
				return -1
			case na > nb:
				return 1
			default:
				return 0
			}
		}
	}
	sa, sb := dataset.CanonicalString(a), dataset.CanonicalString(b)
	switch {
	case sa < sb:
		return -1
	case sa > sb:
		return 1
	default:
		return 0
	}
}

func rankSeverity(v any) int {
	s, ok := v.(string)
	if !ok {
		return unknownSeverityRank
	}
	if r, ok := severityRank[strings.ToLower(s)]; ok {
		return r
	}
	return unknownSeverityRank
}
