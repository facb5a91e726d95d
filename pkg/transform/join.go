package transform

import (
	"fmt"
	"strings"

	"github.com/secreport/secreport/pkg/dataset"
)

// applyJoin merges an auxiliary dataset into the current one. Right
// key columns may use dotted paths into nested objects
// (component.id). Unlike column selection, a missing join key is an
// error: a silently empty join produces a plausible-looking but wrong
// report.
func (e *Engine) applyJoin(d *dataset.Dataset, spec *JoinSpec, aux map[string]*dataset.Dataset) (*dataset.Dataset, error) {
	right, ok := aux[spec.Right]
	if !ok {
		return nil, fmt.Errorf("join: dataset %q not available", spec.Right)
	}
	if len(spec.LeftOn) == 0 || len(spec.LeftOn) != len(spec.RightOn) {
		return nil, fmt.Errorf("join: left_on and right_on must be non-empty and the same length")
	}
	how := strings.ToLower(spec.How)
	if how == "" {
		how = "left"
	}
	switch how {
	case "left", "right", "inner", "outer":
	default:
		return nil, fmt.Errorf("join: unknown how %q", spec.How)
	}

	for _, col := range spec.LeftOn {
		if !d.HasColumn(col) {
			return nil, fmt.Errorf("join: left column %q not found", col)
		}
	}
	// Right keys are resolved per row so dotted paths work even when
	// the flat column does not exist.

	rightIndex := make(map[string][]dataset.Row)
	for _, row := range right.Rows {
		key, ok := joinKey(row, spec.RightOn)
		if !ok {
			continue
		}
		rightIndex[key] = append(rightIndex[key], row)
	}

	columns := append([]string(nil), d.Columns...)
	colSet := make(map[string]bool, len(columns))
	for _, c := range columns {
		colSet[c] = true
	}
	for _, c := range right.Columns {
		if !colSet[c] {
			colSet[c] = true
			columns = append(columns, c)
		}
	}

	out := dataset.New(columns...)
	matchedRight := make(map[string]bool)

	for _, lrow := range d.Rows {
		key, ok := joinKey(lrow, spec.LeftOn)
		matches := rightIndex[key]
		if ok && len(matches) > 0 {
			matchedRight[key] = true
			for _, rrow := range matches {
				out.Rows = append(out.Rows, mergeRows(lrow, rrow))
			}
			continue
		}
		if how == "left" || how == "outer" {
			out.Rows = append(out.Rows, mergeRows(lrow, nil))
		}
	}

	if how == "right" || how == "outer" {
		for _, rrow := range right.Rows {
			key, ok := joinKey(rrow, spec.RightOn)
			if !ok || !matchedRight[key] {
				out.Rows = append(out.Rows, mergeRows(nil, rrow))
			}
		}
	}

	// Unmatched rows carry the other side's columns as explicit nulls.
	for _, row := range out.Rows {
		for _, c := range columns {
			if _, ok := row[c]; !ok {
				row[c] = nil
			}
		}
	}
	return out, nil
}

// joinKey builds a composite key from the canonical strings of the
// key columns. ok is false when any segment is missing or null, so
// null keys never match each other.
func joinKey(row dataset.Row, columns []string) (string, bool) {
	parts := make([]string, len(columns))
	for i, col := range columns {
		v, ok := dataset.Extract(row, col)
		if !ok || v == nil {
			return "", false
		}
		parts[i] = dataset.CanonicalString(v)
	}
	return strings.Join(parts, "\x1f"), true
}

// mergeRows combines a left and right row; left values win on
// conflicting column names.
func mergeRows(left, right dataset.Row) dataset.Row {
	out := make(dataset.Row, len(left)+len(right))
	for k, v := range right {
		out[k] = v
	}
	for k, v := range left {
		out[k] = v
	}
	return out
}
