package transform

import (
	"fmt"
	"sort"

	"github.com/secreport/secreport/pkg/dataset"
)

// pivotSeverityOrder is the column order charts expect for stacked
// severity bars. Unexpected values follow in first-seen order.
var pivotSeverityOrder = []string{"low", "medium", "high", "critical"}

// applyPivot spreads Columns values into columns of their own,
// summing Values per (Index, Columns) pair. Missing combinations fill
// with 0.
func (e *Engine) applyPivot(d *dataset.Dataset, spec *PivotSpec) (*dataset.Dataset, error) {
	for _, col := range []string{spec.Index, spec.Columns, spec.Values} {
		if !d.HasColumn(col) {
			return nil, fmt.Errorf("pivot column %q not found", col)
		}
	}

	sums := make(map[string]map[string]float64) // index -> column -> sum
	var indexOrder, colOrder []string
	seenCols := make(map[string]bool)

	for _, row := range d.Rows {
		idx := dataset.CanonicalString(row[spec.Index])
		col := dataset.CanonicalString(row[spec.Columns])
		v, _ := dataset.Number(row[spec.Values]) // nulls count as 0

		if _, ok := sums[idx]; !ok {
			sums[idx] = make(map[string]float64)
			indexOrder = append(indexOrder, idx)
		}
		if !seenCols[col] {
			seenCols[col] = true
			colOrder = append(colOrder, col)
		}
		sums[idx][col] += v
	}
	sort.Strings(indexOrder)

	// Severity columns first in chart order, then everything else.
	var ordered []string
	for _, s := range pivotSeverityOrder {
		if seenCols[s] {
			ordered = append(ordered, s)
		}
	}
	for _, c := range colOrder {
		if !contains(pivotSeverityOrder, c) {
			ordered = append(ordered, c)
		}
	}

	out := dataset.New(append([]string{spec.Index}, ordered...)...)
	for _, idx := range indexOrder {
		row := dataset.Row{spec.Index: idx}
		for _, col := range ordered {
			row[col] = sums[idx][col]
		}
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// applySelect keeps only the requested columns. Names that don't
// exist are logged and skipped; if none remain the dataset passes
// through untouched.
func (e *Engine) applySelect(d *dataset.Dataset, spec *SelectSpec) (*dataset.Dataset, error) {
	var keep []string
	for _, col := range spec.Columns {
		if d.HasColumn(col) {
			keep = append(keep, col)
		} else {
			e.logger.Warn("select: column not found, skipping", "column", col)
		}
	}
	if len(keep) == 0 {
		e.logger.Warn("select matched no columns, keeping all", "requested", spec.Columns)
		return d, nil
	}

	out := dataset.New(keep...)
	for _, row := range d.Rows {
		nr := make(dataset.Row, len(keep))
		for _, col := range keep {
			nr[col] = row[col]
		}
		out.Rows = append(out.Rows, nr)
	}
	return out, nil
}

// applyFlatten expands nested objects into dotted columns. With an
// explicit field list only those fields are expanded.
func (e *Engine) applyFlatten(d *dataset.Dataset, spec *FlattenSpec) (*dataset.Dataset, error) {
	only := make(map[string]bool, len(spec.Fields))
	for _, f := range spec.Fields {
		only[f] = true
	}

	var records []map[string]any
	for _, row := range d.Rows {
		if len(only) == 0 {
			records = append(records, dataset.Flatten(row))
			continue
		}
		nr := make(dataset.Row, len(row))
		for k, v := range row {
			if only[k] {
				if nested, ok := v.(map[string]any); ok {
					for fk, fv := range dataset.Flatten(dataset.Row{k: nested}) {
						nr[fk] = fv
					}
					continue
				}
			}
			nr[k] = v
		}
		records = append(records, nr)
	}
	return dataset.FromRecords(records), nil
}

// applyRename maps old column names to new ones. Unknown names are
// logged and skipped.
func (e *Engine) applyRename(d *dataset.Dataset, spec *RenameSpec) (*dataset.Dataset, error) {
	mapping := make(map[string]string)
	for old, to := range spec.Columns {
		if d.HasColumn(old) {
			mapping[old] = to
		} else {
			e.logger.Warn("rename: column not found, skipping", "column", old)
		}
	}
	if len(mapping) == 0 {
		return d, nil
	}

	out := &dataset.Dataset{}
	for _, col := range d.Columns {
		if renamed, ok := mapping[col]; ok {
			out.Columns = append(out.Columns, renamed)
		} else {
			out.Columns = append(out.Columns, col)
		}
	}
	for _, row := range d.Rows {
		nr := make(dataset.Row, len(row))
		for k, v := range row {
			if renamed, ok := mapping[k]; ok {
				nr[renamed] = v
			} else {
				nr[k] = v
			}
		}
		out.Rows = append(out.Rows, nr)
	}
	return out, nil
}
