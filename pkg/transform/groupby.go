package transform

import (
	"fmt"
	"sort"
	"strings"

	"github.com/secreport/secreport/pkg/dataset"
)

// countColumn is always appended to grouped output so downstream
// steps can rely on a row count being present.
const countColumn = "finding_count"

type aggFunc struct {
	name   string // SUM, AVG, ...
	column string // input column
	out    string // output column
	fill   any    // substituted for null inputs
}

func parseAggs(spec map[string]string) ([]aggFunc, error) {
	keys := make([]string, 0, len(spec))
	for k := range spec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]aggFunc, 0, len(spec))
	for _, outCol := range keys {
		expr := spec[outCol]
		fn := aggFunc{out: outCol, column: outCol}
		if name, col, found := strings.Cut(expr, ":"); found {
			fn.name = strings.ToUpper(strings.TrimSpace(name))
			fn.column = strings.TrimSpace(col)
		} else {
			fn.name = strings.ToUpper(strings.TrimSpace(expr))
		}
		switch fn.name {
		case "SUM", "AVG", "COUNT", "COUNT_DISTINCT", "LIST_DISTINCT", "MIN", "MAX", "ANY":
		default:
			return nil, fmt.Errorf("unknown aggregation %q for column %q", expr, outCol)
		}
		out = append(out, fn)
	}
	return out, nil
}

// applyGroupBy buckets rows by the canonical string of each key
// column and aggregates the rest. Nulls in key and aggregation
// columns are filled first, 0 for numeric columns and "Unknown"
// otherwise, so rows with gaps group together instead of vanishing.
func (e *Engine) applyGroupBy(d *dataset.Dataset, spec *GroupBySpec) (*dataset.Dataset, error) {
	if len(spec.Keys) == 0 {
		return nil, fmt.Errorf("group_by requires at least one key column")
	}
	aggs, err := parseAggs(spec.Aggs)
	if err != nil {
		return nil, err
	}

	cols := make([]string, 0, len(spec.Keys)+len(aggs))
	cols = append(cols, spec.Keys...)
	for _, fn := range aggs {
		cols = append(cols, fn.column)
	}
	fills := nullFills(d, cols)
	for i := range aggs {
		aggs[i].fill = fills[aggs[i].column]
	}

	type group struct {
		keys []string
		rows []dataset.Row
	}
	groups := make(map[string]*group)
	var order []string

	for _, row := range d.Rows {
		keys := make([]string, len(spec.Keys))
		for i, col := range spec.Keys {
			v, _ := dataset.Extract(row, col)
			if v == nil {
				v = fills[col]
			}
			keys[i] = dataset.CanonicalString(v)
		}
		bucket := strings.Join(keys, "\x1f")
		g, ok := groups[bucket]
		if !ok {
			g = &group{keys: keys}
			groups[bucket] = g
			order = append(order, bucket)
		}
		g.rows = append(g.rows, row)
	}
	sort.Strings(order)

	out := dataset.New(spec.Keys...)
	for _, fn := range aggs {
		out.AddColumn(fn.out)
	}
	out.AddColumn(countColumn)

	for _, bucket := range order {
		g := groups[bucket]
		row := make(dataset.Row, len(spec.Keys)+len(aggs)+1)
		for i, col := range spec.Keys {
			row[col] = g.keys[i]
		}
		for _, fn := range aggs {
			row[fn.out] = aggregate(fn, g.rows)
		}
		row[countColumn] = float64(len(g.rows))
		out.Rows = append(out.Rows, row)
	}
	return out, nil
}

// nullFills classifies each column so nulls can be substituted before
// grouping: 0 when every present value is numeric, "Unknown" otherwise.
func nullFills(d *dataset.Dataset, cols []string) map[string]any {
	fills := make(map[string]any, len(cols))
	for _, col := range cols {
		numeric := false
		for _, row := range d.Rows {
			v, _ := dataset.Extract(row, col)
			if v == nil {
				continue
			}
			if _, ok := dataset.Number(v); !ok {
				numeric = false
				break
			}
			numeric = true
		}
		if numeric {
			fills[col] = 0.0
		} else {
			fills[col] = "Unknown"
		}
	}
	return fills
}

// value reads the aggregation input for a row, applying the null fill.
func (fn aggFunc) value(r dataset.Row) any {
	v, _ := dataset.Extract(r, fn.column)
	if v == nil {
		return fn.fill
	}
	return v
}

func aggregate(fn aggFunc, rows []dataset.Row) any {
	switch fn.name {
	case "SUM":
		var sum float64
		for _, r := range rows {
			if n, ok := dataset.Number(fn.value(r)); ok {
				sum += n
			}
		}
		return sum
	case "AVG":
		var sum float64
		var n int
		for _, r := range rows {
			if f, ok := dataset.Number(fn.value(r)); ok {
				sum += f
				n++
			}
		}
		if n == 0 {
			return 0.0
		}
		return sum / float64(n)
	case "COUNT":
		n := 0
		for _, r := range rows {
			if fn.value(r) != nil {
				n++
			}
		}
		return float64(n)
	case "COUNT_DISTINCT":
		seen := make(map[string]bool)
		for _, r := range rows {
			if v := fn.value(r); v != nil {
				seen[dataset.CanonicalString(v)] = true
			}
		}
		return float64(len(seen))
	case "LIST_DISTINCT":
		seen := make(map[string]bool)
		var list []string
		for _, r := range rows {
			v := fn.value(r)
			if v == nil {
				continue
			}
			s := dataset.CanonicalString(v)
			if !seen[s] {
				seen[s] = true
				list = append(list, s)
			}
		}
		sort.Strings(list)
		return list
	case "MIN":
		return extreme(fn, rows, func(a, b float64) bool { return a < b })
	case "MAX":
		return extreme(fn, rows, func(a, b float64) bool { return a > b })
	case "ANY":
		for _, r := range rows {
			switch v := fn.value(r).(type) {
			case bool:
				if v {
					return true
				}
			default:
				if n, ok := dataset.Number(v); ok && n != 0 {
					return true
				}
			}
		}
		return false
	}
	return nil
}

func extreme(fn aggFunc, rows []dataset.Row, better func(a, b float64) bool) any {
	var best float64
	found := false
	for _, r := range rows {
		if n, ok := dataset.Number(fn.value(r)); ok {
			if !found || better(n, best) {
				best = n
				found = true
			}
		}
	}
	if !found {
		return nil
	}
	return best
}
