// Package dataset holds the tabular value passed between pipeline
// stages. A Dataset is an ordered set of columns plus rows of loosely
// typed values, matching what the upstream API returns after JSON
// decoding.
package dataset

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Row is a single record. Values are whatever JSON decoding produced:
// string, float64, bool, nil, nested maps and slices.
type Row = map[string]any

// Dataset is a column-ordered table. Columns preserves first-seen
// order so rendered output is stable across runs.
type Dataset struct {
	Columns []string
	Rows    []Row
}

// New returns an empty dataset with the given column layout.
func New(columns ...string) *Dataset {
	return &Dataset{Columns: columns}
}

// FromRecords builds a dataset from raw API records. Column order is
// first-seen across all records; keys missing from a record are filled
// with explicit nils so every row carries the full column set.
func FromRecords(records []map[string]any) *Dataset {
	d := &Dataset{}
	seen := make(map[string]bool)
	for _, rec := range records {
		// Sort keys within one record so ties in first-seen order
		// are deterministic.
		keys := make([]string, 0, len(rec))
		for k := range rec {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				d.Columns = append(d.Columns, k)
			}
		}
	}
	d.Rows = make([]Row, len(records))
	for i, rec := range records {
		row := make(Row, len(d.Columns))
		for _, c := range d.Columns {
			row[c] = rec[c]
		}
		d.Rows[i] = row
	}
	return d
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Rows)
}

// Clone returns a deep-enough copy: rows are copied map-by-map so
// later mutation does not leak back, nested values stay shared.
func (d *Dataset) Clone() *Dataset {
	if d == nil {
		return nil
	}
	out := &Dataset{Columns: append([]string(nil), d.Columns...)}
	out.Rows = make([]Row, len(d.Rows))
	for i, r := range d.Rows {
		nr := make(Row, len(r))
		for k, v := range r {
			nr[k] = v
		}
		out.Rows[i] = nr
	}
	return out
}

// HasColumn reports whether name is a declared column.
func (d *Dataset) HasColumn(name string) bool {
	for _, c := range d.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// AddColumn declares a column if not already present.
func (d *Dataset) AddColumn(name string) {
	if !d.HasColumn(name) {
		d.Columns = append(d.Columns, name)
	}
}

// Number coerces v to a float64. JSON numbers arrive as float64;
// numeric strings are accepted too. ok is false for anything else,
// including nil.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// CanonicalString renders v as a grouping key. Floats that are whole
// numbers print without a fraction so 5.0 and "5" group together; nil
// prints as the empty string.
func CanonicalString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case float64:
		if s == float64(int64(s)) {
			return strconv.FormatInt(int64(s), 10)
		}
		return strconv.FormatFloat(s, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(s)
	}
	return fmt.Sprintf("%v", v)
}

// Flatten expands nested map values of a row into dotted-path columns
// (parent.child). Non-map values pass through unchanged. The original
// nested key is dropped.
func Flatten(r Row) Row {
	out := make(Row, len(r))
	for k, v := range r {
		if nested, ok := v.(map[string]any); ok {
			flattenInto(out, k, nested)
			continue
		}
		out[k] = v
	}
	return out
}

func flattenInto(out Row, prefix string, m map[string]any) {
	for k, v := range m {
		key := prefix + "." + k
		if nested, ok := v.(map[string]any); ok {
			flattenInto(out, key, nested)
			continue
		}
		out[key] = v
	}
}

// Extract resolves a possibly dotted path against a row, descending
// into nested maps. ok is false when any segment is missing.
func Extract(r Row, path string) (any, bool) {
	if v, ok := r[path]; ok {
		return v, true
	}
	parts := strings.Split(path, ".")
	var cur any = map[string]any(r)
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}
