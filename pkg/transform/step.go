// Package transform turns raw API records into report tables. A
// pipeline is a list of steps, each one a single declarative
// operation loaded from a recipe: grouping, derived columns,
// filtering, sorting, reshaping, joining, or a named custom function.
package transform

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// Kind identifies a step variant.
type Kind string

const (
	KindGroupBy Kind = "group_by"
	KindCalc    Kind = "calc"
	KindFilter  Kind = "filter"
	KindSort    Kind = "sort"
	KindPivot   Kind = "pivot"
	KindJoin    Kind = "join"
	KindSelect  Kind = "select"
	KindFlatten Kind = "flatten"
	KindRename  Kind = "rename"
	KindCustom  Kind = "custom"
)

// GroupBySpec groups rows by key columns and aggregates the rest.
// Aggs maps output column -> "FUNC:column" (or a bare FUNC applied to
// the output column's name). With no Aggs the result is a plain
// count per group.
type GroupBySpec struct {
	Keys []string          `yaml:"keys"`
	Aggs map[string]string `yaml:"aggs,omitempty"`
}

// UnmarshalYAML accepts either a bare list of key columns or the full
// mapping form.
func (g *GroupBySpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		return node.Decode(&g.Keys)
	}
	type plain GroupBySpec
	return node.Decode((*plain)(g))
}

// CalcSpec adds a derived column. Expr is either one of the
// recognized SQL-ish forms (month extraction, CASE WHEN over status,
// DATEDIFF) or a script evaluated per row.
type CalcSpec struct {
	Name string `yaml:"name"`
	Expr string `yaml:"expr"`
}

// SortSpec orders rows by the named columns. A severity column sorts
// by rank, critical first, not alphabetically.
type SortSpec struct {
	By        []string `yaml:"by"`
	Ascending bool     `yaml:"ascending"`
}

func (s *SortSpec) UnmarshalYAML(node *yaml.Node) error {
	s.Ascending = true
	if node.Kind == yaml.SequenceNode {
		return node.Decode(&s.By)
	}
	type plain SortSpec
	var p plain
	p.Ascending = true
	if err := node.Decode(&p); err != nil {
		return err
	}
	*s = SortSpec(p)
	return nil
}

// PivotSpec spreads a column's values into columns, summing Values
// per (Index, Columns) pair.
type PivotSpec struct {
	Index   string `yaml:"index"`
	Columns string `yaml:"columns"`
	Values  string `yaml:"values"`
}

// JoinSpec merges the named auxiliary dataset into the current one.
type JoinSpec struct {
	Right   string   `yaml:"right"`
	LeftOn  []string `yaml:"left_on"`
	RightOn []string `yaml:"right_on"`
	How     string   `yaml:"how"` // left, right, inner, outer
}

// SelectSpec keeps only the listed columns. Unknown names are logged
// and skipped, not fatal.
type SelectSpec struct {
	Columns []string `yaml:"columns"`
}

func (s *SelectSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		return node.Decode(&s.Columns)
	}
	type plain SelectSpec
	return node.Decode((*plain)(s))
}

// FlattenSpec expands nested objects into dotted columns. An empty
// Fields list flattens every nested value.
type FlattenSpec struct {
	Fields []string `yaml:"fields,omitempty"`
}

func (f *FlattenSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.SequenceNode {
		return node.Decode(&f.Fields)
	}
	type plain FlattenSpec
	return node.Decode((*plain)(f))
}

// RenameSpec maps old column names to new ones. Unknown names are
// logged and skipped.
type RenameSpec struct {
	Columns map[string]string `yaml:"columns"`
}

func (r *RenameSpec) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.MappingNode {
		var direct map[string]string
		if err := node.Decode(&direct); err == nil {
			if _, hasColumns := direct["columns"]; !hasColumns {
				r.Columns = direct
				return nil
			}
		}
	}
	type plain RenameSpec
	return node.Decode((*plain)(r))
}

// Step is exactly one operation. One variant field must be set; the
// loader rejects anything else.
type Step struct {
	GroupBy *GroupBySpec `yaml:"group_by,omitempty"`
	Calc    *CalcSpec    `yaml:"calc,omitempty"`
	Filter  *string      `yaml:"filter,omitempty"`
	Sort    *SortSpec    `yaml:"sort,omitempty"`
	Pivot   *PivotSpec   `yaml:"pivot,omitempty"`
	Join    *JoinSpec    `yaml:"join,omitempty"`
	Select  *SelectSpec  `yaml:"select,omitempty"`
	Flatten *FlattenSpec `yaml:"flatten,omitempty"`
	Rename  *RenameSpec  `yaml:"rename,omitempty"`
	Custom  string       `yaml:"custom,omitempty"`
}

// Kind returns the variant this step carries, or "" when empty.
func (s Step) Kind() Kind {
	switch {
	case s.GroupBy != nil:
		return KindGroupBy
	case s.Calc != nil:
		return KindCalc
	case s.Filter != nil:
		return KindFilter
	case s.Sort != nil:
		return KindSort
	case s.Pivot != nil:
		return KindPivot
	case s.Join != nil:
		return KindJoin
	case s.Select != nil:
		return KindSelect
	case s.Flatten != nil:
		return KindFlatten
	case s.Rename != nil:
		return KindRename
	case s.Custom != "":
		return KindCustom
	}
	return ""
}

// Validate ensures exactly one variant is set.
func (s Step) Validate() error {
	n := 0
	if s.GroupBy != nil {
		n++
	}
	if s.Calc != nil {
		n++
	}
	if s.Filter != nil {
		n++
	}
	if s.Sort != nil {
		n++
	}
	if s.Pivot != nil {
		n++
	}
	if s.Join != nil {
		n++
	}
	if s.Select != nil {
		n++
	}
	if s.Flatten != nil {
		n++
	}
	if s.Rename != nil {
		n++
	}
	if s.Custom != "" {
		n++
	}
	switch n {
	case 0:
		return fmt.Errorf("transform: step sets no operation")
	case 1:
		return nil
	default:
		return fmt.Errorf("transform: step sets %d operations, want exactly one", n)
	}
}

// StepError wraps a failure with the position and kind of the step
// that produced it.
type StepError struct {
	Index int
	Kind  Kind
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("transform step %d (%s): %v", e.Index, e.Kind, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }
