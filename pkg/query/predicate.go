package query

import (
	"fmt"
	"strings"

	"github.com/secreport/secreport/pkg/dataset"
)

// Op is a clause operator.
type Op string

const (
	OpEq  Op = "=="
	OpNeq Op = "!="
	OpIn  Op = "=in="
	OpGe  Op = ">="
	OpLe  Op = "<="
)

// Clause is one field predicate of a filter expression.
type Clause struct {
	Field  string
	Op     Op
	Value  string
	Values []string // populated for OpIn
}

// Filter is the conjunction of its clauses.
type Filter []Clause

// ParseFilter parses an RSQL-style expression: clauses joined with
// ';', each one of field==v, field!=v, field>=v, field<=v or
// field=in=(a,b,c). An empty string parses to an empty filter.
func ParseFilter(s string) (Filter, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var f Filter
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		c, err := parseClause(part)
		if err != nil {
			return nil, err
		}
		f = append(f, c)
	}
	return f, nil
}

func parseClause(s string) (Clause, error) {
	if i := strings.Index(s, string(OpIn)); i > 0 {
		raw := strings.TrimSpace(s[i+len(OpIn):])
		if !strings.HasPrefix(raw, "(") || !strings.HasSuffix(raw, ")") {
			return Clause{}, fmt.Errorf("query: malformed in-list %q", s)
		}
		var values []string
		for _, v := range strings.Split(raw[1:len(raw)-1], ",") {
			values = append(values, unquote(strings.TrimSpace(v)))
		}
		return Clause{Field: strings.TrimSpace(s[:i]), Op: OpIn, Values: values}, nil
	}
	for _, op := range []Op{OpNeq, OpEq, OpGe, OpLe} {
		if i := strings.Index(s, string(op)); i > 0 {
			return Clause{
				Field: strings.TrimSpace(s[:i]),
				Op:    op,
				Value: unquote(strings.TrimSpace(s[i+len(op):])),
			}, nil
		}
	}
	return Clause{}, fmt.Errorf("query: unsupported filter clause %q", s)
}

func unquote(v string) string {
	if len(v) >= 2 {
		if (v[0] == '"' && v[len(v)-1] == '"') || (v[0] == '\'' && v[len(v)-1] == '\'') {
			return v[1 : len(v)-1]
		}
	}
	return v
}

// String renders the filter back to wire form.
func (f Filter) String() string {
	parts := make([]string, 0, len(f))
	for _, c := range f {
		parts = append(parts, c.String())
	}
	return strings.Join(parts, ";")
}

func (c Clause) String() string {
	if c.Op == OpIn {
		return c.Field + string(OpIn) + "(" + strings.Join(c.Values, ",") + ")"
	}
	return c.Field + string(c.Op) + c.Value
}

// Match evaluates the clause against a record. Equality compares the
// canonical string rendering of the field value; a != clause never
// matches a missing or null field. Range operators compare
// lexicographically, which is correct for the ISO timestamps they are
// used with.
func (c Clause) Match(r dataset.Row) bool {
	v, ok := dataset.Extract(r, c.Field)
	switch c.Op {
	case OpEq:
		return ok && v != nil && dataset.CanonicalString(v) == c.Value
	case OpNeq:
		if !ok || v == nil {
			return false
		}
		return dataset.CanonicalString(v) != c.Value
	case OpIn:
		if !ok || v == nil {
			return false
		}
		s := dataset.CanonicalString(v)
		for _, want := range c.Values {
			if s == want {
				return true
			}
		}
		return false
	case OpGe:
		return ok && v != nil && dataset.CanonicalString(v) >= c.Value
	case OpLe:
		return ok && v != nil && dataset.CanonicalString(v) <= c.Value
	}
	return false
}

// Match reports whether r satisfies every clause.
func (f Filter) Match(r dataset.Row) bool {
	for _, c := range f {
		if !c.Match(r) {
			return false
		}
	}
	return true
}

func (c Clause) equal(o Clause) bool {
	if c.Field != o.Field || c.Op != o.Op || c.Value != o.Value || len(c.Values) != len(o.Values) {
		return false
	}
	for i := range c.Values {
		if c.Values[i] != o.Values[i] {
			return false
		}
	}
	return true
}

func (f Filter) contains(c Clause) bool {
	for _, have := range f {
		if have.equal(c) {
			return true
		}
	}
	return false
}

// RestrictionOf reports whether f asks for a subset of what cached
// already covers, and if so returns the extra clauses to apply
// locally. Every cached clause must appear verbatim in f, and every
// extra clause must be locally evaluable (== or =in=). Anything else
// is treated as incomparable.
func (f Filter) RestrictionOf(cached Filter) (extra Filter, ok bool) {
	for _, c := range cached {
		if !f.contains(c) {
			return nil, false
		}
	}
	for _, c := range f {
		if cached.contains(c) {
			continue
		}
		if c.Op != OpEq && c.Op != OpIn {
			return nil, false
		}
		extra = append(extra, c)
	}
	return extra, true
}
