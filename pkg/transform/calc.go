package transform

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/d5/tengo/v2"
	"github.com/d5/tengo/v2/stdlib"

	"github.com/secreport/secreport/pkg/dataset"
)

// value reads a column from a row, tolerating dotted paths.
func value(r dataset.Row, col string) any {
	v, _ := dataset.Extract(r, col)
	return v
}

// Timestamp layouts the API emits; tried in order.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseTimestamp(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

var (
	monthExprRe    = regexp.MustCompile(`(?i)^\s*month\s*\(\s*([a-zA-Z_][\w.]*)\s*\)\s*$`)
	datediffRe     = regexp.MustCompile(`(?i)datediff\s*\(\s*'day'\s*,\s*([a-zA-Z_][\w.]*)\s*,\s*(now\s*\(\s*\)|[a-zA-Z_][\w.]*)\s*\)`)
	caseWhenTokens = map[string]string{
		"RESOLVED":               "Resolved",
		"RESOLVED_WITH_PEDIGREE": "Resolved",
		"NOT_AFFECTED":           "Triaged",
		"FALSE_POSITIVE":         "Triaged",
		"IN_TRIAGE":              "Open",
		"EXPLOITABLE":            "Open",
	}
)

// applyCalc adds one derived column. Three expression families are
// recognized directly; anything else is evaluated per row as a
// sandboxed script with the row's fields in scope.
//
//	MONTH(detected)                     -> "2025-03" (timestamp prefix)
//	CASE WHEN status ... END            -> Resolved/Triaged/Open/Other
//	DATEDIFF('day', detected, updated)  -> whole days, NOW() allowed
func (e *Engine) applyCalc(rctx RunContext, d *dataset.Dataset, spec *CalcSpec) (*dataset.Dataset, error) {
	if spec.Name == "" || spec.Expr == "" {
		return nil, fmt.Errorf("calc requires name and expr")
	}
	out := d.Clone()
	out.AddColumn(spec.Name)

	upper := strings.ToUpper(spec.Expr)
	switch {
	case monthExprRe.MatchString(spec.Expr) || (spec.Name == "month_year" && strings.Contains(spec.Expr, "detected")):
		column := "detected"
		if m := monthExprRe.FindStringSubmatch(spec.Expr); m != nil {
			column = m[1]
		}
		for _, row := range out.Rows {
			row[spec.Name] = monthOf(value(row, column))
		}
	case strings.Contains(upper, "CASE WHEN"):
		applyCaseWhen(out, spec)
	case strings.Contains(upper, "DATEDIFF"):
		if err := applyDateDiff(rctx, out, spec); err != nil {
			return nil, err
		}
	default:
		if err := e.applyScript(out, spec); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// monthOf truncates a timestamp string to its YYYY-MM prefix.
func monthOf(v any) any {
	s, ok := v.(string)
	if !ok || len(s) < 7 {
		return "Unknown"
	}
	return s[:7]
}

// applyCaseWhen maps vulnerability analysis states onto report
// buckets. Only the states the expression actually names take part;
// everything else lands in Other.
func applyCaseWhen(d *dataset.Dataset, spec *CalcSpec) {
	upper := strings.ToUpper(spec.Expr)
	for _, row := range d.Rows {
		bucket := "Other"
		if s, ok := value(row, "status").(string); ok {
			status := strings.ToUpper(s)
			if label, known := caseWhenTokens[status]; known && strings.Contains(upper, status) {
				bucket = label
			}
		}
		row[spec.Name] = bucket
	}
}

func applyDateDiff(rctx RunContext, d *dataset.Dataset, spec *CalcSpec) error {
	m := datediffRe.FindStringSubmatch(spec.Expr)
	if m == nil {
		return fmt.Errorf("unsupported DATEDIFF expression %q", spec.Expr)
	}
	fromCol := m[1]
	toCol := strings.ToUpper(strings.TrimSpace(m[2]))
	useNow := strings.HasPrefix(toCol, "NOW")
	now := rctx.now()

	for _, row := range d.Rows {
		from, ok := parseTimestamp(value(row, fromCol))
		if !ok {
			row[spec.Name] = nil
			continue
		}
		to := now
		if !useNow {
			to, ok = parseTimestamp(value(row, m[2]))
			if !ok {
				row[spec.Name] = nil
				continue
			}
		}
		row[spec.Name] = float64(int(to.Sub(from).Hours() / 24))
	}
	return nil
}

const (
	scriptMaxAllocs   = 10000
	scriptOutVariable = "__result__"
	scriptRowVariable = "row"
)

// applyScript evaluates the expression per row with tengo. The row is
// exposed as a map named "row"; only text, fmt, math and times
// modules are importable.
func (e *Engine) applyScript(d *dataset.Dataset, spec *CalcSpec) error {
	src := fmt.Sprintf("%s := %s", scriptOutVariable, spec.Expr)
	script := tengo.NewScript([]byte(src))
	script.SetImports(stdlib.GetModuleMap("text", "fmt", "math", "times"))
	script.SetMaxAllocs(scriptMaxAllocs)

	for _, row := range d.Rows {
		if err := script.Add(scriptRowVariable, toTengo(row)); err != nil {
			return fmt.Errorf("calc %q: %w", spec.Name, err)
		}
		compiled, err := script.Run()
		if err != nil {
			return fmt.Errorf("calc %q: %w", spec.Name, err)
		}
		row[spec.Name] = compiled.Get(scriptOutVariable).Value()
	}
	return nil
}

func toTengo(row dataset.Row) map[string]any {
	out := make(map[string]any, len(row))
	for k, v := range row {
		switch t := v.(type) {
		case nil:
			out[k] = nil
		case float64, bool, string:
			out[k] = t
		default:
			out[k] = dataset.CanonicalString(t)
		}
	}
	return out
}
