package query

import (
	"testing"

	"github.com/secreport/secreport/pkg/dataset"
)

func TestParseFilter(t *testing.T) {
	f, err := ParseFilter(`severity==HIGH;status=in=(OPEN,IN_TRIAGE);detectedOn>=2025-01-01T00:00:00`)
	if err != nil {
		t.Fatalf("ParseFilter: %v", err)
	}
	if len(f) != 3 {
		t.Fatalf("got %d clauses, want 3", len(f))
	}
	if f[0].Op != OpEq || f[0].Field != "severity" || f[0].Value != "HIGH" {
		t.Errorf("clause 0 = %+v", f[0])
	}
	if f[1].Op != OpIn || len(f[1].Values) != 2 {
		t.Errorf("clause 1 = %+v", f[1])
	}
	if f[2].Op != OpGe {
		t.Errorf("clause 2 = %+v", f[2])
	}
}

func TestParseFilterRejectsUnknownOperator(t *testing.T) {
	if _, err := ParseFilter("severity=like=HIGH"); err == nil {
		t.Fatal("expected error for unsupported operator")
	}
}

func TestParseFilterEmpty(t *testing.T) {
	f, err := ParseFilter("  ")
	if err != nil || f != nil {
		t.Fatalf("got %v, %v", f, err)
	}
}

func TestClauseMatchNullNeverMatchesNeq(t *testing.T) {
	c := Clause{Field: "status", Op: OpNeq, Value: "RESOLVED"}
	if c.Match(dataset.Row{"status": nil}) {
		t.Error("null value must not match !=")
	}
	if c.Match(dataset.Row{}) {
		t.Error("missing field must not match !=")
	}
	if !c.Match(dataset.Row{"status": "OPEN"}) {
		t.Error("OPEN != RESOLVED should match")
	}
}

func TestClauseMatchNumericEquality(t *testing.T) {
	c := Clause{Field: "project.id", Op: OpEq, Value: "42"}
	r := dataset.Row{"project": map[string]any{"id": 42.0}}
	if !c.Match(r) {
		t.Error("42.0 should match literal 42")
	}
}

func TestRestrictionOf(t *testing.T) {
	cached, _ := ParseFilter("detectedOn>=2025-01-01T00:00:00Z;detectedOn<=2025-01-31T23:59:59Z")
	req, _ := ParseFilter("detectedOn>=2025-01-01T00:00:00Z;detectedOn<=2025-01-31T23:59:59Z;severity==CRITICAL")

	extra, ok := req.RestrictionOf(cached)
	if !ok {
		t.Fatal("request should be a restriction of cached")
	}
	if len(extra) != 1 || extra[0].Field != "severity" {
		t.Fatalf("extra = %v", extra)
	}
}

func TestRestrictionOfEmptyCached(t *testing.T) {
	req, _ := ParseFilter("severity==HIGH")
	extra, ok := req.RestrictionOf(nil)
	if !ok || len(extra) != 1 {
		t.Fatalf("empty cached filter covers everything: %v, %v", extra, ok)
	}
}

func TestRestrictionOfRejectsDifferentRange(t *testing.T) {
	cached, _ := ParseFilter("detectedOn>=2025-01-01T00:00:00Z")
	req, _ := ParseFilter("detectedOn>=2025-02-01T00:00:00Z;severity==HIGH")
	if _, ok := req.RestrictionOf(cached); ok {
		t.Fatal("different date range must not be treated as subset")
	}
}

func TestRestrictionOfRejectsRangeExtras(t *testing.T) {
	req, _ := ParseFilter("cvssScore>=7.0")
	if _, ok := req.RestrictionOf(nil); ok {
		t.Fatal("range extras cannot be applied locally")
	}
}

func TestSubstituteDates(t *testing.T) {
	dr := DateRange{Start: "2025-01-01", End: "2025-01-31"}

	got, err := SubstituteDates("detectedOn>=${start};detectedOn<=${end}", "/public/v0/findings", dr)
	if err != nil {
		t.Fatal(err)
	}
	want := "detectedOn>=2025-01-01T00:00:00;detectedOn<=2025-01-31T23:59:59"
	if got != want {
		t.Errorf("findings filter = %q, want %q", got, want)
	}

	got, err = SubstituteDates("date>=${start}", "/public/v0/scans", dr)
	if err != nil {
		t.Fatal(err)
	}
	if got != "date>=2025-01-01T00:00:00Z" {
		t.Errorf("scans filter = %q", got)
	}
}

func TestIdentityIgnoresOffset(t *testing.T) {
	a := Config{Endpoint: "/findings", Params: Params{Filter: "x==1", Limit: 100, Offset: 0}}
	b := Config{Endpoint: "/findings", Params: Params{Filter: "x==1", Limit: 100, Offset: 400}}
	ia, err := a.Identity()
	if err != nil {
		t.Fatal(err)
	}
	ib, err := b.Identity()
	if err != nil {
		t.Fatal(err)
	}
	if string(ia) != string(ib) {
		t.Errorf("identity differs across offsets: %s vs %s", ia, ib)
	}
}
