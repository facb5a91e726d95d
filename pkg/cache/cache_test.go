package cache

import (
	"testing"

	"github.com/secreport/secreport/pkg/query"
)

func findingsQuery(filter string) query.Config {
	return query.Config{
		Endpoint: "/public/v0/findings",
		Params:   query.Params{Filter: filter, Limit: 400},
	}
}

func TestExactHit(t *testing.T) {
	c := New(nil)
	cfg := findingsQuery("severity==HIGH")
	c.Put(cfg, []map[string]any{{"id": 1.0, "severity": "HIGH"}})

	got, ok := c.Get(cfg)
	if !ok || len(got) != 1 {
		t.Fatalf("Get = %v, %v", got, ok)
	}
	if s := c.Stats(); s.Hits != 1 || s.Misses != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestMissOnDifferentEndpoint(t *testing.T) {
	c := New(nil)
	c.Put(findingsQuery(""), []map[string]any{{"id": 1.0}})

	other := query.Config{Endpoint: "/public/v0/scans", Params: query.Params{Limit: 400}}
	if _, ok := c.Get(other); ok {
		t.Fatal("different endpoint must miss")
	}
}

func TestSubsetHitFromUnfilteredEntry(t *testing.T) {
	c := New(nil)
	c.Put(findingsQuery(""), []map[string]any{
		{"id": 1.0, "severity": "HIGH"},
		{"id": 2.0, "severity": "LOW"},
		{"id": 3.0, "severity": "HIGH"},
	})

	got, ok := c.Get(findingsQuery("severity==HIGH"))
	if !ok {
		t.Fatal("restriction of unfiltered entry should hit")
	}
	if len(got) != 2 {
		t.Fatalf("got %d records, want 2", len(got))
	}
	if s := c.Stats(); s.SubsetHits != 1 {
		t.Errorf("stats = %+v", s)
	}
}

func TestSubsetHitRequiresSameDateRange(t *testing.T) {
	c := New(nil)
	c.Put(findingsQuery("detectedOn>=2025-01-01T00:00:00;detectedOn<=2025-01-31T23:59:59"),
		[]map[string]any{{"id": 1.0, "severity": "HIGH"}})

	// Same range plus an equality restriction: derivable locally.
	if _, ok := c.Get(findingsQuery("detectedOn>=2025-01-01T00:00:00;detectedOn<=2025-01-31T23:59:59;severity==HIGH")); !ok {
		t.Fatal("same range with extra equality should hit")
	}

	// Different range: must refetch.
	if _, ok := c.Get(findingsQuery("detectedOn>=2025-02-01T00:00:00;detectedOn<=2025-02-28T23:59:59;severity==HIGH")); ok {
		t.Fatal("different range must miss")
	}
}

func TestSubsetHitRequiresSameUniverse(t *testing.T) {
	c := New(nil)
	archived := true
	cfg := findingsQuery("")
	cfg.Params.Archived = &archived
	c.Put(cfg, []map[string]any{
		{"id": 1.0, "severity": "HIGH"},
		{"id": 2.0, "severity": "LOW"},
	})

	// Same filter restriction, but the archived flag selects a
	// different record set upstream.
	if _, ok := c.Get(findingsQuery("severity==HIGH")); ok {
		t.Fatal("entry with different archived flag must not subset-serve")
	}

	sorted := findingsQuery("severity==HIGH")
	sorted.Params.Archived = &archived
	sorted.Params.Sort = "detectedOn"
	if _, ok := c.Get(sorted); ok {
		t.Fatal("entry with different sort must not subset-serve")
	}

	want := findingsQuery("severity==HIGH")
	want.Params.Archived = &archived
	got, ok := c.Get(want)
	if !ok || len(got) != 1 {
		t.Fatalf("matching universe should subset-serve, got %v, %v", got, ok)
	}
}

func TestAmbiguousRestrictionMisses(t *testing.T) {
	c := New(nil)
	c.Put(findingsQuery(""), []map[string]any{{"id": 1.0, "cvssScore": 9.1}})

	// Range extras cannot be evaluated locally with confidence.
	if _, ok := c.Get(findingsQuery("cvssScore>=7.0")); ok {
		t.Fatal("range restriction must miss")
	}
}

func TestGetReturnsCopy(t *testing.T) {
	c := New(nil)
	cfg := findingsQuery("")
	c.Put(cfg, []map[string]any{{"id": 1.0}})

	got, _ := c.Get(cfg)
	got[0]["id"] = 99.0

	again, _ := c.Get(cfg)
	if again[0]["id"] != 1.0 {
		t.Fatal("cache entry was mutated through a returned slice")
	}
}

func TestClear(t *testing.T) {
	c := New(nil)
	c.Put(findingsQuery(""), []map[string]any{{"id": 1.0}})
	c.Clear()
	if _, ok := c.Get(findingsQuery("")); ok {
		t.Fatal("cleared cache must miss")
	}
	if s := c.Stats(); s.Entries != 0 || s.Records != 0 {
		t.Errorf("stats after clear = %+v", s)
	}
}
