package period

import (
	"testing"
	"time"
)

// Wednesday 2025-03-12.
var refDay = time.Date(2025, 3, 12, 15, 0, 0, 0, time.UTC)

func TestParseAt(t *testing.T) {
	cases := []struct {
		period    string
		wantStart string
		wantEnd   string
	}{
		{"7d", "2025-03-05", "2025-03-12"},
		{"30d", "2025-02-10", "2025-03-12"},
		{"2w", "2025-02-26", "2025-03-12"},
		{"1m", "2025-02-01", "2025-02-28"}, // previous calendar month
		{"3m", "2024-12-12", "2025-03-12"}, // rolling 90 days
		{"1q", "2024-12-12", "2025-03-12"},
		{"1y", "2024-03-12", "2025-03-12"},
		{"ytd", "2025-01-01", "2025-03-12"},
		{"Q1", "2025-01-01", "2025-03-31"},
		{"q3", "2025-07-01", "2025-09-30"},
		{"Q2-2024", "2024-04-01", "2024-06-30"},
		{"2024", "2024-01-01", "2024-12-31"},
		{"2023-2024", "2023-01-01", "2024-12-31"},
		{"monday", "2025-03-10", "2025-03-16"},
		{"friday", "2025-03-03", "2025-03-09"}, // most recent Friday is last week
		{"january", "2025-01-01", "2025-01-31"},
		{"february-2024", "2024-02-01", "2024-02-29"},
	}
	for _, c := range cases {
		start, end, err := ParseAt(c.period, refDay)
		if err != nil {
			t.Errorf("ParseAt(%q): %v", c.period, err)
			continue
		}
		if start != c.wantStart || end != c.wantEnd {
			t.Errorf("ParseAt(%q) = %s..%s, want %s..%s",
				c.period, start, end, c.wantStart, c.wantEnd)
		}
	}
}

func TestParseAtJanuaryBoundary(t *testing.T) {
	jan := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	start, end, err := ParseAt("1m", jan)
	if err != nil {
		t.Fatal(err)
	}
	if start != "2024-12-01" || end != "2024-12-31" {
		t.Errorf("1m in January = %s..%s, want December of previous year", start, end)
	}
}

func TestParseAtInvalid(t *testing.T) {
	for _, p := range []string{"", "5x", "q5", "janvember", "20245", "Q1-24"} {
		if _, _, err := ParseAt(p, refDay); err == nil {
			t.Errorf("ParseAt(%q) should fail", p)
		}
	}
}
