package ui

import (
	"strings"
	"testing"

	"github.com/secreport/secreport/pkg/cache"
	"github.com/secreport/secreport/pkg/report"
)

func TestPrintSummary(t *testing.T) {
	SetNoColor(true)

	s := &report.Summary{
		Succeeded: []string{"Findings by Severity"},
		Failed:    []string{"Scan Activity"},
		Files:     []string{"output/findings_by_severity.csv"},
		Cache:     cache.Stats{Entries: 2, Records: 40, Hits: 3, SubsetHits: 1, Misses: 4},
	}

	var sb strings.Builder
	PrintSummary(&sb, s)
	out := sb.String()

	for _, want := range []string{
		"ok Findings by Severity",
		"fail Scan Activity",
		"output/findings_by_severity.csv",
		"3 exact, 1 subset, 4 misses",
		"50%",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q in:\n%s", want, out)
		}
	}
}

func TestHitRateNoTraffic(t *testing.T) {
	if got := hitRate(&report.Summary{}); got != "n/a" {
		t.Errorf("hitRate = %q, want n/a", got)
	}
}

func TestSeverityStyleKnownLevels(t *testing.T) {
	SetNoColor(true)
	for _, sev := range []string{"critical", "high", "medium", "low", "unknown"} {
		if got := SeverityStyle(sev).Render(sev); !strings.Contains(got, sev) {
			t.Errorf("SeverityStyle(%q) lost its text: %q", sev, got)
		}
	}
}
