package transform

import (
	"sort"
	"time"

	"github.com/secreport/secreport/pkg/dataset"
)

// instantCompleteTypes finish the moment they are created; the API
// often omits their completed timestamp, so duration is defined as 0.
var instantCompleteTypes = map[string]bool{
	"SOURCE_SCA":  true,
	"SBOM_IMPORT": true,
	"JAR":         true,
}

// ScanAnalysis is the built-in multi-output function behind the scan
// activity report. From raw scan records it produces per-day volume
// and duration metrics, a failure breakdown by scan type, and the
// enriched per-scan detail table.
type ScanAnalysis struct{}

// Name implements Function.
func (ScanAnalysis) Name() string { return "scan_analysis" }

// TransformMulti implements MultiOutputFunction. Outputs:
//
//	daily_metrics  scan_date, scans_created, scans_completed,
//	               scans_failed, avg_duration_minutes
//	failure_types  type, count (ERROR and stuck INITIAL scans)
//	raw_data       flattened scans with scan_date and duration_minutes
//	default        alias of daily_metrics
func (ScanAnalysis) TransformMulti(rctx RunContext, d *dataset.Dataset, aux map[string]*dataset.Dataset) (Result, error) {
	type scan struct {
		row       dataset.Row
		created   time.Time
		completed time.Time
		hasTimes  bool
		duration  float64 // minutes
		status    string
		scanType  string
	}

	scans := make([]scan, 0, d.Len())
	for _, row := range d.Rows {
		s := scan{row: row}
		s.status, _ = value(row, "status").(string)
		s.scanType, _ = value(row, "type").(string)

		created, cok := parseTimestamp(value(row, "created"))
		completed, dok := parseTimestamp(value(row, "completed"))
		if cok && instantCompleteTypes[s.scanType] && !dok {
			completed, dok = created, true
		}
		s.created = created
		if cok && dok {
			s.hasTimes = true
			s.completed = completed
			if instantCompleteTypes[s.scanType] {
				s.duration = 0
			} else if m := completed.Sub(created).Minutes(); m >= 0 {
				s.duration = m
			} else {
				s.hasTimes = false
			}
		}
		// Keep only scans touching the report window when one is set.
		if rctx.StartDate != "" && rctx.EndDate != "" && cok {
			day := created.Format("2006-01-02")
			completedDay := ""
			if dok {
				completedDay = completed.Format("2006-01-02")
			}
			inWindow := (day >= rctx.StartDate && day <= rctx.EndDate) ||
				(completedDay != "" && completedDay >= rctx.StartDate && completedDay <= rctx.EndDate)
			if !inWindow {
				continue
			}
		}
		scans = append(scans, s)
	}

	// Daily metrics.
	type dayAgg struct {
		created, completed, failed int
		durationSum                float64
		durationN                  int
	}
	days := make(map[string]*dayAgg)
	for _, s := range scans {
		if s.created.IsZero() {
			continue
		}
		day := s.created.Format("2006-01-02")
		agg, ok := days[day]
		if !ok {
			agg = &dayAgg{}
			days[day] = agg
		}
		agg.created++
		switch s.status {
		case "COMPLETED":
			agg.completed++
			if s.hasTimes {
				agg.durationSum += s.duration
				agg.durationN++
			}
		case "ERROR":
			agg.failed++
		}
	}
	dayKeys := make([]string, 0, len(days))
	for day := range days {
		dayKeys = append(dayKeys, day)
	}
	sort.Strings(dayKeys)

	daily := dataset.New("scan_date", "scans_created", "scans_completed", "scans_failed", "avg_duration_minutes")
	for _, day := range dayKeys {
		agg := days[day]
		var avg float64
		if agg.durationN > 0 {
			avg = agg.durationSum / float64(agg.durationN)
		}
		daily.Rows = append(daily.Rows, dataset.Row{
			"scan_date":            day,
			"scans_created":        float64(agg.created),
			"scans_completed":      float64(agg.completed),
			"scans_failed":         float64(agg.failed),
			"avg_duration_minutes": avg,
		})
	}

	// Failure breakdown: errored scans, plus scans stuck in INITIAL
	// for types that should start immediately.
	failureCounts := make(map[string]int)
	for _, s := range scans {
		failed := s.status == "ERROR" ||
			(s.status == "INITIAL" && !instantCompleteTypes[s.scanType])
		if failed {
			t := s.scanType
			if t == "" {
				t = "Unknown"
			}
			failureCounts[t]++
		}
	}
	failureTypes := make([]string, 0, len(failureCounts))
	for t := range failureCounts {
		failureTypes = append(failureTypes, t)
	}
	sort.Strings(failureTypes)

	failures := dataset.New("type", "count")
	for _, t := range failureTypes {
		failures.Rows = append(failures.Rows, dataset.Row{
			"type":  t,
			"count": float64(failureCounts[t]),
		})
	}

	// Per-scan detail with derived columns.
	var rawRecords []map[string]any
	for _, s := range scans {
		row := dataset.Flatten(s.row)
		if !s.created.IsZero() {
			row["scan_date"] = s.created.Format("2006-01-02")
		}
		if s.hasTimes {
			row["duration_minutes"] = float64(int(s.duration + 0.5))
		} else {
			row["duration_minutes"] = 0.0
		}
		rawRecords = append(rawRecords, row)
	}

	return Result{
		"daily_metrics": daily,
		"failure_types": failures,
		"raw_data":      dataset.FromRecords(rawRecords),
		"default":       daily,
	}, nil
}
