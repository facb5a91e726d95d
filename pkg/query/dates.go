package query

import (
	"strings"
	"time"
)

// DateRange is the report window as YYYY-MM-DD dates, inclusive.
type DateRange struct {
	Start string
	End   string
}

const stampLayout = "2006-01-02T15:04:05"

// SubstituteDates replaces the ${start} and ${end} tokens in a filter
// expression with full timestamps spanning the range: start at
// 00:00:00, end at 23:59:59. Findings endpoints reject the trailing
// "Z" that every other endpoint requires, so the suffix is chosen per
// endpoint.
func SubstituteDates(filterExpr, endpoint string, dr DateRange) (string, error) {
	if !strings.Contains(filterExpr, "${start}") && !strings.Contains(filterExpr, "${end}") {
		return filterExpr, nil
	}
	start, err := time.Parse("2006-01-02", dr.Start)
	if err != nil {
		return "", err
	}
	end, err := time.Parse("2006-01-02", dr.End)
	if err != nil {
		return "", err
	}
	startStr := start.Format(stampLayout)
	endStr := end.Add(23*time.Hour + 59*time.Minute + 59*time.Second).Format(stampLayout)
	if !strings.Contains(strings.ToLower(endpoint), "/findings") {
		startStr += "Z"
		endStr += "Z"
	}
	out := strings.ReplaceAll(filterExpr, "${start}", startStr)
	return strings.ReplaceAll(out, "${end}", endStr), nil
}
