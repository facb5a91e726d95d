// Package period parses the human period shorthands accepted on the
// command line ("30d", "1m", "Q2-2024", "january", "ytd") into an
// inclusive start/end date pair.
package period

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	relativeRe    = regexp.MustCompile(`^(\d+)([dwmqy])$`)
	quarterRe     = regexp.MustCompile(`^q([1-4])$`)
	quarterYearRe = regexp.MustCompile(`^q([1-4])-(\d{4})$`)
	yearRe        = regexp.MustCompile(`^\d{4}$`)
	yearRangeRe   = regexp.MustCompile(`^(\d{4})-(\d{4})$`)
	monthYearRe   = regexp.MustCompile(`^([a-z]+)-(\d{4})$`)
)

var weekdays = map[string]time.Weekday{
	"monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday,
	"saturday": time.Saturday, "sunday": time.Sunday,
}

var months = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

const dateLayout = "2006-01-02"

// Parse resolves a period shorthand against today. See ParseAt for
// the grammar.
func Parse(period string) (start, end string, err error) {
	return ParseAt(period, time.Now())
}

// ParseAt resolves a period relative to a reference day:
//
//	Nd Nw           rolling windows ending today
//	1m              the previous calendar month
//	Nm Nq Ny        rolling windows of 30/90/365-day months/quarters/years
//	ytd             January 1 through today
//	Q1..Q4          that quarter of the current year
//	Q1-2024         that quarter of the given year
//	2024            the whole year; 2023-2024 spans both
//	monday..sunday  the week (Mon-Sun) containing the most recent such day
//	january..       that month of the current year; january-2024 of 2024
func ParseAt(period string, now time.Time) (start, end string, err error) {
	p := strings.ToLower(strings.TrimSpace(period))
	today := now

	if p == "ytd" {
		return formatRange(time.Date(today.Year(), 1, 1, 0, 0, 0, 0, today.Location()), today)
	}

	if m := relativeRe.FindStringSubmatch(p); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch m[2] {
		case "d":
			return formatRange(today.AddDate(0, 0, -n), today)
		case "w":
			return formatRange(today.AddDate(0, 0, -7*n), today)
		case "m":
			if n == 1 {
				// Previous calendar month, not a rolling 30 days.
				firstOfCurrent := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
				endDay := firstOfCurrent.AddDate(0, 0, -1)
				startDay := time.Date(endDay.Year(), endDay.Month(), 1, 0, 0, 0, 0, today.Location())
				return formatRange(startDay, endDay)
			}
			return formatRange(today.AddDate(0, 0, -30*n), today)
		case "q":
			return formatRange(today.AddDate(0, 0, -90*n), today)
		case "y":
			return formatRange(today.AddDate(0, 0, -365*n), today)
		}
	}

	if m := quarterRe.FindStringSubmatch(p); m != nil {
		q, _ := strconv.Atoi(m[1])
		return quarterRange(today.Year(), q, today.Location())
	}
	if m := quarterYearRe.FindStringSubmatch(p); m != nil {
		q, _ := strconv.Atoi(m[1])
		year, _ := strconv.Atoi(m[2])
		return quarterRange(year, q, today.Location())
	}

	if yearRe.MatchString(p) {
		return p + "-01-01", p + "-12-31", nil
	}
	if m := yearRangeRe.FindStringSubmatch(p); m != nil {
		return m[1] + "-01-01", m[2] + "-12-31", nil
	}

	if target, ok := weekdays[p]; ok {
		// Week (Monday through Sunday) containing the most recent
		// occurrence of the named day.
		daysBack := (int(today.Weekday()) - int(target) + 7) % 7
		day := today.AddDate(0, 0, -daysBack)
		offsetToMonday := (int(day.Weekday()) + 6) % 7
		monday := day.AddDate(0, 0, -offsetToMonday)
		return formatRange(monday, monday.AddDate(0, 0, 6))
	}

	if month, ok := months[p]; ok {
		return monthRange(today.Year(), month, today.Location())
	}
	if m := monthYearRe.FindStringSubmatch(p); m != nil {
		if month, ok := months[m[1]]; ok {
			year, _ := strconv.Atoi(m[2])
			return monthRange(year, month, today.Location())
		}
	}

	return "", "", fmt.Errorf("period: invalid specification %q", period)
}

func quarterRange(year, quarter int, loc *time.Location) (string, string, error) {
	startMonth := time.Month(3*(quarter-1) + 1)
	start := time.Date(year, startMonth, 1, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 3, -1)
	return formatRange(start, end)
}

func monthRange(year int, month time.Month, loc *time.Location) (string, string, error) {
	start := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	end := start.AddDate(0, 1, -1)
	return formatRange(start, end)
}

func formatRange(start, end time.Time) (string, string, error) {
	return start.Format(dateLayout), end.Format(dateLayout), nil
}
