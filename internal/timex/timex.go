// Package timex exposes the calendar arithmetic used by the report
// aggregator. All helpers operate in the location carried by the input
// time; callers decide the zone before bucketing.
package timex

import (
	"time"

	"github.com/jinzhu/now"
)

// Granularity is the calendar bucket size for aggregation.
type Granularity string

const (
	Day   Granularity = "day"
	Week  Granularity = "week"
	Month Granularity = "month"
	Year  Granularity = "year"
)

// ParseGranularity maps a user-supplied granularity name, accepting the
// report UI's aliases.
func ParseGranularity(s string) (Granularity, bool) {
	switch s {
	case "day", "daily", "d":
		return Day, true
	case "week", "weekly", "w":
		return Week, true
	case "month", "monthly", "m":
		return Month, true
	case "year", "yearly", "y":
		return Year, true
	}
	return "", false
}

// Valid reports whether g is one of the defined granularities.
func (g Granularity) Valid() bool {
	switch g {
	case Day, Week, Month, Year:
		return true
	}
	return false
}

// PeriodStart truncates ts to the start of its calendar period.
// Weeks anchor on Monday regardless of locale.
func PeriodStart(g Granularity, ts time.Time) time.Time {
	switch g {
	case Week:
		cfg := &now.Config{
			WeekStartDay: time.Monday,
			TimeLocation: ts.Location(),
		}
		return cfg.With(ts).BeginningOfWeek()
	case Month:
		y, m, _ := ts.Date()
		return time.Date(y, m, 1, 0, 0, 0, 0, ts.Location())
	case Year:
		return time.Date(ts.Year(), time.January, 1, 0, 0, 0, 0, ts.Location())
	default: // Day
		y, m, d := ts.Date()
		return time.Date(y, m, d, 0, 0, 0, 0, ts.Location())
	}
}

// DateOnly returns the calendar date of ts in its own location, with the
// time-of-day stripped. Used for inclusive date-range comparisons.
func DateOnly(ts time.Time) time.Time {
	y, m, d := ts.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Label formats a period start for display and CSV export.
func Label(ts time.Time) string {
	return ts.Format("2006-01-02")
}
