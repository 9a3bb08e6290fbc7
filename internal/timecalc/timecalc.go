package timecalc

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

const (
	// DateLayout is the storage format of a session date.
	DateLayout = "2006-01-02"
	// DisplayLayout is the long human-readable date format.
	DisplayLayout = "January 2, 2006"

	// FallbackDate is returned by TodayAt when no usable clock value exists.
	FallbackDate = "2024-01-01"
	// InvalidDate is what DisplayFormat returns for unusable input.
	InvalidDate = "Invalid date"
	// FallbackMonthLabel is what MonthLabelOf returns for unusable input.
	FallbackMonthLabel = "January"
)

var location atomic.Pointer[time.Location]

// SetLocation sets the zone "today" is computed in. nil resets to time.Local.
func SetLocation(loc *time.Location) {
	location.Store(loc)
}

// Location returns the zone used for "today".
func Location() *time.Location {
	if loc := location.Load(); loc != nil {
		return loc
	}
	return time.Local
}

// Today returns the current date as YYYY-MM-DD.
func Today() string {
	return TodayAt(time.Now())
}

// TodayAt formats t as YYYY-MM-DD in the configured zone.
func TodayAt(t time.Time) string {
	if t.IsZero() {
		return FallbackDate
	}
	return t.In(Location()).Format(DateLayout)
}

// ParseDate parses YYYY-MM-DD, falling back to RFC3339.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if t, err := time.ParseInLocation(DateLayout, s, Location()); err == nil {
		return t, true
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, true
	}
	return time.Time{}, false
}

// DisplayFormat renders a session date like "March 15, 2024".
func DisplayFormat(date string) string {
	t, ok := ParseDate(date)
	if !ok {
		return InvalidDate
	}
	return t.Format(DisplayLayout)
}

// YearOf returns the part of date before the first '-'. Empty or malformed
// input yields the current year.
func YearOf(date string) string {
	year, _, _ := strings.Cut(date, "-")
	if strings.TrimSpace(year) == "" {
		return Today()[:4]
	}
	return year
}

// MonthLabelOf returns the English month name of a YYYY-MM-DD-like string.
func MonthLabelOf(date string) string {
	parts := strings.Split(date, "-")
	if len(parts) < 2 {
		return FallbackMonthLabel
	}
	if _, err := strconv.Atoi(parts[0]); err != nil {
		return FallbackMonthLabel
	}
	month, err := strconv.Atoi(parts[1])
	if err != nil || month < 1 || month > 12 {
		return FallbackMonthLabel
	}
	return time.Month(month).String()
}

// MonthKeyOf returns the YYYY-MM prefix of date, or the current month key when
// date is too short.
func MonthKeyOf(date string) string {
	if len(date) >= 7 {
		return date[:7]
	}
	return Today()[:7]
}

// CompareSessionsDescending orders session dates newest first. Empty dates
// count as today; if either side does not parse the pair compares equal.
func CompareSessionsDescending(a, b string) int {
	if a == "" {
		a = Today()
	}
	if b == "" {
		b = Today()
	}
	ta, okA := ParseDate(a)
	tb, okB := ParseDate(b)
	if !okA || !okB {
		return 0
	}
	return tb.Compare(ta)
}

// ParseClock parses "H:MM" or "HH:MM".
func ParseClock(s string) (hour, minute int, ok bool) {
	h, m, found := strings.Cut(s, ":")
	if !found || len(h) < 1 || len(h) > 2 || len(m) != 2 {
		return 0, 0, false
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 {
		return 0, 0, false
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 {
		return 0, 0, false
	}
	return hour, minute, true
}

// FormatClock renders hour and minute as "H:MM".
func FormatClock(hour, minute int) string {
	return fmt.Sprintf("%d:%02d", hour, minute)
}

// AddOneHour advances an "H:MM" clock by one hour, wrapping at 24. Input that
// does not parse is returned unchanged.
func AddOneHour(s string) string {
	h, m, ok := ParseClock(s)
	if !ok {
		return s
	}
	return FormatClock((h+1)%24, m)
}
