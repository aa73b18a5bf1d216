package stopwatch

import (
	"fmt"
	"time"
)

const (
	DateLayout               = "2006-01-02"
	DefaultReferenceTimezone = "Europe/Istanbul"
)

// DateIn returns the calendar date of t in loc as YYYY-MM-DD.
func DateIn(t time.Time, loc *time.Location) string {
	return t.In(loc).Format(DateLayout)
}

// StartOfDay returns midnight of t's calendar date in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, loc)
}

// NextMidnight returns the first instant of the day after t's date in loc.
func NextMidnight(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, loc)
}

func UntilMidnight(t time.Time, loc *time.Location) time.Duration {
	return NextMidnight(t, loc).Sub(t)
}

// EndOfDate returns the instant the given YYYY-MM-DD date ends in loc.
func EndOfDate(date string, loc *time.Location) (time.Time, error) {
	day, err := time.ParseInLocation(DateLayout, date, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", date, err)
	}
	return NextMidnight(day, loc), nil
}

// DateRange returns yesterday, today and the next five days in loc.
func DateRange(now time.Time, loc *time.Location) []string {
	today := StartOfDay(now, loc)
	dates := make([]string, 0, 7)
	for i := -1; i <= 5; i++ {
		y, m, d := today.Date()
		dates = append(dates, time.Date(y, m, d+i, 0, 0, 0, 0, loc).Format(DateLayout))
	}
	return dates
}

func IsToday(date string, now time.Time, loc *time.Location) bool {
	return date == DateIn(now, loc)
}

func IsYesterday(date string, now time.Time, loc *time.Location) bool {
	y, m, d := now.In(loc).Date()
	return date == time.Date(y, m, d-1, 0, 0, 0, 0, loc).Format(DateLayout)
}
