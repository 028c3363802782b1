package domain

import "time"

// DayLayout is the calendar-day format used for study dates.
const DayLayout = "2006-01-02"

// Day formats t as a calendar-day string in t's own location.
func Day(t time.Time) string {
	return t.Format(DayLayout)
}

// ParseDay parses a YYYY-MM-DD string as midnight UTC.
func ParseDay(s string) (time.Time, error) {
	return time.ParseInLocation(DayLayout, s, time.UTC)
}

// StartOfDay truncates t to midnight in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// CalendarDays returns the number of calendar days from a to b.
// Wall-clock time and DST shifts are ignored.
func CalendarDays(a, b time.Time) int {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	from := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	to := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(to.Sub(from).Hours() / 24)
}

// AddDays moves t forward by n calendar days, keeping the time of day.
func AddDays(t time.Time, n int) time.Time {
	return t.AddDate(0, 0, n)
}
