package schedule

import "time"

const day = 24 * time.Hour

// DaysBetween returns the signed number of whole days from ref to due.
// Partial days are dropped, so anything under 24h either side is 0.
func DaysBetween(ref, due time.Time) int {
	return int(due.Sub(ref) / day)
}

// AddDays moves t forward by n whole days.
func AddDays(t time.Time, n int) time.Time {
	return t.Add(time.Duration(n) * day)
}
