package utils

import (
	"fmt"
	"time"
)

// DaysInMonth returns the number of days in the given month.
func DaysInMonth(year int, month time.Month) int {
	// day 0 of the next month is the last day of this one
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// MonthDays returns the ordered sequence 1..N for the month containing t.
func MonthDays(t time.Time) []int {
	n := DaysInMonth(t.Year(), t.Month())
	days := make([]int, n)
	for i := range days {
		days[i] = i + 1
	}
	return days
}

func MonthTitle(t time.Time) string {
	return fmt.Sprintf("Monthly Tracker: %s %d", t.Month(), t.Year())
}
