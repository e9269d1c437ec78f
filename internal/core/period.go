package core

import (
	"strings"
	"time"
)

// NormalizePeriod parses a budget period given as YYYY-MM or YYYY-MM-DD and
// returns the first day of that calendar month.
func NormalizePeriod(s string) (Date, error) {
	s = strings.TrimSpace(s)
	var t time.Time
	var err error
	switch len(s) {
	case 7:
		t, err = time.Parse("2006-01", s)
	case 10:
		t, err = time.Parse("2006-01-02", s)
	default:
		return Date{}, Validationf("period %q must be YYYY-MM or YYYY-MM-DD", s)
	}
	if err != nil {
		return Date{}, Validationf("period %q must be YYYY-MM or YYYY-MM-DD", s)
	}
	return NewDate(t.Year(), int(t.Month()), 1), nil
}

// PeriodBounds returns the first and last day of the calendar month that
// contains period.
func PeriodBounds(period Date) (first, last Date) {
	first = NewDate(period.Year(), int(period.Month()), 1)
	last = Date{Time: first.AddDate(0, 1, -1)}
	return first, last
}
