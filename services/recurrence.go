package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/CrowderSoup/taskdash/database"
)

const dateLayout = "2006-01-02"

// ParseDate accepts a calendar date or an RFC 3339 timestamp.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(dateLayout, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", ErrInvalidInput, s)
	}
	return t.UTC(), nil
}

// NextDue advances from by one recurrence step. It reports false for
// non-recurring tasks. Monthly steps that overflow the target month clamp to
// its last day.
func NextDue(r database.Recurrence, from time.Time) (string, bool) {
	interval := r.Interval
	if interval < 1 {
		interval = 1
	}
	var next time.Time
	switch r.Type {
	case database.RecurrenceDaily:
		next = from.AddDate(0, 0, interval)
	case database.RecurrenceWeekly:
		next = from.AddDate(0, 0, 7*interval)
	case database.RecurrenceMonthly:
		next = from.AddDate(0, interval, 0)
		if next.Day() != from.Day() {
			// AddDate normalized past the month end; step back to day 0
			next = next.AddDate(0, 0, -next.Day())
		}
	default:
		return "", false
	}
	return next.Format(dateLayout), true
}

func validRecurrence(r database.Recurrence) error {
	switch r.Type {
	case database.RecurrenceNone, database.RecurrenceDaily, database.RecurrenceWeekly, database.RecurrenceMonthly:
	default:
		return fmt.Errorf("%w: unknown recurrence %q", ErrInvalidInput, r.Type)
	}
	if r.Interval < 1 {
		return fmt.Errorf("%w: recurrence interval must be positive", ErrInvalidInput)
	}
	return nil
}
