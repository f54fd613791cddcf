// Package period builds the fiscal month layout every forecast keys off.
package period

import (
	"fmt"
	"time"
)

// MonthKey identifies a calendar month as "YYYY-MM". Keys sort
// chronologically under plain string comparison.
type MonthKey string

const monthLayout = "2006-01"

// ParseMonth converts a MonthKey into the first instant of that month in UTC.
func ParseMonth(key MonthKey) (time.Time, error) {
	if key == "" {
		return time.Time{}, fmt.Errorf("period: empty month key")
	}
	t, err := time.ParseInLocation(monthLayout, string(key), time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("period: parse month %q: %w", key, err)
	}
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC), nil
}

// FormatMonth converts a time into its MonthKey.
func FormatMonth(t time.Time) MonthKey {
	return MonthKey(t.Format(monthLayout))
}

// NextMonth returns the key one calendar month after key.
func NextMonth(key MonthKey) (MonthKey, error) {
	t, err := ParseMonth(key)
	if err != nil {
		return "", err
	}
	return FormatMonth(t.AddDate(0, 1, 0)), nil
}

func enumerateMonths(from, to time.Time) []time.Time {
	if from.After(to) {
		return nil
	}
	var months []time.Time
	current := time.Date(from.Year(), from.Month(), 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(to.Year(), to.Month(), 1, 0, 0, 0, 0, time.UTC)
	for !current.After(end) {
		months = append(months, current)
		current = current.AddDate(0, 1, 0)
	}
	return months
}
