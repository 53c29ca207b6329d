// Package period converts vendor period tokens into canonical period
// boundaries and handles weekly/monthly conversion.
package period

import (
	"errors"
	"strings"
	"time"

	usagedomain "github.com/PresidentofMexico/openai-usage-metrics/internal/usage/domain"
)

var ErrUnparseablePeriod = errors.New("unparseable_period")

// Month token layouts. Vendors emit both orders (`Oct-24` and `24-Oct`)
// depending on the spreadsheet that produced the export, so both are tried
// before a token is rejected; supporting only one order silently dropped
// data in the past.
var monthTokenLayouts = []string{
	"Jan-06",
	"06-Jan",
	"Jan-2006",
	"2006-Jan",
	"January 2006",
}

var dateLayouts = []string{
	"2006-01-02",
	"01/02/2006",
	"2006-01-02T15:04:05Z07:00",
}

// ParseMonthToken parses a month-level token into its month start.
func ParseMonthToken(token string) (time.Time, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return time.Time{}, ErrUnparseablePeriod
	}
	for _, layout := range monthTokenLayouts {
		if t, err := time.Parse(layout, token); err == nil {
			return MonthStart(t), nil
		}
	}
	return time.Time{}, ErrUnparseablePeriod
}

// IsMonthToken reports whether the token is a recognizable month label.
// Used by format detection to find month columns in vendor headers.
func IsMonthToken(token string) bool {
	_, err := ParseMonthToken(token)
	return err == nil
}

// Parse converts a raw period token into a canonical period start and
// cadence. Day-level dates are treated as weekly period starts, month
// tokens as monthly. Every supported layout is tried before the token is
// rejected; a bad token fails only its own row.
func Parse(token string) (time.Time, usagedomain.Cadence, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return time.Time{}, "", ErrUnparseablePeriod
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, token); err == nil {
			t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			if t.Day() == 1 {
				return t, usagedomain.CadenceMonthly, nil
			}
			return t, usagedomain.CadenceWeekly, nil
		}
	}
	if t, err := ParseMonthToken(token); err == nil {
		return t, usagedomain.CadenceMonthly, nil
	}
	return time.Time{}, "", ErrUnparseablePeriod
}

// MonthStart truncates to the first day of the month.
func MonthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// ISOWeekStart truncates to the Monday of the ISO week containing t.
func ISOWeekStart(t time.Time) time.Time {
	t = t.UTC()
	t = time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	weekday := int(t.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return t.AddDate(0, 0, -(weekday - 1))
}

// NextMonth returns the first day of the following month.
func NextMonth(monthStart time.Time) time.Time {
	return MonthStart(monthStart.AddDate(0, 1, 0))
}

// IsComplete reports whether the period starting at periodStart has fully
// elapsed. The current, not-yet-complete period is excluded from derived
// series so trend analysis is not skewed by partial data. The predicate is
// uniform across cadences: period_start < current period start.
func IsComplete(periodStart time.Time, cadence usagedomain.Cadence, now time.Time) bool {
	var currentStart time.Time
	switch cadence {
	case usagedomain.CadenceMonthly:
		currentStart = MonthStart(now)
	default:
		currentStart = ISOWeekStart(now)
	}
	return periodStart.Before(currentStart)
}
