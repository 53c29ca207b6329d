package period

import (
	"errors"
	"time"
)

var (
	ErrInvalidWeekSpan = errors.New("invalid_week_span")
	ErrInvalidMonth    = errors.New("invalid_month")
)

// MonthAllocation is the share of a weekly count attributed to one month.
type MonthAllocation struct {
	MonthStart time.Time
	Count      float64
	Days       int
}

// WeekAllocation is the share of a monthly total attributed to one week.
type WeekAllocation struct {
	WeekStart   time.Time
	Count       float64
	IsEstimated bool
}

// ProrateWeekToMonths splits a weekly count across the calendar months its
// window touches, proportionally to day overlap. days is the window length
// (7, or fewer for partial weeks at dataset edges). The allocations sum
// exactly to count: the final bucket takes the remainder so no usage is
// lost to rounding.
func ProrateWeekToMonths(weekStart time.Time, days int, count float64) ([]MonthAllocation, error) {
	if days <= 0 || days > 7 {
		return nil, ErrInvalidWeekSpan
	}
	weekStart = time.Date(weekStart.Year(), weekStart.Month(), weekStart.Day(), 0, 0, 0, 0, time.UTC)
	weekEnd := weekStart.AddDate(0, 0, days-1)

	var allocations []MonthAllocation
	cursor := weekStart
	for !cursor.After(weekEnd) {
		monthEnd := NextMonth(cursor).AddDate(0, 0, -1)
		segmentEnd := monthEnd
		if weekEnd.Before(monthEnd) {
			segmentEnd = weekEnd
		}
		segmentDays := int(segmentEnd.Sub(cursor).Hours()/24) + 1
		allocations = append(allocations, MonthAllocation{
			MonthStart: MonthStart(cursor),
			Days:       segmentDays,
		})
		cursor = segmentEnd.AddDate(0, 0, 1)
	}

	allocated := 0.0
	for i := range allocations {
		if i == len(allocations)-1 {
			allocations[i].Count = count - allocated
			break
		}
		share := count * float64(allocations[i].Days) / float64(days)
		allocations[i].Count = share
		allocated += share
	}

	return allocations, nil
}

// SplitMonthAcrossWeeks distributes a monthly total evenly across every
// Monday-start ISO week touching the calendar month, including a week that
// starts in the prior month but extends into this one. Each week receives
// total/N; the result is an estimate and is flagged as such. A day-weighted
// share for barely-touching boundary weeks would be a possible refinement,
// but the even split is the documented policy.
func SplitMonthAcrossWeeks(monthStart time.Time, total float64) ([]WeekAllocation, error) {
	monthStart = monthStart.UTC()
	if monthStart.Day() != 1 {
		return nil, ErrInvalidMonth
	}
	monthEnd := NextMonth(monthStart).AddDate(0, 0, -1)

	var weeks []time.Time
	for cursor := ISOWeekStart(monthStart); !cursor.After(monthEnd); cursor = cursor.AddDate(0, 0, 7) {
		weeks = append(weeks, cursor)
	}

	share := total / float64(len(weeks))
	allocations := make([]WeekAllocation, 0, len(weeks))
	remaining := total
	for i, weekStart := range weeks {
		count := share
		if i == len(weeks)-1 {
			count = remaining
		}
		allocations = append(allocations, WeekAllocation{
			WeekStart:   weekStart,
			Count:       count,
			IsEstimated: true,
		})
		remaining -= count
	}

	return allocations, nil
}
