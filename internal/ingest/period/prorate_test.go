package period

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProrateWeekToMonths_StraddlingWeek(t *testing.T) {
	// Week of Mon 2024-01-29: three days in January, four in February.
	weekStart := time.Date(2024, time.January, 29, 0, 0, 0, 0, time.UTC)

	allocations, err := ProrateWeekToMonths(weekStart, 7, 70)
	require.NoError(t, err)
	require.Len(t, allocations, 2)

	assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), allocations[0].MonthStart)
	assert.Equal(t, 3, allocations[0].Days)
	assert.InDelta(t, 30, allocations[0].Count, 1e-9)

	assert.Equal(t, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), allocations[1].MonthStart)
	assert.Equal(t, 4, allocations[1].Days)
	assert.InDelta(t, 40, allocations[1].Count, 1e-9)
}

func TestProrateWeekToMonths_SingleMonth(t *testing.T) {
	weekStart := time.Date(2024, time.March, 4, 0, 0, 0, 0, time.UTC)

	allocations, err := ProrateWeekToMonths(weekStart, 7, 55)
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.Equal(t, time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), allocations[0].MonthStart)
	assert.Equal(t, 55.0, allocations[0].Count)
}

func TestProrateWeekToMonths_ConservesTotal(t *testing.T) {
	// Totals that do not divide evenly by 7 must still sum exactly.
	weekStart := time.Date(2024, time.January, 29, 0, 0, 0, 0, time.UTC)
	for _, total := range []float64{1, 13, 99, 1000003} {
		allocations, err := ProrateWeekToMonths(weekStart, 7, total)
		require.NoError(t, err)

		sum := 0.0
		for _, a := range allocations {
			sum += a.Count
		}
		assert.Equal(t, total, sum)
	}
}

func TestProrateWeekToMonths_RejectsBadSpan(t *testing.T) {
	weekStart := time.Date(2024, time.January, 29, 0, 0, 0, 0, time.UTC)
	for _, days := range []int{0, -1, 8} {
		_, err := ProrateWeekToMonths(weekStart, days, 10)
		assert.ErrorIs(t, err, ErrInvalidWeekSpan)
	}
}

func TestSplitMonthAcrossWeeks(t *testing.T) {
	// January 2024 touches five Monday-start weeks, the first of which
	// begins Mon 2024-01-01.
	monthStart := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

	allocations, err := SplitMonthAcrossWeeks(monthStart, 500)
	require.NoError(t, err)
	require.Len(t, allocations, 5)

	sum := 0.0
	for _, a := range allocations {
		assert.True(t, a.IsEstimated)
		assert.Equal(t, time.Monday, a.WeekStart.Weekday())
		sum += a.Count
	}
	assert.Equal(t, 500.0, sum)
}

func TestSplitMonthAcrossWeeks_IncludesLeadingPartialWeek(t *testing.T) {
	// February 2024 starts on a Thursday; the week of Mon 2024-01-29
	// extends into it and must receive a share.
	monthStart := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)

	allocations, err := SplitMonthAcrossWeeks(monthStart, 100)
	require.NoError(t, err)
	require.NotEmpty(t, allocations)
	assert.Equal(t, time.Date(2024, time.January, 29, 0, 0, 0, 0, time.UTC), allocations[0].WeekStart)
}

func TestSplitMonthAcrossWeeks_RejectsMidMonth(t *testing.T) {
	_, err := SplitMonthAcrossWeeks(time.Date(2024, time.February, 2, 0, 0, 0, 0, time.UTC), 100)
	assert.ErrorIs(t, err, ErrInvalidMonth)
}
