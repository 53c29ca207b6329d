package period

import (
	"testing"
	"time"

	usagedomain "github.com/PresidentofMexico/openai-usage-metrics/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMonthToken_BothOrders(t *testing.T) {
	want := time.Date(2024, time.October, 1, 0, 0, 0, 0, time.UTC)

	for _, token := range []string{"Oct-24", "24-Oct", "Oct-2024", "2024-Oct", "October 2024"} {
		got, err := ParseMonthToken(token)
		require.NoError(t, err, token)
		assert.Equal(t, want, got, token)
	}
}

func TestParseMonthToken_Rejects(t *testing.T) {
	for _, token := range []string{"", "total", "13-37", "user@example.com"} {
		_, err := ParseMonthToken(token)
		assert.ErrorIs(t, err, ErrUnparseablePeriod, token)
	}
}

func TestParse_DayLevelIsWeekly(t *testing.T) {
	start, cadence, err := Parse("2024-01-29")
	require.NoError(t, err)
	assert.Equal(t, usagedomain.CadenceWeekly, cadence)
	assert.Equal(t, time.Date(2024, time.January, 29, 0, 0, 0, 0, time.UTC), start)
}

func TestParse_FirstOfMonthIsMonthly(t *testing.T) {
	start, cadence, err := Parse("2024-02-01")
	require.NoError(t, err)
	assert.Equal(t, usagedomain.CadenceMonthly, cadence)
	assert.Equal(t, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), start)
}

func TestParse_MonthToken(t *testing.T) {
	start, cadence, err := Parse("Feb-24")
	require.NoError(t, err)
	assert.Equal(t, usagedomain.CadenceMonthly, cadence)
	assert.Equal(t, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), start)
}

func TestISOWeekStart_Monday(t *testing.T) {
	// 2024-01-31 is a Wednesday; its ISO week starts Monday 2024-01-29.
	got := ISOWeekStart(time.Date(2024, time.January, 31, 13, 45, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, time.January, 29, 0, 0, 0, 0, time.UTC), got)

	// A Sunday belongs to the week that started six days earlier.
	got = ISOWeekStart(time.Date(2024, time.February, 4, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, time.January, 29, 0, 0, 0, 0, time.UTC), got)

	// A Monday is its own week start.
	got = ISOWeekStart(time.Date(2024, time.January, 29, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2024, time.January, 29, 0, 0, 0, 0, time.UTC), got)
}

func TestIsComplete(t *testing.T) {
	now := time.Date(2024, time.February, 14, 10, 0, 0, 0, time.UTC)

	assert.True(t, IsComplete(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), usagedomain.CadenceMonthly, now))
	assert.False(t, IsComplete(time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), usagedomain.CadenceMonthly, now))

	// now falls in the week of Mon 2024-02-12.
	assert.True(t, IsComplete(time.Date(2024, time.February, 5, 0, 0, 0, 0, time.UTC), usagedomain.CadenceWeekly, now))
	assert.False(t, IsComplete(time.Date(2024, time.February, 12, 0, 0, 0, 0, time.UTC), usagedomain.CadenceWeekly, now))
}
