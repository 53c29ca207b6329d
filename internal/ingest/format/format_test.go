package format

import (
	"strings"
	"testing"

	usagedomain "github.com/PresidentofMexico/openai-usage-metrics/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, raw string) Table {
	t.Helper()
	table, err := ParseTable(strings.NewReader(raw))
	require.NoError(t, err)
	return table
}

func TestParseTable_SniffsTabs(t *testing.T) {
	table := parse(t, "email\tperiod\tmessages\na@x.com\t2024-01-29\t5\n")
	assert.Equal(t, []string{"email", "period", "messages"}, table.Header)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "a@x.com", table.Cell(table.Rows[0], 0))
}

func TestParseTable_EmptyFile(t *testing.T) {
	_, err := ParseTable(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestDetect_OpenAIPerUserWeekly(t *testing.T) {
	table := parse(t, strings.Join([]string{
		"Email,Name,Department,Period,Messages",
		"a@x.com,Ada Alpha,Engineering,2024-01-29,12",
		"b@x.com,Bea Beta,Design,2024-01-29,7",
	}, "\n"))

	cls, err := NewDetector().Detect(table)
	require.NoError(t, err)
	assert.Equal(t, VendorOpenAI, cls.Vendor)
	assert.Equal(t, SublayoutPerUser, cls.Sublayout)
	assert.Equal(t, usagedomain.CadenceWeekly, cls.Cadence)
}

func TestDetect_OpenAIPerUserMonthly(t *testing.T) {
	table := parse(t, strings.Join([]string{
		"Email,Period,Messages",
		"a@x.com,2024-01-01,40",
	}, "\n"))

	cls, err := NewDetector().Detect(table)
	require.NoError(t, err)
	assert.Equal(t, VendorOpenAI, cls.Vendor)
	assert.Equal(t, usagedomain.CadenceMonthly, cls.Cadence)
}

func TestDetect_BlueFlameCombinedBeatsPerUser(t *testing.T) {
	table := parse(t, strings.Join([]string{
		"Type,Name,Jan-24,Feb-24",
		"Overall Trends,Total Messages,100,200",
		"Top Users,Cara Gamma,40,90",
	}, "\n"))

	cls, err := NewDetector().Detect(table)
	require.NoError(t, err)
	assert.Equal(t, VendorBlueFlame, cls.Vendor)
	assert.Equal(t, SublayoutCombined, cls.Sublayout)
	assert.Equal(t, usagedomain.CadenceMonthly, cls.Cadence)
}

func TestDetect_BlueFlameSummary(t *testing.T) {
	table := parse(t, strings.Join([]string{
		"Metric,Jan-24",
		"Total Messages,100",
		"Distinct Active Users,4",
	}, "\n"))

	cls, err := NewDetector().Detect(table)
	require.NoError(t, err)
	assert.Equal(t, VendorBlueFlame, cls.Vendor)
	assert.Equal(t, SublayoutSummary, cls.Sublayout)
}

func TestDetect_Unrecognized(t *testing.T) {
	table := parse(t, "Foo,Bar\n1,2\n")

	_, err := NewDetector().Detect(table)
	assert.ErrorIs(t, err, ErrUnrecognizedFormat)
}

func TestMonthColumns(t *testing.T) {
	table := parse(t, "User,Jan-24,notes,24-Feb\nCara,1,x,2\n")
	assert.Equal(t, []int{1, 3}, MonthColumns(table))
}
