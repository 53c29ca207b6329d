package normalize

import (
	"strings"
	"testing"
	"time"

	"github.com/PresidentofMexico/openai-usage-metrics/internal/config"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/ingest/format"
	usagedomain "github.com/PresidentofMexico/openai-usage-metrics/internal/usage/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestNormalizer() *Normalizer {
	return New(zap.NewNop(), config.NewStaticRatesHolder(config.DefaultRatesConfig()))
}

func parseTable(t *testing.T, raw string) format.Table {
	t.Helper()
	table, err := format.ParseTable(strings.NewReader(raw))
	require.NoError(t, err)
	return table
}

func TestNormalize_OpenAIPerUser(t *testing.T) {
	table := parseTable(t, strings.Join([]string{
		"Email,Name,Department,Period,Messages,Tool Messages",
		"ada@x.com,Ada Alpha,Engineering,2024-01-29,12,3",
		"bea@x.com,Bea Beta,Design,2024-01-29,7,-",
	}, "\n"))
	cls := format.Classification{Vendor: format.VendorOpenAI, Sublayout: format.SublayoutPerUser}

	records, err := newTestNormalizer().Normalize(table, cls, "openai.csv")
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "ada@x.com", records[0].UserKey)
	assert.Equal(t, FeatureChatGPTMessages, records[0].Feature)
	assert.Equal(t, 12.0, records[0].UsageCount)
	assert.Equal(t, usagedomain.CadenceWeekly, records[0].Cadence)
	assert.Equal(t, time.Date(2024, time.January, 29, 0, 0, 0, 0, time.UTC), records[0].PeriodStart)
	assert.Equal(t, "Engineering", records[0].Department)
	assert.Equal(t, "openai.csv", records[0].FileSource)
	assert.Equal(t, 1, records[0].Metadata["source_row"])
	assert.Equal(t, "Messages", records[0].Metadata["usage_column"])

	assert.Equal(t, FeatureToolMessages, records[1].Feature)
	assert.Equal(t, 3.0, records[1].UsageCount)

	// Bea's dash cell is "no data", so she only gets the messages record.
	assert.Equal(t, "bea@x.com", records[2].UserKey)
	assert.Equal(t, FeatureChatGPTMessages, records[2].Feature)
}

func TestNormalize_OpenAIPerUser_BadPeriodFailsOnlyItsRow(t *testing.T) {
	table := parseTable(t, strings.Join([]string{
		"Email,Period,Messages",
		"ada@x.com,not-a-date,12",
		"bea@x.com,2024-01-29,7",
	}, "\n"))
	cls := format.Classification{Vendor: format.VendorOpenAI, Sublayout: format.SublayoutPerUser}

	records, err := newTestNormalizer().Normalize(table, cls, "openai.csv")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "bea@x.com", records[0].UserKey)
}

func TestNormalize_ThousandsSeparators(t *testing.T) {
	table := parseTable(t, strings.Join([]string{
		"Email,Period,Messages",
		`ada@x.com,2024-01-29,"1,234"`,
	}, "\n"))
	cls := format.Classification{Vendor: format.VendorOpenAI, Sublayout: format.SublayoutPerUser}

	records, err := newTestNormalizer().Normalize(table, cls, "openai.csv")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 1234.0, records[0].UsageCount)
}

func TestNormalize_BlueFlamePerUser(t *testing.T) {
	table := parseTable(t, strings.Join([]string{
		"User,Jan-24,Feb-24",
		"Cara Gamma,40,90",
		"Dan Delta,-,15",
	}, "\n"))
	cls := format.Classification{Vendor: format.VendorBlueFlame, Sublayout: format.SublayoutPerUser}

	records, err := newTestNormalizer().Normalize(table, cls, "blueflame.csv")
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "cara-gamma", records[0].UserKey)
	assert.Equal(t, 40.0, records[0].UsageCount)
	assert.Equal(t, time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC), records[0].PeriodStart)
	assert.Equal(t, usagedomain.CadenceMonthly, records[0].Cadence)
	assert.Equal(t, FeatureBlueFlameMessages, records[0].Feature)
	assert.Equal(t, "Jan-24", records[0].Metadata["month_column"])

	// Dan's January dash is absent data, not zero.
	assert.Equal(t, "dan-delta", records[2].UserKey)
	assert.Equal(t, time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC), records[2].PeriodStart)
}

func TestNormalize_BlueFlameSummary_SynthesizesPlaceholders(t *testing.T) {
	table := parseTable(t, strings.Join([]string{
		"Metric,Jan-24",
		"Total Messages,100",
		"Distinct Active Users,4",
	}, "\n"))
	cls := format.Classification{Vendor: format.VendorBlueFlame, Sublayout: format.SublayoutSummary}

	records, err := newTestNormalizer().Normalize(table, cls, "summary.csv")
	require.NoError(t, err)
	// One aggregate record plus four placeholder users.
	require.Len(t, records, 5)

	assert.Equal(t, "blueflame-aggregate", records[0].UserKey)
	assert.Equal(t, 100.0, records[0].UsageCount)
	assert.False(t, records[0].IsEstimated)

	var placeholderSum float64
	for _, r := range records[1:] {
		assert.True(t, r.IsEstimated)
		assert.Contains(t, r.UserKey, "blueflame-user-")
		assert.Equal(t, "blueflame-aggregate", r.Metadata["synthesized_from"])
		assert.Equal(t, 4, r.Metadata["distinct_users"])
		placeholderSum += r.UsageCount
	}
	assert.InDelta(t, 100.0, placeholderSum, 1e-9)
}

func TestNormalize_BlueFlameCombined_DedupesAcrossSections(t *testing.T) {
	table := parseTable(t, strings.Join([]string{
		"Type,Name,Jan-24",
		"Overall Trends,Total Messages,100",
		"Top Users,Cara Gamma,40",
		"Top Users,Cara Gamma,40",
	}, "\n"))
	cls := format.Classification{Vendor: format.VendorBlueFlame, Sublayout: format.SublayoutCombined}

	records, err := newTestNormalizer().Normalize(table, cls, "combined.csv")
	require.NoError(t, err)

	seen := map[string]int{}
	for _, r := range records {
		seen[r.UserKey]++
	}
	assert.Equal(t, 1, seen["cara-gamma"])
	assert.Equal(t, 1, seen["blueflame-aggregate"])
}

func TestNormalize_UnsupportedLayout(t *testing.T) {
	table := parseTable(t, "Foo\nbar\n")
	cls := format.Classification{Vendor: format.VendorOpenAI, Sublayout: "mystery"}

	_, err := newTestNormalizer().Normalize(table, cls, "x.csv")
	assert.ErrorIs(t, err, ErrUnsupportedLayout)
}

func TestApplyCosts_SeatChargedOncePerUserMonth(t *testing.T) {
	table := parseTable(t, strings.Join([]string{
		"Email,Name,Period,Messages,Tool Messages",
		"ada@x.com,Ada Alpha,2024-01-01,10,5",
	}, "\n"))
	cls := format.Classification{Vendor: format.VendorOpenAI, Sublayout: format.SublayoutPerUser}

	records, err := newTestNormalizer().Normalize(table, cls, "openai.csv")
	require.NoError(t, err)
	require.Len(t, records, 2)

	// Default rates: OpenAI is seat-based at 60 USD per user per month.
	// Two feature records for the same user and month carry the seat cost
	// exactly once.
	assert.Equal(t, 60.0, records[0].CostUSD+records[1].CostUSD)
}

func TestParseCount(t *testing.T) {
	for _, token := range []string{"", "-", "–", "—", "n/a", "NA"} {
		_, ok := parseCount(token)
		assert.False(t, ok, token)
	}

	v, ok := parseCount(" 1,234,567 ")
	assert.True(t, ok)
	assert.Equal(t, 1234567.0, v)

	v, ok = parseCount("0")
	assert.True(t, ok)
	assert.Equal(t, 0.0, v)
}
