package normalize

import (
	"strings"
)

// Canonical feature labels.
const (
	FeatureChatGPTMessages   = "ChatGPT Messages"
	FeatureToolMessages      = "Tool Messages"
	FeatureProjectMessages   = "Project Messages"
	FeatureBlueFlameMessages = "BlueFlame Messages"
)

// Candidate column names per canonical field, resolved in order once per
// detected sublayout. A lookup table, not runtime reflection: the first
// candidate present in the header wins.
var (
	emailColumns      = []string{"email", "user email", "email address"}
	nameColumns       = []string{"name", "user", "user name", "display name"}
	departmentColumns = []string{"department", "dept", "team"}
	periodColumns     = []string{"period_start", "period", "date", "week"}
	typeColumns       = []string{"type", "section", "category"}
	metricColumns     = []string{"metric", "metrics", "metric name"}
)

// usageColumn binds a vendor usage column to its canonical feature label.
type usageColumn struct {
	candidates []string
	feature    string
}

var openAIUsageColumns = []usageColumn{
	{candidates: []string{"messages", "gpt messages"}, feature: FeatureChatGPTMessages},
	{candidates: []string{"tool messages", "tool_messages"}, feature: FeatureToolMessages},
	{candidates: []string{"project messages", "project_messages"}, feature: FeatureProjectMessages},
}

// Section type tokens in BlueFlame combined exports.
const (
	sectionOverallTrends = "overall trends"
	sectionTopUsers      = "top users"
)

// Metric row names in BlueFlame aggregate sections.
const (
	metricTotalMessages = "total messages"
	metricActiveUsers   = "distinct active users"
)

// noDataTokens are cells meaning "no data". They normalize to skipping the
// cell, never to a zero-count record: zero usage and absent usage are
// different things.
var noDataTokens = map[string]struct{}{
	"":    {},
	"-":   {},
	"–":   {},
	"—":   {},
	"n/a": {},
	"na":  {},
}

// parseCount parses a usage cell. ok is false when the cell means "no
// data". Thousands separators are accepted.
func parseCount(cell string) (float64, bool) {
	cell = strings.TrimSpace(cell)
	if _, noData := noDataTokens[strings.ToLower(cell)]; noData {
		return 0, false
	}
	cell = strings.ReplaceAll(cell, ",", "")
	value, err := parseFloat(cell)
	if err != nil {
		return 0, false
	}
	return value, true
}
