// Package normalize maps classified raw tables into canonical usage
// records.
package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/PresidentofMexico/openai-usage-metrics/internal/config"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/ingest/format"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/ingest/period"
	usagedomain "github.com/PresidentofMexico/openai-usage-metrics/internal/usage/domain"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

var ErrUnsupportedLayout = errors.New("unsupported_layout")

// Normalizer converts classified tables to canonical usage records and
// prices them against the current cost model.
type Normalizer struct {
	log   *zap.Logger
	rates *config.RatesHolder
}

func New(log *zap.Logger, rates *config.RatesHolder) *Normalizer {
	return &Normalizer{
		log:   log.Named("ingest.normalize"),
		rates: rates,
	}
}

// Normalize produces zero or more canonical records per raw row. Record
// identifiers, batch IDs and ingestion timestamps are assigned later by
// the persistence layer.
func (n *Normalizer) Normalize(t format.Table, cls format.Classification, fileSource string) ([]usagedomain.CanonicalUsageRecord, error) {
	var (
		records []usagedomain.CanonicalUsageRecord
		err     error
	)

	switch {
	case cls.Vendor == format.VendorOpenAI && cls.Sublayout == format.SublayoutPerUser:
		records, err = n.normalizeOpenAIPerUser(t, fileSource)
	case cls.Vendor == format.VendorBlueFlame && cls.Sublayout == format.SublayoutCombined:
		records, err = n.normalizeBlueFlameCombined(t, fileSource)
	case cls.Vendor == format.VendorBlueFlame && cls.Sublayout == format.SublayoutPerUser:
		records, err = n.normalizeBlueFlamePerUser(t, fileSource)
	case cls.Vendor == format.VendorBlueFlame && cls.Sublayout == format.SublayoutSummary:
		records, err = n.normalizeBlueFlameSummary(t, fileSource)
	default:
		return nil, fmt.Errorf("%w: %s/%s", ErrUnsupportedLayout, cls.Vendor, cls.Sublayout)
	}
	if err != nil {
		return nil, err
	}

	records = dedupe(records)
	n.applyCosts(records)
	return records, nil
}

func (n *Normalizer) normalizeOpenAIPerUser(t format.Table, fileSource string) ([]usagedomain.CanonicalUsageRecord, error) {
	emailCol := t.Column(emailColumns...)
	nameCol := t.Column(nameColumns...)
	deptCol := t.Column(departmentColumns...)
	periodCol := t.Column(periodColumns...)

	type boundColumn struct {
		col     int
		feature string
	}
	var usageCols []boundColumn
	for _, uc := range openAIUsageColumns {
		if col := t.Column(uc.candidates...); col >= 0 {
			usageCols = append(usageCols, boundColumn{col: col, feature: uc.feature})
		}
	}

	var records []usagedomain.CanonicalUsageRecord
	for i, row := range t.Rows {
		email := strings.ToLower(t.Cell(row, emailCol))
		if email == "" {
			continue
		}

		start, cadence, err := period.Parse(t.Cell(row, periodCol))
		if err != nil {
			// A bad token fails only its own row.
			n.log.Warn("skipping row with unparseable period",
				zap.Int("row", i+1),
				zap.String("token", t.Cell(row, periodCol)),
				zap.String("file", fileSource),
			)
			continue
		}

		for _, uc := range usageCols {
			count, ok := parseCount(t.Cell(row, uc.col))
			if !ok || count <= 0 {
				continue
			}
			records = append(records, usagedomain.CanonicalUsageRecord{
				UserKey:     email,
				DisplayName: t.Cell(row, nameCol),
				Department:  t.Cell(row, deptCol),
				PeriodStart: start,
				Cadence:     cadence,
				Feature:     uc.feature,
				ToolSource:  format.VendorOpenAI,
				UsageCount:  count,
				FileSource:  fileSource,
				Metadata: datatypes.JSONMap{
					"sublayout":    format.SublayoutPerUser,
					"source_row":   i + 1,
					"usage_column": t.Header[uc.col],
				},
			})
		}
	}
	return records, nil
}

func (n *Normalizer) normalizeBlueFlamePerUser(t format.Table, fileSource string) ([]usagedomain.CanonicalUsageRecord, error) {
	emailCol := t.Column(emailColumns...)
	nameCol := t.Column(nameColumns...)
	monthCols := format.MonthColumns(t)

	var records []usagedomain.CanonicalUsageRecord
	for _, row := range t.Rows {
		name := t.Cell(row, nameCol)
		key := userKey(t.Cell(row, emailCol), name)
		if key == "" {
			continue
		}
		records = append(records, n.monthCells(t, row, monthCols, key, name, fileSource, format.SublayoutPerUser)...)
	}
	return records, nil
}

func (n *Normalizer) normalizeBlueFlameCombined(t format.Table, fileSource string) ([]usagedomain.CanonicalUsageRecord, error) {
	typeCol := t.Column(typeColumns...)
	nameCol := t.Column(nameColumns...)
	monthCols := format.MonthColumns(t)

	// Sections of a combined file are normalized independently by row
	// shape: aggregate metric rows and per-user rows.
	var metricRows, userRows [][]string
	for _, row := range t.Rows {
		section := strings.ToLower(t.Cell(row, typeCol))
		switch {
		case section == sectionOverallTrends || strings.Contains(section, "trend") || strings.Contains(section, "overall"):
			metricRows = append(metricRows, row)
		case section == sectionTopUsers || strings.Contains(section, "user"):
			userRows = append(userRows, row)
		default:
			n.log.Warn("skipping row with unknown section type",
				zap.String("type", t.Cell(row, typeCol)),
				zap.String("file", fileSource),
			)
		}
	}

	records := n.aggregateRecords(t, metricRows, nameCol, monthCols, fileSource, format.SublayoutCombined)
	for _, row := range userRows {
		name := t.Cell(row, nameCol)
		key := userKey("", name)
		if key == "" {
			continue
		}
		records = append(records, n.monthCells(t, row, monthCols, key, name, fileSource, format.SublayoutCombined)...)
	}
	return records, nil
}

func (n *Normalizer) normalizeBlueFlameSummary(t format.Table, fileSource string) ([]usagedomain.CanonicalUsageRecord, error) {
	metricCol := t.Column(metricColumns...)
	monthCols := format.MonthColumns(t)
	return n.aggregateRecords(t, t.Rows, metricCol, monthCols, fileSource, format.SublayoutSummary), nil
}

// aggregateRecords turns metric rows into one aggregate record per month
// under a synthetic stable key, and synthesizes evenly-divided placeholder
// per-user records when a distinct-active-users metric accompanies the
// totals. The placeholders exist so per-user averages downstream are not
// skewed by treating an aggregate total as a single user's activity.
func (n *Normalizer) aggregateRecords(t format.Table, rows [][]string, labelCol int, monthCols []int, fileSource, sublayout string) []usagedomain.CanonicalUsageRecord {
	totals := map[int]float64{}   // month column -> total messages
	actives := map[int]float64{}  // month column -> distinct active users
	haveTotal := map[int]bool{}

	for _, row := range rows {
		label := strings.ToLower(t.Cell(row, labelCol))
		for _, col := range monthCols {
			count, ok := parseCount(t.Cell(row, col))
			if !ok {
				continue
			}
			switch {
			case label == metricTotalMessages || strings.Contains(label, "message"):
				totals[col] += count
				haveTotal[col] = true
			case label == metricActiveUsers || strings.Contains(label, "active"):
				actives[col] = count
			}
		}
	}

	aggregateKey := slug.Make(format.VendorBlueFlame) + "-aggregate"
	var records []usagedomain.CanonicalUsageRecord
	for _, col := range monthCols {
		if !haveTotal[col] {
			continue
		}
		monthStart, err := period.ParseMonthToken(t.Header[col])
		if err != nil {
			continue
		}

		records = append(records, usagedomain.CanonicalUsageRecord{
			UserKey:     aggregateKey,
			DisplayName: format.VendorBlueFlame + " (all users)",
			PeriodStart: monthStart,
			Cadence:     usagedomain.CadenceMonthly,
			Feature:     FeatureBlueFlameMessages,
			ToolSource:  format.VendorBlueFlame,
			UsageCount:  totals[col],
			FileSource:  fileSource,
			Metadata: datatypes.JSONMap{
				"sublayout":    sublayout,
				"month_column": t.Header[col],
			},
		})

		users := int(actives[col])
		if users <= 0 {
			continue
		}
		share := totals[col] / float64(users)
		for u := 1; u <= users; u++ {
			records = append(records, usagedomain.CanonicalUsageRecord{
				UserKey:     fmt.Sprintf("%s-user-%03d", slug.Make(format.VendorBlueFlame), u),
				DisplayName: fmt.Sprintf("%s User %d", format.VendorBlueFlame, u),
				PeriodStart: monthStart,
				Cadence:     usagedomain.CadenceMonthly,
				Feature:     FeatureBlueFlameMessages,
				ToolSource:  format.VendorBlueFlame,
				UsageCount:  share,
				IsEstimated: true,
				FileSource:  fileSource,
				Metadata: datatypes.JSONMap{
					"sublayout":        sublayout,
					"month_column":     t.Header[col],
					"synthesized_from": aggregateKey,
					"distinct_users":   users,
				},
			})
		}
	}
	return records
}

// monthCells emits one monthly record per present, positive month cell.
func (n *Normalizer) monthCells(t format.Table, row []string, monthCols []int, key, name, fileSource, sublayout string) []usagedomain.CanonicalUsageRecord {
	var records []usagedomain.CanonicalUsageRecord
	for _, col := range monthCols {
		count, ok := parseCount(t.Cell(row, col))
		if !ok || count <= 0 {
			continue
		}
		monthStart, err := period.ParseMonthToken(t.Header[col])
		if err != nil {
			continue
		}
		records = append(records, usagedomain.CanonicalUsageRecord{
			UserKey:     key,
			DisplayName: name,
			PeriodStart: monthStart,
			Cadence:     usagedomain.CadenceMonthly,
			Feature:     FeatureBlueFlameMessages,
			ToolSource:  format.VendorBlueFlame,
			UsageCount:  count,
			FileSource:  fileSource,
			Metadata: datatypes.JSONMap{
				"sublayout":    sublayout,
				"month_column": t.Header[col],
			},
		})
	}
	return records
}

// userKey prefers the lower-cased email and falls back to a slug of the
// display name for exports without an email column.
func userKey(email, name string) string {
	if email = strings.ToLower(strings.TrimSpace(email)); email != "" {
		return email
	}
	if name = strings.TrimSpace(name); name != "" {
		return slug.Make(name)
	}
	return ""
}

// dedupe keeps the first record per (user, period, feature, tool) within a
// single file: a user appearing in more than one section must not be
// double-counted.
func dedupe(records []usagedomain.CanonicalUsageRecord) []usagedomain.CanonicalUsageRecord {
	type key struct {
		user    string
		period  int64
		feature string
		tool    string
	}
	seen := make(map[key]struct{}, len(records))
	out := records[:0]
	for _, r := range records {
		k := key{user: r.UserKey, period: r.PeriodStart.Unix(), feature: r.Feature, tool: r.ToolSource}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
