package service

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/PresidentofMexico/openai-usage-metrics/internal/clock"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/ingest/period"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/observability/metrics"
	reconciledomain "github.com/PresidentofMexico/openai-usage-metrics/internal/reconcile/domain"
	usagedomain "github.com/PresidentofMexico/openai-usage-metrics/internal/usage/domain"
	usagerepository "github.com/PresidentofMexico/openai-usage-metrics/internal/usage/repository"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log     *zap.Logger
	Clock   clock.Clock
	Repo    usagerepository.Repository
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	clock   clock.Clock
	repo    usagerepository.Repository
	metrics *metrics.Metrics
}

func New(p ServiceParam) reconciledomain.Service {
	return &Service{
		log:     p.Log.Named("reconcile.service"),
		clock:   p.Clock,
		repo:    p.Repo,
		metrics: p.Metrics,
	}
}

type cellKey struct {
	tool    string
	user    string
	feature string
	month   time.Time
}

type recordKey struct {
	tool    string
	user    string
	feature string
	start   time.Time
}

// Run loads the scoped records once and applies both checks in memory.
// Export datasets are small enough that SQL-side aggregation buys nothing.
func (s *Service) Run(ctx context.Context, req reconciledomain.RunRequest) (reconciledomain.Report, error) {
	tolerance := req.Tolerance
	if tolerance <= 0 {
		tolerance = reconciledomain.DefaultTolerance
	}

	records, err := s.repo.FindForWindow(ctx, usagerepository.ListFilter{ToolSource: req.ToolSource})
	if err != nil {
		return reconciledomain.Report{}, err
	}

	report := reconciledomain.Report{
		RunAt:          s.clock.Now().UTC(),
		ToolSource:     req.ToolSource,
		Tolerance:      tolerance,
		RecordsChecked: int64(len(records)),
	}
	report.CadenceMismatches, err = s.checkCadence(records, tolerance)
	if err != nil {
		return reconciledomain.Report{}, err
	}
	report.Duplicates, report.Duplication = checkUniqueness(records)
	report.Passed = len(report.CadenceMismatches) == 0 && len(report.Duplicates) == 0

	s.metrics.RecordReconciliationRun(ctx, report.Passed)
	s.log.Info("reconciliation run",
		zap.String("tool_source", req.ToolSource),
		zap.Int64("records", report.RecordsChecked),
		zap.Int("cadence_mismatches", len(report.CadenceMismatches)),
		zap.Int("duplicate_keys", len(report.Duplicates)),
		zap.Bool("passed", report.Passed),
	)
	return report, nil
}

// checkCadence compares prorated weekly sums against monthly figures per
// (tool, user, feature, month) cell. Only cells with both cadences and a
// fully elapsed month are comparable; a month still in progress has weekly
// data trickling in and would always look short.
func (s *Service) checkCadence(records []usagedomain.CanonicalUsageRecord, tolerance float64) ([]reconciledomain.CadenceMismatch, error) {
	now := s.clock.Now()
	monthly := make(map[cellKey]float64)
	weekly := make(map[cellKey]float64)

	for _, r := range records {
		switch r.Cadence {
		case usagedomain.CadenceMonthly:
			k := cellKey{r.ToolSource, r.UserKey, r.Feature, period.MonthStart(r.PeriodStart)}
			monthly[k] += r.UsageCount
		case usagedomain.CadenceWeekly:
			allocations, err := period.ProrateWeekToMonths(r.PeriodStart, 7, r.UsageCount)
			if err != nil {
				return nil, err
			}
			for _, a := range allocations {
				k := cellKey{r.ToolSource, r.UserKey, r.Feature, a.MonthStart}
				weekly[k] += a.Count
			}
		}
	}

	var mismatches []reconciledomain.CadenceMismatch
	for k, monthlyTotal := range monthly {
		weeklySum, ok := weekly[k]
		if !ok || monthlyTotal == 0 {
			continue
		}
		if !period.IsComplete(k.month, usagedomain.CadenceMonthly, now) {
			continue
		}
		deviation := math.Abs(weeklySum-monthlyTotal) / monthlyTotal
		if deviation > tolerance {
			mismatches = append(mismatches, reconciledomain.CadenceMismatch{
				ToolSource:   k.tool,
				UserKey:      k.user,
				Feature:      k.feature,
				MonthStart:   k.month,
				WeeklySum:    weeklySum,
				MonthlyTotal: monthlyTotal,
				Deviation:    deviation,
			})
		}
	}

	sort.Slice(mismatches, func(i, j int) bool {
		if !mismatches[i].MonthStart.Equal(mismatches[j].MonthStart) {
			return mismatches[i].MonthStart.Before(mismatches[j].MonthStart)
		}
		return mismatches[i].UserKey < mismatches[j].UserKey
	})
	return mismatches, nil
}

// checkUniqueness finds logical keys held by more than one row and
// quantifies the resulting inflation. The deduplicated total takes each
// key's per-row mean, which equals the original figure when the rows are
// exact copies of one upload.
func checkUniqueness(records []usagedomain.CanonicalUsageRecord) ([]reconciledomain.DuplicateKey, reconciledomain.DuplicationSummary) {
	type agg struct {
		rows  int64
		total float64
	}
	keys := make(map[recordKey]*agg)
	var rawTotal float64

	for _, r := range records {
		k := recordKey{r.ToolSource, r.UserKey, r.Feature, r.PeriodStart.UTC()}
		a, ok := keys[k]
		if !ok {
			a = &agg{}
			keys[k] = a
		}
		a.rows++
		a.total += r.UsageCount
		rawTotal += r.UsageCount
	}

	var duplicates []reconciledomain.DuplicateKey
	var uniqueTotal float64
	for k, a := range keys {
		uniqueTotal += a.total / float64(a.rows)
		if a.rows > 1 {
			duplicates = append(duplicates, reconciledomain.DuplicateKey{
				ToolSource:  k.tool,
				UserKey:     k.user,
				Feature:     k.feature,
				PeriodStart: k.start,
				Rows:        a.rows,
				TotalCount:  a.total,
			})
		}
	}

	sort.Slice(duplicates, func(i, j int) bool {
		if !duplicates[i].PeriodStart.Equal(duplicates[j].PeriodStart) {
			return duplicates[i].PeriodStart.Before(duplicates[j].PeriodStart)
		}
		return duplicates[i].UserKey < duplicates[j].UserKey
	})

	summary := reconciledomain.DuplicationSummary{
		TotalRecords: int64(len(records)),
		UniqueKeys:   int64(len(keys)),
		RawTotal:     rawTotal,
		UniqueTotal:  uniqueTotal,
	}
	if uniqueTotal > 0 {
		summary.Factor = rawTotal / uniqueTotal
	} else if len(records) == 0 {
		summary.Factor = 1
	}
	return duplicates, summary
}
