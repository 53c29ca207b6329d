package service

import (
	"context"
	"crypto/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/PresidentofMexico/openai-usage-metrics/internal/clock"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/ingest/period"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/observability/metrics"
	usagedomain "github.com/PresidentofMexico/openai-usage-metrics/internal/usage/domain"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/usage/repository"
	"github.com/PresidentofMexico/openai-usage-metrics/pkg/db/option"
	"github.com/PresidentofMexico/openai-usage-metrics/pkg/db/pagination"
	"github.com/bwmarrin/snowflake"
	"github.com/oklog/ulid/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ServiceParam struct {
	fx.In

	Log     *zap.Logger
	GenID   *snowflake.Node
	Clock   clock.Clock
	Repo    repository.Repository
	Metrics *metrics.Metrics `optional:"true"`
}

type Service struct {
	log     *zap.Logger
	genID   *snowflake.Node
	clock   clock.Clock
	repo    repository.Repository
	metrics *metrics.Metrics

	// ingestMu serializes supersessions per tool source so two concurrent
	// uploads for the same tool cannot interleave delete and insert.
	mu       sync.Mutex
	ingestMu map[string]*sync.Mutex
}

func New(p ServiceParam) usagedomain.Service {
	return &Service{
		log:      p.Log.Named("usage.service"),
		genID:    p.GenID,
		clock:    p.Clock,
		repo:     p.Repo,
		metrics:  p.Metrics,
		ingestMu: make(map[string]*sync.Mutex),
	}
}

func (s *Service) lockToolSource(toolSource string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	mu, ok := s.ingestMu[toolSource]
	if !ok {
		mu = &sync.Mutex{}
		s.ingestMu[toolSource] = mu
	}
	return mu
}

func validateBatch(batch []usagedomain.CanonicalUsageRecord, toolSource string) error {
	if len(batch) == 0 {
		return usagedomain.ErrEmptyBatch
	}
	if strings.TrimSpace(toolSource) == "" {
		return usagedomain.ErrInvalidToolSource
	}
	for _, r := range batch {
		if r.ToolSource != toolSource {
			return usagedomain.ErrMixedToolSource
		}
		if strings.TrimSpace(r.UserKey) == "" {
			return usagedomain.ErrInvalidUserKey
		}
		if strings.TrimSpace(r.Feature) == "" {
			return usagedomain.ErrInvalidFeature
		}
		if r.UsageCount < 0 {
			return usagedomain.ErrNegativeUsage
		}
	}
	return nil
}

func uniqueTriples(batch []usagedomain.CanonicalUsageRecord) []usagedomain.Triple {
	seen := make(map[usagedomain.Triple]struct{}, len(batch))
	triples := make([]usagedomain.Triple, 0, len(batch))
	for _, r := range batch {
		t := usagedomain.TripleOf(r)
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		triples = append(triples, t)
	}
	return triples
}

// Preview reports what an ingestion would replace without writing anything.
func (s *Service) Preview(ctx context.Context, batch []usagedomain.CanonicalUsageRecord, toolSource string) (usagedomain.PreviewResult, error) {
	if err := validateBatch(batch, toolSource); err != nil {
		return usagedomain.PreviewResult{}, err
	}

	triples := uniqueTriples(batch)
	affected, err := s.repo.CountByTriples(ctx, triples)
	if err != nil {
		return usagedomain.PreviewResult{}, err
	}

	return usagedomain.PreviewResult{
		ToolSource:      toolSource,
		BatchRecords:    len(batch),
		Triples:         len(triples),
		AffectedRecords: affected,
	}, nil
}

// Ingest supersedes prior data covered by the batch's triples and inserts
// the batch, atomically. Delete and insert share one transaction so a
// failure leaves the prior data fully intact.
func (s *Service) Ingest(ctx context.Context, batch []usagedomain.CanonicalUsageRecord, toolSource string) (usagedomain.IngestResult, error) {
	if err := validateBatch(batch, toolSource); err != nil {
		return usagedomain.IngestResult{}, err
	}

	mu := s.lockToolSource(toolSource)
	mu.Lock()
	defer mu.Unlock()

	now := s.clock.Now().UTC()
	batchID := ulid.MustNew(ulid.Timestamp(now), rand.Reader).String()
	triples := uniqueTriples(batch)

	rows := make([]*usagedomain.CanonicalUsageRecord, len(batch))
	for i := range batch {
		r := batch[i]
		if r.ID == 0 {
			r.ID = s.genID.Generate()
		}
		r.PeriodStart = usagedomain.TruncatePeriod(r.PeriodStart, r.Cadence)
		r.BatchID = batchID
		r.IngestedAt = now
		rows[i] = &r
	}

	var replaced int64
	err := s.repo.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deleted, err := s.repo.DeleteByTriples(ctx, tx, triples)
		if err != nil {
			return err
		}
		replaced = deleted
		return s.repo.WithTrx(tx).BatchCreate(ctx, rows)
	})
	if err != nil {
		return usagedomain.IngestResult{}, err
	}

	s.metrics.RecordIngested(ctx, toolSource, len(rows), replaced)
	s.log.Info("batch ingested",
		zap.String("tool_source", toolSource),
		zap.String("batch_id", batchID),
		zap.Int("inserted", len(rows)),
		zap.Int64("replaced", replaced),
		zap.Int("triples", len(triples)),
	)

	return usagedomain.IngestResult{
		BatchID:         batchID,
		ToolSource:      toolSource,
		InsertedRecords: len(rows),
		ReplacedRecords: replaced,
		Triples:         len(triples),
	}, nil
}

func filterOf(req usagedomain.ListUsageRequest) repository.ListFilter {
	return repository.ListFilter{
		ToolSource: req.ToolSource,
		Department: req.Department,
		UserKey:    req.UserKey,
		Feature:    req.Feature,
		Cadence:    req.Cadence,
		From:       req.From,
		To:         req.To,
	}
}

// List serves the paginated record view, newest first.
func (s *Service) List(ctx context.Context, req usagedomain.ListUsageRequest) (usagedomain.ListUsageResponse, error) {
	size := req.PageSize
	if size <= 0 {
		size = 50
	}

	opts := filterOf(req).Conditions()
	opts = append(opts,
		option.ApplyPagination(pagination.Pagination{PageToken: req.PageToken, PageSize: int(size)}),
		option.WithSortBy(option.QuerySortBy{}),
	)

	records, err := s.repo.Find(ctx, &usagedomain.CanonicalUsageRecord{}, opts...)
	if err != nil {
		return usagedomain.ListUsageResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(records, size, func(r *usagedomain.CanonicalUsageRecord) string {
		token, _ := pagination.EncodeCursor(pagination.Cursor{ID: r.ID.String()})
		return token
	})

	if len(records) > int(size) {
		records = records[:size]
	}
	out := make([]usagedomain.CanonicalUsageRecord, len(records))
	for i, r := range records {
		out[i] = *r
	}
	return usagedomain.ListUsageResponse{PageInfo: *pageInfo, UsageRecords: out}, nil
}

func (s *Service) RollupByDepartment(ctx context.Context, req usagedomain.RollupRequest) ([]usagedomain.RollupRow, error) {
	return s.repo.RollupByDepartment(ctx, repository.ListFilter{
		ToolSource: req.ToolSource,
		Cadence:    req.Cadence,
		From:       req.From,
		To:         req.To,
	})
}

// RollupByMonth aggregates usage per calendar month. Weekly records that
// straddle a month boundary are prorated by day count so each month gets
// its share and the total is conserved.
func (s *Service) RollupByMonth(ctx context.Context, req usagedomain.RollupRequest) ([]usagedomain.RollupRow, error) {
	records, err := s.repo.FindForWindow(ctx, repository.ListFilter{
		ToolSource: req.ToolSource,
		Cadence:    req.Cadence,
		From:       req.From,
		To:         req.To,
	})
	if err != nil {
		return nil, err
	}
	if req.CompleteOnly {
		records = s.completePeriodsOnly(records)
	}

	type bucket struct {
		usage float64
		cost  float64
		users map[string]struct{}
	}
	months := make(map[time.Time]*bucket)
	add := func(month time.Time, userKey string, usage, cost float64) {
		b, ok := months[month]
		if !ok {
			b = &bucket{users: make(map[string]struct{})}
			months[month] = b
		}
		b.usage += usage
		b.cost += cost
		b.users[userKey] = struct{}{}
	}

	for _, r := range records {
		if r.Cadence == usagedomain.CadenceMonthly {
			add(period.MonthStart(r.PeriodStart), r.UserKey, r.UsageCount, r.CostUSD)
			continue
		}
		allocations, err := period.ProrateWeekToMonths(r.PeriodStart, 7, r.UsageCount)
		if err != nil {
			return nil, err
		}
		for _, a := range allocations {
			share := 0.0
			if r.UsageCount > 0 {
				share = r.CostUSD * (a.Count / r.UsageCount)
			}
			add(a.MonthStart, r.UserKey, a.Count, share)
		}
	}

	keys := make([]time.Time, 0, len(months))
	for m := range months {
		keys = append(keys, m)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	rows := make([]usagedomain.RollupRow, 0, len(keys))
	for _, m := range keys {
		b := months[m]
		rows = append(rows, usagedomain.RollupRow{
			Key:        m.Format("2006-01"),
			UsageCount: b.usage,
			CostUSD:    b.cost,
			Users:      int64(len(b.users)),
		})
	}
	return rows, nil
}

// RollupByWeek aggregates usage per week. Weekly records land in their own
// reported week; monthly records are split evenly across every week touching
// the month, and buckets fed by such conversions carry the estimate flag so
// a chart can render them distinctly.
func (s *Service) RollupByWeek(ctx context.Context, req usagedomain.RollupRequest) ([]usagedomain.RollupRow, error) {
	records, err := s.repo.FindForWindow(ctx, repository.ListFilter{
		ToolSource: req.ToolSource,
		Cadence:    req.Cadence,
		From:       req.From,
		To:         req.To,
	})
	if err != nil {
		return nil, err
	}
	if req.CompleteOnly {
		records = s.completePeriodsOnly(records)
	}

	type bucket struct {
		usage     float64
		cost      float64
		users     map[string]struct{}
		estimated bool
	}
	weeks := make(map[time.Time]*bucket)
	add := func(week time.Time, userKey string, usage, cost float64, estimated bool) {
		b, ok := weeks[week]
		if !ok {
			b = &bucket{users: make(map[string]struct{})}
			weeks[week] = b
		}
		b.usage += usage
		b.cost += cost
		b.users[userKey] = struct{}{}
		if estimated {
			b.estimated = true
		}
	}

	for _, r := range records {
		if r.Cadence == usagedomain.CadenceWeekly {
			add(usagedomain.TruncatePeriod(r.PeriodStart, r.Cadence), r.UserKey, r.UsageCount, r.CostUSD, r.IsEstimated)
			continue
		}
		allocations, err := period.SplitMonthAcrossWeeks(period.MonthStart(r.PeriodStart), r.UsageCount)
		if err != nil {
			return nil, err
		}
		for _, a := range allocations {
			share := 0.0
			if r.UsageCount > 0 {
				share = r.CostUSD * (a.Count / r.UsageCount)
			}
			add(a.WeekStart, r.UserKey, a.Count, share, a.IsEstimated)
		}
	}

	keys := make([]time.Time, 0, len(weeks))
	for w := range weeks {
		keys = append(keys, w)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Before(keys[j]) })

	rows := make([]usagedomain.RollupRow, 0, len(keys))
	for _, w := range keys {
		b := weeks[w]
		rows = append(rows, usagedomain.RollupRow{
			Key:        w.Format("2006-01-02"),
			UsageCount: b.usage,
			CostUSD:    b.cost,
			Users:      int64(len(b.users)),
			Estimated:  b.estimated,
		})
	}
	return rows, nil
}

func (s *Service) completePeriodsOnly(records []usagedomain.CanonicalUsageRecord) []usagedomain.CanonicalUsageRecord {
	now := s.clock.Now()
	complete := make([]usagedomain.CanonicalUsageRecord, 0, len(records))
	for _, r := range records {
		if period.IsComplete(r.PeriodStart, r.Cadence, now) {
			complete = append(complete, r)
		}
	}
	return complete
}
