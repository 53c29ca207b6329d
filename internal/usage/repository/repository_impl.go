package repository

import (
	"context"
	"time"

	usagedomain "github.com/PresidentofMexico/openai-usage-metrics/internal/usage/domain"
	"github.com/PresidentofMexico/openai-usage-metrics/pkg/db/option"
	"github.com/PresidentofMexico/openai-usage-metrics/pkg/repository"
	"gorm.io/gorm"
)

// Repository persists canonical usage records and serves the triple-scoped
// queries the supersession flow needs.
type Repository interface {
	repository.Repository[usagedomain.CanonicalUsageRecord]

	// CountByTriples counts persisted rows covered by the given triples.
	// Monthly triples cover every row inside their calendar month so a
	// monthly re-upload also supersedes weekly rows for the same month.
	CountByTriples(ctx context.Context, triples []usagedomain.Triple) (int64, error)

	// DeleteByTriples removes persisted rows covered by the given triples.
	// It runs against the supplied transaction handle.
	DeleteByTriples(ctx context.Context, tx *gorm.DB, triples []usagedomain.Triple) (int64, error)

	RollupByDepartment(ctx context.Context, f ListFilter) ([]usagedomain.RollupRow, error)
	FindForWindow(ctx context.Context, f ListFilter) ([]usagedomain.CanonicalUsageRecord, error)

	DB() *gorm.DB
}

type repo struct {
	repository.Repository[usagedomain.CanonicalUsageRecord]
	db *gorm.DB
}

func Provide(db *gorm.DB) Repository {
	return &repo{
		Repository: repository.ProvideStore[usagedomain.CanonicalUsageRecord](db),
		db:         db,
	}
}

func (r *repo) DB() *gorm.DB { return r.db }

// tripleScope narrows a statement to the rows one triple covers. A weekly
// triple covers its exact day-truncated period start; a monthly triple
// covers the whole calendar month.
func tripleScope(db *gorm.DB, t usagedomain.Triple) *gorm.DB {
	start := t.PeriodStart
	if t.Cadence == usagedomain.CadenceMonthly {
		end := start.AddDate(0, 1, 0)
		return db.Where(
			"tool_source = ? AND user_key = ? AND period_start >= ? AND period_start < ?",
			t.ToolSource, t.UserKey, start, end,
		)
	}
	return db.Where(
		"tool_source = ? AND user_key = ? AND period_start = ?",
		t.ToolSource, t.UserKey, start,
	)
}

func orTriples(db *gorm.DB, triples []usagedomain.Triple) *gorm.DB {
	scoped := tripleScope(db.Session(&gorm.Session{NewDB: true}), triples[0])
	for _, t := range triples[1:] {
		scoped = scoped.Or(tripleScope(db.Session(&gorm.Session{NewDB: true}), t))
	}
	return db.Where(scoped)
}

func (r *repo) CountByTriples(ctx context.Context, triples []usagedomain.Triple) (int64, error) {
	if len(triples) == 0 {
		return 0, nil
	}
	var count int64
	q := r.db.WithContext(ctx).Model(&usagedomain.CanonicalUsageRecord{})
	if err := orTriples(q, triples).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

func (r *repo) DeleteByTriples(ctx context.Context, tx *gorm.DB, triples []usagedomain.Triple) (int64, error) {
	if len(triples) == 0 {
		return 0, nil
	}
	q := tx.WithContext(ctx).Model(&usagedomain.CanonicalUsageRecord{})
	result := orTriples(q, triples).Delete(&usagedomain.CanonicalUsageRecord{})
	return result.RowsAffected, result.Error
}

// ListFilter is the condition set of the usage query surface.
type ListFilter struct {
	ToolSource string
	Department string
	UserKey    string
	Feature    string
	Cadence    usagedomain.Cadence
	From       *time.Time
	To         *time.Time
}

// Conditions converts a filter into query options for the generic store.
func (f ListFilter) Conditions() []option.QueryOption {
	var opts []option.QueryOption
	if f.ToolSource != "" {
		opts = append(opts, option.WithCondition("tool_source = ?", f.ToolSource))
	}
	if f.Department != "" {
		opts = append(opts, option.WithCondition("department = ?", f.Department))
	}
	if f.UserKey != "" {
		opts = append(opts, option.WithCondition("user_key = ?", f.UserKey))
	}
	if f.Feature != "" {
		opts = append(opts, option.WithCondition("feature = ?", f.Feature))
	}
	if f.Cadence != "" {
		opts = append(opts, option.WithCondition("cadence = ?", f.Cadence))
	}
	if f.From != nil {
		opts = append(opts, option.WithCondition("period_start >= ?", f.From.UTC()))
	}
	if f.To != nil {
		opts = append(opts, option.WithCondition("period_start < ?", f.To.UTC()))
	}
	return opts
}

// RollupByDepartment aggregates usage per department over the filter window.
func (r *repo) RollupByDepartment(ctx context.Context, f ListFilter) ([]usagedomain.RollupRow, error) {
	var rows []usagedomain.RollupRow
	q := r.db.WithContext(ctx).Model(&usagedomain.CanonicalUsageRecord{})
	for _, opt := range f.Conditions() {
		q = opt.Apply(q)
	}
	err := q.Select(
		"department AS key, SUM(usage_count) AS usage_count, SUM(cost_usd) AS cost_usd, COUNT(DISTINCT user_key) AS users",
	).Group("department").Order("usage_count DESC").Scan(&rows).Error
	return rows, err
}

// FindForWindow loads all records in a window without pagination, for
// month rollups and reconciliation which prorate in service code.
func (r *repo) FindForWindow(ctx context.Context, f ListFilter) ([]usagedomain.CanonicalUsageRecord, error) {
	var records []usagedomain.CanonicalUsageRecord
	q := r.db.WithContext(ctx).Model(&usagedomain.CanonicalUsageRecord{})
	for _, opt := range f.Conditions() {
		q = opt.Apply(q)
	}
	err := q.Order("period_start ASC, id ASC").Find(&records).Error
	return records, err
}
