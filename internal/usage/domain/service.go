package domain

import (
	"context"
	"errors"
	"time"

	"github.com/PresidentofMexico/openai-usage-metrics/pkg/db/pagination"
)

// PreviewResult reports how many persisted records an ingestion would
// replace, so callers can require explicit confirmation before the
// destructive part of a supersession.
type PreviewResult struct {
	ToolSource      string `json:"tool_source"`
	BatchRecords    int    `json:"batch_records"`
	Triples         int    `json:"triples"`
	AffectedRecords int64  `json:"affected_records"`
}

// IngestResult summarizes a committed supersession.
type IngestResult struct {
	BatchID         string `json:"batch_id"`
	ToolSource      string `json:"tool_source"`
	InsertedRecords int    `json:"inserted_records"`
	ReplacedRecords int64  `json:"replaced_records"`
	Triples         int    `json:"triples"`
}

type ListUsageRequest struct {
	ToolSource string     `form:"tool_source"`
	Department string     `form:"department"`
	UserKey    string     `form:"user_key"`
	Feature    string     `form:"feature"`
	Cadence    Cadence    `form:"cadence"`
	From       *time.Time `form:"from" time_format:"2006-01-02"`
	To         *time.Time `form:"to" time_format:"2006-01-02"`
	PageToken  string     `form:"page_token"`
	PageSize   int32      `form:"page_size"`
}

type ListUsageResponse struct {
	pagination.PageInfo
	UsageRecords []CanonicalUsageRecord `json:"usage_records"`
}

// RollupRow is one aggregated bucket of the query surface. Estimated marks
// buckets fed by converted-granularity data (a monthly figure split across
// weeks) rather than reported values.
type RollupRow struct {
	Key        string  `gorm:"column:key" json:"key"`
	UsageCount float64 `gorm:"column:usage_count" json:"usage_count"`
	CostUSD    float64 `gorm:"column:cost_usd" json:"cost_usd"`
	Users      int64   `gorm:"column:users" json:"users"`
	Estimated  bool    `gorm:"-" json:"estimated,omitempty"`
}

type RollupRequest struct {
	ToolSource string     `form:"tool_source"`
	Cadence    Cadence    `form:"cadence"`
	From       *time.Time `form:"from" time_format:"2006-01-02"`
	To         *time.Time `form:"to" time_format:"2006-01-02"`

	// CompleteOnly drops records whose period has not fully elapsed, so
	// trend charts do not show a partial month as a decline.
	CompleteOnly bool `form:"complete_only"`
}

// Service is the persistence boundary of the ingestion engine: supersession
// on write, the query surface on read.
type Service interface {
	Preview(ctx context.Context, batch []CanonicalUsageRecord, toolSource string) (PreviewResult, error)
	Ingest(ctx context.Context, batch []CanonicalUsageRecord, toolSource string) (IngestResult, error)
	List(ctx context.Context, req ListUsageRequest) (ListUsageResponse, error)
	RollupByDepartment(ctx context.Context, req RollupRequest) ([]RollupRow, error)
	RollupByMonth(ctx context.Context, req RollupRequest) ([]RollupRow, error)
	RollupByWeek(ctx context.Context, req RollupRequest) ([]RollupRow, error)
}

var (
	ErrEmptyBatch        = errors.New("empty_batch")
	ErrInvalidToolSource = errors.New("invalid_tool_source")
	ErrInvalidUserKey    = errors.New("invalid_user_key")
	ErrInvalidFeature    = errors.New("invalid_feature")
	ErrNegativeUsage     = errors.New("negative_usage_count")
	ErrMixedToolSource   = errors.New("mixed_tool_source_batch")
)
