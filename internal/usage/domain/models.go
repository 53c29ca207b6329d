// Package domain contains the canonical usage record every ingestion
// path converges to, plus the requests served by the usage service.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// Cadence is the reporting granularity of a usage record.
type Cadence string

const (
	CadenceWeekly  Cadence = "WEEKLY"
	CadenceMonthly Cadence = "MONTHLY"
)

// CanonicalUsageRecord is the vendor-agnostic unit of persisted truth.
//
// The tuple (user_key, period_start, feature, tool_source) is unique in
// storage at any point in time. Uniqueness is enforced by the supersession
// flow rather than a database constraint because re-ingestion must replace
// prior rows, never be rejected by them.
type CanonicalUsageRecord struct {
	ID          snowflake.ID      `gorm:"primaryKey" json:"id"`
	UserKey     string            `gorm:"type:text;not null;index:idx_usage_triple,priority:3" json:"user_key"`
	DisplayName string            `gorm:"type:text" json:"display_name,omitempty"`
	Department  string            `gorm:"type:text" json:"department"`
	PeriodStart time.Time         `gorm:"not null;index:idx_usage_triple,priority:2" json:"period_start"`
	Cadence     Cadence           `gorm:"type:text;not null" json:"cadence"`
	Feature     string            `gorm:"type:text;not null" json:"feature"`
	ToolSource  string            `gorm:"type:text;not null;index:idx_usage_triple,priority:1" json:"tool_source"`
	UsageCount  float64           `gorm:"not null" json:"usage_count"`
	CostUSD     float64           `gorm:"not null" json:"cost_usd"`
	IsEstimated bool              `gorm:"not null;default:false" json:"is_estimated"`
	FileSource  string            `gorm:"type:text" json:"file_source"`
	BatchID     string            `gorm:"type:text" json:"batch_id"`
	Metadata    datatypes.JSONMap `gorm:"type:jsonb" json:"metadata,omitempty"`
	IngestedAt  time.Time         `gorm:"not null" json:"ingested_at"`
}

// TableName sets the database table name.
func (CanonicalUsageRecord) TableName() string { return "usage_records" }

// Triple is the (tool_source, period_start, user_key) grouping key used for
// supersession. PeriodStart is truncated to the record's cadence before the
// triple is formed. Cadence is carried so the storage layer knows whether
// the triple covers one truncated week start or a whole calendar month.
type Triple struct {
	ToolSource  string
	PeriodStart time.Time
	UserKey     string
	Cadence     Cadence
}

// TruncatePeriod normalizes a period start to the supersession granularity:
// month start for monthly records, day start for weekly records.
func TruncatePeriod(t time.Time, cadence Cadence) time.Time {
	t = t.UTC()
	if cadence == CadenceMonthly {
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	}
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// TripleOf returns the supersession triple covering the record.
func TripleOf(r CanonicalUsageRecord) Triple {
	return Triple{
		ToolSource:  r.ToolSource,
		PeriodStart: TruncatePeriod(r.PeriodStart, r.Cadence),
		UserKey:     r.UserKey,
		Cadence:     r.Cadence,
	}
}
