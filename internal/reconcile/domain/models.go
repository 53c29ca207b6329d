// Package domain defines the reconciliation report produced by validating
// persisted usage against its own cross-cadence and uniqueness invariants.
package domain

import (
	"fmt"
	"strings"
	"time"
)

// DefaultTolerance is the relative deviation allowed between summed weekly
// usage and the monthly figure before a mismatch is reported.
const DefaultTolerance = 0.01

// CadenceMismatch is one (tool, user, feature, month) cell whose weekly
// records do not sum to the monthly figure within tolerance.
type CadenceMismatch struct {
	ToolSource   string    `json:"tool_source"`
	UserKey      string    `json:"user_key"`
	Feature      string    `json:"feature"`
	MonthStart   time.Time `json:"month_start"`
	WeeklySum    float64   `json:"weekly_sum"`
	MonthlyTotal float64   `json:"monthly_total"`
	Deviation    float64   `json:"deviation"`
}

// DuplicateKey is one logical key held by more than one persisted row. The
// supersession flow is supposed to make this impossible; any hit means an
// ingestion bug or manual database edits.
type DuplicateKey struct {
	ToolSource  string    `json:"tool_source"`
	UserKey     string    `json:"user_key"`
	Feature     string    `json:"feature"`
	PeriodStart time.Time `json:"period_start"`
	Rows        int64     `json:"rows"`
	TotalCount  float64   `json:"total_count"`
}

// DuplicationSummary quantifies inflation caused by duplicate keys.
// Factor is raw total over unique total: 1.0 means clean data, 2.0 means
// every figure is doubled.
type DuplicationSummary struct {
	TotalRecords int64   `json:"total_records"`
	UniqueKeys   int64   `json:"unique_keys"`
	RawTotal     float64 `json:"raw_total"`
	UniqueTotal  float64 `json:"unique_total"`
	Factor       float64 `json:"factor"`
}

// Report is the outcome of one reconciliation run.
type Report struct {
	RunAt             time.Time          `json:"run_at"`
	ToolSource        string             `json:"tool_source,omitempty"`
	Tolerance         float64            `json:"tolerance"`
	RecordsChecked    int64              `json:"records_checked"`
	CadenceMismatches []CadenceMismatch  `json:"cadence_mismatches"`
	Duplicates        []DuplicateKey     `json:"duplicates"`
	Duplication       DuplicationSummary `json:"duplication"`
	Passed            bool               `json:"passed"`
}

// Render produces the human-readable report text.
func (r Report) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "reconciliation run at %s\n", r.RunAt.UTC().Format(time.RFC3339))
	if r.ToolSource != "" {
		fmt.Fprintf(&b, "tool source: %s\n", r.ToolSource)
	}
	fmt.Fprintf(&b, "records checked: %d\n", r.RecordsChecked)

	if len(r.CadenceMismatches) == 0 {
		fmt.Fprintf(&b, "cadence check: OK (tolerance %.1f%%)\n", r.Tolerance*100)
	} else {
		fmt.Fprintf(&b, "cadence check: %d mismatch(es) beyond %.1f%% tolerance\n",
			len(r.CadenceMismatches), r.Tolerance*100)
		for _, m := range r.CadenceMismatches {
			fmt.Fprintf(&b, "  %s %s %s %s: weekly sum %.2f vs monthly %.2f (%.1f%% off)\n",
				m.ToolSource, m.UserKey, m.Feature, m.MonthStart.Format("2006-01"),
				m.WeeklySum, m.MonthlyTotal, m.Deviation*100)
		}
	}

	if len(r.Duplicates) == 0 {
		b.WriteString("uniqueness check: OK\n")
	} else {
		fmt.Fprintf(&b, "uniqueness check: %d duplicated key(s), duplication factor %.2f\n",
			len(r.Duplicates), r.Duplication.Factor)
		fmt.Fprintf(&b, "  raw total %.2f, deduplicated total %.2f\n",
			r.Duplication.RawTotal, r.Duplication.UniqueTotal)
		for _, d := range r.Duplicates {
			fmt.Fprintf(&b, "  %s %s %s %s: %d rows\n",
				d.ToolSource, d.UserKey, d.Feature, d.PeriodStart.Format("2006-01-02"), d.Rows)
		}
	}

	if r.Passed {
		b.WriteString("result: PASSED\n")
	} else {
		b.WriteString("result: FAILED\n")
	}
	return b.String()
}
