// Package format classifies raw vendor export tables by signature.
package format

import (
	"errors"
	"sort"

	"github.com/PresidentofMexico/openai-usage-metrics/internal/ingest/period"
	usagedomain "github.com/PresidentofMexico/openai-usage-metrics/internal/usage/domain"
)

// Known vendors and sub-layouts.
const (
	VendorOpenAI    = "OpenAI"
	VendorBlueFlame = "BlueFlame"

	SublayoutPerUser  = "per-user"
	SublayoutCombined = "combined"
	SublayoutSummary  = "summary"
)

// ErrUnrecognizedFormat means no known layout signature matched. It is
// surfaced to the caller as-is; a file is never coerced to a default
// vendor.
var ErrUnrecognizedFormat = errors.New("unrecognized_format")

// Classification identifies a raw table's layout.
type Classification struct {
	Vendor    string             `json:"vendor"`
	Sublayout string             `json:"sublayout"`
	Cadence   usagedomain.Cadence `json:"cadence"`
}

// signature declares the minimal column set a layout requires. All
// matchers must pass for the signature to claim a table.
type signature struct {
	vendor    string
	sublayout string
	required  []func(Table) bool
	cadence   func(Table) usagedomain.Cadence
}

func (s signature) specificity() int { return len(s.required) }

func hasColumn(candidates ...string) func(Table) bool {
	return func(t Table) bool { return t.Column(candidates...) >= 0 }
}

// hasMonthColumn passes when any header cell is a month token such as
// `Oct-24` or `24-Oct`.
func hasMonthColumn(t Table) bool {
	for _, col := range t.Header {
		if period.IsMonthToken(col) {
			return true
		}
	}
	return false
}

// MonthColumns returns the header indexes holding month tokens, in order.
func MonthColumns(t Table) []int {
	var cols []int
	for i, col := range t.Header {
		if period.IsMonthToken(col) {
			cols = append(cols, i)
		}
	}
	return cols
}

// openAICadence inspects sampled period values: if every parsed period is a
// month start the file is monthly, otherwise weekly.
func openAICadence(t Table) usagedomain.Cadence {
	col := t.Column("period_start", "period", "date", "week")
	if col < 0 {
		return usagedomain.CadenceMonthly
	}
	for i := 0; i < len(t.Rows) && i < 25; i++ {
		token := t.Cell(t.Rows[i], col)
		if token == "" {
			continue
		}
		_, cadence, err := period.Parse(token)
		if err != nil {
			continue
		}
		if cadence == usagedomain.CadenceWeekly {
			return usagedomain.CadenceWeekly
		}
	}
	return usagedomain.CadenceMonthly
}

func monthlyCadence(Table) usagedomain.Cadence { return usagedomain.CadenceMonthly }

// Signatures are tried in a fixed priority order: ties on match are broken
// by specificity, more required columns first, so the combined BlueFlame
// layout always wins over the sparser per-user and summary layouts.
var signatures = []signature{
	{
		vendor:    VendorOpenAI,
		sublayout: SublayoutPerUser,
		required: []func(Table) bool{
			hasColumn("email", "user email", "email address"),
			hasColumn("period_start", "period", "date", "week"),
			hasColumn("messages", "gpt messages", "tool messages", "project messages"),
		},
		cadence: openAICadence,
	},
	{
		vendor:    VendorBlueFlame,
		sublayout: SublayoutCombined,
		required: []func(Table) bool{
			hasColumn("type", "section", "category"),
			hasColumn("name", "user", "metric name"),
			hasMonthColumn,
		},
		cadence: monthlyCadence,
	},
	{
		vendor:    VendorBlueFlame,
		sublayout: SublayoutPerUser,
		required: []func(Table) bool{
			hasColumn("user", "email", "user name"),
			hasMonthColumn,
		},
		cadence: monthlyCadence,
	},
	{
		vendor:    VendorBlueFlame,
		sublayout: SublayoutSummary,
		required: []func(Table) bool{
			hasColumn("metric", "metrics"),
			hasMonthColumn,
		},
		cadence: monthlyCadence,
	},
}

// Detector classifies raw tables against the known layout signatures.
type Detector struct {
	signatures []signature
}

func NewDetector() *Detector {
	ordered := make([]signature, len(signatures))
	copy(ordered, signatures)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].specificity() > ordered[j].specificity()
	})
	return &Detector{signatures: ordered}
}

// Detect returns the first matching layout classification, or
// ErrUnrecognizedFormat when no known signature matches.
func (d *Detector) Detect(t Table) (Classification, error) {
	for _, sig := range d.signatures {
		matched := true
		for _, required := range sig.required {
			if !required(t) {
				matched = false
				break
			}
		}
		if matched {
			return Classification{
				Vendor:    sig.vendor,
				Sublayout: sig.sublayout,
				Cadence:   sig.cadence(t),
			}, nil
		}
	}
	return Classification{}, ErrUnrecognizedFormat
}
