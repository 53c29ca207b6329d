package domain

import (
	"context"
	"errors"
)

// RosterStats summarizes data quality of the loaded roster. Blank and
// explicit-Unknown departments are counted separately.
type RosterStats struct {
	Employees       int64 `json:"employees"`
	BlankDepartment int64 `json:"blank_department"`
	ExplicitUnknown int64 `json:"explicit_unknown"`
}

// UnidentifiedUsage is one usage-record subject with no roster match, with
// aggregated usage for manual department assignment.
type UnidentifiedUsage struct {
	UserKey     string  `gorm:"column:user_key" json:"user_key"`
	DisplayName string  `gorm:"column:display_name" json:"display_name"`
	UsageCount  float64 `gorm:"column:usage_count" json:"usage_count"`
	CostUSD     float64 `gorm:"column:cost_usd" json:"cost_usd"`
}

// Service resolves usage-row subjects against the employee roster.
type Service interface {
	// ReplaceRoster swaps the whole roster for the given entries and
	// rebuilds the lookup index. Returns the number of employees loaded.
	ReplaceRoster(ctx context.Context, employees []EmployeeRecord) (int, error)

	// Resolve matches by case-folded exact email first, then by
	// (first-name, last-name) split from the display name. A missing or
	// stale roster yields Unidentified, never an error: identity
	// resolution is advisory to department tagging.
	Resolve(email, displayName string) IdentityOutcome

	// ResolveDepartment picks the department for a record given its
	// outcome: a matched employee's non-blank department verbatim
	// (including an explicit "Unknown"), otherwise the raw export's
	// value untouched.
	ResolveDepartment(outcome IdentityOutcome, rawDepartment string) string

	// PrimaryDepartment selects one department when a person's records
	// disagree across tools.
	PrimaryDepartment(values []string) string

	Stats(ctx context.Context) (RosterStats, error)
	ListUnidentified(ctx context.Context) ([]UnidentifiedUsage, error)
}

var (
	ErrEmptyRoster    = errors.New("empty_roster")
	ErrInvalidRoster  = errors.New("invalid_roster")
	ErrDuplicateEmail = errors.New("duplicate_email")
)
