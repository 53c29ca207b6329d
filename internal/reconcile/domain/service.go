package domain

import "context"

// RunRequest scopes one reconciliation run. A zero Tolerance means
// DefaultTolerance. An empty ToolSource checks everything.
type RunRequest struct {
	ToolSource string  `form:"tool_source"`
	Tolerance  float64 `form:"tolerance"`
}

// Service validates persisted usage data against its invariants.
type Service interface {
	Run(ctx context.Context, req RunRequest) (Report, error)
}
