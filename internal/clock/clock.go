// Package clock provides an injectable time source so period-completeness
// predicates stay testable.
package clock

import (
	"time"

	"go.uber.org/fx"
)

// Clock returns the current instant.
type Clock interface {
	Now() time.Time
}

// Module wires the system clock.
var Module = fx.Module("clock",
	fx.Provide(NewSystemClock),
)

type systemClock struct{}

func NewSystemClock() Clock { return systemClock{} }

func (systemClock) Now() time.Time { return time.Now().UTC() }
