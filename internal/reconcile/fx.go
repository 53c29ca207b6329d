package reconcile

import (
	"github.com/PresidentofMexico/openai-usage-metrics/internal/reconcile/service"
	"go.uber.org/fx"
)

var Module = fx.Module("reconcile.service",
	fx.Provide(service.New),
)
