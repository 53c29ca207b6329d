package usage

import (
	"github.com/PresidentofMexico/openai-usage-metrics/internal/usage/repository"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
