package identity

import (
	"github.com/PresidentofMexico/openai-usage-metrics/internal/identity/repository"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/identity/service"
	"go.uber.org/fx"
)

var Module = fx.Module("identity.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
