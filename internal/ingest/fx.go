package ingest

import (
	"github.com/PresidentofMexico/openai-usage-metrics/internal/ingest/format"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/ingest/normalize"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/ingest/pipeline"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/ingest/watcher"
	"go.uber.org/fx"
)

var Module = fx.Module("ingest",
	fx.Provide(format.NewDetector),
	fx.Provide(normalize.New),
	fx.Provide(pipeline.ProvideArchive),
	fx.Provide(pipeline.New),
	fx.Provide(watcher.New),
	fx.Invoke(func(*watcher.Watcher) {}),
)
