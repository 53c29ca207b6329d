package main

import (
	"github.com/PresidentofMexico/openai-usage-metrics/internal/clock"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/migration"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/observability"
	"github.com/PresidentofMexico/openai-usage-metrics/internal/server"
	"github.com/PresidentofMexico/openai-usage-metrics/pkg/db"
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core infrastructure
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,

		// HTTP surface plus the ingestion, identity, usage and
		// reconciliation domains it pulls in.
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
