package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/frostclub/internal/clock"
	"github.com/smallbiznis/frostclub/internal/config"
	"github.com/smallbiznis/frostclub/internal/migration"
	"github.com/smallbiznis/frostclub/internal/observability"
	"github.com/smallbiznis/frostclub/internal/scheduler"
	"github.com/smallbiznis/frostclub/internal/server"
	"github.com/smallbiznis/frostclub/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		// Core Infrastructure
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
		clock.Module,

		// HTTP API and every domain service behind it
		server.Module,

		// Background jobs
		scheduler.Module,
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
