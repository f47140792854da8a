package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/researchhub/internal/clock"
	"github.com/smallbiznis/researchhub/internal/config"
	"github.com/smallbiznis/researchhub/internal/migration"
	"github.com/smallbiznis/researchhub/internal/observability"
	"github.com/smallbiznis/researchhub/internal/server"
	"github.com/smallbiznis/researchhub/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		migration.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake(cfg config.Config) (*snowflake.Node, error) {
	return snowflake.NewNode(cfg.SnowflakeNode)
}
