package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/streamcred/streamcred/internal/config"
	"github.com/streamcred/streamcred/internal/migration"
	"github.com/streamcred/streamcred/internal/observability"
	"github.com/streamcred/streamcred/internal/server"
	"github.com/streamcred/streamcred/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		migration.Module,
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
