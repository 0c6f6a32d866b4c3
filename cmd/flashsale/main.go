package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/flashsale/internal/cache"
	"github.com/smallbiznis/flashsale/internal/clock"
	"github.com/smallbiznis/flashsale/internal/config"
	"github.com/smallbiznis/flashsale/internal/idgen"
	"github.com/smallbiznis/flashsale/internal/kvstore"
	"github.com/smallbiznis/flashsale/internal/lock"
	"github.com/smallbiznis/flashsale/internal/migration"
	"github.com/smallbiznis/flashsale/internal/observability"
	"github.com/smallbiznis/flashsale/internal/orderevents"
	"github.com/smallbiznis/flashsale/internal/ratelimit"
	"github.com/smallbiznis/flashsale/internal/seed"
	"github.com/smallbiznis/flashsale/internal/server"
	"github.com/smallbiznis/flashsale/internal/shop"
	"github.com/smallbiznis/flashsale/internal/voucherorder"
	"github.com/smallbiznis/flashsale/pkg/db"
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
		kvstore.Module,
		clock.Module,

		// Redis primitives
		lock.Module,
		idgen.Module,
		cache.Module,
		ratelimit.Module,
		orderevents.Module,

		// Functional Domains
		seed.Module,
		shop.Module,
		voucherorder.Module,

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
