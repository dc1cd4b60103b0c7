package main

import (
	"github.com/smallbiznis/clipperpay/internal/clock"
	"github.com/smallbiznis/clipperpay/internal/config"
	"github.com/smallbiznis/clipperpay/internal/observability"
	"github.com/smallbiznis/clipperpay/internal/scheduler"
	"github.com/smallbiznis/clipperpay/internal/server"
	"github.com/smallbiznis/clipperpay/pkg/db"
	"go.uber.org/fx"
)

// Jobs refresh clips inline, so no verifier workers and no HTTP server.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		db.Module,
		clock.Module,

		server.DomainModules,
		scheduler.Module,
	)
	app.Run()
}
