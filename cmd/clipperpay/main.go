package main

import (
	"github.com/smallbiznis/clipperpay/internal/clock"
	"github.com/smallbiznis/clipperpay/internal/config"
	"github.com/smallbiznis/clipperpay/internal/migration"
	"github.com/smallbiznis/clipperpay/internal/observability"
	"github.com/smallbiznis/clipperpay/internal/scheduler"
	"github.com/smallbiznis/clipperpay/internal/server"
	"github.com/smallbiznis/clipperpay/internal/verifier"
	"github.com/smallbiznis/clipperpay/pkg/db"
	"go.uber.org/fx"
)

// The monolith serves HTTP, runs queued verifications and, unless APP_MODE
// says otherwise, the scheduler.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		db.Module,
		clock.Module,

		server.DomainModules,
		migration.Module,
		verifier.WorkersModule,
		scheduler.Module,
		server.Module,
	)
	app.Run()
}
