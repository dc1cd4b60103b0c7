package main

import (
	"github.com/smallbiznis/clipperpay/internal/clock"
	"github.com/smallbiznis/clipperpay/internal/config"
	"github.com/smallbiznis/clipperpay/internal/migration"
	"github.com/smallbiznis/clipperpay/internal/observability"
	"github.com/smallbiznis/clipperpay/internal/server"
	"github.com/smallbiznis/clipperpay/internal/verifier"
	"github.com/smallbiznis/clipperpay/pkg/db"
	"go.uber.org/fx"
)

// The api process owns the schema when the scheduler runs separately.
func main() {
	app := fx.New(
		config.Module,
		observability.Module,
		db.Module,
		clock.Module,

		server.DomainModules,
		migration.Module,
		verifier.WorkersModule,

		server.Module,
	)
	app.Run()
}
