package migration

import (
	"database/sql"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	auditdomain "github.com/smallbiznis/clipperpay/internal/audit/domain"
	"github.com/smallbiznis/clipperpay/internal/bonus"
	budgetdomain "github.com/smallbiznis/clipperpay/internal/budget/domain"
	clipdomain "github.com/smallbiznis/clipperpay/internal/clip/domain"
	payoutdomain "github.com/smallbiznis/clipperpay/internal/payout/domain"
	riskdomain "github.com/smallbiznis/clipperpay/internal/risk/domain"
	"github.com/smallbiznis/clipperpay/pkg/db"
	"gorm.io/gorm"
)

// Models lists every table the engine owns, parents first.
func Models() []any {
	return []any{
		&clipdomain.Clip{},
		&budgetdomain.Segment{},
		&budgetdomain.Cycle{},
		&budgetdomain.SegmentCycle{},
		&budgetdomain.SpendEntry{},
		&riskdomain.GlobalThrottle{},
		&riskdomain.CreatorThrottle{},
		&riskdomain.RiskScore{},
		&bonus.Award{},
		&payoutdomain.Record{},
		&payoutdomain.Deferral{},
		&payoutdomain.Run{},
		&auditdomain.AuditLog{},
	}
}

// Apply brings the schema up to date. Postgres runs the embedded SQL files;
// sqlite and mysql are migrated from the gorm models.
func Apply(conn *gorm.DB, dbType string) error {
	if conn == nil {
		return errors.New("migration database handle is required")
	}
	if dbType != db.TypePostgres {
		if err := conn.AutoMigrate(Models()...); err != nil {
			return fmt.Errorf("auto migrate %s: %w", dbType, err)
		}
		return nil
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return err
	}
	return RunMigrations(sqlDB)
}

func RunMigrations(db *sql.DB) error {
	if db == nil {
		return errors.New("migration database handle is required")
	}

	sub, err := fs.Sub(embeddedMigrations, migrationsDir)
	if err != nil {
		return fmt.Errorf("open migrations: %w", err)
	}

	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("create migration source: %w", err)
	}

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("create migration driver: %w", err)
	}

	migrator, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("create migrator: %w", err)
	}

	upErr := migrator.Up()
	if upErr != nil && !errors.Is(upErr, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", upErr)
	}
	// Do not call migrator.Close here because it would close the shared *sql.DB.

	return nil
}
