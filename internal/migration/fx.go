package migration

import (
	"context"

	budgetdomain "github.com/smallbiznis/clipperpay/internal/budget/domain"
	"github.com/smallbiznis/clipperpay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, budget budgetdomain.Service, log *zap.Logger) error {
		if err := Apply(conn, cfg.DBType); err != nil {
			return err
		}
		if err := budget.EnsureDefaultSegments(context.Background()); err != nil {
			return err
		}
		log.Named("migration").Info("schema ready", zap.String("db_type", cfg.DBType))
		return nil
	}),
)
