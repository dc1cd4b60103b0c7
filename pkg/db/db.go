package db

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clipperpay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Params struct {
	fx.In

	Config config.Config
	Log    *zap.Logger
	Logger gormlogger.Interface `optional:"true"`
}

func Open(p Params) (*gorm.DB, error) {
	cfg := ConfigFrom(p.Config)
	dialector, err := Dialect(cfg)
	if err != nil {
		return nil, err
	}

	gormCfg := &gorm.Config{TranslateError: true}
	if p.Logger != nil {
		gormCfg.Logger = p.Logger
	}

	conn, err := gorm.Open(dialector, gormCfg)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Type, err)
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}
	if cfg.MaxIdleConn > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConn)
	}
	// sqlite allows a single writer
	if cfg.Type == TypeSQLite {
		sqlDB.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConn > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	if cfg.ConnMaxIdleTime > 0 {
		sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	}

	p.Log.Named("db").Info("database connected", zap.String("type", cfg.Type))
	return conn, nil
}

func NewSnowflake() (*snowflake.Node, error) {
	return snowflake.NewNode(1)
}

var Module = fx.Module("db",
	fx.Provide(
		Open,
		NewSnowflake,
	),
)
