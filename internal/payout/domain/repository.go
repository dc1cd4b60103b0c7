package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	LockRecord(ctx context.Context, db *gorm.DB, creatorID, weekKey string) (*Record, error)
	InsertRecord(ctx context.Context, db *gorm.DB, record *Record) error
	SaveRecord(ctx context.Context, db *gorm.DB, record *Record) error
	ListRecordsByWeek(ctx context.Context, db *gorm.DB, weekKey string) ([]Record, error)
	ListRecordsByCreator(ctx context.Context, db *gorm.DB, creatorID string) ([]Record, error)
	MarkWeekPaid(ctx context.Context, db *gorm.DB, weekKey string, paidAt time.Time) (int64, error)

	// ListCarryIn returns deferrals from weeks before weekKey that are unclaimed
	// or already claimed by weekKey.
	ListCarryIn(ctx context.Context, db *gorm.DB, creatorID, weekKey string) ([]Deferral, error)
	ListCarryInCreators(ctx context.Context, db *gorm.DB, weekKey string) ([]string, error)
	ConsumeDeferrals(ctx context.Context, db *gorm.DB, ids []snowflake.ID, weekKey string, now time.Time) error
	FindDeferral(ctx context.Context, db *gorm.DB, creatorID, sourceWeek string) (*Deferral, error)
	InsertDeferral(ctx context.Context, db *gorm.DB, deferral *Deferral) error
	SaveDeferral(ctx context.Context, db *gorm.DB, deferral *Deferral) error
	DeleteDeferral(ctx context.Context, db *gorm.DB, id snowflake.ID) error

	InsertRun(ctx context.Context, db *gorm.DB, run *Run) error
	SaveRun(ctx context.Context, db *gorm.DB, run *Run) error
	LatestRun(ctx context.Context, db *gorm.DB, weekKey string) (*Run, error)
}
