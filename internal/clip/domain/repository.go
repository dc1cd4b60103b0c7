package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, clip *Clip) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Clip, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Clip, error)
	Save(ctx context.Context, db *gorm.DB, clip *Clip) error
	ListByCreator(ctx context.Context, db *gorm.DB, creatorID string, afterID int64, limit int) ([]Clip, error)
	ListAllByCreator(ctx context.Context, db *gorm.DB, creatorID string) ([]Clip, error)
	ListByWeek(ctx context.Context, db *gorm.DB, weekKey string) ([]Clip, error)
	ListByWeekAndCreators(ctx context.Context, db *gorm.DB, weekKey string, creatorIDs []string) ([]Clip, error)
	ListDueForRecheck(ctx context.Context, db *gorm.DB, checkedBefore time.Time, limit int) ([]Clip, error)
	ListCreatorIDs(ctx context.Context, db *gorm.DB) ([]string, error)
	LifetimeNetViews(ctx context.Context, db *gorm.DB, creatorID string) (int64, error)
	FinalizeEarnings(ctx context.Context, db *gorm.DB, id snowflake.ID, earningsCents int64, weekKey string) error
}
