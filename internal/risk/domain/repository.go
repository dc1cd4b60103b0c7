package domain

import (
	"context"

	"gorm.io/gorm"
)

type Repository interface {
	GetGlobal(ctx context.Context, db *gorm.DB) (*GlobalThrottle, error)
	LockGlobal(ctx context.Context, db *gorm.DB) (*GlobalThrottle, error)
	SaveGlobal(ctx context.Context, db *gorm.DB, state *GlobalThrottle) error
	FindCreatorThrottle(ctx context.Context, db *gorm.DB, creatorID string) (*CreatorThrottle, error)
	UpsertCreatorThrottle(ctx context.Context, db *gorm.DB, throttle *CreatorThrottle) error
	// InsertCreatorThrottle reports false when the creator already has a throttle.
	InsertCreatorThrottle(ctx context.Context, db *gorm.DB, throttle *CreatorThrottle) (bool, error)
	DeleteCreatorThrottle(ctx context.Context, db *gorm.DB, creatorID string) (bool, error)
	ListCreatorThrottles(ctx context.Context, db *gorm.DB) ([]CreatorThrottle, error)
	UpsertScore(ctx context.Context, db *gorm.DB, score *RiskScore) error
	ListScores(ctx context.Context, db *gorm.DB, minScore int) ([]RiskScore, error)
}
