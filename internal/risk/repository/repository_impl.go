package repository

import (
	"context"
	"time"

	"github.com/smallbiznis/clipperpay/internal/risk/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) GetGlobal(ctx context.Context, db *gorm.DB) (*domain.GlobalThrottle, error) {
	var state domain.GlobalThrottle
	err := db.WithContext(ctx).
		Where("id = ?", domain.GlobalThrottleID).
		Limit(1).
		Find(&state).Error
	if err != nil {
		return nil, err
	}
	if state.ID == 0 {
		return &domain.GlobalThrottle{ID: domain.GlobalThrottleID}, nil
	}
	return &state, nil
}

// LockGlobal creates the singleton row on first use and locks it.
func (r *repo) LockGlobal(ctx context.Context, db *gorm.DB) (*domain.GlobalThrottle, error) {
	seed := domain.GlobalThrottle{ID: domain.GlobalThrottleID, UpdatedAt: time.Now().UTC()}
	if err := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&seed).Error; err != nil {
		return nil, err
	}

	var state domain.GlobalThrottle
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", domain.GlobalThrottleID).
		First(&state).Error
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (r *repo) SaveGlobal(ctx context.Context, db *gorm.DB, state *domain.GlobalThrottle) error {
	return db.WithContext(ctx).Save(state).Error
}

func (r *repo) FindCreatorThrottle(ctx context.Context, db *gorm.DB, creatorID string) (*domain.CreatorThrottle, error) {
	var throttle domain.CreatorThrottle
	err := db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Limit(1).
		Find(&throttle).Error
	if err != nil {
		return nil, err
	}
	if throttle.CreatorID == "" {
		return nil, nil
	}
	return &throttle, nil
}

func (r *repo) UpsertCreatorThrottle(ctx context.Context, db *gorm.DB, throttle *domain.CreatorThrottle) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "creator_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"mode", "rpm_cents", "source", "reason", "score", "updated_by", "updated_at"}),
		}).
		Create(throttle).Error
}

func (r *repo) InsertCreatorThrottle(ctx context.Context, db *gorm.DB, throttle *domain.CreatorThrottle) (bool, error) {
	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(throttle)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) DeleteCreatorThrottle(ctx context.Context, db *gorm.DB, creatorID string) (bool, error) {
	res := db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Delete(&domain.CreatorThrottle{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) ListCreatorThrottles(ctx context.Context, db *gorm.DB) ([]domain.CreatorThrottle, error) {
	var items []domain.CreatorThrottle
	err := db.WithContext(ctx).Order("updated_at desc").Find(&items).Error
	return items, err
}

func (r *repo) UpsertScore(ctx context.Context, db *gorm.DB, score *domain.RiskScore) error {
	return db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "creator_id"}},
			UpdateAll: true,
		}).
		Create(score).Error
}

func (r *repo) ListScores(ctx context.Context, db *gorm.DB, minScore int) ([]domain.RiskScore, error) {
	var items []domain.RiskScore
	err := db.WithContext(ctx).
		Where("score >= ?", minScore).
		Order("score desc, creator_id asc").
		Find(&items).Error
	return items, err
}
