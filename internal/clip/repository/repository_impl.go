package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clipperpay/internal/clip/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, clip *domain.Clip) error {
	return db.WithContext(ctx).Create(clip).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Clip, error) {
	var clip domain.Clip
	err := db.WithContext(ctx).
		Where("id = ?", id).
		Limit(1).
		Find(&clip).Error
	if err != nil {
		return nil, err
	}
	if clip.ID == 0 {
		return nil, nil
	}
	return &clip, nil
}

func (r *repo) FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Clip, error) {
	var clip domain.Clip
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Limit(1).
		Find(&clip).Error
	if err != nil {
		return nil, err
	}
	if clip.ID == 0 {
		return nil, nil
	}
	return &clip, nil
}

func (r *repo) Save(ctx context.Context, db *gorm.DB, clip *domain.Clip) error {
	return db.WithContext(ctx).Save(clip).Error
}

func (r *repo) ListByCreator(ctx context.Context, db *gorm.DB, creatorID string, afterID int64, limit int) ([]domain.Clip, error) {
	var clips []domain.Clip
	stmt := db.WithContext(ctx).Where("creator_id = ?", creatorID)
	if afterID > 0 {
		stmt = stmt.Where("id < ?", afterID)
	}
	err := stmt.Order("id desc").Limit(limit + 1).Find(&clips).Error
	return clips, err
}

func (r *repo) ListAllByCreator(ctx context.Context, db *gorm.DB, creatorID string) ([]domain.Clip, error) {
	var clips []domain.Clip
	err := db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Order("submitted_at asc, id asc").
		Find(&clips).Error
	return clips, err
}

func (r *repo) ListByWeek(ctx context.Context, db *gorm.DB, weekKey string) ([]domain.Clip, error) {
	var clips []domain.Clip
	err := db.WithContext(ctx).
		Where("week_key = ?", weekKey).
		Order("creator_id asc, id asc").
		Find(&clips).Error
	return clips, err
}

func (r *repo) ListByWeekAndCreators(ctx context.Context, db *gorm.DB, weekKey string, creatorIDs []string) ([]domain.Clip, error) {
	if len(creatorIDs) == 0 {
		return nil, nil
	}
	var clips []domain.Clip
	err := db.WithContext(ctx).
		Where("week_key = ? AND creator_id IN ?", weekKey, creatorIDs).
		Order("creator_id asc, id asc").
		Find(&clips).Error
	return clips, err
}

// ListDueForRecheck returns non-terminal clips, plus verified YouTube clips whose
// count is older than checkedBefore, least recently checked first.
func (r *repo) ListDueForRecheck(ctx context.Context, db *gorm.DB, checkedBefore time.Time, limit int) ([]domain.Clip, error) {
	var clips []domain.Clip
	err := db.WithContext(ctx).
		Where("status <> ?", domain.StatusRejected).
		Where("last_checked_at IS NULL OR last_checked_at < ?", checkedBefore).
		Order("last_checked_at asc, id asc").
		Limit(limit).
		Find(&clips).Error
	return clips, err
}

func (r *repo) ListCreatorIDs(ctx context.Context, db *gorm.DB) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Clip{}).
		Distinct("creator_id").
		Order("creator_id asc").
		Pluck("creator_id", &ids).Error
	return ids, err
}

func (r *repo) LifetimeNetViews(ctx context.Context, db *gorm.DB, creatorID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Clip{}).
		Select("COALESCE(SUM(CASE WHEN view_count > baseline_view_count THEN view_count - baseline_view_count ELSE 0 END), 0)").
		Where("creator_id = ? AND status = ? AND baseline_captured = ?", creatorID, domain.StatusVerified, true).
		Scan(&total).Error
	return total, err
}

// FinalizeEarnings never lowers a stored amount.
func (r *repo) FinalizeEarnings(ctx context.Context, db *gorm.DB, id snowflake.ID, earningsCents int64, weekKey string) error {
	return db.WithContext(ctx).
		Model(&domain.Clip{}).
		Where("id = ? AND earnings_cents <= ?", id, earningsCents).
		Updates(map[string]any{
			"earnings_cents": earningsCents,
			"finalized_week": weekKey,
		}).Error
}
