package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clipperpay/internal/payout/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) LockRecord(ctx context.Context, db *gorm.DB, creatorID, weekKey string) (*domain.Record, error) {
	var record domain.Record
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("creator_id = ? AND week_key = ?", creatorID, weekKey).
		Limit(1).
		Find(&record).Error
	if err != nil {
		return nil, err
	}
	if record.ID == 0 {
		return nil, nil
	}
	return &record, nil
}

func (r *repo) InsertRecord(ctx context.Context, db *gorm.DB, record *domain.Record) error {
	return db.WithContext(ctx).Create(record).Error
}

func (r *repo) SaveRecord(ctx context.Context, db *gorm.DB, record *domain.Record) error {
	return db.WithContext(ctx).Save(record).Error
}

func (r *repo) ListRecordsByWeek(ctx context.Context, db *gorm.DB, weekKey string) ([]domain.Record, error) {
	var records []domain.Record
	err := db.WithContext(ctx).
		Where("week_key = ?", weekKey).
		Order("creator_id asc").
		Find(&records).Error
	return records, err
}

func (r *repo) ListRecordsByCreator(ctx context.Context, db *gorm.DB, creatorID string) ([]domain.Record, error) {
	var records []domain.Record
	err := db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Order("week_key desc").
		Find(&records).Error
	return records, err
}

func (r *repo) MarkWeekPaid(ctx context.Context, db *gorm.DB, weekKey string, paidAt time.Time) (int64, error) {
	res := db.WithContext(ctx).
		Model(&domain.Record{}).
		Where("week_key = ? AND status <> ?", weekKey, domain.RecordStatusPaid).
		Updates(map[string]any{
			"status":     domain.RecordStatusPaid,
			"paid_at":    paidAt,
			"updated_at": paidAt,
		})
	return res.RowsAffected, res.Error
}

func (r *repo) ListCarryIn(ctx context.Context, db *gorm.DB, creatorID, weekKey string) ([]domain.Deferral, error) {
	var deferrals []domain.Deferral
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("creator_id = ? AND source_week < ? AND (consumed_week = '' OR consumed_week = ?)", creatorID, weekKey, weekKey).
		Order("source_week asc").
		Find(&deferrals).Error
	return deferrals, err
}

func (r *repo) ListCarryInCreators(ctx context.Context, db *gorm.DB, weekKey string) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.Deferral{}).
		Distinct("creator_id").
		Where("source_week < ? AND (consumed_week = '' OR consumed_week = ?) AND amount_cents > 0", weekKey, weekKey).
		Order("creator_id asc").
		Pluck("creator_id", &ids).Error
	return ids, err
}

func (r *repo) ConsumeDeferrals(ctx context.Context, db *gorm.DB, ids []snowflake.ID, weekKey string, now time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return db.WithContext(ctx).
		Model(&domain.Deferral{}).
		Where("id IN ?", ids).
		Updates(map[string]any{
			"consumed_week": weekKey,
			"updated_at":    now,
		}).Error
}

func (r *repo) FindDeferral(ctx context.Context, db *gorm.DB, creatorID, sourceWeek string) (*domain.Deferral, error) {
	var deferral domain.Deferral
	err := db.WithContext(ctx).
		Where("creator_id = ? AND source_week = ?", creatorID, sourceWeek).
		Limit(1).
		Find(&deferral).Error
	if err != nil {
		return nil, err
	}
	if deferral.ID == 0 {
		return nil, nil
	}
	return &deferral, nil
}

func (r *repo) InsertDeferral(ctx context.Context, db *gorm.DB, deferral *domain.Deferral) error {
	return db.WithContext(ctx).Create(deferral).Error
}

func (r *repo) SaveDeferral(ctx context.Context, db *gorm.DB, deferral *domain.Deferral) error {
	return db.WithContext(ctx).Save(deferral).Error
}

func (r *repo) DeleteDeferral(ctx context.Context, db *gorm.DB, id snowflake.ID) error {
	return db.WithContext(ctx).Where("id = ?", id).Delete(&domain.Deferral{}).Error
}

func (r *repo) InsertRun(ctx context.Context, db *gorm.DB, run *domain.Run) error {
	return db.WithContext(ctx).Create(run).Error
}

func (r *repo) SaveRun(ctx context.Context, db *gorm.DB, run *domain.Run) error {
	return db.WithContext(ctx).Save(run).Error
}

func (r *repo) LatestRun(ctx context.Context, db *gorm.DB, weekKey string) (*domain.Run, error) {
	var run domain.Run
	err := db.WithContext(ctx).
		Where("week_key = ?", weekKey).
		Order("id desc").
		Limit(1).
		Find(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == "" {
		return nil, nil
	}
	return &run, nil
}
