package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clipperpay/internal/budget/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) FindSegmentByCode(ctx context.Context, db *gorm.DB, code string) (*domain.Segment, error) {
	var segment domain.Segment
	err := db.WithContext(ctx).Where("code = ?", code).Limit(1).Find(&segment).Error
	if err != nil {
		return nil, err
	}
	if segment.ID == 0 {
		return nil, nil
	}
	return &segment, nil
}

func (r *repo) ListSegments(ctx context.Context, db *gorm.DB) ([]domain.Segment, error) {
	var segments []domain.Segment
	err := db.WithContext(ctx).Order("code asc").Find(&segments).Error
	return segments, err
}

func (r *repo) InsertSegment(ctx context.Context, db *gorm.DB, segment *domain.Segment) (bool, error) {
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(segment)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SaveSegment(ctx context.Context, db *gorm.DB, segment *domain.Segment) error {
	return db.WithContext(ctx).Save(segment).Error
}

func (r *repo) FindCycle(ctx context.Context, db *gorm.DB, weekKey string) (*domain.Cycle, error) {
	var cycle domain.Cycle
	err := db.WithContext(ctx).Where("week_key = ?", weekKey).Limit(1).Find(&cycle).Error
	if err != nil {
		return nil, err
	}
	if cycle.ID == 0 {
		return nil, nil
	}
	return &cycle, nil
}

func (r *repo) LockCycle(ctx context.Context, db *gorm.DB, weekKey string) (*domain.Cycle, error) {
	var cycle domain.Cycle
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("week_key = ?", weekKey).
		Limit(1).
		Find(&cycle).Error
	if err != nil {
		return nil, err
	}
	if cycle.ID == 0 {
		return nil, nil
	}
	return &cycle, nil
}

func (r *repo) InsertCycle(ctx context.Context, db *gorm.DB, cycle *domain.Cycle) (bool, error) {
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(cycle)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SaveCycle(ctx context.Context, db *gorm.DB, cycle *domain.Cycle) error {
	return db.WithContext(ctx).Save(cycle).Error
}

func (r *repo) ListCyclesByStatus(ctx context.Context, db *gorm.DB, status domain.CycleStatus) ([]domain.Cycle, error) {
	var cycles []domain.Cycle
	stmt := db.WithContext(ctx)
	if status != "" {
		stmt = stmt.Where("status = ?", status)
	}
	err := stmt.Order("week_key desc").Find(&cycles).Error
	return cycles, err
}

func (r *repo) ListSegmentCycles(ctx context.Context, db *gorm.DB, cycleID snowflake.ID) ([]domain.SegmentCycle, error) {
	var items []domain.SegmentCycle
	err := db.WithContext(ctx).
		Where("cycle_id = ?", cycleID).
		Order("segment_code asc").
		Find(&items).Error
	return items, err
}

func (r *repo) LockSegmentCycle(ctx context.Context, db *gorm.DB, cycleID, segmentID snowflake.ID) (*domain.SegmentCycle, error) {
	var sc domain.SegmentCycle
	err := db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("cycle_id = ? AND segment_id = ?", cycleID, segmentID).
		Limit(1).
		Find(&sc).Error
	if err != nil {
		return nil, err
	}
	if sc.ID == 0 {
		return nil, nil
	}
	return &sc, nil
}

func (r *repo) InsertSegmentCycle(ctx context.Context, db *gorm.DB, sc *domain.SegmentCycle) (bool, error) {
	res := db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(sc)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repo) SaveSegmentCycle(ctx context.Context, db *gorm.DB, sc *domain.SegmentCycle) error {
	return db.WithContext(ctx).Save(sc).Error
}

func (r *repo) FindSpendEntry(ctx context.Context, db *gorm.DB, segmentCycleID snowflake.ID, reference string) (*domain.SpendEntry, error) {
	var entry domain.SpendEntry
	err := db.WithContext(ctx).
		Where("segment_cycle_id = ? AND reference = ?", segmentCycleID, reference).
		Limit(1).
		Find(&entry).Error
	if err != nil {
		return nil, err
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}

func (r *repo) InsertSpendEntry(ctx context.Context, db *gorm.DB, entry *domain.SpendEntry) error {
	return db.WithContext(ctx).Create(entry).Error
}
