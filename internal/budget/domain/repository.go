package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	FindSegmentByCode(ctx context.Context, db *gorm.DB, code string) (*Segment, error)
	ListSegments(ctx context.Context, db *gorm.DB) ([]Segment, error)
	InsertSegment(ctx context.Context, db *gorm.DB, segment *Segment) (bool, error)
	SaveSegment(ctx context.Context, db *gorm.DB, segment *Segment) error

	FindCycle(ctx context.Context, db *gorm.DB, weekKey string) (*Cycle, error)
	LockCycle(ctx context.Context, db *gorm.DB, weekKey string) (*Cycle, error)
	InsertCycle(ctx context.Context, db *gorm.DB, cycle *Cycle) (bool, error)
	SaveCycle(ctx context.Context, db *gorm.DB, cycle *Cycle) error
	ListCyclesByStatus(ctx context.Context, db *gorm.DB, status CycleStatus) ([]Cycle, error)

	ListSegmentCycles(ctx context.Context, db *gorm.DB, cycleID snowflake.ID) ([]SegmentCycle, error)
	LockSegmentCycle(ctx context.Context, db *gorm.DB, cycleID, segmentID snowflake.ID) (*SegmentCycle, error)
	InsertSegmentCycle(ctx context.Context, db *gorm.DB, sc *SegmentCycle) (bool, error)
	SaveSegmentCycle(ctx context.Context, db *gorm.DB, sc *SegmentCycle) error

	FindSpendEntry(ctx context.Context, db *gorm.DB, segmentCycleID snowflake.ID, reference string) (*SpendEntry, error)
	InsertSpendEntry(ctx context.Context, db *gorm.DB, entry *SpendEntry) error
}
