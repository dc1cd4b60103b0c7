package domain

import (
	"context"

	"gorm.io/gorm"
)

type UpsertSegmentRequest struct {
	Code             string
	Name             string
	WeeklyLimitCents int64
}

type RecordSpendRequest struct {
	WeekKey     string
	SegmentCode string
	AmountCents int64
	Reference   string
}

// Throttler activates the global pay-rate throttle when a segment runs hot.
type Throttler interface {
	ActivateGlobalTx(ctx context.Context, tx *gorm.DB, actor, reason string) (bool, error)
}

type Service interface {
	EnsureDefaultSegments(ctx context.Context) error
	UpsertSegment(ctx context.Context, actor string, req UpsertSegmentRequest) (Segment, error)
	SetSegmentLimit(ctx context.Context, actor, code string, limitCents int64) (Segment, error)
	ListSegments(ctx context.Context) ([]Segment, error)

	// EnsureOpenCycle is the Monday rollover: the current week gets an open
	// cycle and earlier open cycles move to pending approval.
	EnsureOpenCycle(ctx context.Context, actor string) (Cycle, error)
	GetCycle(ctx context.Context, weekKey string) (Cycle, error)
	CurrentCycle(ctx context.Context) (CycleView, error)
	CycleView(ctx context.Context, weekKey string) (CycleView, error)
	ListCycles(ctx context.Context, status CycleStatus) ([]Cycle, error)

	Submit(ctx context.Context, actor, weekKey string) (Cycle, error)
	Approve(ctx context.Context, actor, weekKey string) (Cycle, error)
	Freeze(ctx context.Context, actor, weekKey, reason string) (Cycle, error)
	Unfreeze(ctx context.Context, actor, weekKey string) (Cycle, error)
	MarkPaid(ctx context.Context, actor, weekKey string) (Cycle, error)
	RecordRunError(ctx context.Context, weekKey, message string) error

	RecordSpend(ctx context.Context, actor string, req RecordSpendRequest) (ChargeResult, error)
	// ChargeTx applies spend inside the caller's transaction. The charge is
	// clamped to what the segment and the global limit still allow.
	ChargeTx(ctx context.Context, tx *gorm.DB, req ChargeRequest) (ChargeResult, error)
}
