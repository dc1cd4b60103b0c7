package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type CycleStatus string

const (
	CycleStatusOpen            CycleStatus = "open"
	CycleStatusPendingApproval CycleStatus = "pending_approval"
	CycleStatusApproved        CycleStatus = "approved"
	CycleStatusPaid            CycleStatus = "paid"
	CycleStatusFrozen          CycleStatus = "frozen"
)

// Segment is a named weekly spending bucket.
type Segment struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	Code             string       `gorm:"type:text;not null;uniqueIndex" json:"code"`
	Name             string       `gorm:"type:text;not null" json:"name"`
	WeeklyLimitCents int64        `gorm:"not null" json:"weekly_limit_cents"`
	CreatedAt        time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null" json:"updated_at"`
}

func (Segment) TableName() string { return "budget_segments" }

// Cycle is one ISO week of budget.
type Cycle struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	WeekKey          string       `gorm:"type:text;not null;uniqueIndex" json:"week_key"`
	Status           CycleStatus  `gorm:"type:text;not null;index" json:"status"`
	GlobalLimitCents int64        `gorm:"not null" json:"global_limit_cents"`
	GlobalSpentCents int64        `gorm:"not null;default:0" json:"global_spent_cents"`
	SubmittedAt      *time.Time   `json:"submitted_at,omitempty"`
	ApprovedAt       *time.Time   `json:"approved_at,omitempty"`
	ApprovedBy       string       `gorm:"type:text;not null;default:''" json:"approved_by,omitempty"`
	PaidAt           *time.Time   `json:"paid_at,omitempty"`
	FrozenAt         *time.Time   `json:"frozen_at,omitempty"`
	FrozenReason     string       `gorm:"type:text;not null;default:''" json:"frozen_reason,omitempty"`
	LastError        string       `gorm:"type:text;not null;default:''" json:"last_error,omitempty"`
	CreatedAt        time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time    `gorm:"not null" json:"updated_at"`
}

func (Cycle) TableName() string { return "budget_cycles" }

// SegmentCycle is a segment's spend within one cycle. LimitCents is
// snapshotted when the row is created.
type SegmentCycle struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	CycleID       snowflake.ID `gorm:"not null;uniqueIndex:ux_segment_cycles_cycle_segment,priority:1" json:"cycle_id"`
	SegmentID     snowflake.ID `gorm:"not null;uniqueIndex:ux_segment_cycles_cycle_segment,priority:2" json:"segment_id"`
	SegmentCode   string       `gorm:"type:text;not null" json:"segment_code"`
	LimitCents    int64        `gorm:"not null" json:"limit_cents"`
	SpentCents    int64        `gorm:"not null;default:0" json:"spent_cents"`
	DeferredCents int64        `gorm:"not null;default:0" json:"deferred_cents"`
	WarnedAt      *time.Time   `json:"warned_at,omitempty"`
	ThrottledAt   *time.Time   `json:"throttled_at,omitempty"`
	FrozenAt      *time.Time   `json:"frozen_at,omitempty"`
	CreatedAt     time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null" json:"updated_at"`
}

func (SegmentCycle) TableName() string { return "segment_cycles" }

// SpendEntry is one idempotent charge against a segment cycle.
type SpendEntry struct {
	ID             snowflake.ID `gorm:"primaryKey"`
	SegmentCycleID snowflake.ID `gorm:"not null;uniqueIndex:ux_spend_entries_reference,priority:1"`
	Reference      string       `gorm:"type:text;not null;uniqueIndex:ux_spend_entries_reference,priority:2"`
	RequestedCents int64        `gorm:"not null"`
	AppliedCents   int64        `gorm:"not null"`
	DeferredCents  int64        `gorm:"not null"`
	CreatedAt      time.Time    `gorm:"not null"`
}

func (SpendEntry) TableName() string { return "spend_entries" }

// Level is the highest threshold a segment has reached.
type Level string

const (
	LevelNone     Level = "none"
	LevelWarning  Level = "warning"
	LevelThrottle Level = "throttle"
	LevelFreeze   Level = "freeze"
)

type ChargeRequest struct {
	WeekKey     string
	SegmentCode string
	AmountCents int64
	Reference   string
}

// ChargeResult splits a charge into the part applied to the budget and the
// part deferred to a later cycle.
type ChargeResult struct {
	AppliedCents  int64 `json:"applied_cents"`
	DeferredCents int64 `json:"deferred_cents"`
	Level         Level `json:"level"`
	Duplicate     bool  `json:"duplicate"`
}

type SegmentUsage struct {
	Code               string `json:"code"`
	Name               string `json:"name"`
	LimitCents         int64  `json:"limit_cents"`
	SpentCents         int64  `json:"spent_cents"`
	DeferredCents      int64  `json:"deferred_cents"`
	RemainingCents     int64  `json:"remaining_cents"`
	UtilizationPercent int64  `json:"utilization_percent"`
	Level              Level  `json:"level"`
	Frozen             bool   `json:"frozen"`
}

type CycleView struct {
	Cycle    Cycle          `json:"cycle"`
	Segments []SegmentUsage `json:"segments"`
}
