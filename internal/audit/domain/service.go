package domain

import (
	"context"
	"errors"
	"time"

	"github.com/smallbiznis/clipperpay/pkg/db/pagination"
	"gorm.io/gorm"
)

const (
	ActionCycleSubmit       = "cycle.submit"
	ActionCycleApprove      = "cycle.approve"
	ActionCycleFreeze       = "cycle.freeze"
	ActionCycleUnfreeze     = "cycle.unfreeze"
	ActionPayoutProcess     = "payout.process"
	ActionPayoutRetry       = "payout.retry"
	ActionSegmentUpsert     = "budget.segment_upsert"
	ActionSegmentLimit      = "budget.segment_limit"
	ActionSegmentSpend      = "budget.spend"
	ActionThrottleSet       = "risk.throttle_set"
	ActionThrottleClear     = "risk.throttle_clear"
	ActionCreatorThrottle   = "risk.creator_throttle_set"
	ActionCreatorUnthrottle = "risk.creator_throttle_clear"
	ActionClipViews         = "clip.views"
)

const (
	TargetCycle   = "cycle"
	TargetSegment = "segment"
	TargetCreator = "creator"
	TargetClip    = "clip"
	TargetGlobal  = "global"
)

type RecordRequest struct {
	Actor      string
	Action     string
	TargetType string
	TargetID   string
	Metadata   map[string]any
}

type ListAuditLogRequest struct {
	pagination.Pagination
	Action     string
	TargetType string
	TargetID   string
	Actor      string
	StartAt    *time.Time
	EndAt      *time.Time
}

type ListAuditLogResponse struct {
	pagination.PageInfo
	AuditLogs []AuditLog `json:"audit_logs"`
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]AuditLog, error)
}

type Service interface {
	Record(ctx context.Context, req RecordRequest) error
	List(ctx context.Context, actor string, req ListAuditLogRequest) (*ListAuditLogResponse, error)
}

var (
	ErrInvalidAction    = errors.New("invalid_audit_action")
	ErrInvalidTimeRange = errors.New("invalid_time_range")
)
