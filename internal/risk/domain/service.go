package domain

import (
	"context"

	"gorm.io/gorm"
)

type SetGlobalRequest struct {
	RPMOverrideCents *int64
	Reason           string
}

type SetCreatorRequest struct {
	CreatorID string
	Mode      ThrottleMode
	RPMCents  *int64
	Reason    string
}

// ThrottleService owns the versioned throttle state. Throttles never expire;
// only an explicit clear removes them.
type ThrottleService interface {
	Snapshot(ctx context.Context, creatorID string) (Snapshot, error)
	Global(ctx context.Context) (GlobalThrottle, error)
	SetGlobal(ctx context.Context, actor string, req SetGlobalRequest) (GlobalThrottle, error)
	// ActivateGlobalTx turns the global throttle on inside the caller's
	// transaction. An active throttle is left as is.
	ActivateGlobalTx(ctx context.Context, tx *gorm.DB, actor, reason string) (bool, error)
	ClearGlobal(ctx context.Context, actor string) (GlobalThrottle, error)
	SetCreator(ctx context.Context, actor string, req SetCreatorRequest) (CreatorThrottle, error)
	ClearCreator(ctx context.Context, actor, creatorID string) error
	ListCreatorThrottles(ctx context.Context) ([]CreatorThrottle, error)
}

type ScoreRunResult struct {
	Scored    int `json:"scored"`
	Flagged   int `json:"flagged"`
	HighRisk  int `json:"high_risk"`
	Throttled int `json:"throttled"`
	Failed    int `json:"failed"`
}

type ScoringService interface {
	ScoreCreator(ctx context.Context, actor, creatorID string) (RiskScore, error)
	ScoreAll(ctx context.Context, actor string) (ScoreRunResult, error)
	ListScores(ctx context.Context, minScore int) ([]RiskScore, error)
}
