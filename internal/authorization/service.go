package authorization

import (
	"context"
	"errors"
)

var (
	ErrForbidden     = errors.New("forbidden")
	ErrInvalidActor  = errors.New("invalid_actor")
	ErrInvalidObject = errors.New("invalid_object")
	ErrInvalidAction = errors.New("invalid_action")
)

const ActorSystem = "system"

const (
	ObjectCycle     = "cycle"
	ObjectPayout    = "payout"
	ObjectBudget    = "budget"
	ObjectRisk      = "risk"
	ObjectClip      = "clip"
	ObjectDashboard = "dashboard"
)

const (
	ActionCycleSubmit   = "cycle.submit"
	ActionCycleApprove  = "cycle.approve"
	ActionCycleFreeze   = "cycle.freeze"
	ActionCycleUnfreeze = "cycle.unfreeze"
	ActionCycleRollover = "cycle.rollover"

	ActionPayoutProcess = "payout.process"
	ActionPayoutRetry   = "payout.retry"
	ActionPayoutPreview = "payout.preview"

	ActionBudgetManage = "budget.manage"
	ActionBudgetSpend  = "budget.spend"

	ActionRiskScore    = "risk.score"
	ActionRiskThrottle = "risk.throttle"

	ActionClipViews = "clip.views"

	ActionDashboardView = "dashboard.view"
)

// Service decides whether an actor may perform an action on an object.
// Actors are "system" or "operator:<id>".
type Service interface {
	Authorize(ctx context.Context, actor string, object string, action string) error
}

func OperatorActor(id string) string {
	return "operator:" + id
}
