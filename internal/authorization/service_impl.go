package authorization

import (
	"context"
	_ "embed"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/smallbiznis/clipperpay/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

//go:embed model.conf
var modelText string

type Params struct {
	fx.In

	Log      *zap.Logger
	Enforcer *casbin.SyncedEnforcer
}

type ServiceImpl struct {
	log      *zap.Logger
	enforcer *casbin.SyncedEnforcer
}

// NewEnforcer builds an in-memory enforcer. Operator roles come from config,
// so there is nothing to persist.
func NewEnforcer(cfg config.Config) (*casbin.SyncedEnforcer, error) {
	m, err := model.NewModelFromString(modelText)
	if err != nil {
		return nil, err
	}
	enforcer, err := casbin.NewSyncedEnforcer(m)
	if err != nil {
		return nil, err
	}
	if err := seedPolicies(enforcer); err != nil {
		return nil, err
	}
	if _, err := enforcer.AddGroupingPolicy(ActorSystem, "role:system"); err != nil {
		return nil, err
	}
	for operatorID, role := range cfg.OperatorRoles {
		if _, err := enforcer.AddGroupingPolicy(OperatorActor(operatorID), "role:"+role); err != nil {
			return nil, err
		}
	}
	return enforcer, nil
}

func NewService(p Params) Service {
	return &ServiceImpl{
		log:      p.Log.Named("authorization.service"),
		enforcer: p.Enforcer,
	}
}

func (s *ServiceImpl) Authorize(ctx context.Context, actor string, object string, action string) error {
	actor = strings.TrimSpace(actor)
	if actor != ActorSystem && !strings.HasPrefix(actor, "operator:") {
		return ErrInvalidActor
	}
	if strings.TrimSpace(strings.TrimPrefix(actor, "operator:")) == "" {
		return ErrInvalidActor
	}
	object = strings.TrimSpace(object)
	if object == "" {
		return ErrInvalidObject
	}
	action = strings.TrimSpace(action)
	if action == "" {
		return ErrInvalidAction
	}

	allowed, err := s.enforcer.Enforce(actor, object, action)
	if err != nil {
		return err
	}
	if !allowed {
		s.log.Warn("authorization.denied",
			zap.String("actor", actor),
			zap.String("object", object),
			zap.String("action", action),
		)
		return ErrForbidden
	}
	return nil
}

func seedPolicies(enforcer *casbin.SyncedEnforcer) error {
	policies := [][]string{
		{"role:admin", "*", "*"},

		{"role:finance", ObjectCycle, "*"},
		{"role:finance", ObjectPayout, "*"},
		{"role:finance", ObjectBudget, "*"},
		{"role:finance", ObjectDashboard, ActionDashboardView},

		{"role:risk", ObjectRisk, "*"},
		{"role:risk", ObjectClip, ActionClipViews},
		{"role:risk", ObjectDashboard, ActionDashboardView},

		{"role:viewer", ObjectDashboard, ActionDashboardView},

		// the scheduler may move cycles forward but never approve them
		{"role:system", ObjectCycle, ActionCycleSubmit},
		{"role:system", ObjectCycle, ActionCycleRollover},
		{"role:system", ObjectCycle, ActionCycleFreeze},
		{"role:system", ObjectPayout, ActionPayoutProcess},
		{"role:system", ObjectPayout, ActionPayoutRetry},
		{"role:system", ObjectBudget, ActionBudgetSpend},
		{"role:system", ObjectRisk, ActionRiskScore},
		{"role:system", ObjectRisk, ActionRiskThrottle},
		{"role:system", ObjectClip, ActionClipViews},
	}
	for _, policy := range policies {
		if _, err := enforcer.AddPolicy(policy[0], policy[1], policy[2]); err != nil {
			return err
		}
	}
	return nil
}
