package authorization

import (
	"context"
	"testing"

	"github.com/smallbiznis/clipperpay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	enforcer, err := NewEnforcer(config.Config{OperatorRoles: map[string]string{
		"alice": "admin",
		"bob":   "finance",
		"carol": "viewer",
	}})
	require.NoError(t, err)
	return NewService(Params{Log: zap.NewNop(), Enforcer: enforcer})
}

func TestSystemCannotApproveCycles(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.NoError(t, svc.Authorize(ctx, ActorSystem, ObjectCycle, ActionCycleSubmit))
	assert.NoError(t, svc.Authorize(ctx, ActorSystem, ObjectPayout, ActionPayoutProcess))
	assert.ErrorIs(t, svc.Authorize(ctx, ActorSystem, ObjectCycle, ActionCycleApprove), ErrForbidden)
}

func TestOperatorRoles(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.NoError(t, svc.Authorize(ctx, OperatorActor("alice"), ObjectRisk, ActionRiskThrottle))
	assert.NoError(t, svc.Authorize(ctx, OperatorActor("bob"), ObjectCycle, ActionCycleApprove))
	assert.ErrorIs(t, svc.Authorize(ctx, OperatorActor("bob"), ObjectRisk, ActionRiskThrottle), ErrForbidden)
	assert.NoError(t, svc.Authorize(ctx, OperatorActor("carol"), ObjectDashboard, ActionDashboardView))
	assert.ErrorIs(t, svc.Authorize(ctx, OperatorActor("carol"), ObjectPayout, ActionPayoutProcess), ErrForbidden)
	assert.ErrorIs(t, svc.Authorize(ctx, OperatorActor("mallory"), ObjectDashboard, ActionDashboardView), ErrForbidden)
}

func TestInvalidActor(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Authorize(ctx, "user:1", ObjectCycle, ActionCycleApprove), ErrInvalidActor)
	assert.ErrorIs(t, svc.Authorize(ctx, "operator:", ObjectCycle, ActionCycleApprove), ErrInvalidActor)
}
