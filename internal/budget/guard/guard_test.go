package guard

import (
	"testing"

	"github.com/smallbiznis/clipperpay/internal/authorization"
	"github.com/smallbiznis/clipperpay/internal/budget/domain"
	"github.com/stretchr/testify/assert"
)

func TestPaidRequiresApproved(t *testing.T) {
	for _, from := range []domain.CycleStatus{domain.CycleStatusOpen, domain.CycleStatusPendingApproval, domain.CycleStatusFrozen, domain.CycleStatusPaid} {
		assert.False(t, CanTransition(from, domain.CycleStatusPaid), from)
		assert.ErrorIs(t, EnsureCanPay(from), domain.ErrCycleNotApproved)
	}
	assert.True(t, CanTransition(domain.CycleStatusApproved, domain.CycleStatusPaid))
	assert.NoError(t, EnsureCanPay(domain.CycleStatusApproved))
}

func TestApproveNeedsOperator(t *testing.T) {
	assert.ErrorIs(t, EnsureCanApprove(domain.CycleStatusPendingApproval, authorization.ActorSystem), domain.ErrSelfApproval)
	assert.ErrorIs(t, EnsureCanApprove(domain.CycleStatusOpen, "operator:ana"), domain.ErrCycleNotPending)
	assert.NoError(t, EnsureCanApprove(domain.CycleStatusPendingApproval, "operator:ana"))
}

func TestFreezeAndUnfreeze(t *testing.T) {
	assert.ErrorIs(t, EnsureCanFreeze(domain.CycleStatusPaid), domain.ErrCycleAlreadyPaid)
	assert.NoError(t, EnsureCanFreeze(domain.CycleStatusApproved))
	assert.True(t, ShouldAutoFreeze(domain.CycleStatusOpen))
	assert.True(t, ShouldAutoFreeze(domain.CycleStatusPendingApproval))
	assert.False(t, ShouldAutoFreeze(domain.CycleStatusApproved))

	assert.ErrorIs(t, EnsureCanUnfreeze(domain.CycleStatusOpen), domain.ErrCycleNotFrozen)
	assert.True(t, CanTransition(domain.CycleStatusFrozen, domain.CycleStatusPendingApproval))
	assert.False(t, CanTransition(domain.CycleStatusFrozen, domain.CycleStatusApproved))
}
