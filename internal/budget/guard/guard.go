// Package guard holds the budget cycle state machine.
package guard

import (
	"github.com/smallbiznis/clipperpay/internal/authorization"
	"github.com/smallbiznis/clipperpay/internal/budget/domain"
)

var transitions = map[domain.CycleStatus][]domain.CycleStatus{
	domain.CycleStatusOpen:            {domain.CycleStatusPendingApproval, domain.CycleStatusFrozen},
	domain.CycleStatusPendingApproval: {domain.CycleStatusApproved, domain.CycleStatusFrozen},
	domain.CycleStatusApproved:        {domain.CycleStatusPaid, domain.CycleStatusFrozen},
	domain.CycleStatusFrozen:          {domain.CycleStatusPendingApproval},
	domain.CycleStatusPaid:            nil,
}

func CanTransition(from, to domain.CycleStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func EnsureCanSubmit(status domain.CycleStatus) error {
	if status != domain.CycleStatusOpen {
		return domain.ErrCycleNotOpen
	}
	return nil
}

// EnsureCanApprove rejects the system actor; approval is always an operator decision.
func EnsureCanApprove(status domain.CycleStatus, actor string) error {
	if actor == authorization.ActorSystem {
		return domain.ErrSelfApproval
	}
	if status != domain.CycleStatusPendingApproval {
		return domain.ErrCycleNotPending
	}
	return nil
}

func EnsureCanPay(status domain.CycleStatus) error {
	if status != domain.CycleStatusApproved {
		return domain.ErrCycleNotApproved
	}
	return nil
}

// EnsureCanFreeze allows the emergency freeze from any unpaid state.
func EnsureCanFreeze(status domain.CycleStatus) error {
	if status == domain.CycleStatusPaid {
		return domain.ErrCycleAlreadyPaid
	}
	return nil
}

// ShouldAutoFreeze reports whether a limit breach freezes the cycle.
// Approved cycles keep their status so the payout run can finish; the
// exhausted segment itself stops accepting spend.
func ShouldAutoFreeze(status domain.CycleStatus) bool {
	return status == domain.CycleStatusOpen || status == domain.CycleStatusPendingApproval
}

func EnsureCanUnfreeze(status domain.CycleStatus) error {
	if status != domain.CycleStatusFrozen {
		return domain.ErrCycleNotFrozen
	}
	return nil
}
