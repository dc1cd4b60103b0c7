package domain

import "errors"

var (
	ErrInvalidWeekKey     = errors.New("invalid_week_key")
	ErrInvalidSegmentCode = errors.New("invalid_segment_code")
	ErrInvalidSegmentName = errors.New("invalid_segment_name")
	ErrInvalidLimit       = errors.New("invalid_limit")
	ErrLimitBelowSpend    = errors.New("limit_below_spend")
	ErrInvalidAmount      = errors.New("invalid_amount")
	ErrInvalidReference   = errors.New("invalid_reference")
	ErrCycleNotFound      = errors.New("cycle_not_found")
	ErrSegmentNotFound    = errors.New("segment_not_found")
	ErrCycleNotOpen       = errors.New("cycle_not_open")
	ErrCycleNotPending    = errors.New("cycle_not_pending_approval")
	ErrCycleNotApproved   = errors.New("cycle_not_approved")
	ErrCycleNotFrozen     = errors.New("cycle_not_frozen")
	ErrCycleAlreadyPaid   = errors.New("cycle_already_paid")
	ErrSelfApproval       = errors.New("cycle_self_approval")
	ErrInvalidTransition  = errors.New("invalid_cycle_transition")
)
