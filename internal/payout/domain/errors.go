package domain

import "errors"

var (
	ErrInvalidWeekKey = errors.New("invalid_week_key")
	ErrRunInProgress  = errors.New("payout_run_in_progress")
	ErrRunNotFound    = errors.New("payout_run_not_found")
)
