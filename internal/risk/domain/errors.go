package domain

import "errors"

var (
	ErrInvalidCreator  = errors.New("invalid_creator")
	ErrInvalidMode     = errors.New("invalid_throttle_mode")
	ErrInvalidRPM      = errors.New("invalid_rpm")
	ErrInvalidReason   = errors.New("invalid_reason")
	ErrThrottleMissing = errors.New("throttle_not_found")
)
