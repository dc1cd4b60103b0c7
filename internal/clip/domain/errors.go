package domain

import "errors"

var (
	ErrInvalidCreator   = errors.New("invalid_creator")
	ErrInvalidPlatform  = errors.New("invalid_platform")
	ErrInvalidClipURL   = errors.New("invalid_clip_url")
	ErrInvalidViewCount = errors.New("invalid_view_count")
	ErrInvalidClipID    = errors.New("invalid_clip_id")
	ErrNotFound         = errors.New("clip_not_found")
	ErrDuplicateClip    = errors.New("duplicate_clip")
)

// Verification errors. Unparseable URLs are terminal; the others are retried.
var (
	ErrUnparseableURL      = errors.New("unparseable_url")
	ErrUpstreamUnavailable = errors.New("upstream_unavailable")
	ErrVideoNotFound       = errors.New("video_not_found")
)
