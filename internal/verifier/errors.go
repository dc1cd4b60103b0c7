package verifier

import clipdomain "github.com/smallbiznis/clipperpay/internal/clip/domain"

var (
	ErrUnparseableURL      = clipdomain.ErrUnparseableURL
	ErrUpstreamUnavailable = clipdomain.ErrUpstreamUnavailable
	ErrVideoNotFound       = clipdomain.ErrVideoNotFound
)
