package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/clipperpay/internal/audit/domain"
	"github.com/smallbiznis/clipperpay/internal/authorization"
	budgetdomain "github.com/smallbiznis/clipperpay/internal/budget/domain"
	clipdomain "github.com/smallbiznis/clipperpay/internal/clip/domain"
	payoutdomain "github.com/smallbiznis/clipperpay/internal/payout/domain"
	riskdomain "github.com/smallbiznis/clipperpay/internal/risk/domain"
	"github.com/smallbiznis/clipperpay/pkg/db/pagination"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrUnauthorized       = errors.New("unauthorized")
	ErrForbidden          = errors.New("forbidden")
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrInvalidAction      = errors.New("invalid_action")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrRateLimited        = errors.New("rate_limited")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

// classifyErrorForLog feeds the request logger a type and a stable code.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	if vErr := asValidationErrors(err); vErr != nil && len(vErr.Errors) > 0 {
		return payload.Type, vErr.Errors[0].Code
	}
	return payload.Type, strings.TrimSpace(err.Error())
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many submissions, retry later",
		}
	case errors.Is(err, ErrUnauthorized),
		errors.Is(err, authorization.ErrInvalidActor):
		return http.StatusUnauthorized, errorPayload{
			Type:    "unauthorized",
			Message: "unauthorized",
		}
	case errors.Is(err, ErrForbidden),
		errors.Is(err, authorization.ErrForbidden):
		return http.StatusForbidden, errorPayload{
			Type:    "forbidden",
			Message: "forbidden",
		}
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: conflictMessage(err),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, clipdomain.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

var validationErrs = []error{
	ErrInvalidRequest,
	ErrInvalidAction,
	clipdomain.ErrInvalidCreator,
	clipdomain.ErrInvalidPlatform,
	clipdomain.ErrInvalidClipURL,
	clipdomain.ErrInvalidViewCount,
	clipdomain.ErrInvalidClipID,
	clipdomain.ErrUnparseableURL,
	budgetdomain.ErrInvalidWeekKey,
	budgetdomain.ErrInvalidSegmentCode,
	budgetdomain.ErrInvalidSegmentName,
	budgetdomain.ErrInvalidLimit,
	budgetdomain.ErrInvalidAmount,
	budgetdomain.ErrInvalidReference,
	riskdomain.ErrInvalidCreator,
	riskdomain.ErrInvalidMode,
	riskdomain.ErrInvalidRPM,
	riskdomain.ErrInvalidReason,
	payoutdomain.ErrInvalidWeekKey,
	pagination.ErrInvalidPageToken,
	auditdomain.ErrInvalidTimeRange,
}

func isValidationError(err error) bool {
	for _, target := range validationErrs {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, clipdomain.ErrDuplicateClip),
		errors.Is(err, budgetdomain.ErrLimitBelowSpend),
		errors.Is(err, budgetdomain.ErrCycleNotOpen),
		errors.Is(err, budgetdomain.ErrCycleNotPending),
		errors.Is(err, budgetdomain.ErrCycleNotApproved),
		errors.Is(err, budgetdomain.ErrCycleNotFrozen),
		errors.Is(err, budgetdomain.ErrCycleAlreadyPaid),
		errors.Is(err, budgetdomain.ErrSelfApproval),
		errors.Is(err, budgetdomain.ErrInvalidTransition),
		errors.Is(err, payoutdomain.ErrRunInProgress),
		errors.Is(err, gorm.ErrDuplicatedKey):
		return true
	default:
		return false
	}
}

// conflictMessage exposes the state error code so operators can tell
// "not approved" from "already running".
func conflictMessage(err error) string {
	for _, target := range []error{
		clipdomain.ErrDuplicateClip,
		budgetdomain.ErrLimitBelowSpend,
		budgetdomain.ErrCycleNotOpen,
		budgetdomain.ErrCycleNotPending,
		budgetdomain.ErrCycleNotApproved,
		budgetdomain.ErrCycleNotFrozen,
		budgetdomain.ErrCycleAlreadyPaid,
		budgetdomain.ErrSelfApproval,
		budgetdomain.ErrInvalidTransition,
		payoutdomain.ErrRunInProgress,
	} {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return "conflict"
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, clipdomain.ErrNotFound),
		errors.Is(err, budgetdomain.ErrCycleNotFound),
		errors.Is(err, budgetdomain.ErrSegmentNotFound),
		errors.Is(err, riskdomain.ErrThrottleMissing),
		errors.Is(err, payoutdomain.ErrRunNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	for _, target := range validationErrs {
		if errors.Is(err, target) {
			return target.Error()
		}
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if code == "unparseable_url" {
		return "clip_url"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "unparseable_url":
		return "clip url does not match the platform"
	default:
		return "invalid value"
	}
}
