package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/clipperpay/internal/audit/domain"
	budgetdomain "github.com/smallbiznis/clipperpay/internal/budget/domain"
)

type upsertSegmentRequest struct {
	Code             string `json:"code"`
	Name             string `json:"name"`
	WeeklyLimitCents *int64 `json:"weekly_limit_cents"`
}

type segmentLimitRequest struct {
	WeeklyLimitCents *int64 `json:"weekly_limit_cents"`
}

type recordSpendRequest struct {
	AmountCents *int64 `json:"amount_cents"`
	Reference   string `json:"reference"`
	WeekKey     string `json:"week_key"`
}

func (s *Server) ListSegments(c *gin.Context) {
	resp, err := s.dashboard.Segments(c.Request.Context(), operatorActor(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpsertSegment(c *gin.Context) {
	var req upsertSegmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.WeeklyLimitCents == nil {
		AbortWithError(c, newValidationError("weekly_limit_cents", "required", "weekly_limit_cents is required"))
		return
	}

	resp, err := s.budgetSvc.UpsertSegment(c.Request.Context(), operatorActor(c), budgetdomain.UpsertSegmentRequest{
		Code:             strings.TrimSpace(req.Code),
		Name:             strings.TrimSpace(req.Name),
		WeeklyLimitCents: *req.WeeklyLimitCents,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.ActionSegmentUpsert, auditdomain.TargetSegment, resp.Code, map[string]any{
		"weekly_limit_cents": resp.WeeklyLimitCents,
	})

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SetSegmentLimit(c *gin.Context) {
	var req segmentLimitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.WeeklyLimitCents == nil {
		AbortWithError(c, newValidationError("weekly_limit_cents", "required", "weekly_limit_cents is required"))
		return
	}

	code := strings.TrimSpace(c.Param("code"))
	resp, err := s.budgetSvc.SetSegmentLimit(c.Request.Context(), operatorActor(c), code, *req.WeeklyLimitCents)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.ActionSegmentLimit, auditdomain.TargetSegment, code, map[string]any{
		"weekly_limit_cents": *req.WeeklyLimitCents,
	})

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// RecordSegmentSpend books spend from other programs against a segment.
// A replayed reference is a no-op reported as duplicate.
func (s *Server) RecordSegmentSpend(c *gin.Context) {
	var req recordSpendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.AmountCents == nil {
		AbortWithError(c, newValidationError("amount_cents", "required", "amount_cents is required"))
		return
	}

	resp, err := s.budgetSvc.RecordSpend(c.Request.Context(), operatorActor(c), budgetdomain.RecordSpendRequest{
		WeekKey:     strings.TrimSpace(req.WeekKey),
		SegmentCode: strings.TrimSpace(c.Param("code")),
		AmountCents: *req.AmountCents,
		Reference:   strings.TrimSpace(req.Reference),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.ActionSegmentSpend, auditdomain.TargetSegment, strings.TrimSpace(c.Param("code")), map[string]any{
		"amount_cents": *req.AmountCents,
		"reference":    strings.TrimSpace(req.Reference),
	})

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
