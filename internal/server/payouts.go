package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/clipperpay/internal/audit/domain"
	"github.com/smallbiznis/clipperpay/internal/clock"
)

const (
	triggerActionProcess = "process"
	triggerActionFreeze  = "freeze"
)

type triggerPayoutRequest struct {
	Action  string `json:"action"`
	WeekKey string `json:"week_key"`
	Reason  string `json:"reason"`
}

// TriggerPayout runs or freezes a week. Without a week_key it targets the
// last completed week, the one a Friday run would pay.
func (s *Server) TriggerPayout(c *gin.Context) {
	var req triggerPayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	week := strings.TrimSpace(req.WeekKey)
	if week == "" {
		prev, err := clock.PreviousWeekKey(clock.WeekKey(s.clock.Now()))
		if err != nil {
			AbortWithError(c, err)
			return
		}
		week = prev
	}

	ctx := c.Request.Context()
	switch strings.ToLower(strings.TrimSpace(req.Action)) {
	case triggerActionProcess:
		resp, err := s.payoutSvc.RunWeeklyPayout(ctx, operatorActor(c), week)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		s.recordAudit(c, auditdomain.ActionPayoutProcess, auditdomain.TargetCycle, week, nil)
		c.JSON(http.StatusOK, gin.H{"data": resp})
	case triggerActionFreeze:
		reason := strings.TrimSpace(req.Reason)
		if reason == "" {
			reason = "manual freeze"
		}
		resp, err := s.budgetSvc.Freeze(ctx, operatorActor(c), week, reason)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		s.recordAudit(c, auditdomain.ActionCycleFreeze, auditdomain.TargetCycle, week, map[string]any{"reason": reason})
		c.JSON(http.StatusOK, gin.H{"data": resp})
	default:
		AbortWithError(c, ErrInvalidAction)
	}
}

func (s *Server) GetCurrentCycle(c *gin.Context) {
	resp, err := s.dashboard.CurrentCycle(c.Request.Context(), operatorActor(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SubmitCycle(c *gin.Context) {
	week := strings.TrimSpace(c.Param("week"))
	resp, err := s.budgetSvc.Submit(c.Request.Context(), operatorActor(c), week)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.ActionCycleSubmit, auditdomain.TargetCycle, week, nil)

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ApproveCycle(c *gin.Context) {
	week := strings.TrimSpace(c.Param("week"))
	resp, err := s.budgetSvc.Approve(c.Request.Context(), operatorActor(c), week)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.ActionCycleApprove, auditdomain.TargetCycle, week, nil)

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UnfreezeCycle(c *gin.Context) {
	week := strings.TrimSpace(c.Param("week"))
	resp, err := s.budgetSvc.Unfreeze(c.Request.Context(), operatorActor(c), week)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.ActionCycleUnfreeze, auditdomain.TargetCycle, week, nil)

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetWeekPayouts(c *gin.Context) {
	resp, err := s.dashboard.Payouts(c.Request.Context(), operatorActor(c), strings.TrimSpace(c.Param("week")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) RetryPayout(c *gin.Context) {
	week := strings.TrimSpace(c.Param("week"))
	resp, err := s.payoutSvc.RetryFailed(c.Request.Context(), operatorActor(c), week)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.ActionPayoutRetry, auditdomain.TargetCycle, week, nil)

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) PreviewPayout(c *gin.Context) {
	resp, err := s.payoutSvc.Preview(c.Request.Context(), operatorActor(c), strings.TrimSpace(c.Param("week")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
