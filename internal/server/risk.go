package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/clipperpay/internal/audit/domain"
	riskdomain "github.com/smallbiznis/clipperpay/internal/risk/domain"
)

type globalThrottleRequest struct {
	RPMOverrideCents *int64 `json:"rpm_override_cents"`
	Reason           string `json:"reason"`
}

type creatorThrottleRequest struct {
	Mode     string `json:"mode"`
	RPMCents *int64 `json:"rpm_cents"`
	Reason   string `json:"reason"`
}

func (s *Server) GetRiskTable(c *gin.Context) {
	minScore, err := parseOptionalInt(c.Query("min_score"))
	if err != nil {
		AbortWithError(c, newValidationError("min_score", "invalid_min_score", "invalid min_score"))
		return
	}
	floor := 0
	if minScore != nil {
		floor = *minScore
	}

	resp, err := s.dashboard.RiskTable(c.Request.Context(), operatorActor(c), floor)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// RunRiskScoring scores every creator now instead of waiting for the scheduler.
func (s *Server) RunRiskScoring(c *gin.Context) {
	resp, err := s.scoringSvc.ScoreAll(c.Request.Context(), operatorActor(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SetGlobalThrottle(c *gin.Context) {
	var req globalThrottleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.throttleSvc.SetGlobal(c.Request.Context(), operatorActor(c), riskdomain.SetGlobalRequest{
		RPMOverrideCents: req.RPMOverrideCents,
		Reason:           strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.ActionThrottleSet, auditdomain.TargetGlobal, "", map[string]any{
		"reason": strings.TrimSpace(req.Reason),
	})

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ClearGlobalThrottle(c *gin.Context) {
	resp, err := s.throttleSvc.ClearGlobal(c.Request.Context(), operatorActor(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.ActionThrottleClear, auditdomain.TargetGlobal, "", nil)

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SetCreatorThrottle(c *gin.Context) {
	var req creatorThrottleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	creatorID := strings.TrimSpace(c.Param("id"))
	mode := riskdomain.ThrottleMode(strings.ToLower(strings.TrimSpace(req.Mode)))
	resp, err := s.throttleSvc.SetCreator(c.Request.Context(), operatorActor(c), riskdomain.SetCreatorRequest{
		CreatorID: creatorID,
		Mode:      mode,
		RPMCents:  req.RPMCents,
		Reason:    strings.TrimSpace(req.Reason),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.ActionCreatorThrottle, auditdomain.TargetCreator, creatorID, map[string]any{
		"mode":   string(mode),
		"reason": strings.TrimSpace(req.Reason),
	})

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ClearCreatorThrottle(c *gin.Context) {
	creatorID := strings.TrimSpace(c.Param("id"))
	if err := s.throttleSvc.ClearCreator(c.Request.Context(), operatorActor(c), creatorID); err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.ActionCreatorUnthrottle, auditdomain.TargetCreator, creatorID, nil)

	c.Status(http.StatusNoContent)
}
