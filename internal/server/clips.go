package server

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/clipperpay/internal/audit/domain"
	clipdomain "github.com/smallbiznis/clipperpay/internal/clip/domain"
	"github.com/smallbiznis/clipperpay/pkg/db/pagination"
)

type submitClipRequest struct {
	ClipURL  string `json:"clip_url"`
	Platform string `json:"platform"`
	UserID   string `json:"user_id"`
}

type refreshClipRequest struct {
	ClipID string `json:"clip_id"`
}

type recordViewsRequest struct {
	ViewCount        *int64   `json:"view_count"`
	ClickThroughRate *float64 `json:"click_through_rate"`
}

type clipStatusResponse struct {
	Status          clipdomain.Status `json:"status"`
	ClipID          string            `json:"clip_id"`
	VerifyError     string            `json:"verify_error,omitempty"`
	RejectionReason string            `json:"rejection_reason,omitempty"`
}

func newClipStatusResponse(clip *clipdomain.Clip) clipStatusResponse {
	return clipStatusResponse{
		Status:          clip.Status,
		ClipID:          clip.ID.String(),
		RejectionReason: clip.RejectionReason,
	}
}

// SubmitClip stores the clip as pending and returns before any platform call.
func (s *Server) SubmitClip(c *gin.Context) {
	var req submitClipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.ClipURL) == "" || strings.TrimSpace(req.Platform) == "" || strings.TrimSpace(req.UserID) == "" {
		AbortWithError(c, newValidationError("request", "required", "clip_url, platform and user_id are required"))
		return
	}
	if res := s.submitLimit.AllowCreator(c.Request.Context(), strings.TrimSpace(req.UserID)); !res.Allowed {
		if res.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
		}
		AbortWithError(c, ErrRateLimited)
		return
	}

	clip, err := s.clipSvc.Submit(c.Request.Context(), clipdomain.SubmitRequest{
		CreatorID: strings.TrimSpace(req.UserID),
		Platform:  strings.TrimSpace(req.Platform),
		ClipURL:   strings.TrimSpace(req.ClipURL),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, newClipStatusResponse(clip))
}

// RefreshClip re-verifies a clip. A failed platform call leaves the clip
// pending and is reported alongside its status.
func (s *Server) RefreshClip(c *gin.Context) {
	var req refreshClipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	clipID, err := parseSnowflakeID(req.ClipID)
	if err != nil {
		AbortWithError(c, newValidationError("clip_id", "invalid_clip_id", "invalid clip_id"))
		return
	}

	clip, err := s.clipSvc.Refresh(c.Request.Context(), clipID)
	if err != nil && clip != nil &&
		(errors.Is(err, clipdomain.ErrUpstreamUnavailable) || errors.Is(err, clipdomain.ErrVideoNotFound)) {
		resp := newClipStatusResponse(clip)
		resp.VerifyError = err.Error()
		c.JSON(http.StatusAccepted, resp)
		return
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, newClipStatusResponse(clip))
}

func (s *Server) GetCreatorSummary(c *gin.Context) {
	creatorID := strings.TrimSpace(c.Param("id"))
	resp, err := s.dashboard.CreatorSummary(c.Request.Context(), creatorID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCreators(c *gin.Context) {
	resp, err := s.dashboard.ListCreators(c.Request.Context(), operatorActor(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListCreatorClips(c *gin.Context) {
	var page pagination.Pagination
	if err := c.ShouldBindQuery(&page); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.dashboard.CreatorClips(c.Request.Context(), operatorActor(c), clipdomain.ListRequest{
		CreatorID: strings.TrimSpace(c.Param("id")),
		Page:      page,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// RecordClipViews is the manual path for platforms without a view API.
func (s *Server) RecordClipViews(c *gin.Context) {
	clipID, err := parseSnowflakeID(c.Param("id"))
	if err != nil {
		AbortWithError(c, newValidationError("clip_id", "invalid_clip_id", "invalid clip id"))
		return
	}
	var req recordViewsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.ViewCount == nil {
		AbortWithError(c, newValidationError("view_count", "required", "view_count is required"))
		return
	}

	clip, err := s.clipSvc.RecordViewCount(c.Request.Context(), clipdomain.RecordViewsRequest{
		ClipID:           clipID,
		ViewCount:        *req.ViewCount,
		ClickThroughRate: req.ClickThroughRate,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	s.recordAudit(c, auditdomain.ActionClipViews, auditdomain.TargetClip, clipID.String(), map[string]any{
		"view_count": *req.ViewCount,
	})

	c.JSON(http.StatusOK, gin.H{"data": clip})
}
