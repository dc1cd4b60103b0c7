package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/clipperpay/internal/audit/domain"
	"github.com/smallbiznis/clipperpay/internal/authorization"
	budgetdomain "github.com/smallbiznis/clipperpay/internal/budget/domain"
	clipdomain "github.com/smallbiznis/clipperpay/internal/clip/domain"
	"github.com/smallbiznis/clipperpay/internal/clock"
	"github.com/smallbiznis/clipperpay/internal/observability"
	payoutdomain "github.com/smallbiznis/clipperpay/internal/payout/domain"
	"github.com/smallbiznis/clipperpay/internal/ratelimit"
	"github.com/smallbiznis/clipperpay/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fakeClipService struct {
	clipdomain.Service
	submitted  []clipdomain.SubmitRequest
	submitErr  error
	refreshErr error
	recorded   []clipdomain.RecordViewsRequest
}

func (f *fakeClipService) Submit(_ context.Context, req clipdomain.SubmitRequest) (*clipdomain.Clip, error) {
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	f.submitted = append(f.submitted, req)
	return &clipdomain.Clip{ID: snowflake.ID(42), CreatorID: req.CreatorID, Status: clipdomain.StatusPending}, nil
}

func (f *fakeClipService) Refresh(_ context.Context, id snowflake.ID) (*clipdomain.Clip, error) {
	return &clipdomain.Clip{ID: id, Status: clipdomain.StatusPending}, f.refreshErr
}

func (f *fakeClipService) RecordViewCount(_ context.Context, req clipdomain.RecordViewsRequest) (*clipdomain.Clip, error) {
	f.recorded = append(f.recorded, req)
	return &clipdomain.Clip{ID: req.ClipID, ViewCount: req.ViewCount, Status: clipdomain.StatusVerified}, nil
}

type fakeBudgetService struct {
	budgetdomain.Service
	frozen     []string
	reasons    []string
	approveErr error
}

func (f *fakeBudgetService) Freeze(_ context.Context, actor, weekKey, reason string) (budgetdomain.Cycle, error) {
	f.frozen = append(f.frozen, weekKey)
	f.reasons = append(f.reasons, reason)
	return budgetdomain.Cycle{WeekKey: weekKey, Status: budgetdomain.CycleStatusFrozen, FrozenReason: reason}, nil
}

func (f *fakeBudgetService) Approve(_ context.Context, actor, weekKey string) (budgetdomain.Cycle, error) {
	if f.approveErr != nil {
		return budgetdomain.Cycle{}, f.approveErr
	}
	return budgetdomain.Cycle{WeekKey: weekKey, Status: budgetdomain.CycleStatusApproved, ApprovedBy: actor}, nil
}

type fakePayoutService struct {
	payoutdomain.Processor
	actors []string
	weeks  []string
}

func (f *fakePayoutService) RunWeeklyPayout(_ context.Context, actor, weekKey string) (*payoutdomain.RunSummary, error) {
	f.actors = append(f.actors, actor)
	f.weeks = append(f.weeks, weekKey)
	return &payoutdomain.RunSummary{WeekKey: weekKey, Status: payoutdomain.RunStatusSucceeded, CyclePaid: true}, nil
}

type fakeAuditService struct {
	auditdomain.Service
	recorded []auditdomain.RecordRequest
}

func (f *fakeAuditService) Record(_ context.Context, req auditdomain.RecordRequest) error {
	f.recorded = append(f.recorded, req)
	return nil
}

type testServer struct {
	router  *gin.Engine
	clips   *fakeClipService
	budget  *fakeBudgetService
	payouts *fakePayoutService
	audit   *fakeAuditService
	server  *Server
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ts := &testServer{
		router:  gin.New(),
		clips:   &fakeClipService{},
		budget:  &fakeBudgetService{},
		payouts: &fakePayoutService{},
		audit:   &fakeAuditService{},
	}
	ts.router.Use(ErrorHandlingMiddleware())

	srv := &Server{
		engine:    ts.router,
		clock:     clock.NewFakeClock(time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)),
		authzSvc:  testutil.Authz(t, map[string]string{"fin": "finance", "rhea": "risk", "vic": "viewer"}),
		clipSvc:   ts.clips,
		budgetSvc: ts.budget,
		payoutSvc: ts.payouts,
		auditSvc:  ts.audit,
		log:       zap.NewNop(),
	}
	srv.registerAPIRoutes()
	srv.registerAdminRoutes()
	ts.server = srv
	return ts
}

func (ts *testServer) do(method, path, body, operator string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	if operator != "" {
		req.Header.Set(HeaderOperator, operator)
	}
	resp := httptest.NewRecorder()
	ts.router.ServeHTTP(resp, req)
	return resp
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) errorPayload {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	return body.Error
}

func TestSubmitClipReturnsPendingStatus(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(http.MethodPost, "/api/clips", `{"clip_url":"https://youtu.be/dQw4w9WgXcQ","platform":"youtube","user_id":"alice"}`, "")

	require.Equal(t, http.StatusAccepted, resp.Code)
	var body clipStatusResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, clipdomain.StatusPending, body.Status)
	assert.Equal(t, "42", body.ClipID)
	require.Len(t, ts.clips.submitted, 1)
	assert.Equal(t, "alice", ts.clips.submitted[0].CreatorID)
}

func TestSubmitClipRateLimitedPerCreator(t *testing.T) {
	ts := newTestServer(t)
	ts.server.submitLimit = ratelimit.NewSubmissionLimiterWith(ratelimit.NewLocalBucket(), 1, 1, zap.NewNop())
	body := `{"clip_url":"https://youtu.be/abc123","platform":"youtube","user_id":"alice"}`

	require.Equal(t, http.StatusAccepted, ts.do(http.MethodPost, "/api/clips", body, "").Code)

	resp := ts.do(http.MethodPost, "/api/clips", body, "")
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	assert.NotEmpty(t, resp.Header().Get("Retry-After"))
	assert.Len(t, ts.clips.submitted, 1)
}

func TestSubmitClipMissingFieldsReturns400(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(http.MethodPost, "/api/clips", `{"clip_url":"https://youtu.be/dQw4w9WgXcQ","platform":"youtube"}`, "")

	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "validation_error", decodeError(t, resp).Type)
	assert.Empty(t, ts.clips.submitted)
}

func TestSubmitClipUnparseableURLReturns400(t *testing.T) {
	ts := newTestServer(t)
	ts.clips.submitErr = clipdomain.ErrUnparseableURL

	resp := ts.do(http.MethodPost, "/api/clips", `{"clip_url":"https://example.com/video","platform":"youtube","user_id":"alice"}`, "")

	require.Equal(t, http.StatusBadRequest, resp.Code)
	payload := decodeError(t, resp)
	require.Len(t, payload.Errors, 1)
	assert.Equal(t, "clip_url", payload.Errors[0].Field)
	assert.Equal(t, "unparseable_url", payload.Errors[0].Code)
}

func TestSubmitDuplicateClipReturns409(t *testing.T) {
	ts := newTestServer(t)
	ts.clips.submitErr = clipdomain.ErrDuplicateClip

	resp := ts.do(http.MethodPost, "/api/clips", `{"clip_url":"https://youtu.be/dQw4w9WgXcQ","platform":"youtube","user_id":"alice"}`, "")

	require.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "duplicate_clip", decodeError(t, resp).Message)
}

func TestRefreshClipUpstreamFailureKeepsPending(t *testing.T) {
	ts := newTestServer(t)
	ts.clips.refreshErr = clipdomain.ErrUpstreamUnavailable

	resp := ts.do(http.MethodPost, "/api/clips/refresh", `{"clip_id":"42"}`, "")

	require.Equal(t, http.StatusAccepted, resp.Code)
	var body clipStatusResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	assert.Equal(t, clipdomain.StatusPending, body.Status)
	assert.Equal(t, "upstream_unavailable", body.VerifyError)
}

func TestRefreshClipRejectsBadID(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(http.MethodPost, "/api/clips/refresh", `{"clip_id":"abc"}`, "")

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestAdminRoutesRequireOperator(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(http.MethodPost, "/admin/cycles/2026-W41/approve", ``, "")

	require.Equal(t, http.StatusUnauthorized, resp.Code)
	assert.Equal(t, "unauthorized", decodeError(t, resp).Type)
}

func TestApproveCycleStateErrorReturns409(t *testing.T) {
	ts := newTestServer(t)
	ts.budget.approveErr = budgetdomain.ErrCycleNotPending

	resp := ts.do(http.MethodPost, "/admin/cycles/2026-W41/approve", ``, "fin")

	require.Equal(t, http.StatusConflict, resp.Code)
	assert.Equal(t, "cycle_not_pending_approval", decodeError(t, resp).Message)
}

func TestTriggerPayoutDefaultsToPreviousWeek(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(http.MethodPost, "/api/payouts/trigger", `{"action":"process"}`, "fin")

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, []string{"2026-W41"}, ts.payouts.weeks)
	assert.Equal(t, []string{authorization.OperatorActor("fin")}, ts.payouts.actors)
}

func TestTriggerPayoutFreeze(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(http.MethodPost, "/api/payouts/trigger", `{"action":"freeze","week_key":"2026-W42"}`, "fin")

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, []string{"2026-W42"}, ts.budget.frozen)
	assert.Equal(t, []string{"manual freeze"}, ts.budget.reasons)
	assert.Empty(t, ts.payouts.weeks)

	require.Len(t, ts.audit.recorded, 1)
	entry := ts.audit.recorded[0]
	assert.Equal(t, "operator:fin", entry.Actor)
	assert.Equal(t, auditdomain.ActionCycleFreeze, entry.Action)
	assert.Equal(t, "2026-W42", entry.TargetID)
}

func TestTriggerPayoutRejectsUnknownAction(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(http.MethodPost, "/api/payouts/trigger", `{"action":"explode"}`, "fin")

	require.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Equal(t, "invalid_action", decodeError(t, resp).Errors[0].Code)
	assert.Empty(t, ts.audit.recorded)
}

func TestRecordClipViewsRequiresClipViewsPermission(t *testing.T) {
	ts := newTestServer(t)
	body := `{"view_count":51000}`

	resp := ts.do(http.MethodPost, "/admin/clips/42/views", body, "vic")
	require.Equal(t, http.StatusForbidden, resp.Code)
	assert.Empty(t, ts.clips.recorded)

	resp = ts.do(http.MethodPost, "/admin/clips/42/views", body, "rhea")
	require.Equal(t, http.StatusOK, resp.Code)
	require.Len(t, ts.clips.recorded, 1)
	assert.Equal(t, int64(51000), ts.clips.recorded[0].ViewCount)
}

func TestRecordClipViewsRequiresCount(t *testing.T) {
	ts := newTestServer(t)

	resp := ts.do(http.MethodPost, "/admin/clips/42/views", `{}`, "rhea")

	assert.Equal(t, http.StatusBadRequest, resp.Code)
	assert.Empty(t, ts.clips.recorded)
}

func TestMapErrorStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{err: clipdomain.ErrInvalidPlatform, want: http.StatusBadRequest},
		{err: budgetdomain.ErrInvalidLimit, want: http.StatusBadRequest},
		{err: clipdomain.ErrNotFound, want: http.StatusNotFound},
		{err: payoutdomain.ErrRunNotFound, want: http.StatusNotFound},
		{err: gorm.ErrRecordNotFound, want: http.StatusNotFound},
		{err: payoutdomain.ErrRunInProgress, want: http.StatusConflict},
		{err: budgetdomain.ErrLimitBelowSpend, want: http.StatusConflict},
		{err: authorization.ErrForbidden, want: http.StatusForbidden},
		{err: clipdomain.ErrUpstreamUnavailable, want: http.StatusServiceUnavailable},
		{err: errors.New("boom"), want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			status, _ := mapError(tc.err)
			assert.Equal(t, tc.want, status)
		})
	}
}

func TestNewEngineServesHealthWithRequestID(t *testing.T) {
	engine := NewEngine(observability.Config{Environment: "test"}, nil, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-Id", "req-7")
	resp := httptest.NewRecorder()
	engine.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "req-7", resp.Header().Get("X-Request-Id"))
	assert.JSONEq(t, `{"status":"ok"}`, resp.Body.String())
}
