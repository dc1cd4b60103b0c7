package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clipperpay/internal/clip/domain"
	"github.com/smallbiznis/clipperpay/internal/clip/repository"
	"github.com/smallbiznis/clipperpay/internal/clock"
	"github.com/smallbiznis/clipperpay/internal/config"
	"github.com/smallbiznis/clipperpay/internal/testutil"
	"github.com/smallbiznis/clipperpay/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubVerifier struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func (v *stubVerifier) ParseClipURL(platform domain.Platform, rawURL string) (string, error) {
	if platform.IsYouTube() && len(rawURL) > 11 {
		return rawURL[len(rawURL)-11:], nil
	}
	if platform == domain.PlatformTikTok {
		return rawURL, nil
	}
	return "", domain.ErrUnparseableURL
}

func (v *stubVerifier) CanFetch(platform domain.Platform) bool { return platform.IsYouTube() }

func (v *stubVerifier) FetchViewCount(_ context.Context, _ domain.Platform, externalID string) (domain.ViewSnapshot, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.err != nil {
		return domain.ViewSnapshot{}, v.err
	}
	return domain.ViewSnapshot{ViewCount: v.counts[externalID]}, nil
}

func (v *stubVerifier) set(id string, count int64, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.counts[id] = count
	v.err = err
}

type stubQueue struct{ ids []snowflake.ID }

func (q *stubQueue) Enqueue(id snowflake.ID) bool {
	q.ids = append(q.ids, id)
	return true
}

type fixture struct {
	svc      domain.Service
	verifier *stubVerifier
	queue    *stubQueue
	clock    *clock.FakeClock
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	conn := testutil.OpenDB(t, &domain.Clip{})
	rules := config.DefaultPayoutRules()
	rules.MaxVerifyAttempts = 2
	f := fixture{
		verifier: &stubVerifier{counts: map[string]int64{}},
		queue:    &stubQueue{},
		clock:    clock.NewFakeClock(time.Date(2026, 10, 14, 10, 0, 0, 0, time.UTC)),
	}
	f.svc = New(Params{
		DB:       conn,
		Log:      zap.NewNop(),
		GenID:    testutil.Snowflake(t),
		Repo:     repository.Provide(),
		Clock:    f.clock,
		Rules:    config.NewStaticPayoutRules(rules),
		Verifier: f.verifier,
		Queue:    f.queue,
	})
	return f
}

const ytURL = "https://youtu.be/dQw4w9WgXcQ"

func TestSubmitCreatesPendingClipAndQueuesVerification(t *testing.T) {
	f := newFixture(t)
	clip, err := f.svc.Submit(context.Background(), domain.SubmitRequest{CreatorID: "creator-1", Platform: "YouTube", ClipURL: ytURL})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPending, clip.Status)
	assert.Equal(t, "2026-W42", clip.WeekKey)
	assert.Equal(t, "youtube:dQw4w9WgXcQ", clip.ExternalKey)
	assert.Equal(t, []snowflake.ID{clip.ID}, f.queue.ids)
}

func TestSubmitValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Submit(ctx, domain.SubmitRequest{Platform: "youtube", ClipURL: ytURL})
	assert.ErrorIs(t, err, domain.ErrInvalidCreator)
	_, err = f.svc.Submit(ctx, domain.SubmitRequest{CreatorID: "c", Platform: "vimeo", ClipURL: ytURL})
	assert.ErrorIs(t, err, domain.ErrInvalidPlatform)
	_, err = f.svc.Submit(ctx, domain.SubmitRequest{CreatorID: "c", Platform: "youtube"})
	assert.ErrorIs(t, err, domain.ErrInvalidClipURL)
	_, err = f.svc.Submit(ctx, domain.SubmitRequest{CreatorID: "c", Platform: "instagram", ClipURL: "nope"})
	assert.ErrorIs(t, err, domain.ErrUnparseableURL)
}

func TestSubmitRejectsDuplicateAcrossYouTubeSurfaces(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.svc.Submit(ctx, domain.SubmitRequest{CreatorID: "c", Platform: "youtube", ClipURL: ytURL})
	require.NoError(t, err)
	_, err = f.svc.Submit(ctx, domain.SubmitRequest{CreatorID: "other", Platform: "shorts", ClipURL: "https://youtube.com/shorts/dQw4w9WgXcQ"})
	assert.ErrorIs(t, err, domain.ErrDuplicateClip)
}

func TestRefreshCapturesBaselineThenAccruesNetViews(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clip, err := f.svc.Submit(ctx, domain.SubmitRequest{CreatorID: "c", Platform: "youtube", ClipURL: ytURL})
	require.NoError(t, err)

	f.verifier.set("dQw4w9WgXcQ", 1000, nil)
	clip, err = f.svc.Refresh(ctx, clip.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusVerified, clip.Status)
	assert.Equal(t, int64(1000), clip.BaselineViewCount)
	assert.Zero(t, clip.NetViews())
	assert.False(t, clip.IsActivated)

	f.verifier.set("dQw4w9WgXcQ", 51000, nil)
	clip, err = f.svc.Refresh(ctx, clip.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), clip.BaselineViewCount)
	assert.Equal(t, int64(50000), clip.NetViews())
	assert.True(t, clip.IsActivated)
}

func TestRefreshUpstreamFailureKeepsStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clip, err := f.svc.Submit(ctx, domain.SubmitRequest{CreatorID: "c", Platform: "youtube", ClipURL: ytURL})
	require.NoError(t, err)

	f.verifier.set("dQw4w9WgXcQ", 0, domain.ErrUpstreamUnavailable)
	for i := 0; i < 5; i++ {
		clip, err = f.svc.Refresh(ctx, clip.ID)
		assert.ErrorIs(t, err, domain.ErrUpstreamUnavailable)
	}
	require.NotNil(t, clip)
	assert.Equal(t, domain.StatusPending, clip.Status)
	assert.Equal(t, 5, clip.VerifyAttempts)
	assert.Zero(t, clip.ViewCount)
}

func TestRefreshRejectsMissingVideoAfterMaxAttempts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clip, err := f.svc.Submit(ctx, domain.SubmitRequest{CreatorID: "c", Platform: "youtube", ClipURL: ytURL})
	require.NoError(t, err)

	f.verifier.set("dQw4w9WgXcQ", 0, domain.ErrVideoNotFound)
	_, err = f.svc.Refresh(ctx, clip.ID)
	assert.ErrorIs(t, err, domain.ErrVideoNotFound)

	clip, err = f.svc.Refresh(ctx, clip.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, clip.Status)

	f.verifier.set("dQw4w9WgXcQ", 999, nil)
	again, err := f.svc.Refresh(ctx, clip.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, again.Status)
	assert.Zero(t, again.ViewCount)
}

func TestRecordViewCountVerifiesManualPlatforms(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clip, err := f.svc.Submit(ctx, domain.SubmitRequest{CreatorID: "c", Platform: "tiktok", ClipURL: "tt-123"})
	require.NoError(t, err)
	assert.Empty(t, f.queue.ids)

	unchanged, err := f.svc.Refresh(ctx, clip.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, unchanged.Status)

	_, err = f.svc.RecordViewCount(ctx, domain.RecordViewsRequest{ClipID: clip.ID, ViewCount: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidViewCount)

	ctr := 0.03
	_, err = f.svc.RecordViewCount(ctx, domain.RecordViewsRequest{ClipID: clip.ID, ViewCount: 200})
	require.NoError(t, err)
	clip, err = f.svc.RecordViewCount(ctx, domain.RecordViewsRequest{ClipID: clip.ID, ViewCount: 2200, ClickThroughRate: &ctr})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusVerified, clip.Status)
	assert.Equal(t, int64(2000), clip.NetViews())
	require.NotNil(t, clip.ClickThroughRate)
	assert.InDelta(t, 0.03, *clip.ClickThroughRate, 1e-9)
}

func TestListPagesNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var ids []snowflake.ID
	for i := 0; i < 3; i++ {
		clip, err := f.svc.Submit(ctx, domain.SubmitRequest{CreatorID: "c", Platform: "tiktok", ClipURL: "tt-" + string(rune('a'+i))})
		require.NoError(t, err)
		ids = append(ids, clip.ID)
	}

	first, err := f.svc.List(ctx, domain.ListRequest{CreatorID: "c", Page: pagination.Pagination{PageSize: 2}})
	require.NoError(t, err)
	require.Len(t, first.Clips, 2)
	assert.Equal(t, ids[2], first.Clips[0].ID)
	require.True(t, first.PageInfo.HasMore)

	second, err := f.svc.List(ctx, domain.ListRequest{CreatorID: "c", Page: pagination.Pagination{PageSize: 2, PageToken: first.PageInfo.NextPageToken}})
	require.NoError(t, err)
	require.Len(t, second.Clips, 1)
	assert.Equal(t, ids[0], second.Clips[0].ID)
	assert.False(t, second.PageInfo.HasMore)
}

func TestAggregateReadsCurrentRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	clip, err := f.svc.Submit(ctx, domain.SubmitRequest{CreatorID: "c", Platform: "tiktok", ClipURL: "tt-1"})
	require.NoError(t, err)
	_, err = f.svc.RecordViewCount(ctx, domain.RecordViewsRequest{ClipID: clip.ID, ViewCount: 100})
	require.NoError(t, err)
	_, err = f.svc.RecordViewCount(ctx, domain.RecordViewsRequest{ClipID: clip.ID, ViewCount: 600})
	require.NoError(t, err)

	agg, err := f.svc.Aggregate(ctx, "c")
	require.NoError(t, err)
	assert.Equal(t, 1, agg.TotalClips)
	assert.Equal(t, int64(500), agg.NetViews)
	assert.Equal(t, int64(500), agg.ThisWeekViews)
	assert.Equal(t, 1, agg.PostingStreakDays)
}
