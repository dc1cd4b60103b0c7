package verifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	clipdomain "github.com/smallbiznis/clipperpay/internal/clip/domain"
	"github.com/smallbiznis/clipperpay/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubCounter struct {
	mu    sync.Mutex
	views int64
	err   error
	calls int
}

func (c *stubCounter) VideoViews(context.Context, string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.views, c.err
}

func newTestService(counter ViewCounter) *Service {
	cfg := config.Config{YouTube: config.YouTubeConfig{
		RequestsPerSec:  1000,
		Burst:           100,
		RequestTimeout:  time.Second,
		BreakerTimeout:  time.Hour,
		BreakerFailures: 2,
	}}
	return New(Params{Config: cfg, Log: zap.NewNop(), Counter: counter})
}

func TestFetchViewCountReturnsYouTubeCount(t *testing.T) {
	svc := newTestService(&stubCounter{views: 51000})
	id, err := svc.ParseClipURL(clipdomain.PlatformYouTube, "https://youtu.be/dQw4w9WgXcQ")
	require.NoError(t, err)
	require.True(t, svc.CanFetch(clipdomain.PlatformYouTube))

	snap, err := svc.FetchViewCount(context.Background(), clipdomain.PlatformYouTube, id)
	require.NoError(t, err)
	assert.Equal(t, int64(51000), snap.ViewCount)
}

func TestNonYouTubePlatformsAreNotFetched(t *testing.T) {
	counter := &stubCounter{}
	svc := newTestService(counter)
	id, err := svc.ParseClipURL(clipdomain.PlatformTikTok, "https://www.tiktok.com/@a/video/123")
	require.NoError(t, err)
	assert.Equal(t, "123", id)
	assert.False(t, svc.CanFetch(clipdomain.PlatformTikTok))

	_, err = svc.FetchViewCount(context.Background(), clipdomain.PlatformTikTok, id)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Zero(t, counter.calls)
}

func TestParseClipURLRejectsWrongPlatform(t *testing.T) {
	svc := newTestService(&stubCounter{})
	_, err := svc.ParseClipURL(clipdomain.PlatformYouTube, "https://www.tiktok.com/@a/video/123")
	assert.ErrorIs(t, err, ErrUnparseableURL)
}

func TestUpstreamErrorsAreClassified(t *testing.T) {
	counter := &stubCounter{err: errors.New("connection reset")}
	svc := newTestService(counter)
	_, err := svc.FetchViewCount(context.Background(), clipdomain.PlatformYouTube, "dQw4w9WgXcQ")
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	counter := &stubCounter{err: ErrUpstreamUnavailable}
	svc := newTestService(counter)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.FetchViewCount(ctx, clipdomain.PlatformYouTube, "dQw4w9WgXcQ")
		require.ErrorIs(t, err, ErrUpstreamUnavailable)
	}
	_, err := svc.FetchViewCount(ctx, clipdomain.PlatformYouTube, "dQw4w9WgXcQ")
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
	assert.Equal(t, 2, counter.calls)
}

func TestMissingVideoDoesNotTripBreaker(t *testing.T) {
	counter := &stubCounter{err: ErrVideoNotFound}
	svc := newTestService(counter)
	ctx := context.Background()
	for i := 0; i < 4; i++ {
		_, err := svc.FetchViewCount(ctx, clipdomain.PlatformShorts, "dQw4w9WgXcQ")
		assert.ErrorIs(t, err, ErrVideoNotFound)
	}
	assert.Equal(t, 4, counter.calls)
}

func TestUnconfiguredCounterIsUnavailable(t *testing.T) {
	counter, err := NewYouTubeCounter(config.Config{})
	require.NoError(t, err)
	_, err = counter.VideoViews(context.Background(), "dQw4w9WgXcQ")
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

type recordingRefresher struct {
	mu  sync.Mutex
	ids []snowflake.ID
	wg  sync.WaitGroup
}

func (r *recordingRefresher) Refresh(_ context.Context, id snowflake.ID) (*clipdomain.Clip, error) {
	defer r.wg.Done()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, id)
	return &clipdomain.Clip{ID: id, Status: clipdomain.StatusVerified}, nil
}

func TestQueueProcessesEnqueuedClips(t *testing.T) {
	q := NewQueue(config.Config{VerifierWorkers: 2, VerifierQueueSize: 8}, zap.NewNop())
	refresher := &recordingRefresher{}
	refresher.wg.Add(3)
	q.Start(refresher)
	defer func() { require.NoError(t, q.Stop(context.Background())) }()

	for _, id := range []snowflake.ID{1, 2, 3} {
		require.True(t, q.Enqueue(id))
	}
	refresher.wg.Wait()

	refresher.mu.Lock()
	defer refresher.mu.Unlock()
	assert.ElementsMatch(t, []snowflake.ID{1, 2, 3}, refresher.ids)
}

func TestQueueEnqueueDoesNotBlockWhenFull(t *testing.T) {
	q := NewQueue(config.Config{VerifierQueueSize: 1}, zap.NewNop())
	assert.True(t, q.Enqueue(1))
	assert.False(t, q.Enqueue(2))
}
