package verifier

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	clipdomain "github.com/smallbiznis/clipperpay/internal/clip/domain"
	"github.com/smallbiznis/clipperpay/internal/config"
	"go.uber.org/zap"
)

// Refresher is the clip operation a worker performs per queued id.
type Refresher interface {
	Refresh(ctx context.Context, clipID snowflake.ID) (*clipdomain.Clip, error)
}

// Queue runs clip verification off the request path. Upstream failures are
// not retried here; the recheck job picks the clip up again.
type Queue struct {
	log     *zap.Logger
	items   chan snowflake.ID
	workers int
	timeout time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	started bool
}

func NewQueue(cfg config.Config, log *zap.Logger) *Queue {
	size := cfg.VerifierQueueSize
	if size <= 0 {
		size = 1024
	}
	workers := cfg.VerifierWorkers
	if workers <= 0 {
		workers = 1
	}
	timeout := cfg.YouTube.RequestTimeout * 2
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Queue{
		log:     log.Named("verifier.queue"),
		items:   make(chan snowflake.ID, size),
		workers: workers,
		timeout: timeout,
	}
}

// Enqueue never blocks; it reports false when the buffer is full.
func (q *Queue) Enqueue(clipID snowflake.ID) bool {
	select {
	case q.items <- clipID:
		return true
	default:
		return false
	}
}

func (q *Queue) Start(refresher Refresher) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	q.started = true
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.run(ctx, i, refresher)
	}
	q.log.Info("verifier.queue.started", zap.Int("workers", q.workers))
}

func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return nil
	}
	q.started = false
	q.cancel()
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) run(ctx context.Context, worker int, refresher Refresher) {
	defer q.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case id := <-q.items:
			q.process(ctx, worker, refresher, id)
		}
	}
}

func (q *Queue) process(parent context.Context, worker int, refresher Refresher, id snowflake.ID) {
	ctx, cancel := context.WithTimeout(parent, q.timeout)
	defer cancel()

	clip, err := refresher.Refresh(ctx, id)
	if err != nil {
		fields := []zap.Field{zap.Int("worker", worker), zap.String("clip_id", id.String()), zap.Error(err)}
		if errors.Is(err, ErrUpstreamUnavailable) || errors.Is(err, ErrVideoNotFound) {
			q.log.Warn("verifier.queue.retry_later", fields...)
			return
		}
		q.log.Error("verifier.queue.failed", fields...)
		return
	}
	q.log.Debug("verifier.queue.processed",
		zap.String("clip_id", id.String()),
		zap.String("status", string(clip.Status)),
	)
}

var _ clipdomain.Enqueuer = (*Queue)(nil)
