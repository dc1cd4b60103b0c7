package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/clipperpay/internal/clip/domain"
	"github.com/smallbiznis/clipperpay/internal/clock"
	"github.com/smallbiznis/clipperpay/internal/config"
	"github.com/smallbiznis/clipperpay/internal/observability/logger"
	"github.com/smallbiznis/clipperpay/internal/observability/metrics"
	"github.com/smallbiznis/clipperpay/pkg/db"
	"github.com/smallbiznis/clipperpay/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB          *gorm.DB
	Log         *zap.Logger
	GenID       *snowflake.Node
	Repo        domain.Repository
	Clock       clock.Clock
	Rules       *config.PayoutRulesHolder
	Verifier    domain.Verifier
	Queue       domain.Enqueuer    `optional:"true"`
	Invalidator domain.Invalidator `optional:"true"`
}

type Service struct {
	db          *gorm.DB
	log         *zap.Logger
	genID       *snowflake.Node
	repo        domain.Repository
	clock       clock.Clock
	rules       *config.PayoutRulesHolder
	verifier    domain.Verifier
	queue       domain.Enqueuer
	invalidator domain.Invalidator
}

func New(p Params) domain.Service {
	return &Service{
		db:          p.DB,
		log:         p.Log.Named("clip.service"),
		genID:       p.GenID,
		repo:        p.Repo,
		clock:       p.Clock,
		rules:       p.Rules,
		verifier:    p.Verifier,
		queue:       p.Queue,
		invalidator: p.Invalidator,
	}
}

func (s *Service) Submit(ctx context.Context, req domain.SubmitRequest) (*domain.Clip, error) {
	creatorID := strings.TrimSpace(req.CreatorID)
	if creatorID == "" {
		return nil, domain.ErrInvalidCreator
	}
	platform, ok := domain.ParsePlatform(strings.ToLower(strings.TrimSpace(req.Platform)))
	if !ok {
		return nil, domain.ErrInvalidPlatform
	}
	rawURL := strings.TrimSpace(req.ClipURL)
	if rawURL == "" {
		return nil, domain.ErrInvalidClipURL
	}

	externalID, err := s.verifier.ParseClipURL(platform, rawURL)
	if err != nil {
		metrics.Payout().IncVerification(string(platform), metrics.VerificationRejected)
		return nil, err
	}

	now := s.clock.Now().UTC()
	clip := domain.Clip{
		ID:          s.genID.Generate(),
		CreatorID:   creatorID,
		Platform:    platform,
		ExternalURL: rawURL,
		ExternalID:  externalID,
		ExternalKey: domain.ExternalKey(platform, externalID),
		Status:      domain.StatusPending,
		SubmittedAt: now,
		WeekKey:     clock.WeekKey(now),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.Insert(ctx, s.db, &clip); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, domain.ErrDuplicateClip
		}
		return nil, err
	}

	log := logger.WithCreator(logger.WithContext(ctx, s.log), creatorID)
	log.Info("clip.submitted",
		zap.String("clip_id", clip.ID.String()),
		zap.String("platform", string(platform)),
		zap.String("week_key", clip.WeekKey),
	)
	metrics.Payout().IncVerification(string(platform), metrics.VerificationPending)

	if s.verifier.CanFetch(platform) && s.queue != nil {
		if !s.queue.Enqueue(clip.ID) {
			log.Warn("clip.verify.queue_full", zap.String("clip_id", clip.ID.String()))
		}
	}
	s.invalidate(ctx, creatorID)
	return &clip, nil
}

// Refresh observes the platform view count. On upstream failure the clip is
// returned alongside the error with its status unchanged.
func (s *Service) Refresh(ctx context.Context, clipID snowflake.ID) (*domain.Clip, error) {
	if clipID == 0 {
		return nil, domain.ErrInvalidClipID
	}
	current, err := s.repo.FindByID(ctx, s.db, clipID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, domain.ErrNotFound
	}
	if current.Status == domain.StatusRejected || !s.verifier.CanFetch(current.Platform) {
		return current, nil
	}

	snapshot, fetchErr := s.verifier.FetchViewCount(ctx, current.Platform, current.ExternalID)

	var updated *domain.Clip
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		clip, err := s.repo.FindByIDForUpdate(ctx, tx, clipID)
		if err != nil {
			return err
		}
		if clip == nil {
			return domain.ErrNotFound
		}
		if clip.Status == domain.StatusRejected {
			updated = clip
			return nil
		}
		if fetchErr != nil {
			s.recordFailure(clip, fetchErr)
		} else {
			s.applySnapshot(clip, snapshot)
		}
		if err := s.repo.Save(ctx, tx, clip); err != nil {
			return err
		}
		updated = clip
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.observe(ctx, updated, fetchErr)
	s.invalidate(ctx, updated.CreatorID)
	if fetchErr != nil && updated.Status != domain.StatusRejected {
		return updated, fetchErr
	}
	return updated, nil
}

func (s *Service) RecordViewCount(ctx context.Context, req domain.RecordViewsRequest) (*domain.Clip, error) {
	if req.ClipID == 0 {
		return nil, domain.ErrInvalidClipID
	}
	if req.ViewCount < 0 {
		return nil, domain.ErrInvalidViewCount
	}
	if req.ClickThroughRate != nil && (*req.ClickThroughRate < 0 || *req.ClickThroughRate > 1) {
		return nil, domain.ErrInvalidViewCount
	}

	var updated *domain.Clip
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		clip, err := s.repo.FindByIDForUpdate(ctx, tx, req.ClipID)
		if err != nil {
			return err
		}
		if clip == nil {
			return domain.ErrNotFound
		}
		if clip.Status != domain.StatusRejected {
			s.applySnapshot(clip, domain.ViewSnapshot{
				ViewCount:        req.ViewCount,
				ClickThroughRate: req.ClickThroughRate,
			})
			if err := s.repo.Save(ctx, tx, clip); err != nil {
				return err
			}
		}
		updated = clip
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.observe(ctx, updated, nil)
	s.invalidate(ctx, updated.CreatorID)
	return updated, nil
}

func (s *Service) Get(ctx context.Context, clipID snowflake.ID) (*domain.Clip, error) {
	if clipID == 0 {
		return nil, domain.ErrInvalidClipID
	}
	clip, err := s.repo.FindByID(ctx, s.db, clipID)
	if err != nil {
		return nil, err
	}
	if clip == nil {
		return nil, domain.ErrNotFound
	}
	return clip, nil
}

func (s *Service) List(ctx context.Context, req domain.ListRequest) (*domain.ListResponse, error) {
	creatorID := strings.TrimSpace(req.CreatorID)
	if creatorID == "" {
		return nil, domain.ErrInvalidCreator
	}
	after, err := req.Page.After()
	if err != nil {
		return nil, err
	}
	limit := req.Page.Limit()
	items, err := s.repo.ListByCreator(ctx, s.db, creatorID, after, limit)
	if err != nil {
		return nil, err
	}
	clips, pageInfo := pagination.Trim(items, limit, func(c domain.Clip) int64 { return c.ID.Int64() })
	return &domain.ListResponse{Clips: clips, PageInfo: pageInfo}, nil
}

func (s *Service) ListAllByCreator(ctx context.Context, creatorID string) ([]domain.Clip, error) {
	creatorID = strings.TrimSpace(creatorID)
	if creatorID == "" {
		return nil, domain.ErrInvalidCreator
	}
	return s.repo.ListAllByCreator(ctx, s.db, creatorID)
}

func (s *Service) ListCreatorIDs(ctx context.Context) ([]string, error) {
	return s.repo.ListCreatorIDs(ctx, s.db)
}

func (s *Service) ListDueForRecheck(ctx context.Context, checkedBefore time.Time, limit int) ([]domain.Clip, error) {
	if limit <= 0 {
		limit = pagination.DefaultPageSize
	}
	return s.repo.ListDueForRecheck(ctx, s.db, checkedBefore, limit)
}

func (s *Service) Aggregate(ctx context.Context, creatorID string) (*domain.CreatorAggregate, error) {
	clips, err := s.ListAllByCreator(ctx, creatorID)
	if err != nil {
		return nil, err
	}
	agg := domain.Aggregate(strings.TrimSpace(creatorID), clips, s.clock.Now())
	return &agg, nil
}

// applySnapshot captures the baseline on the first observed count.
func (s *Service) applySnapshot(clip *domain.Clip, snapshot domain.ViewSnapshot) {
	now := s.clock.Now().UTC()
	if !clip.BaselineCaptured {
		clip.BaselineViewCount = snapshot.ViewCount
		clip.BaselineCaptured = true
	}
	clip.ViewCount = snapshot.ViewCount
	if snapshot.ClickThroughRate != nil {
		ctr := *snapshot.ClickThroughRate
		clip.ClickThroughRate = &ctr
	}
	clip.Status = domain.StatusVerified
	if clip.VerifiedAt == nil {
		clip.VerifiedAt = &now
	}
	clip.LastCheckedAt = &now
	clip.LastVerifyError = ""
	clip.IsActivated = clip.NetViews() >= s.rules.Get().ActivationNetViews
	clip.UpdatedAt = now
}

func (s *Service) recordFailure(clip *domain.Clip, fetchErr error) {
	now := s.clock.Now().UTC()
	clip.VerifyAttempts++
	clip.LastCheckedAt = &now
	clip.LastVerifyError = fetchErr.Error()
	clip.UpdatedAt = now

	switch {
	case errors.Is(fetchErr, domain.ErrUnparseableURL):
		clip.Status = domain.StatusRejected
		clip.RejectionReason = domain.ErrUnparseableURL.Error()
	case errors.Is(fetchErr, domain.ErrVideoNotFound) && clip.VerifyAttempts >= s.rules.Get().MaxVerifyAttempts:
		clip.Status = domain.StatusRejected
		clip.RejectionReason = fmt.Sprintf("%s after %d attempts", domain.ErrVideoNotFound, clip.VerifyAttempts)
	}
}

func (s *Service) observe(ctx context.Context, clip *domain.Clip, fetchErr error) {
	log := logger.WithCreator(logger.WithContext(ctx, s.log), clip.CreatorID).With(
		zap.String("clip_id", clip.ID.String()),
		zap.String("platform", string(clip.Platform)),
	)
	switch {
	case clip.Status == domain.StatusRejected:
		metrics.Payout().IncVerification(string(clip.Platform), metrics.VerificationRejected)
		log.Warn("clip.verify.rejected", zap.String("reason", clip.RejectionReason))
	case fetchErr != nil:
		metrics.Payout().IncVerification(string(clip.Platform), metrics.VerificationUnavailable)
		log.Warn("clip.verify.failed", zap.Int("attempts", clip.VerifyAttempts), zap.Error(fetchErr))
	default:
		metrics.Payout().IncVerification(string(clip.Platform), metrics.VerificationVerified)
		log.Info("clip.verify.succeeded",
			zap.Int64("view_count", clip.ViewCount),
			zap.Int64("net_views", clip.NetViews()),
		)
	}
}

func (s *Service) invalidate(ctx context.Context, creatorID string) {
	if s.invalidator != nil {
		s.invalidator.Invalidate(ctx, creatorID)
	}
}
