package service

import (
	"context"
	"strings"

	"github.com/smallbiznis/clipperpay/internal/authorization"
	"github.com/smallbiznis/clipperpay/internal/clock"
	"github.com/smallbiznis/clipperpay/internal/observability/logger"
	"github.com/smallbiznis/clipperpay/internal/observability/metrics"
	"github.com/smallbiznis/clipperpay/internal/risk/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type ThrottleParams struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	Clock clock.Clock
	Authz authorization.Service
}

type ThrottleService struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	clock clock.Clock
	authz authorization.Service
}

func NewThrottleService(p ThrottleParams) domain.ThrottleService {
	return &ThrottleService{
		db:    p.DB,
		log:   p.Log.Named("risk.throttle"),
		repo:  p.Repo,
		clock: p.Clock,
		authz: p.Authz,
	}
}

// Snapshot reads the global row and the creator row in one transaction so
// callers never see a half-applied change.
func (s *ThrottleService) Snapshot(ctx context.Context, creatorID string) (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		global, err := s.repo.GetGlobal(ctx, tx)
		if err != nil {
			return err
		}
		snap.Version = global.Version
		snap.GlobalActive = global.IsActive
		snap.RPMOverrideCents = global.RPMOverrideCents
		snap.GlobalReason = global.Reason

		if creatorID = strings.TrimSpace(creatorID); creatorID != "" {
			creator, err := s.repo.FindCreatorThrottle(ctx, tx, creatorID)
			if err != nil {
				return err
			}
			snap.Creator = creator
		}
		return nil
	})
	return snap, err
}

func (s *ThrottleService) Global(ctx context.Context) (domain.GlobalThrottle, error) {
	state, err := s.repo.GetGlobal(ctx, s.db)
	if err != nil {
		return domain.GlobalThrottle{}, err
	}
	return *state, nil
}

func (s *ThrottleService) SetGlobal(ctx context.Context, actor string, req domain.SetGlobalRequest) (domain.GlobalThrottle, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectRisk, authorization.ActionRiskThrottle); err != nil {
		return domain.GlobalThrottle{}, err
	}
	if req.RPMOverrideCents != nil && *req.RPMOverrideCents < 0 {
		return domain.GlobalThrottle{}, domain.ErrInvalidRPM
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return domain.GlobalThrottle{}, domain.ErrInvalidReason
	}

	var out domain.GlobalThrottle
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state, err := s.repo.LockGlobal(ctx, tx)
		if err != nil {
			return err
		}
		state.IsActive = true
		state.RPMOverrideCents = req.RPMOverrideCents
		state.Reason = reason
		state.UpdatedBy = actor
		state.Version++
		state.UpdatedAt = s.clock.Now().UTC()
		if err := s.repo.SaveGlobal(ctx, tx, state); err != nil {
			return err
		}
		out = *state
		return nil
	})
	if err != nil {
		return domain.GlobalThrottle{}, err
	}

	metrics.Payout().SetThrottleActive(true)
	logger.WithContext(ctx, s.log).Warn("risk.throttle.global_set",
		zap.String("actor", actor),
		zap.String("reason", reason),
		zap.Int64("version", out.Version),
	)
	return out, nil
}

func (s *ThrottleService) ActivateGlobalTx(ctx context.Context, tx *gorm.DB, actor, reason string) (bool, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectRisk, authorization.ActionRiskThrottle); err != nil {
		return false, err
	}
	state, err := s.repo.LockGlobal(ctx, tx)
	if err != nil {
		return false, err
	}
	if state.IsActive {
		return false, nil
	}
	state.IsActive = true
	state.RPMOverrideCents = nil
	state.Reason = reason
	state.UpdatedBy = actor
	state.Version++
	state.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.SaveGlobal(ctx, tx, state); err != nil {
		return false, err
	}

	metrics.Payout().SetThrottleActive(true)
	logger.WithContext(ctx, s.log).Warn("risk.throttle.global_activated",
		zap.String("actor", actor),
		zap.String("reason", reason),
		zap.Int64("version", state.Version),
	)
	return true, nil
}

func (s *ThrottleService) ClearGlobal(ctx context.Context, actor string) (domain.GlobalThrottle, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectRisk, authorization.ActionRiskThrottle); err != nil {
		return domain.GlobalThrottle{}, err
	}

	var out domain.GlobalThrottle
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state, err := s.repo.LockGlobal(ctx, tx)
		if err != nil {
			return err
		}
		state.IsActive = false
		state.RPMOverrideCents = nil
		state.Reason = ""
		state.UpdatedBy = actor
		state.Version++
		state.UpdatedAt = s.clock.Now().UTC()
		if err := s.repo.SaveGlobal(ctx, tx, state); err != nil {
			return err
		}
		out = *state
		return nil
	})
	if err != nil {
		return domain.GlobalThrottle{}, err
	}

	metrics.Payout().SetThrottleActive(false)
	logger.WithContext(ctx, s.log).Info("risk.throttle.global_cleared",
		zap.String("actor", actor),
		zap.Int64("version", out.Version),
	)
	return out, nil
}

func (s *ThrottleService) SetCreator(ctx context.Context, actor string, req domain.SetCreatorRequest) (domain.CreatorThrottle, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectRisk, authorization.ActionRiskThrottle); err != nil {
		return domain.CreatorThrottle{}, err
	}
	creatorID := strings.TrimSpace(req.CreatorID)
	if creatorID == "" {
		return domain.CreatorThrottle{}, domain.ErrInvalidCreator
	}
	switch req.Mode {
	case domain.ThrottleReduced:
		if req.RPMCents != nil && *req.RPMCents < 0 {
			return domain.CreatorThrottle{}, domain.ErrInvalidRPM
		}
	case domain.ThrottleHold:
		req.RPMCents = nil
	default:
		return domain.CreatorThrottle{}, domain.ErrInvalidMode
	}

	now := s.clock.Now().UTC()
	throttle := domain.CreatorThrottle{
		CreatorID: creatorID,
		Mode:      req.Mode,
		RPMCents:  req.RPMCents,
		Source:    domain.SourceManual,
		Reason:    strings.TrimSpace(req.Reason),
		UpdatedBy: actor,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := bumpVersion(ctx, s.repo, tx, s.clock, actor); err != nil {
			return err
		}
		return s.repo.UpsertCreatorThrottle(ctx, tx, &throttle)
	})
	if err != nil {
		return domain.CreatorThrottle{}, err
	}

	logger.WithCreator(logger.WithContext(ctx, s.log), creatorID).Warn("risk.throttle.creator_set",
		zap.String("actor", actor),
		zap.String("mode", string(req.Mode)),
	)
	return throttle, nil
}

func (s *ThrottleService) ClearCreator(ctx context.Context, actor, creatorID string) error {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectRisk, authorization.ActionRiskThrottle); err != nil {
		return err
	}
	creatorID = strings.TrimSpace(creatorID)
	if creatorID == "" {
		return domain.ErrInvalidCreator
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		deleted, err := s.repo.DeleteCreatorThrottle(ctx, tx, creatorID)
		if err != nil {
			return err
		}
		if !deleted {
			return domain.ErrThrottleMissing
		}
		return bumpVersion(ctx, s.repo, tx, s.clock, actor)
	})
	if err != nil {
		return err
	}
	logger.WithCreator(logger.WithContext(ctx, s.log), creatorID).Info("risk.throttle.creator_cleared",
		zap.String("actor", actor),
	)
	return nil
}

func (s *ThrottleService) ListCreatorThrottles(ctx context.Context) ([]domain.CreatorThrottle, error) {
	return s.repo.ListCreatorThrottles(ctx, s.db)
}

// bumpVersion marks a creator-level change on the singleton row.
func bumpVersion(ctx context.Context, repo domain.Repository, tx *gorm.DB, clk clock.Clock, actor string) error {
	state, err := repo.LockGlobal(ctx, tx)
	if err != nil {
		return err
	}
	state.Version++
	state.UpdatedBy = actor
	state.UpdatedAt = clk.Now().UTC()
	return repo.SaveGlobal(ctx, tx, state)
}
