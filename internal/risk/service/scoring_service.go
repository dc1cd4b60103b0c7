package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/smallbiznis/clipperpay/internal/authorization"
	clipdomain "github.com/smallbiznis/clipperpay/internal/clip/domain"
	"github.com/smallbiznis/clipperpay/internal/clock"
	"github.com/smallbiznis/clipperpay/internal/config"
	"github.com/smallbiznis/clipperpay/internal/observability/logger"
	"github.com/smallbiznis/clipperpay/internal/observability/metrics"
	"github.com/smallbiznis/clipperpay/internal/risk/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ScoringParams struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	Clips clipdomain.Service
	Clock clock.Clock
	Rules *config.PayoutRulesHolder
	Authz authorization.Service
}

type ScoringService struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	clips clipdomain.Service
	clock clock.Clock
	rules *config.PayoutRulesHolder
	authz authorization.Service
}

func NewScoringService(p ScoringParams) domain.ScoringService {
	return &ScoringService{
		db:    p.DB,
		log:   p.Log.Named("risk.scoring"),
		repo:  p.Repo,
		clips: p.Clips,
		clock: p.Clock,
		rules: p.Rules,
		authz: p.Authz,
	}
}

func (s *ScoringService) ScoreCreator(ctx context.Context, actor, creatorID string) (domain.RiskScore, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectRisk, authorization.ActionRiskScore); err != nil {
		return domain.RiskScore{}, err
	}
	creatorID = strings.TrimSpace(creatorID)
	if creatorID == "" {
		return domain.RiskScore{}, domain.ErrInvalidCreator
	}
	score, _, err := s.score(ctx, actor, creatorID)
	return score, err
}

// ScoreAll scores every creator independently; one failure does not stop the rest.
func (s *ScoringService) ScoreAll(ctx context.Context, actor string) (domain.ScoreRunResult, error) {
	if err := s.authz.Authorize(ctx, actor, authorization.ObjectRisk, authorization.ActionRiskScore); err != nil {
		return domain.ScoreRunResult{}, err
	}
	creatorIDs, err := s.clips.ListCreatorIDs(ctx)
	if err != nil {
		return domain.ScoreRunResult{}, err
	}

	var result domain.ScoreRunResult
	var errs []error
	for _, creatorID := range creatorIDs {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		score, throttled, err := s.score(ctx, actor, creatorID)
		if err != nil {
			result.Failed++
			errs = append(errs, fmt.Errorf("creator %s: %w", creatorID, err))
			continue
		}
		result.Scored++
		switch score.Band {
		case domain.BandFlagged:
			result.Flagged++
		case domain.BandHigh:
			result.HighRisk++
		}
		if throttled {
			result.Throttled++
		}
	}
	return result, errors.Join(errs...)
}

func (s *ScoringService) ListScores(ctx context.Context, minScore int) ([]domain.RiskScore, error) {
	return s.repo.ListScores(ctx, s.db, minScore)
}

func (s *ScoringService) score(ctx context.Context, actor, creatorID string) (domain.RiskScore, bool, error) {
	clips, err := s.clips.ListAllByCreator(ctx, creatorID)
	if err != nil {
		return domain.RiskScore{}, false, err
	}
	rules := s.rules.Get()
	assessment := domain.ScoreCreator(clips)
	signals, err := json.Marshal(assessment.Signals)
	if err != nil {
		return domain.RiskScore{}, false, err
	}

	now := s.clock.Now().UTC()
	score := domain.RiskScore{
		CreatorID:          creatorID,
		Score:              assessment.Score,
		Band:               domain.BandFor(assessment.Score, rules.FlagScore, rules.HighRiskScore),
		Signals:            datatypes.JSON(signals),
		TotalClips:         assessment.TotalClips,
		TotalViews:         assessment.TotalViews,
		TotalEarningsCents: assessment.TotalEarningsCents,
		ScoredAt:           now,
	}

	throttled := false
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.repo.UpsertScore(ctx, tx, &score); err != nil {
			return err
		}
		if score.Band != domain.BandHigh {
			return nil
		}
		// existing throttles, manual or automatic, are left untouched
		inserted, err := s.repo.InsertCreatorThrottle(ctx, tx, &domain.CreatorThrottle{
			CreatorID: creatorID,
			Mode:      domain.ThrottleReduced,
			Source:    domain.SourceAuto,
			Reason:    fmt.Sprintf("risk score %d", score.Score),
			Score:     score.Score,
			UpdatedBy: actor,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		throttled = true
		return bumpVersion(ctx, s.repo, tx, s.clock, actor)
	})
	if err != nil {
		return domain.RiskScore{}, false, err
	}

	metrics.Payout().ObserveRiskScore(score.Score)
	log := logger.WithCreator(logger.WithContext(ctx, s.log), creatorID)
	switch {
	case throttled:
		log.Warn("risk.creator.auto_throttled", zap.Int("score", score.Score))
	case score.Band != domain.BandClean:
		log.Info("risk.creator.flagged", zap.Int("score", score.Score), zap.String("band", string(score.Band)))
	}
	return score, throttled, nil
}
