package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/clipperpay/internal/audit"
	auditdomain "github.com/smallbiznis/clipperpay/internal/audit/domain"
	"github.com/smallbiznis/clipperpay/internal/authorization"
	"github.com/smallbiznis/clipperpay/internal/bonus"
	"github.com/smallbiznis/clipperpay/internal/budget"
	budgetdomain "github.com/smallbiznis/clipperpay/internal/budget/domain"
	"github.com/smallbiznis/clipperpay/internal/cache"
	"github.com/smallbiznis/clipperpay/internal/clip"
	clipdomain "github.com/smallbiznis/clipperpay/internal/clip/domain"
	"github.com/smallbiznis/clipperpay/internal/clock"
	"github.com/smallbiznis/clipperpay/internal/config"
	"github.com/smallbiznis/clipperpay/internal/dashboard"
	"github.com/smallbiznis/clipperpay/internal/observability"
	obsmiddleware "github.com/smallbiznis/clipperpay/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/clipperpay/internal/observability/metrics"
	obstracing "github.com/smallbiznis/clipperpay/internal/observability/tracing"
	"github.com/smallbiznis/clipperpay/internal/payout"
	"github.com/smallbiznis/clipperpay/internal/ratelimit"
	payoutdomain "github.com/smallbiznis/clipperpay/internal/payout/domain"
	"github.com/smallbiznis/clipperpay/internal/risk"
	riskdomain "github.com/smallbiznis/clipperpay/internal/risk/domain"
	"github.com/smallbiznis/clipperpay/internal/verifier"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// DomainModules is every service the HTTP surface and the scheduler share.
var DomainModules = fx.Options(
	cache.Module,
	authorization.Module,
	audit.Module,
	verifier.Module,
	clip.Module,
	risk.Module,
	budget.Module,
	bonus.Module,
	payout.Module,
	dashboard.Module,
	ratelimit.Module,
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(*Server) {}),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics, log *zap.Logger) *gin.Engine {
	if !obsCfg.Debug() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(log, obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	clock       clock.Clock
	authzSvc    authorization.Service
	clipSvc     clipdomain.Service
	budgetSvc   budgetdomain.Service
	throttleSvc riskdomain.ThrottleService
	scoringSvc  riskdomain.ScoringService
	payoutSvc   payoutdomain.Processor
	auditSvc    auditdomain.Service
	dashboard   *dashboard.Service
	submitLimit *ratelimit.SubmissionLimiter
	log         *zap.Logger
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	Clock       clock.Clock
	AuthzSvc    authorization.Service
	ClipSvc     clipdomain.Service
	BudgetSvc   budgetdomain.Service
	ThrottleSvc riskdomain.ThrottleService
	ScoringSvc  riskdomain.ScoringService
	PayoutSvc   payoutdomain.Processor
	AuditSvc    auditdomain.Service
	Dashboard   *dashboard.Service
	SubmitLimit *ratelimit.SubmissionLimiter
	Log         *zap.Logger
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		clock:       p.Clock,
		authzSvc:    p.AuthzSvc,
		clipSvc:     p.ClipSvc,
		budgetSvc:   p.BudgetSvc,
		throttleSvc: p.ThrottleSvc,
		scoringSvc:  p.ScoringSvc,
		payoutSvc:   p.PayoutSvc,
		auditSvc:    p.AuditSvc,
		dashboard:   p.Dashboard,
		submitLimit: p.SubmitLimit,
		log:         p.Log.Named("http.server"),
	}

	svc.registerAPIRoutes()
	svc.registerAdminRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Funnel --------
	api.POST("/clips", s.SubmitClip)
	api.POST("/clips/refresh", s.RefreshClip)
	api.GET("/creators/:id/summary", s.GetCreatorSummary)

	// -------- Payout trigger --------
	api.POST("/payouts/trigger", s.OperatorRequired(), s.TriggerPayout)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")
	admin.Use(s.OperatorRequired())

	// -------- Cycles --------
	admin.GET("/cycles/current", s.GetCurrentCycle)
	admin.POST("/cycles/:week/submit", s.SubmitCycle)
	admin.POST("/cycles/:week/approve", s.ApproveCycle)
	admin.POST("/cycles/:week/unfreeze", s.UnfreezeCycle)

	// -------- Budget --------
	admin.GET("/budget/segments", s.ListSegments)
	admin.POST("/budget/segments", s.UpsertSegment)
	admin.PUT("/budget/segments/:code/limit", s.SetSegmentLimit)
	admin.POST("/budget/segments/:code/spend", s.RecordSegmentSpend)

	// -------- Creators & clips --------
	admin.GET("/creators", s.ListCreators)
	admin.GET("/creators/:id/clips", s.ListCreatorClips)
	admin.POST("/clips/:id/views", s.authorizeAction(authorization.ObjectClip, authorization.ActionClipViews), s.RecordClipViews)

	// -------- Payouts --------
	admin.GET("/payouts/:week", s.GetWeekPayouts)
	admin.POST("/payouts/:week/retry", s.RetryPayout)
	admin.POST("/payouts/:week/preview", s.PreviewPayout)

	// -------- Risk --------
	admin.GET("/risk", s.GetRiskTable)
	admin.POST("/risk/score", s.RunRiskScoring)
	admin.PUT("/risk/throttle", s.SetGlobalThrottle)
	admin.DELETE("/risk/throttle", s.ClearGlobalThrottle)
	admin.PUT("/risk/creators/:id/throttle", s.SetCreatorThrottle)
	admin.DELETE("/risk/creators/:id/throttle", s.ClearCreatorThrottle)

	// -------- Audit --------
	admin.GET("/audit-logs", s.ListAuditLogs)
}
