package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	PayoutResultCreated     = "created"
	PayoutResultUpdated     = "updated"
	PayoutResultAlreadyPaid = "already_paid"
	PayoutResultFailed      = "failed"

	RunResultSucceeded = "succeeded"
	RunResultPartial   = "partial"
	RunResultRejected  = "rejected"

	VerificationVerified    = "verified"
	VerificationPending     = "pending"
	VerificationRejected    = "rejected"
	VerificationUnavailable = "upstream_unavailable"
)

// PayoutMetrics tracks the money path: runs, per-creator outcomes, budget pressure.
type PayoutMetrics struct {
	runs               *prometheus.CounterVec
	creatorResults     *prometheus.CounterVec
	paidCents          prometheus.Counter
	deferredCents      prometheus.Counter
	thresholdCrossings *prometheus.CounterVec
	segmentUtilization *prometheus.GaugeVec
	verifications      *prometheus.CounterVec
	throttleActive     prometheus.Gauge
	riskScores         prometheus.Histogram
}

var (
	payoutMetricsOnce sync.Once
	payoutMetrics     *PayoutMetrics
)

// Payout returns the singleton payout metrics registry.
func Payout() *PayoutMetrics {
	return PayoutWithConfig(Config{})
}

func PayoutWithConfig(cfg Config) *PayoutMetrics {
	payoutMetricsOnce.Do(func() {
		payoutMetrics = newPayoutMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return payoutMetrics
}

// ResetPayoutMetricsForTest resets the payout metrics singleton for tests.
func ResetPayoutMetricsForTest() {
	payoutMetricsOnce = sync.Once{}
	payoutMetrics = nil
}

func newPayoutMetrics(registerer prometheus.Registerer, cfg Config) *PayoutMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	constLabels := cfg.constLabels()

	m := &PayoutMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "clipperpay_payout_runs_total",
			Help:        "Weekly payout runs by outcome.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		creatorResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "clipperpay_payout_creator_results_total",
			Help:        "Per-creator payout units of work by outcome.",
			ConstLabels: constLabels,
		}, []string{"result"}),
		paidCents: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "clipperpay_payout_amount_cents_total",
			Help:        "Cents written to payout records.",
			ConstLabels: constLabels,
		}),
		deferredCents: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "clipperpay_payout_deferred_cents_total",
			Help:        "Cents deferred to a later cycle by budget clamps or holds.",
			ConstLabels: constLabels,
		}),
		thresholdCrossings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "clipperpay_budget_threshold_crossings_total",
			Help:        "Budget segment threshold crossings by level.",
			ConstLabels: constLabels,
		}, []string{"segment", "level"}),
		segmentUtilization: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "clipperpay_budget_segment_utilization_ratio",
			Help:        "Spent over weekly limit for the current cycle.",
			ConstLabels: constLabels,
		}, []string{"segment"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "clipperpay_verifications_total",
			Help:        "View verification attempts by platform and result.",
			ConstLabels: constLabels,
		}, []string{"platform", "result"}),
		throttleActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "clipperpay_risk_throttle_active",
			Help:        "1 while the global risk throttle is active.",
			ConstLabels: constLabels,
		}),
		riskScores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "clipperpay_risk_score",
			Help:        "Distribution of creator risk scores.",
			Buckets:     []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
			ConstLabels: constLabels,
		}),
	}

	registerer.MustRegister(
		m.runs,
		m.creatorResults,
		m.paidCents,
		m.deferredCents,
		m.thresholdCrossings,
		m.segmentUtilization,
		m.verifications,
		m.throttleActive,
		m.riskScores,
	)
	return m
}

func (m *PayoutMetrics) IncRun(result string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
}

func (m *PayoutMetrics) IncCreatorResult(result string) {
	if m == nil {
		return
	}
	m.creatorResults.WithLabelValues(result).Inc()
}

func (m *PayoutMetrics) AddPaidCents(cents int64) {
	if m == nil || cents <= 0 {
		return
	}
	m.paidCents.Add(float64(cents))
}

func (m *PayoutMetrics) AddDeferredCents(cents int64) {
	if m == nil || cents <= 0 {
		return
	}
	m.deferredCents.Add(float64(cents))
}

func (m *PayoutMetrics) IncThresholdCrossing(segment, level string) {
	if m == nil {
		return
	}
	m.thresholdCrossings.WithLabelValues(segment, level).Inc()
}

func (m *PayoutMetrics) SetSegmentUtilization(segment string, spent, limit int64) {
	if m == nil || limit <= 0 {
		return
	}
	m.segmentUtilization.WithLabelValues(segment).Set(float64(spent) / float64(limit))
}

func (m *PayoutMetrics) IncVerification(platform, result string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(platform, result).Inc()
}

func (m *PayoutMetrics) SetThrottleActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.throttleActive.Set(1)
		return
	}
	m.throttleActive.Set(0)
}

func (m *PayoutMetrics) ObserveRiskScore(score int) {
	if m == nil {
		return
	}
	m.riskScores.Observe(float64(score))
}
