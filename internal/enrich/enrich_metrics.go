package enrich

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the enrichment pipeline.
type Metrics struct {
	EnrichmentsTotal   *prometheus.CounterVec
	EnrichmentDuration *prometheus.HistogramVec
	EnrichmentErrors   prometheus.Histogram
	StageDuration      *prometheus.HistogramVec
	StageFailures      *prometheus.CounterVec
	RiskLevelTotal     *prometheus.CounterVec
	RiskScore          prometheus.Histogram
	IntentSourceTotal  *prometheus.CounterVec
	FallbackTotal      *prometheus.CounterVec
	RulesLoaded        prometheus.Gauge
}

// NewMetrics registers and returns pipeline metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EnrichmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sift_enrichments_total",
			Help: "Total enrichment runs by final status.",
		}, []string{"status"}),
		EnrichmentDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sift_enrichment_duration_seconds",
			Help:    "Duration of enrichment runs in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25s
		}, []string{"status"}),
		EnrichmentErrors: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sift_enrichment_stage_errors",
			Help:    "Non-fatal stage errors per enrichment run.",
			Buckets: prometheus.LinearBuckets(0, 1, 5), // 0 .. 4
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sift_stage_duration_seconds",
			Help:    "Duration of individual pipeline stages in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 10), // 10ms .. ~5s
		}, []string{"stage", "outcome"}),
		StageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sift_stage_failures_total",
			Help: "Total stage failures by stage.",
		}, []string{"stage"}),
		RiskLevelTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sift_risk_level_total",
			Help: "Completed enrichments by risk level.",
		}, []string{"level"}),
		RiskScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "sift_risk_score",
			Help:    "Fused risk score distribution.",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11), // 0.0 .. 1.0
		}),
		IntentSourceTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sift_intent_source_total",
			Help: "Intent verdicts by source (rules or external).",
		}, []string{"source"}),
		FallbackTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sift_intent_fallback_total",
			Help: "External-reasoner delegations by outcome.",
		}, []string{"outcome"}),
		RulesLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "sift_rules_loaded",
			Help: "Rules in the active snapshot.",
		}),
	}

	reg.MustRegister(
		m.EnrichmentsTotal,
		m.EnrichmentDuration,
		m.EnrichmentErrors,
		m.StageDuration,
		m.StageFailures,
		m.RiskLevelTotal,
		m.RiskScore,
		m.IntentSourceTotal,
		m.FallbackTotal,
		m.RulesLoaded,
	)

	return m
}

// Hooks returns pipeline hooks that increment the corresponding metrics.
func (m *Metrics) Hooks() Hooks {
	return Hooks{
		OnStage: func(stage, outcome string, seconds float64) {
			m.StageDuration.WithLabelValues(stage, outcome).Observe(seconds)
			if outcome == OutcomeFailure {
				m.StageFailures.WithLabelValues(stage).Inc()
			}
		},
		OnComplete: func(e *CompleteEvent) {
			m.EnrichmentsTotal.WithLabelValues(e.Status).Inc()
			m.EnrichmentDuration.WithLabelValues(e.Status).Observe(e.Duration)
			m.EnrichmentErrors.Observe(float64(e.ErrorCount))
			if e.Status == "success" {
				m.RiskLevelTotal.WithLabelValues(string(e.Level)).Inc()
				m.RiskScore.Observe(e.Score)
			}
			if e.IntentSource != "" {
				m.IntentSourceTotal.WithLabelValues(e.IntentSource).Inc()
			}
		},
	}
}

// OnFallback records an external-reasoner delegation outcome. Wired to
// the classifier's hooks by main.
func (m *Metrics) OnFallback(outcome string) {
	m.FallbackTotal.WithLabelValues(outcome).Inc()
}
