package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPRequestDuration tracks HTTP request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "riskgate_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	// RiskDecisionsTotal counts risk assessments by outcome
	RiskDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgate_risk_decisions_total",
			Help: "Total number of risk assessments by decision",
		},
		[]string{"decision"}, // "allow", "verify", "block"
	)

	// RiskScore tracks the distribution of computed risk scores
	RiskScore = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "riskgate_risk_score",
			Help:    "Distribution of computed risk scores",
			Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	// GateDecisionsTotal counts usage-gate outcomes by method
	GateDecisionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "riskgate_gate_decisions_total",
			Help: "Total number of usage gate decisions by method",
		},
		[]string{"method"}, // "free", "free_api", "credits", "payment_required", "blocked"
	)

	// GenerationCostTotal accumulates estimated LLM spend in USD
	GenerationCostTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "riskgate_generation_cost_usd_total",
			Help: "Cumulative estimated LLM generation cost in USD",
		},
	)

	// DetectionDegradedTotal counts assessments that degraded on collector
	// or ledger failure
	DetectionDegradedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "riskgate_detection_degraded_total",
			Help: "Total number of degraded risk assessments",
		},
	)
)

// RegisterMetrics registers all Prometheus metrics
// Metrics are auto-registered via promauto; this hook exists for startup
// symmetry and future manual registration.
func RegisterMetrics() {}
