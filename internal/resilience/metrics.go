package resilience

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "presupuesto"
	metricsSubsystem = "outbound"
)

var (
	// BreakerState is the State value per target.
	BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "breaker_state",
		Help:      "Breaker state per target: 0 closed, 1 open, 2 half-open.",
	}, []string{"target"})
	BreakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "breaker_transitions_total",
		Help:      "Breaker state transitions per target.",
	}, []string{"target", "from", "to"})
	BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "breaker_opened_total",
		Help:      "Times a breaker opened and started rejecting calls.",
	}, []string{"target"})
	// RetryAttempts counts attempts by outcome: ok, retryable or rejected.
	RetryAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "attempts_total",
		Help:      "Outbound HTTP attempts by target and outcome.",
	}, []string{"target", "outcome"})
	AttemptDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "attempt_duration_seconds",
		Help:      "Latency of single outbound attempts, retries excluded.",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"target"})
)

func init() {
	prometheus.MustRegister(BreakerState, BreakerTransitions, BreakerOpenedTotal, RetryAttempts, AttemptDuration)
}

func recordTransition(target string, prev, next State) {
	if next == Open {
		BreakerOpenedTotal.WithLabelValues(target).Inc()
	}
	BreakerState.WithLabelValues(target).Set(float64(next))
	BreakerTransitions.WithLabelValues(target, prev.String(), next.String()).Inc()
}

func recordAttempt(target, outcome string, took time.Duration) {
	RetryAttempts.WithLabelValues(target, outcome).Inc()
	if took > 0 {
		AttemptDuration.WithLabelValues(target).Observe(took.Seconds())
	}
}
