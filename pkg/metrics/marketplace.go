package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Settlement outcomes.
const (
	SettlementCreated         = "created"
	SettlementAlreadySettled  = "already_settled"
	SettlementConflictReread  = "conflict_reread"
	SettlementMetadataMissing = "metadata_missing"
	SettlementFeeMismatch     = "fee_mismatch"
	SettlementError           = "error"
)

// SettlementMetrics tracks how each settlement attempt resolved.
type SettlementMetrics struct {
	outcomes *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewSettlementMetrics registers the settlement collectors on reg.
func NewSettlementMetrics(reg prometheus.Registerer) *SettlementMetrics {
	if reg == nil {
		return &SettlementMetrics{}
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "settlement",
		Name:      "outcomes_total",
		Help:      "Settlement attempts by trigger source and outcome.",
	}, []string{"source", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "settlement",
		Name:      "duration_seconds",
		Help:      "Duration of settlement attempts in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"source"})
	reg.MustRegister(outcomes, duration)
	return &SettlementMetrics{outcomes: outcomes, duration: duration}
}

// Observe records one settlement attempt.
func (m *SettlementMetrics) Observe(source, outcome string, elapsed time.Duration) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(source), normalizeLabel(outcome)).Inc()
	m.duration.WithLabelValues(normalizeLabel(source)).Observe(elapsed.Seconds())
}

// OfferMetrics counts offer state transitions.
type OfferMetrics struct {
	transitions *prometheus.CounterVec
	rejectedCAS *prometheus.CounterVec
}

// NewOfferMetrics registers the offer collectors on reg.
func NewOfferMetrics(reg prometheus.Registerer) *OfferMetrics {
	if reg == nil {
		return &OfferMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "offers",
		Name:      "transitions_total",
		Help:      "Committed offer transitions by event type.",
	}, []string{"event"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "offers",
		Name:      "invalid_transitions_total",
		Help:      "Offer actions refused because the offer left the expected state.",
	}, []string{"event"})
	reg.MustRegister(transitions, rejected)
	return &OfferMetrics{transitions: transitions, rejectedCAS: rejected}
}

// IncTransition records a committed transition.
func (m *OfferMetrics) IncTransition(event string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(event)).Inc()
}

// AddTransitions records n committed transitions of one kind, e.g. a sweep batch.
func (m *OfferMetrics) AddTransitions(event string, n int) {
	if m == nil || m.transitions == nil || n <= 0 {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(event)).Add(float64(n))
}

// IncInvalidTransition records a CAS miss.
func (m *OfferMetrics) IncInvalidTransition(event string) {
	if m == nil || m.rejectedCAS == nil {
		return
	}
	m.rejectedCAS.WithLabelValues(normalizeLabel(event)).Inc()
}
