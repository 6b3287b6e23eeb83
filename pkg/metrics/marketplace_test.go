package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestSettlementMetricsLabelsBySourceAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewSettlementMetrics(reg)
	m.Observe("webhook", SettlementCreated, 10*time.Millisecond)
	m.Observe("redirect", SettlementAlreadySettled, 5*time.Millisecond)
	m.Observe("redirect", SettlementAlreadySettled, 5*time.Millisecond)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	mf := findMetricFamily(mfs, "tradepost_settlement_outcomes_total")
	if mf == nil {
		t.Fatalf("settlement outcomes not exported")
	}
	if got := counterWithLabels(mf, map[string]string{"source": "redirect", "outcome": SettlementAlreadySettled}); got != 2 {
		t.Fatalf("expected 2 redirect replays, got %f", got)
	}
	if got := counterWithLabels(mf, map[string]string{"source": "webhook", "outcome": SettlementCreated}); got != 1 {
		t.Fatalf("expected 1 webhook creation, got %f", got)
	}
}

func TestOfferMetricsNilSafe(t *testing.T) {
	var m *OfferMetrics
	m.IncTransition("accepted")
	m.AddTransitions("expired", 3)
	m.IncInvalidTransition("accepted")

	reg := prometheus.NewRegistry()
	live := NewOfferMetrics(reg)
	live.AddTransitions("expired", 3)
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "tradepost_offers_transitions_total", "event", "expired"); err != nil || got != 3 {
		t.Fatalf("expected 3 expired transitions, got %f (%v)", got, err)
	}
}

func counterWithLabels(mf *dto.MetricFamily, want map[string]string) float64 {
	for _, metric := range mf.GetMetric() {
		matched := 0
		for _, label := range metric.GetLabel() {
			if want[label.GetName()] == label.GetValue() {
				matched++
			}
		}
		if matched == len(want) {
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}
