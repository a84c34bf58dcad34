package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRegisterAndCount(t *testing.T) {
	m := New()
	reg := prometheus.NewRegistry()
	if err := m.Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}

	m.IncReceived()
	m.IncReceived()
	m.IncClassified("TRUSTED_EXACT")
	m.IncSwapAttempt("insufficient_funds")
	m.AddBackfilled(3)
	m.AddBackfilled(0)

	if got := testutil.ToFloat64(m.EventsReceived); got != 2 {
		t.Fatalf("received mismatch: got %v want 2", got)
	}
	if got := testutil.ToFloat64(m.Classified.WithLabelValues("TRUSTED_EXACT")); got != 1 {
		t.Fatalf("classified mismatch: got %v want 1", got)
	}
	if got := testutil.ToFloat64(m.SwapAttempts.WithLabelValues("insufficient_funds")); got != 1 {
		t.Fatalf("swap attempts mismatch: got %v want 1", got)
	}
	if got := testutil.ToFloat64(m.BackfilledLogs); got != 3 {
		t.Fatalf("backfilled mismatch: got %v want 3", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.IncReceived()
	m.IncDuplicate()
	m.IncSkipped()
	m.IncClassified("UNVERIFIED")
	m.ObserveVerification("accepted", 0.1)
	m.ObserveResolved(0.01)
	m.IncSwapAttempt("other")
	m.IncSwapSubmitted()
	m.IncSwapExhausted()
	m.IncReconnect()
	m.AddBackfilled(1)
}
