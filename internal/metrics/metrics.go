package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors of one snipe run. A nil *Metrics is valid and
// records nothing, so tests and tools can skip instrumentation.
type Metrics struct {
	EventsReceived      prometheus.Counter
	EventsDuplicate     prometheus.Counter
	EventsSkipped       prometheus.Counter
	Classified          *prometheus.CounterVec
	Verifications       *prometheus.CounterVec
	VerificationLatency prometheus.Histogram
	Resolved            prometheus.Counter
	DetectionLag        prometheus.Histogram
	SwapAttempts        *prometheus.CounterVec
	SwapSubmitted       prometheus.Counter
	SwapExhausted       prometheus.Counter
	Reconnects          prometheus.Counter
	BackfilledLogs      prometheus.Counter
}

func New() *Metrics {
	return &Metrics{
		EventsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snipe_events_received_total",
			Help: "Total number of target event logs delivered by the chain client",
		}),
		EventsDuplicate: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snipe_events_duplicate_total",
			Help: "Total number of event logs dropped as already processed",
		}),
		EventsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snipe_events_skipped_total",
			Help: "Total number of event logs skipped as malformed or removed",
		}),
		Classified: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snipe_events_classified_total",
			Help: "Total number of classified events per tier",
		}, []string{"tier"}),
		Verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snipe_origin_verifications_total",
			Help: "Total number of origin verifications per outcome",
		}, []string{"outcome"}),
		VerificationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "snipe_origin_lookup_seconds",
			Help:    "Latency of transaction origin lookups",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.2, 0.5, 1, 2},
		}),
		Resolved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snipe_resolved_total",
			Help: "Number of detections that won resolution (0 or 1 per run)",
		}),
		DetectionLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "snipe_detection_lag_seconds",
			Help:    "Time from log receipt to resolution",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1},
		}),
		SwapAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "snipe_swap_attempts_total",
			Help: "Total number of swap submission attempts per result category",
		}, []string{"category"}),
		SwapSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snipe_swap_submitted_total",
			Help: "Total number of swap transactions accepted by the node",
		}),
		SwapExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snipe_swap_exhausted_total",
			Help: "Total number of dispatches that ran out of attempts",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snipe_chain_reconnects_total",
			Help: "Total number of websocket reconnects",
		}),
		BackfilledLogs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "snipe_chain_backfilled_logs_total",
			Help: "Total number of logs recovered by post-reconnect backfill",
		}),
	}
}

func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		m.EventsReceived, m.EventsDuplicate, m.EventsSkipped, m.Classified,
		m.Verifications, m.VerificationLatency, m.Resolved, m.DetectionLag,
		m.SwapAttempts, m.SwapSubmitted, m.SwapExhausted, m.Reconnects, m.BackfilledLogs,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) IncReceived() {
	if m != nil {
		m.EventsReceived.Inc()
	}
}

func (m *Metrics) IncDuplicate() {
	if m != nil {
		m.EventsDuplicate.Inc()
	}
}

func (m *Metrics) IncSkipped() {
	if m != nil {
		m.EventsSkipped.Inc()
	}
}

func (m *Metrics) IncClassified(tier string) {
	if m != nil {
		m.Classified.WithLabelValues(tier).Inc()
	}
}

func (m *Metrics) ObserveVerification(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(outcome).Inc()
	if seconds >= 0 {
		m.VerificationLatency.Observe(seconds)
	}
}

func (m *Metrics) ObserveResolved(lagSeconds float64) {
	if m == nil {
		return
	}
	m.Resolved.Inc()
	if lagSeconds >= 0 {
		m.DetectionLag.Observe(lagSeconds)
	}
}

func (m *Metrics) IncSwapAttempt(category string) {
	if m != nil {
		m.SwapAttempts.WithLabelValues(category).Inc()
	}
}

func (m *Metrics) IncSwapSubmitted() {
	if m != nil {
		m.SwapSubmitted.Inc()
	}
}

func (m *Metrics) IncSwapExhausted() {
	if m != nil {
		m.SwapExhausted.Inc()
	}
}

func (m *Metrics) IncReconnect() {
	if m != nil {
		m.Reconnects.Inc()
	}
}

func (m *Metrics) AddBackfilled(n int) {
	if m != nil && n > 0 {
		m.BackfilledLogs.Add(float64(n))
	}
}
