// Package metrics provides Prometheus metrics for the detection pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "clipdetect"

// DetectionMetrics groups the collectors for dispatch, reconciliation,
// backfill and the HTTP surface. A nil *DetectionMetrics is valid and
// records nothing.
type DetectionMetrics struct {
	dispatchTotal      *prometheus.CounterVec
	ticksTotal         prometheus.Counter
	tickDuration       prometheus.Histogram
	inProgress         prometheus.Gauge
	foldsTotal         *prometheus.CounterVec
	probeErrorsTotal   *prometheus.CounterVec
	backfillClipsTotal *prometheus.CounterVec
	httpRequestsTotal  *prometheus.CounterVec
}

// NewDetectionMetrics creates the collectors and registers them on registry.
func NewDetectionMetrics(registry prometheus.Registerer) (*DetectionMetrics, error) {
	m := &DetectionMetrics{
		dispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_total",
				Help:      "Dispatch attempts by outcome",
			},
			[]string{"outcome"}, // outcome: queued, rejected, queue_error, ledger_error
		),
		ticksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_ticks_total",
			Help:      "Completed reconciliation scans",
		}),
		tickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconcile_tick_duration_seconds",
			Help:      "Time spent in one reconciliation scan",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		inProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "reconcile_in_progress",
			Help:      "Records in progress at the start of the last scan",
		}),
		foldsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_folds_total",
				Help:      "Worker results folded into the ledger by terminal status",
			},
			[]string{"status"},
		),
		probeErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reconcile_probe_errors_total",
				Help:      "Result store probes that failed",
			},
			[]string{"kind"}, // kind: store, malformed, ledger
		),
		backfillClipsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backfill_clips_total",
				Help:      "Clips resubmitted by backfill sweeps",
			},
			[]string{"reason"}, // reason: unprocessed, negative, stranded, failed
		),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method and status code",
			},
			[]string{"method", "code"},
		),
	}

	for _, c := range []prometheus.Collector{
		m.dispatchTotal, m.ticksTotal, m.tickDuration, m.inProgress,
		m.foldsTotal, m.probeErrorsTotal, m.backfillClipsTotal, m.httpRequestsTotal,
	} {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *DetectionMetrics) RecordDispatch(outcome string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(outcome).Inc()
}

func (m *DetectionMetrics) RecordTick(d time.Duration, inProgress int) {
	if m == nil {
		return
	}
	m.ticksTotal.Inc()
	m.tickDuration.Observe(d.Seconds())
	m.inProgress.Set(float64(inProgress))
}

func (m *DetectionMetrics) RecordFold(status string) {
	if m == nil {
		return
	}
	m.foldsTotal.WithLabelValues(status).Inc()
}

func (m *DetectionMetrics) RecordProbeError(kind string) {
	if m == nil {
		return
	}
	m.probeErrorsTotal.WithLabelValues(kind).Inc()
}

func (m *DetectionMetrics) RecordBackfill(reason string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.backfillClipsTotal.WithLabelValues(reason).Add(float64(n))
}

func (m *DetectionMetrics) RecordHTTPRequest(method, code string) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, code).Inc()
}

// DispatchCounter exposes the dispatch counter for assertions in tests.
func (m *DetectionMetrics) DispatchCounter() *prometheus.CounterVec {
	return m.dispatchTotal
}

// FoldCounter exposes the fold counter for assertions in tests.
func (m *DetectionMetrics) FoldCounter() *prometheus.CounterVec {
	return m.foldsTotal
}
