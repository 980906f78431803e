package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the settlement backend's Prometheus series on a private
// registry. The zero value is a usable no-op, which keeps service
// constructors free of nil checks in tests.
type Metrics struct {
	transitions  *prometheus.CounterVec
	transfers    *prometheus.CounterVec
	outboxDepth  prometheus.Gauge
	sweepRuns    prometheus.Counter
	sweepExpired prometheus.Counter
	sweepSeconds prometheus.Histogram
	feedEvents   *prometheus.CounterVec
	feedDrops    prometheus.Counter
	notifySends  *prometheus.CounterVec
	relayGrants  *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics builds and registers the full collector set under namespace.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "escrow_transitions_total",
				Help:      "Escrow operations by name and result",
			},
			[]string{"operation", "result"},
		),
		transfers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transfers_dispatched_total",
				Help:      "Outbound transfer dispatch attempts by kind and outcome",
			},
			[]string{"kind", "outcome"},
		),
		outboxDepth: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "transfer_outbox_pending",
				Help:      "Transfers waiting for delivery",
			},
		),
		sweepRuns: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "expiry_sweeps_total",
				Help:      "Expiry sweep runs",
			},
		),
		sweepExpired: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "expiry_sweep_expired_total",
				Help:      "Escrows expired by the sweeper",
			},
		),
		sweepSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "expiry_sweep_duration_seconds",
				Help:      "Duration of expiry sweep runs",
				Buckets:   prometheus.DefBuckets,
			},
		),
		feedEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feed_trigger_events_total",
				Help:      "Parametric trigger events observed per asset",
			},
			[]string{"asset"},
		),
		feedDrops: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feed_reconnects_total",
				Help:      "Price feed connection drops followed by a reconnect",
			},
		),
		notifySends: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Settlement notifications by outcome",
			},
			[]string{"outcome"},
		),
		relayGrants: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "relay_funding_requests_total",
				Help:      "Gas sponsorship funding requests by outcome",
			},
			[]string{"outcome"},
		),
	}

	m.registry.MustRegister(
		m.transitions,
		m.transfers,
		m.outboxDepth,
		m.sweepRuns,
		m.sweepExpired,
		m.sweepSeconds,
		m.feedEvents,
		m.feedDrops,
		m.notifySends,
		m.relayGrants,
	)
	return m
}

// Handler exposes the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordTransition counts one escrow operation attempt.
func (m *Metrics) RecordTransition(operation, result string) {
	if m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(operation, result).Inc()
}

// RecordTransferDispatch counts one delivery attempt on the outbox.
func (m *Metrics) RecordTransferDispatch(kind, outcome string) {
	if m.transfers == nil {
		return
	}
	m.transfers.WithLabelValues(kind, outcome).Inc()
}

// SetOutboxDepth publishes the pending-transfer backlog.
func (m *Metrics) SetOutboxDepth(n int) {
	if m.outboxDepth == nil {
		return
	}
	m.outboxDepth.Set(float64(n))
}

// RecordSweep records one expiry sweep run.
func (m *Metrics) RecordSweep(expired int, elapsed time.Duration) {
	if m.sweepRuns == nil {
		return
	}
	m.sweepRuns.Inc()
	m.sweepExpired.Add(float64(expired))
	m.sweepSeconds.Observe(elapsed.Seconds())
}

// RecordTriggerEvent counts one observed parametric trigger per asset.
func (m *Metrics) RecordTriggerEvent(asset string) {
	if m.feedEvents == nil {
		return
	}
	m.feedEvents.WithLabelValues(asset).Inc()
}

// RecordFeedReconnect counts one dropped and re-established feed connection.
func (m *Metrics) RecordFeedReconnect() {
	if m.feedDrops == nil {
		return
	}
	m.feedDrops.Inc()
}

// RecordNotification counts one notification attempt.
func (m *Metrics) RecordNotification(outcome string) {
	if m.notifySends == nil {
		return
	}
	m.notifySends.WithLabelValues(outcome).Inc()
}

// RecordRelayFunding counts one sponsorship funding decision.
func (m *Metrics) RecordRelayFunding(outcome string) {
	if m.relayGrants == nil {
		return
	}
	m.relayGrants.WithLabelValues(outcome).Inc()
}
