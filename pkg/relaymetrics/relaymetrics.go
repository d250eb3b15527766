// Package relaymetrics defines the metrics Sink interface the Subscription
// Registry, Buffer, and Coordinator report through, plus a
// prometheus/client_golang implementation generalizing the global-registry
// gauge/counter/histogram layout of the cuemby-warren example's
// pkg/metrics/metrics.go (sourced from the pack, since the teacher's own
// metrics package was not retrieved — see DESIGN.md) to this core's
// connection/subscription/buffer concerns.
package relaymetrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sink is the metrics boundary the relay core reports through. A nil Sink
// is never passed around; callers needing a no-op implementation use Noop.
type Sink interface {
	IncConnections()
	DecConnections()
	IncSubscriptions()
	DecSubscriptions()
	ObserveBufferFlush(coalesced int, d time.Duration)
	ObservePublish(accepted bool, d time.Duration)
}

// Noop discards every observation, used in tests and anywhere metrics are
// not wired up.
type Noop struct{}

func (Noop) IncConnections()                                  {}
func (Noop) DecConnections()                                  {}
func (Noop) IncSubscriptions()                                {}
func (Noop) DecSubscriptions()                                {}
func (Noop) ObserveBufferFlush(coalesced int, d time.Duration) {}
func (Noop) ObservePublish(accepted bool, d time.Duration)     {}

var _ Sink = Noop{}

// Prometheus is a Sink backed by a dedicated prometheus.Registry (not the
// global default registry, so multiple relaycore instances in one process
// — e.g. in tests — don't collide on metric registration).
type Prometheus struct {
	registry *prometheus.Registry

	connections       prometheus.Gauge
	subscriptions     prometheus.Gauge
	bufferFlushes     prometheus.Counter
	bufferCoalesced   prometheus.Histogram
	bufferFlushLatency prometheus.Histogram
	publishTotal      *prometheus.CounterVec
	publishLatency    *prometheus.HistogramVec
}

// NewPrometheus constructs and registers the relay's metric set.
func NewPrometheus() *Prometheus {
	reg := prometheus.NewRegistry()
	p := &Prometheus{
		registry: reg,
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relaycore_connections",
			Help: "Current number of open client connections.",
		}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "relaycore_subscriptions",
			Help: "Current number of open subscriptions across all connections.",
		}),
		bufferFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relaycore_buffer_flushes_total",
			Help: "Total number of replaceable-event buffer flush cycles.",
		}),
		bufferCoalesced: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relaycore_buffer_flush_coalesced_events",
			Help:    "Number of distinct (author,kind,scope) slots coalesced per flush.",
			Buckets: prometheus.LinearBuckets(0, 10, 10),
		}),
		bufferFlushLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "relaycore_buffer_flush_duration_seconds",
			Help:    "Time taken to flush the replaceable-event buffer.",
			Buckets: prometheus.DefBuckets,
		}),
		publishTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relaycore_publish_total",
			Help: "Total number of publish attempts by outcome.",
		}, []string{"accepted"}),
		publishLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "relaycore_publish_duration_seconds",
			Help:    "Time taken to process a publish (save + broadcast).",
			Buckets: prometheus.DefBuckets,
		}, []string{"accepted"}),
	}
	reg.MustRegister(
		p.connections, p.subscriptions, p.bufferFlushes, p.bufferCoalesced,
		p.bufferFlushLatency, p.publishTotal, p.publishLatency,
	)
	return p
}

func (p *Prometheus) IncConnections() { p.connections.Inc() }
func (p *Prometheus) DecConnections() { p.connections.Dec() }

func (p *Prometheus) IncSubscriptions() { p.subscriptions.Inc() }
func (p *Prometheus) DecSubscriptions() { p.subscriptions.Dec() }

func (p *Prometheus) ObserveBufferFlush(coalesced int, d time.Duration) {
	p.bufferFlushes.Inc()
	p.bufferCoalesced.Observe(float64(coalesced))
	p.bufferFlushLatency.Observe(d.Seconds())
}

func (p *Prometheus) ObservePublish(accepted bool, d time.Duration) {
	label := "false"
	if accepted {
		label = "true"
	}
	p.publishTotal.WithLabelValues(label).Inc()
	p.publishLatency.WithLabelValues(label).Observe(d.Seconds())
}

// Handler exposes the relay's dedicated registry over HTTP.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}

var _ Sink = (*Prometheus)(nil)
