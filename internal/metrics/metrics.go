// Package metrics exposes frontdesk's Prometheus instruments on a private registry.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"frontdesk/internal/domain"
)

// Metrics holds every instrument. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry
	started  time.Time

	ingested        *prometheus.CounterVec
	malformed       *prometheus.CounterVec
	duplicates      *prometheus.CounterVec
	persistFailures *prometheus.CounterVec
	handshakes      *prometheus.CounterVec
	ingestDuration  *prometheus.HistogramVec
	outbound        *prometheus.CounterVec
	feedClients     prometheus.Gauge
}

// New creates and registers all instruments. withRuntime adds Go and process collectors.
func New(withRuntime bool) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		started:  time.Now(),
		ingested: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontdesk_messages_ingested_total",
			Help: "Messages routed, by channel, intent and priority.",
		}, []string{"channel", "intent", "priority"}),
		malformed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontdesk_units_malformed_total",
			Help: "Message units that could not be normalized.",
		}, []string{"channel"}),
		duplicates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontdesk_units_duplicate_total",
			Help: "Message units skipped because their external id was already seen.",
		}, []string{"channel"}),
		persistFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontdesk_persist_failures_total",
			Help: "Routed messages the persistence collaborator rejected.",
		}, []string{"channel"}),
		handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontdesk_handshakes_total",
			Help: "Webhook verification handshakes answered.",
		}, []string{"channel"}),
		ingestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "frontdesk_ingest_duration_seconds",
			Help:    "Time spent ingesting one webhook delivery.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"channel"}),
		outbound: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "frontdesk_outbound_total",
			Help: "Outbound send attempts, by channel and status.",
		}, []string{"channel", "status"}),
		feedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "frontdesk_feed_clients",
			Help: "Connected live feed clients.",
		}),
	}
	m.registry.MustRegister(
		m.ingested, m.malformed, m.duplicates, m.persistFailures,
		m.handshakes, m.ingestDuration, m.outbound, m.feedClients,
	)
	if withRuntime {
		m.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Uptime returns how long the instruments have existed.
func (m *Metrics) Uptime() time.Duration {
	if m == nil {
		return 0
	}
	return time.Since(m.started)
}

func (m *Metrics) Ingested(ch domain.Channel, intent domain.Intent, p domain.Priority) {
	if m == nil {
		return
	}
	m.ingested.WithLabelValues(string(ch), string(intent), string(p)).Inc()
}

func (m *Metrics) Malformed(ch domain.Channel) {
	if m == nil {
		return
	}
	m.malformed.WithLabelValues(string(ch)).Inc()
}

func (m *Metrics) Duplicate(ch domain.Channel) {
	if m == nil {
		return
	}
	m.duplicates.WithLabelValues(string(ch)).Inc()
}

func (m *Metrics) PersistFailed(ch domain.Channel) {
	if m == nil {
		return
	}
	m.persistFailures.WithLabelValues(string(ch)).Inc()
}

func (m *Metrics) Handshake(ch domain.Channel) {
	if m == nil {
		return
	}
	m.handshakes.WithLabelValues(string(ch)).Inc()
}

func (m *Metrics) IngestDuration(ch domain.Channel, d time.Duration) {
	if m == nil {
		return
	}
	m.ingestDuration.WithLabelValues(string(ch)).Observe(d.Seconds())
}

// Outbound records a send attempt; status is the DeliveryResult status or "failed".
func (m *Metrics) Outbound(ch domain.Channel, status string) {
	if m == nil {
		return
	}
	m.outbound.WithLabelValues(string(ch), status).Inc()
}

// FeedClients sets the connected feed client gauge.
func (m *Metrics) FeedClients(n int) {
	if m == nil {
		return
	}
	m.feedClients.Set(float64(n))
}
