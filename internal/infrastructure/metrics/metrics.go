package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "luckperms_rest"

// Metrics holds all Prometheus metrics of the gateway on a private registry.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	AuthRejections  prometheus.Counter
	CacheLookups    *prometheus.CounterVec
	SSEConnections  *prometheus.GaugeVec
	EventsDelivered *prometheus.CounterVec
	MessagesTotal   *prometheus.CounterVec
	RequestTimeouts prometheus.Counter
}

// New creates and registers all metrics, including the Go runtime and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status code",
		}, []string{"method", "route", "status"}),
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method and route pattern",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		AuthRejections: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_rejections_total",
			Help:      "Requests rejected by the API key gate",
		}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Entity cache lookups by holder kind and result (hit or miss)",
		}, []string{"kind", "result"}),
		SSEConnections: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sse_connections",
			Help:      "Open event stream connections by event kind",
		}, []string{"kind"}),
		EventsDelivered: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_delivered_total",
			Help:      "Engine events written to event stream clients by kind",
		}, []string{"kind"}),
		MessagesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messaging_messages_total",
			Help:      "Messaging traffic by transport, message type and direction",
		}, []string{"transport", "type", "direction"}),
		RequestTimeouts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "request_timeouts_total",
			Help:      "Requests answered 503 because the engine did not respond in time",
		}),
	}
}

// Registry returns the private registry, for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveRequest records one finished HTTP request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// IncrementAuthRejections counts one rejected request.
func (m *Metrics) IncrementAuthRejections() {
	m.AuthRejections.Inc()
}

// IncrementRequestTimeouts counts one await timeout.
func (m *Metrics) IncrementRequestTimeouts() {
	m.RequestTimeouts.Inc()
}

// CacheHit implements cache.Observer.
func (m *Metrics) CacheHit(kind string) {
	m.CacheLookups.WithLabelValues(kind, "hit").Inc()
}

// CacheMiss implements cache.Observer.
func (m *Metrics) CacheMiss(kind string) {
	m.CacheLookups.WithLabelValues(kind, "miss").Inc()
}

// ClientConnected and ClientDisconnected track event stream connections.
func (m *Metrics) ClientConnected(kind string) {
	m.SSEConnections.WithLabelValues(kind).Inc()
}

func (m *Metrics) ClientDisconnected(kind string) {
	m.SSEConnections.WithLabelValues(kind).Dec()
}

// EventDelivered counts one event written to one client.
func (m *Metrics) EventDelivered(kind string) {
	m.EventsDelivered.WithLabelValues(kind).Inc()
}

// MessageSent implements messaging.Observer.
func (m *Metrics) MessageSent(transport, msgType string) {
	m.MessagesTotal.WithLabelValues(transport, msgType, "out").Inc()
}

// MessageReceived implements messaging.Observer.
func (m *Metrics) MessageReceived(transport, msgType string) {
	m.MessagesTotal.WithLabelValues(transport, msgType, "in").Inc()
}
