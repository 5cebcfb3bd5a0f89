package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "contentpush"

// Transport label values.
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
	TransportLongPoll  = "long_polling"
)

// Long-poll resolution reasons.
const (
	ReasonUpdate     = "update"
	ReasonTimeout    = "timeout"
	ReasonDisconnect = "disconnect"
	ReasonShutdown   = "shutdown"
)

// Metrics holds the Prometheus collectors for the hub.
type Metrics struct {
	StreamClients       prometheus.Gauge
	SocketClients       prometheus.Gauge
	LongPollClients     prometheus.Gauge
	Ticks               prometheus.Counter
	DeliveryFailures    *prometheus.CounterVec
	LongPollResolutions *prometheus.CounterVec
}

// New creates the hub metrics and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StreamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sse",
			Name:      "active_clients",
			Help:      "Number of open SSE streams.",
		}),
		SocketClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "websocket",
			Name:      "active_clients",
			Help:      "Number of open WebSocket connections.",
		}),
		LongPollClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "long_polling",
			Name:      "pending_clients",
			Help:      "Number of long-poll requests waiting for content.",
		}),
		Ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_total",
			Help:      "Total number of content updates.",
		}),
		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "delivery_failures_total",
			Help:      "Total number of failed deliveries to a client.",
		}, []string{"transport"}),
		LongPollResolutions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "long_polling",
			Name:      "resolutions_total",
			Help:      "Long-poll requests removed from the registry, by reason.",
		}, []string{"reason"}),
	}

	reg.MustRegister(
		m.StreamClients,
		m.SocketClients,
		m.LongPollClients,
		m.Ticks,
		m.DeliveryFailures,
		m.LongPollResolutions,
	)
	return m
}

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves metrics from reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
