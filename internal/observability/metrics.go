package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	ActiveConnections  prometheus.Gauge
	WSMessages         *prometheus.CounterVec
	StoreWrites        *prometheus.CounterVec
	Snapshots          *prometheus.CounterVec
	GenerationRequests *prometheus.CounterVec
	GenerationLatency  *prometheus.HistogramVec
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_connections",
			Help:      "Number of connected to-do list clients.",
		}),
		WSMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ws_messages_total",
			Help:      "WebSocket messages by direction and type.",
		}, []string{"direction", "type"}),
		StoreWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_writes_total",
			Help:      "Document store writes by operation and result.",
		}, []string{"op", "result"}),
		Snapshots: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshots_total",
			Help:      "Snapshot events received by subscriptions, by outcome.",
		}, []string{"outcome"}),
		GenerationRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "generation_requests_total",
			Help:      "Text generation requests by kind and result.",
		}, []string{"kind", "result"}),
		GenerationLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_latency_ms",
			Help:      "Text generation round trip latency in milliseconds.",
			Buckets:   []float64{250, 500, 1000, 2000, 4000, 8000, 16000, 32000},
		}, []string{"kind"}),
	}
}

// ObserveStoreWrite is nil-safe so core components can run without metrics.
func (m *Metrics) ObserveStoreWrite(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.StoreWrites.WithLabelValues(op, result).Inc()
}

func (m *Metrics) ObserveSnapshot(outcome string) {
	if m == nil {
		return
	}
	m.Snapshots.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveGeneration(kind, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.GenerationRequests.WithLabelValues(kind, result).Inc()
	m.GenerationLatency.WithLabelValues(kind).Observe(float64(d.Milliseconds()))
}

func (m *Metrics) ObserveWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ActiveConnections.Inc()
}

func (m *Metrics) ConnectionClosed() {
	if m == nil {
		return
	}
	m.ActiveConnections.Dec()
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
