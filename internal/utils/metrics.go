package utils

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector tracks mutation and fan-out activity across the system.
type MetricsCollector struct {
	registry *prometheus.Registry

	mutations        *prometheus.CounterVec
	mutationErrors   *prometheus.CounterVec
	fanoutPushed     prometheus.Counter
	fanoutDropped    prometheus.Counter
	connectedClients prometheus.Gauge
}

func NewMetricsCollector() *MetricsCollector {
	mc := &MetricsCollector{
		registry: prometheus.NewRegistry(),
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_mutations_total",
			Help: "Committed message mutations by operation.",
		}, []string{"operation"}),
		mutationErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_mutation_errors_total",
			Help: "Failed message mutations by operation.",
		}, []string{"operation"}),
		fanoutPushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_fanout_pushed_total",
			Help: "Events handed to a live peer connection.",
		}),
		fanoutDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chat_fanout_dropped_total",
			Help: "Events dropped because the peer had no usable connection.",
		}),
		connectedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "chat_connected_clients",
			Help: "Currently registered websocket clients.",
		}),
	}

	mc.registry.MustRegister(
		mc.mutations,
		mc.mutationErrors,
		mc.fanoutPushed,
		mc.fanoutDropped,
		mc.connectedClients,
	)
	return mc
}

func (mc *MetricsCollector) RecordMutation(operation string) {
	mc.mutations.WithLabelValues(operation).Inc()
}

func (mc *MetricsCollector) RecordMutationError(operation string) {
	mc.mutationErrors.WithLabelValues(operation).Inc()
}

func (mc *MetricsCollector) RecordFanoutPushed() {
	mc.fanoutPushed.Inc()
}

func (mc *MetricsCollector) RecordFanoutDropped() {
	mc.fanoutDropped.Inc()
}

func (mc *MetricsCollector) ClientConnected() {
	mc.connectedClients.Inc()
}

func (mc *MetricsCollector) ClientDisconnected() {
	mc.connectedClients.Dec()
}

// Handler exposes the collector's registry for a /metrics endpoint.
func (mc *MetricsCollector) Handler() http.Handler {
	return promhttp.HandlerFor(mc.registry, promhttp.HandlerOpts{})
}
