// Package server exposes Prometheus instrumentation for the relay.
package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	connectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "minichat_connections_total",
		Help: "WebSocket connections accepted since startup.",
	})
	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "minichat_active_connections",
		Help: "Connections with a live session.",
	})
	broadcastsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "minichat_broadcasts_total",
		Help: "Messages fanned out to a room.",
	})
	deliveryFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "minichat_delivery_failures_total",
		Help: "Per-connection deliveries that failed and evicted the connection.",
	})
	persistDroppedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "minichat_persist_dropped_total",
		Help: "Best-effort store writes dropped because the queue was full.",
	})
)

// MetricsHandler exposes Prometheus metrics at /metrics.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
