// Package metrics exposes the Prometheus instrumentation for the server.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequests counts API requests by method, route pattern and status.
	HTTPRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tabsync_http_requests_total",
		Help: "Total HTTP requests processed, by method, route and status code.",
	}, []string{"method", "route", "status"})

	// HTTPDuration observes request latency by route pattern.
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tabsync_http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	// RelayConnections tracks currently open realtime connections.
	RelayConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tabsync_relay_connections",
		Help: "Currently open realtime relay connections.",
	})

	// RelayGroups tracks currently active receipt groups.
	RelayGroups = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tabsync_relay_groups",
		Help: "Currently active relay groups (receipts with open connections).",
	})

	// RelayBroadcasts counts messages fanned out to group siblings.
	RelayBroadcasts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tabsync_relay_broadcasts_total",
		Help: "Messages rebroadcast to relay group siblings.",
	})

	// RelayDropped counts malformed messages dropped by the relay.
	RelayDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tabsync_relay_dropped_messages_total",
		Help: "Malformed relay messages dropped.",
	})
)

// Handler returns the /metrics endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
