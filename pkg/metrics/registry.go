// Package metrics wires the daemon's Prometheus collectors: object-store
// size, provider dispatcher queue depth, and file-transfer chunk throughput.
// Metrics are entirely optional — every collector method is a no-op on a
// nil receiver, so code that calls into metrics need not branch on whether
// collection is enabled.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry *prometheus.Registry
	enabled  bool
)

// InitRegistry enables metrics collection and allocates the registry that
// NewCollectors registers against. Call once during startup, before any
// NewCollectors call, when MetricsConfig.Enabled is true.
func InitRegistry() {
	registry = prometheus.NewRegistry()
	enabled = true
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return enabled
}

// GetRegistry returns the active registry, or nil if metrics are disabled.
func GetRegistry() *prometheus.Registry {
	return registry
}

// Handler serves the registry's collected metrics in the Prometheus text
// exposition format. Returns a 404 handler if metrics are disabled.
func Handler() http.Handler {
	if registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
