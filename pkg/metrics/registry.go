// Package metrics defines the observation interfaces used by smbc and a
// process-wide Prometheus registry.
//
// Metrics are opt-in. Until InitRegistry is called every constructor returns
// nil, and every helper in this package accepts nil and does nothing, so
// disabled metrics cost a nil check.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	regMu    sync.RWMutex
	registry *prometheus.Registry
)

// InitRegistry enables metrics collection with a fresh registry that also
// carries the Go runtime and process collectors. Calling it again is a no-op.
func InitRegistry() {
	regMu.Lock()
	defer regMu.Unlock()
	if registry != nil {
		return
	}
	registry = prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	regMu.RLock()
	defer regMu.RUnlock()
	return registry != nil
}

// GetRegistry returns the registry, or nil when metrics are disabled.
func GetRegistry() *prometheus.Registry {
	regMu.RLock()
	defer regMu.RUnlock()
	return registry
}

// Handler serves the registry in the Prometheus exposition format.
// It returns 404 for every request when metrics are disabled.
func Handler() http.Handler {
	reg := GetRegistry()
	if reg == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// resetRegistry disables metrics again. Tests only.
func resetRegistry() {
	regMu.Lock()
	registry = nil
	regMu.Unlock()
}
