// Package prometheus provides the Prometheus implementations of the
// pkg/metrics interfaces. Import it for its side effect:
//
//	import _ "github.com/marmos91/smbc/pkg/metrics/prometheus"
package prometheus

import (
	"sync"
	"time"

	"github.com/marmos91/smbc/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterConstructors(
		func() metrics.ClientMetrics { return NewClientMetrics() },
		func() metrics.BridgeMetrics { return NewBridgeMetrics() },
	)
}

// latencyBuckets covers local memory backends (sub-millisecond) up to slow
// WAN servers, in milliseconds.
var latencyBuckets = []float64{0.1, 0.5, 1, 5, 10, 50, 100, 500, 1000, 5000, 30000}

// Collectors can only be registered once per registry, while every smbc
// Context asks for its own metrics. Instances are shared per registry.
var (
	instMu       sync.Mutex
	instRegistry *prometheus.Registry
	sharedClient *clientMetrics
	sharedBridge *bridgeMetrics
)

// shared returns the cached instance built by build for the current
// registry, rebuilding everything when the registry changed.
func shared[T any](slot **T, build func(promauto.Factory) *T) *T {
	instMu.Lock()
	defer instMu.Unlock()

	reg := metrics.GetRegistry()
	if reg != instRegistry {
		instRegistry, sharedClient, sharedBridge = reg, nil, nil
	}
	if *slot == nil {
		*slot = build(promauto.With(reg))
	}
	return *slot
}

type clientMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	bytes      *prometheus.CounterVec
	auth       *prometheus.CounterVec
}

// NewClientMetrics creates a Prometheus-backed ClientMetrics.
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewClientMetrics() metrics.ClientMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	return shared(&sharedClient, buildClientMetrics)
}

func buildClientMetrics(f promauto.Factory) *clientMetrics {
	return &clientMetrics{
		operations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smbc_operations_total",
				Help: "Client operations by name, dispatch mode and outcome",
			},
			[]string{"operation", "dispatch", "outcome"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "smbc_operation_duration_milliseconds",
				Help:    "Duration of client operations in milliseconds",
				Buckets: latencyBuckets,
			},
			[]string{"operation", "dispatch"},
		),
		bytes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smbc_bytes_total",
				Help: "Payload bytes transferred by read and write",
			},
			[]string{"operation"},
		),
		auth: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smbc_auth_resolutions_total",
				Help: "Credential resolutions by resolver kind and outcome",
			},
			[]string{"resolver", "outcome"},
		),
	}
}

func (m *clientMetrics) ObserveOperation(op, dispatch string, d time.Duration, err error) {
	m.operations.WithLabelValues(op, dispatch, metrics.Outcome(err)).Inc()
	m.duration.WithLabelValues(op, dispatch).Observe(float64(d.Microseconds()) / 1000.0)
}

func (m *clientMetrics) ObserveBytes(op string, n int) {
	m.bytes.WithLabelValues(op).Add(float64(n))
}

func (m *clientMetrics) ObserveAuth(resolver string, err error) {
	m.auth.WithLabelValues(resolver, metrics.Outcome(err)).Inc()
}
