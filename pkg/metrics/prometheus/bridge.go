package prometheus

import (
	"time"

	"github.com/marmos91/smbc/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type bridgeMetrics struct {
	queueDepth   prometheus.Gauge
	queueWait    *prometheus.HistogramVec
	jobs         *prometheus.CounterVec
	jobDuration  *prometheus.HistogramVec
	terminations *prometheus.CounterVec
}

// NewBridgeMetrics creates a Prometheus-backed BridgeMetrics.
// Returns nil if metrics are not enabled.
func NewBridgeMetrics() metrics.BridgeMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	return shared(&sharedBridge, buildBridgeMetrics)
}

func buildBridgeMetrics(f promauto.Factory) *bridgeMetrics {
	return &bridgeMetrics{
		queueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "smbc_bridge_queue_depth",
			Help: "Async jobs submitted and not yet finished",
		}),
		queueWait: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "smbc_bridge_queue_wait_milliseconds",
				Help:    "Time async jobs spent queued before the worker picked them up",
				Buckets: latencyBuckets,
			},
			[]string{"operation"},
		),
		jobs: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smbc_bridge_jobs_total",
				Help: "Async jobs executed by the worker, by outcome",
			},
			[]string{"operation", "outcome"},
		),
		jobDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "smbc_bridge_job_duration_milliseconds",
				Help:    "Execution time of async jobs on the worker",
				Buckets: latencyBuckets,
			},
			[]string{"operation"},
		),
		terminations: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "smbc_bridge_terminations_total",
				Help: "Async worker terminations by reason",
			},
			[]string{"reason"}, // stopped, canceled, panic
		),
	}
}

func (m *bridgeMetrics) SetQueueDepth(n int) {
	m.queueDepth.Set(float64(n))
}

func (m *bridgeMetrics) ObserveQueueWait(op string, wait time.Duration) {
	m.queueWait.WithLabelValues(op).Observe(float64(wait.Microseconds()) / 1000.0)
}

func (m *bridgeMetrics) ObserveJob(op string, d time.Duration, err error) {
	m.jobs.WithLabelValues(op, metrics.Outcome(err)).Inc()
	m.jobDuration.WithLabelValues(op).Observe(float64(d.Microseconds()) / 1000.0)
}

func (m *bridgeMetrics) RecordTermination(reason string) {
	m.terminations.WithLabelValues(reason).Inc()
}
