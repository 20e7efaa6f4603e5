package prometheus

import (
	"errors"
	"syscall"
	"testing"
	"time"

	"github.com/marmos91/smbc/pkg/metrics"
	"github.com/marmos91/smbc/pkg/smberr"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientMetrics(t *testing.T) {
	metrics.InitRegistry()

	m := metrics.NewClientMetrics()
	require.NotNil(t, m)
	// A second Context must not panic on duplicate registration.
	require.NotNil(t, metrics.NewClientMetrics())

	m.ObserveOperation("mkdir", metrics.DispatchAsync, 2*time.Millisecond, nil)
	m.ObserveOperation("mkdir", metrics.DispatchAsync, time.Millisecond, smberr.New("mkdir", "x", syscall.EEXIST))
	m.ObserveBytes("read", 5)
	m.ObserveAuth("table", errors.New("boom"))

	cm := m.(*clientMetrics)
	assert.Equal(t, 1.0, testutil.ToFloat64(cm.operations.WithLabelValues("mkdir", "async", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(cm.operations.WithLabelValues("mkdir", "async", syscall.EEXIST.Error())))
	assert.Equal(t, 5.0, testutil.ToFloat64(cm.bytes.WithLabelValues("read")))
	assert.Equal(t, 1.0, testutil.ToFloat64(cm.auth.WithLabelValues("table", "error")))
}

func TestBridgeMetrics(t *testing.T) {
	metrics.InitRegistry()

	m := metrics.NewBridgeMetrics()
	require.NotNil(t, m)

	m.SetQueueDepth(3)
	m.ObserveQueueWait("stat", time.Millisecond)
	m.ObserveJob("stat", time.Millisecond, nil)
	m.RecordTermination("panic")

	bm := m.(*bridgeMetrics)
	assert.Equal(t, 3.0, testutil.ToFloat64(bm.queueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(bm.jobs.WithLabelValues("stat", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(bm.terminations.WithLabelValues("panic")))
}
