package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/marmos91/smbc/pkg/smberr"
)

// Dispatch modes used as the "dispatch" label.
const (
	DispatchSync  = "sync"
	DispatchAsync = "async"
)

// ClientMetrics observes operations issued through an smbc Context.
type ClientMetrics interface {
	// ObserveOperation records one completed operation.
	ObserveOperation(op, dispatch string, duration time.Duration, err error)

	// ObserveBytes records payload bytes moved by read or write.
	ObserveBytes(op string, n int)

	// ObserveAuth records a credential resolution for a connection attempt.
	ObserveAuth(resolver string, err error)
}

// BridgeMetrics observes the async bridge worker.
type BridgeMetrics interface {
	SetQueueDepth(n int)
	ObserveQueueWait(op string, wait time.Duration)
	ObserveJob(op string, duration time.Duration, err error)
	RecordTermination(reason string)
}

var (
	newClientMetrics func() ClientMetrics
	newBridgeMetrics func() BridgeMetrics
)

// RegisterConstructors is called by pkg/metrics/prometheus during package
// initialization. The indirection keeps this package free of the
// implementation's imports.
func RegisterConstructors(client func() ClientMetrics, bridge func() BridgeMetrics) {
	newClientMetrics = client
	newBridgeMetrics = bridge
}

// NewClientMetrics returns the Prometheus ClientMetrics, or nil when metrics
// are disabled or no implementation is linked in.
func NewClientMetrics() ClientMetrics {
	if !IsEnabled() || newClientMetrics == nil {
		return nil
	}
	return newClientMetrics()
}

// NewBridgeMetrics returns the Prometheus BridgeMetrics, or nil.
func NewBridgeMetrics() BridgeMetrics {
	if !IsEnabled() || newBridgeMetrics == nil {
		return nil
	}
	return newBridgeMetrics()
}

// Outcome turns an operation result into a low-cardinality label value.
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if smberr.IsValidation(err) {
		return "invalid"
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	var e *smberr.Error
	if errors.As(err, &e) {
		return errnoLabel(e)
	}
	if errors.Is(err, smberr.ErrTerminated) {
		return "terminated"
	}
	return "error"
}

func errnoLabel(e *smberr.Error) string {
	if e.Code == 0 {
		return "error"
	}
	return e.Code.Error()
}

// ObserveOperation is a nil-safe wrapper around ClientMetrics.ObserveOperation.
func ObserveOperation(m ClientMetrics, op, dispatch string, start time.Time, err error) {
	if m != nil {
		m.ObserveOperation(op, dispatch, time.Since(start), err)
	}
}

// ObserveBytes is a nil-safe wrapper around ClientMetrics.ObserveBytes.
func ObserveBytes(m ClientMetrics, op string, n int) {
	if m != nil && n > 0 {
		m.ObserveBytes(op, n)
	}
}

// ObserveAuth is a nil-safe wrapper around ClientMetrics.ObserveAuth.
func ObserveAuth(m ClientMetrics, resolver string, err error) {
	if m != nil {
		m.ObserveAuth(resolver, err)
	}
}
