// Package bridge runs blocking operations on a single dedicated worker so that
// callers can await them instead of blocking.
//
// A Bridge owns one goroutine locked to its own OS thread and a bounded FIFO
// queue. Jobs execute strictly one at a time, in submission order, which keeps
// the underlying client library's single-threaded state safe. There is no
// worker pool and no parallelism within a Bridge.
//
// Once the worker terminates (Stop, cancellation of the Start context, a
// panic inside a job or a job exiting the goroutine) every queued or running job and every later submission
// fails with an error matching ErrTerminated.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"runtime/debug"
	"sync"
	"time"

	"github.com/marmos91/smbc/internal/logger"
	"github.com/marmos91/smbc/pkg/metrics"
	"github.com/marmos91/smbc/pkg/smberr"
)

var (
	// ErrTerminated is the bridge-unavailable error.
	ErrTerminated = smberr.ErrTerminated

	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("bridge already started")

	// ErrNotStarted is returned for submissions before Start.
	ErrNotStarted = errors.New("bridge not started")
)

// Termination reasons, used in logs and metrics.
const (
	ReasonStopped  = "stopped"
	ReasonCanceled = "canceled"
	ReasonPanic    = "panic"
	ReasonExited   = "exited"
)

// Config holds Bridge configuration.
type Config struct {
	// Name identifies the bridge in logs, usually the owning session ID.
	Name string

	// QueueSize is the maximum number of jobs waiting for the worker.
	// Submissions block while the queue is full.
	// Default: 64
	QueueSize int

	// Metrics receives queue and job observations. Nil disables them.
	Metrics metrics.BridgeMetrics
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{QueueSize: 64}
}

type job struct {
	id       uint64
	op       string
	enqueued time.Time
	run      func(ctx context.Context) error
	fail     func(err error)
}

// Bridge is a single-worker FIFO executor.
type Bridge struct {
	cfg   Config
	queue chan *job

	termCh   chan struct{} // closed on termination
	doneCh   chan struct{} // closed when the worker goroutine returns
	termOnce sync.Once
	cancel   context.CancelFunc

	mu        sync.Mutex
	started   bool
	termErr   error
	seq       uint64
	pending   map[uint64]*job // submitted and not yet finished
	completed int
	failed    int
	lastError error
}

// New creates a Bridge. Call Start to launch the worker.
func New(cfg Config) *Bridge {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}
	return &Bridge{
		cfg:     cfg,
		queue:   make(chan *job, cfg.QueueSize),
		termCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
		pending: make(map[uint64]*job),
	}
}

// Start launches the worker. The worker lives until Stop is called or ctx is
// done; cancelling ctx fails pending jobs immediately even if the worker is
// stuck inside a blocking operation.
//
// Start can succeed only once per Bridge.
func (b *Bridge) Start(ctx context.Context) error {
	wctx, cancel := context.WithCancel(ctx)

	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		cancel()
		return ErrAlreadyStarted
	}
	b.started = true
	b.cancel = cancel
	b.mu.Unlock()

	stopWatch := context.AfterFunc(ctx, func() {
		b.terminate(ReasonCanceled, fmt.Errorf("%w: %w", ErrTerminated, context.Cause(ctx)))
	})

	logger.Debug("Starting async bridge", "bridge", b.cfg.Name, "queue_size", b.cfg.QueueSize)

	ready := make(chan struct{})
	go func() {
		defer stopWatch()
		b.worker(wctx, ready)
	}()
	<-ready
	return nil
}

// Stop terminates the bridge. Jobs still queued fail with ErrTerminated.
// Stop waits up to timeout for a job already running to return and reports
// whether the worker exited in time.
func (b *Bridge) Stop(timeout time.Duration) bool {
	b.mu.Lock()
	started := b.started
	b.mu.Unlock()
	if !started {
		return true
	}

	b.terminate(ReasonStopped, fmt.Errorf("%w: stopped", ErrTerminated))

	select {
	case <-b.doneCh:
		return true
	case <-time.After(timeout):
		logger.Warn("Async bridge stop timed out waiting for running job", "bridge", b.cfg.Name)
		return false
	}
}

// Terminated is closed once the bridge no longer accepts work.
func (b *Bridge) Terminated() <-chan struct{} {
	return b.termCh
}

// Done is closed once the worker goroutine has returned. After termination
// a job that was already running may keep the worker alive until it
// returns.
func (b *Bridge) Done() <-chan struct{} {
	return b.doneCh
}

// Err returns the termination error, or nil while the bridge is usable.
func (b *Bridge) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.termErr
}

// Running reports whether Start succeeded and the bridge has not terminated.
func (b *Bridge) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.started && b.termErr == nil
}

// Stats is a point-in-time snapshot of job counters.
type Stats struct {
	Pending   int
	Completed int
	Failed    int
	LastError error
}

// Stats returns job statistics.
func (b *Bridge) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Pending:   len(b.pending),
		Completed: b.completed,
		Failed:    b.failed,
		LastError: b.lastError,
	}
}

// Submit queues fn for the worker and returns its completion sink.
//
// Submit blocks only while the queue is full. When the bridge is not running
// the returned Future is already failed.
func Submit[T any](b *Bridge, op string, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := newFuture[T]()
	j := &job{
		op: op,
		run: func(ctx context.Context) error {
			v, err := fn(ctx)
			f.resolve(v, err)
			return err
		},
		fail: func(err error) {
			var zero T
			f.resolve(zero, err)
		},
	}

	if err := b.enqueue(j); err != nil {
		j.fail(err)
	}
	return f
}

func (b *Bridge) enqueue(j *job) error {
	b.mu.Lock()
	if !b.started {
		b.mu.Unlock()
		return ErrNotStarted
	}
	if b.termErr != nil {
		err := b.termErr
		b.mu.Unlock()
		return err
	}
	b.seq++
	j.id = b.seq
	j.enqueued = time.Now()
	b.pending[j.id] = j
	depth := len(b.pending)
	b.mu.Unlock()

	if m := b.cfg.Metrics; m != nil {
		m.SetQueueDepth(depth)
	}

	select {
	case b.queue <- j:
	case <-b.termCh:
		// terminate already failed j through the pending set.
	}
	return nil
}

// worker runs on a goroutine locked to its own OS thread. The lock is never
// released, so the thread exits with the goroutine and no other goroutine
// ever observes thread-local state left by the client library.
func (b *Bridge) worker(ctx context.Context, ready chan<- struct{}) {
	runtime.LockOSThread()
	defer close(b.doneCh)
	// No-op after Stop or cancellation; covers runtime.Goexit inside a job.
	defer b.terminate(ReasonExited, fmt.Errorf("%w: worker exited", ErrTerminated))
	close(ready)

	for {
		select {
		case <-b.termCh:
			return
		case j := <-b.queue:
			if !b.runJob(ctx, j) {
				return
			}
		}
	}
}

// runJob executes j and reports whether the worker may continue.
func (b *Bridge) runJob(ctx context.Context, j *job) (ok bool) {
	select {
	case <-b.termCh:
		return false
	default:
	}

	start := time.Now()
	if m := b.cfg.Metrics; m != nil {
		m.ObserveQueueWait(j.op, start.Sub(j.enqueued))
	}

	finished := false
	defer func() {
		if finished {
			return
		}
		r := recover()
		if r == nil {
			// The job left the goroutine without returning or panicking.
			logger.Error("Async job exited the worker, terminating bridge",
				"bridge", b.cfg.Name,
				logger.Operation(j.op),
				logger.JobID(j.id))
			b.terminate(ReasonExited, fmt.Errorf("%w: job %q exited the worker", ErrTerminated, j.op))
			ok = false
			return
		}
		logger.Error("Async job panicked, terminating bridge",
			"bridge", b.cfg.Name,
			logger.Operation(j.op),
			logger.JobID(j.id),
			"panic", r,
			"stack", string(debug.Stack()))
		b.terminate(ReasonPanic, fmt.Errorf("%w: job %q panicked: %v", ErrTerminated, j.op, r))
		ok = false
	}()

	err := j.run(ctx)
	b.finish(j, err, time.Since(start))
	finished = true
	return true
}

func (b *Bridge) finish(j *job, err error, d time.Duration) {
	b.mu.Lock()
	if _, ok := b.pending[j.id]; !ok {
		// Already failed by terminate while running.
		b.mu.Unlock()
		return
	}
	delete(b.pending, j.id)
	if err != nil {
		b.failed++
		b.lastError = err
	} else {
		b.completed++
	}
	depth := len(b.pending)
	b.mu.Unlock()

	if m := b.cfg.Metrics; m != nil {
		m.ObserveJob(j.op, d, err)
		m.SetQueueDepth(depth)
	}
	if err != nil {
		logger.Debug("Async job failed", "bridge", b.cfg.Name, logger.Operation(j.op), logger.Err(err))
	}
}

// terminate moves the bridge to its final state and fails every pending job
// with cause. Only the first call has an effect.
func (b *Bridge) terminate(reason string, cause error) {
	b.termOnce.Do(func() {
		b.mu.Lock()
		b.termErr = cause
		pending := b.pending
		b.pending = make(map[uint64]*job)
		b.failed += len(pending)
		close(b.termCh)
		cancel := b.cancel
		b.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		for _, j := range pending {
			j.fail(cause)
		}

		if m := b.cfg.Metrics; m != nil {
			m.RecordTermination(reason)
			m.SetQueueDepth(0)
		}

		if reason == ReasonStopped {
			logger.Debug("Async bridge stopped", "bridge", b.cfg.Name, "failed_pending", len(pending))
		} else {
			logger.Warn("Async bridge terminated",
				"bridge", b.cfg.Name,
				"reason", reason,
				"failed_pending", len(pending),
				logger.Err(cause))
		}
	})
}
