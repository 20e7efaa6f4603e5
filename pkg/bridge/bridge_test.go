package bridge

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitTimeout = 5 * time.Second

func startBridge(t *testing.T, cfg Config) (*Bridge, context.CancelFunc) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	b := New(cfg)
	require.NoError(t, b.Start(ctx))
	t.Cleanup(func() {
		cancel()
		b.Stop(waitTimeout)
	})
	return b, cancel
}

func await[T any](t *testing.T, f *Future[T]) (T, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	v, err := f.Await(ctx)
	require.NotErrorIs(t, err, context.DeadlineExceeded, "future did not complete in time")
	return v, err
}

func TestSubmitReturnsResult(t *testing.T) {
	b, _ := startBridge(t, DefaultConfig())

	f := Submit(b, "answer", func(context.Context) (int, error) { return 42, nil })
	v, err := await(t, f)
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	boom := errors.New("boom")
	g := Submit(b, "fail", func(context.Context) (string, error) { return "", boom })
	_, err = await(t, g)
	assert.ErrorIs(t, err, boom)

	st := b.Stats()
	assert.Equal(t, 1, st.Completed)
	assert.Equal(t, 1, st.Failed)
	assert.Equal(t, 0, st.Pending)
	assert.ErrorIs(t, st.LastError, boom)
}

func TestFIFOAndSerialExecution(t *testing.T) {
	b, _ := startBridge(t, Config{QueueSize: 4})

	var (
		mu      sync.Mutex
		order   []int
		running atomic.Int32
		maxSeen atomic.Int32
	)

	futures := make([]*Future[int], 0, 50)
	for i := 0; i < 50; i++ {
		i := i
		futures = append(futures, Submit(b, "step", func(context.Context) (int, error) {
			n := running.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(100 * time.Microsecond)
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			running.Add(-1)
			return i, nil
		}))
	}

	for i, f := range futures {
		v, err := await(t, f)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, order, 50)
	for i, v := range order {
		assert.Equal(t, i, v)
	}
	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestStartTwice(t *testing.T) {
	b, _ := startBridge(t, DefaultConfig())
	assert.ErrorIs(t, b.Start(context.Background()), ErrAlreadyStarted)
	assert.True(t, b.Running())
}

func TestSubmitBeforeStart(t *testing.T) {
	b := New(DefaultConfig())
	f := Submit(b, "early", func(context.Context) (int, error) { return 1, nil })

	assert.True(t, f.Ready())
	_, err := f.Result()
	assert.ErrorIs(t, err, ErrNotStarted)
	assert.True(t, b.Stop(time.Second))
}

func TestPanicTerminatesBridge(t *testing.T) {
	b, _ := startBridge(t, DefaultConfig())

	release := make(chan struct{})
	blocker := Submit(b, "block", func(context.Context) (int, error) {
		<-release
		panic("native crash")
	})
	queued := Submit(b, "queued", func(context.Context) (int, error) { return 1, nil })
	close(release)

	_, err := await(t, blocker)
	assert.ErrorIs(t, err, ErrTerminated)
	assert.Contains(t, err.Error(), "native crash")

	_, err = await(t, queued)
	assert.ErrorIs(t, err, ErrTerminated)

	later := Submit(b, "later", func(context.Context) (int, error) { return 1, nil })
	_, err = await(t, later)
	assert.ErrorIs(t, err, ErrTerminated)

	assert.False(t, b.Running())
	assert.ErrorIs(t, b.Err(), ErrTerminated)
}

func TestGoexitTerminatesBridge(t *testing.T) {
	b, _ := startBridge(t, DefaultConfig())

	release := make(chan struct{})
	exiting := Submit(b, "exit", func(context.Context) (int, error) {
		<-release
		runtime.Goexit()
		return 0, nil
	})
	queued := Submit(b, "queued", func(context.Context) (int, error) { return 1, nil })
	close(release)

	_, err := await(t, exiting)
	assert.ErrorIs(t, err, ErrTerminated)
	assert.Contains(t, err.Error(), "exited the worker")

	_, err = await(t, queued)
	assert.ErrorIs(t, err, ErrTerminated)

	later := Submit(b, "later", func(context.Context) (int, error) { return 1, nil })
	_, err = await(t, later)
	assert.ErrorIs(t, err, ErrTerminated)

	assert.False(t, b.Running())
	assert.True(t, b.Stop(waitTimeout), "worker goroutine must have returned")
}

func TestCancelFailsStuckJobWithinBoundedTime(t *testing.T) {
	b, cancel := startBridge(t, DefaultConfig())

	release := make(chan struct{})
	defer close(release)

	started := make(chan struct{})
	stuck := Submit(b, "stuck", func(context.Context) (int, error) {
		close(started)
		<-release
		return 1, nil
	})
	queued := Submit(b, "queued", func(context.Context) (int, error) { return 2, nil })

	<-started
	cancel()

	_, err := await(t, stuck)
	assert.ErrorIs(t, err, ErrTerminated)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = await(t, queued)
	assert.ErrorIs(t, err, ErrTerminated)

	select {
	case <-b.Terminated():
	case <-time.After(waitTimeout):
		t.Fatal("bridge not terminated")
	}

	after := Submit(b, "after", func(context.Context) (int, error) { return 3, nil })
	_, err = await(t, after)
	assert.ErrorIs(t, err, ErrTerminated)
}

func TestStopFailsQueuedJobs(t *testing.T) {
	b := New(Config{QueueSize: 8})
	require.NoError(t, b.Start(context.Background()))

	release := make(chan struct{})
	started := make(chan struct{})
	running := Submit(b, "running", func(context.Context) (int, error) {
		close(started)
		<-release
		return 1, nil
	})
	queued := Submit(b, "queued", func(context.Context) (int, error) { return 2, nil })
	<-started

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	assert.True(t, b.Stop(waitTimeout))

	_, err := await(t, queued)
	assert.ErrorIs(t, err, ErrTerminated)
	_, err = await(t, running)
	assert.ErrorIs(t, err, ErrTerminated)
}

func TestStopTimeout(t *testing.T) {
	b := New(DefaultConfig())
	require.NoError(t, b.Start(context.Background()))

	release := make(chan struct{})
	defer close(release)
	started := make(chan struct{})
	Submit(b, "slow", func(context.Context) (int, error) {
		close(started)
		<-release
		return 0, nil
	})
	<-started

	assert.False(t, b.Stop(10*time.Millisecond))
}

func TestJobContextCanceledOnTermination(t *testing.T) {
	b := New(DefaultConfig())
	require.NoError(t, b.Start(context.Background()))

	started := make(chan struct{})
	observed := make(chan error, 1)
	Submit(b, "watch", func(ctx context.Context) (int, error) {
		close(started)
		<-ctx.Done()
		observed <- ctx.Err()
		return 0, ctx.Err()
	})
	<-started
	require.True(t, b.Stop(waitTimeout))

	select {
	case err := <-observed:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(waitTimeout):
		t.Fatal("job context not canceled")
	}
}

func TestAwaitTimeoutDoesNotCancelJob(t *testing.T) {
	b, _ := startBridge(t, DefaultConfig())

	release := make(chan struct{})
	f := Submit(b, "slow", func(context.Context) (int, error) {
		<-release
		return 7, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := f.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	close(release)
	v, err := await(t, f)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestSubmitBlocksWhileQueueFull(t *testing.T) {
	b, _ := startBridge(t, Config{QueueSize: 1})

	release := make(chan struct{})
	started := make(chan struct{})
	Submit(b, "hold", func(context.Context) (int, error) {
		close(started)
		<-release
		return 0, nil
	})
	<-started
	Submit(b, "fill", func(context.Context) (int, error) { return 0, nil })

	submitted := make(chan struct{})
	go func() {
		Submit(b, "overflow", func(context.Context) (int, error) { return 0, nil })
		close(submitted)
	}()

	select {
	case <-submitted:
		t.Fatal("submit should block while the queue is full")
	case <-time.After(20 * time.Millisecond):
	}

	close(release)
	select {
	case <-submitted:
	case <-time.After(waitTimeout):
		t.Fatal("submit did not unblock")
	}
}

func TestThen(t *testing.T) {
	b, _ := startBridge(t, DefaultConfig())

	f := Submit(b, "n", func(context.Context) (int, error) { return 20, nil })
	g := Then(f, func(n int) (int, error) { return n + 1, nil })
	v, err := await(t, g)
	require.NoError(t, err)
	assert.Equal(t, 21, v)

	boom := errors.New("boom")
	h := Then(Resolved(0, boom), func(n int) (string, error) { return "unreachable", nil })
	_, err = await(t, h)
	assert.ErrorIs(t, err, boom)
}

func TestResolvedIgnoresSecondResolve(t *testing.T) {
	f := Resolved(1, nil)
	assert.False(t, f.resolve(2, errors.New("late")))
	v, err := f.Result()
	assert.NoError(t, err)
	assert.Equal(t, 1, v)
}
