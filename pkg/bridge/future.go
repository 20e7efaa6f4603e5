package bridge

import (
	"context"
	"sync"
)

// Future is the completion sink of one async job. It is resolved exactly
// once, either with the job's result or with the error that prevented the
// job from running.
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved returns a Future that is already complete.
func Resolved[T any](v T, err error) *Future[T] {
	f := newFuture[T]()
	f.resolve(v, err)
	return f
}

// resolve stores the outcome and wakes waiters. Later calls are ignored and
// report false.
func (f *Future[T]) resolve(v T, err error) bool {
	ok := false
	f.once.Do(func() {
		f.val, f.err = v, err
		close(f.done)
		ok = true
	})
	return ok
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Ready reports whether the result is available without blocking.
func (f *Future[T]) Ready() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Poll returns the result if it is available. ok is false while the job is
// still queued or running.
func (f *Future[T]) Poll() (v T, err error, ok bool) {
	if !f.Ready() {
		return v, nil, false
	}
	return f.val, f.err, true
}

// Await blocks until the job completes or ctx is done.
//
// Giving up on ctx does not cancel the job: an operation already handed to
// the worker runs to completion and its result is dropped.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Result blocks until the job completes.
func (f *Future[T]) Result() (T, error) {
	<-f.done
	return f.val, f.err
}

// Then derives a Future from f. fn runs on a helper goroutine after f
// succeeds; errors from f propagate unchanged.
func Then[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	out := newFuture[U]()
	go func() {
		v, err := f.Result()
		if err != nil {
			var zero U
			out.resolve(zero, err)
			return
		}
		out.resolve(fn(v))
	}()
	return out
}
