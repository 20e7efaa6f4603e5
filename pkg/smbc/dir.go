package smbc

import (
	"context"
	"fmt"
	"io"
	"iter"
	"sync/atomic"

	"github.com/marmos91/smbc/internal/telemetry"
	"github.com/marmos91/smbc/pkg/bridge"
	"github.com/marmos91/smbc/pkg/invoker"
)

// Dir is an open directory, share list or workgroup list.
type Dir struct {
	c      *Context
	id     uint64
	fd     invoker.Descriptor
	where  string
	closed atomic.Bool
}

var _ io.Closer = (*Dir)(nil)

// Name returns the URL the directory was opened with, password masked.
func (d *Dir) Name() string {
	return d.where
}

func (d *Dir) check() error {
	if d.c.isClosed() {
		return ErrContextClosed
	}
	if d.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (d *Dir) label() string {
	return fmt.Sprintf("%s (fd %d)", d.where, d.fd)
}

func doDir[T any](d *Dir, ctx context.Context, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	if err := d.check(); err != nil {
		var zero T
		return zero, err
	}
	return call(d.c, ctx, op, d.label(), fn, telemetry.Descriptor(uint64(d.fd)))
}

func doDirAsync[T any](d *Dir, ctx context.Context, op string, fn func(ctx context.Context) (T, error)) (*bridge.Future[T], error) {
	if err := d.check(); err != nil {
		return nil, err
	}
	return callAsync(d.c, ctx, op, d.label(), fn, telemetry.Descriptor(uint64(d.fd)))
}

// Next returns the next entry, or io.EOF after the last one.
func (d *Dir) Next(ctx context.Context) (*invoker.Dirent, error) {
	return doDir(d, ctx, "readdir", d.next())
}

// NextAsync is the async form of Next.
func (d *Dir) NextAsync(ctx context.Context) (*bridge.Future[*invoker.Dirent], error) {
	return doDirAsync(d, ctx, "readdir", d.next())
}

func (d *Dir) next() func(ctx context.Context) (*invoker.Dirent, error) {
	return func(ctx context.Context) (*invoker.Dirent, error) { return d.c.inv.Readdir(ctx, d.fd) }
}

// Entries rewinds the directory and returns all of its entries.
func (d *Dir) Entries(ctx context.Context) ([]invoker.Dirent, error) {
	return doDir(d, ctx, "readdir", d.entries())
}

// EntriesAsync is the async form of Entries.
func (d *Dir) EntriesAsync(ctx context.Context) (*bridge.Future[[]invoker.Dirent], error) {
	return doDirAsync(d, ctx, "readdir", d.entries())
}

func (d *Dir) entries() func(ctx context.Context) ([]invoker.Dirent, error) {
	return func(ctx context.Context) ([]invoker.Dirent, error) {
		if err := d.c.inv.Lseekdir(ctx, d.fd, 0); err != nil {
			return nil, err
		}
		entries, err := readEntries(ctx, d.c.inv, d.fd)
		telemetry.SetAttributes(ctx, telemetry.Entries(len(entries)))
		return entries, err
	}
}

// All iterates over the remaining entries. Iteration stops at the first
// error, which is yielded with a nil entry.
func (d *Dir) All(ctx context.Context) iter.Seq2[*invoker.Dirent, error] {
	return func(yield func(*invoker.Dirent, error) bool) {
		for {
			e, err := d.Next(ctx)
			if err == io.EOF {
				return
			}
			if !yield(e, err) || err != nil {
				return
			}
		}
	}
}

// Tell returns the current position, usable with SeekDir.
func (d *Dir) Tell(ctx context.Context) (int64, error) {
	return doDir(d, ctx, "telldir", func(ctx context.Context) (int64, error) {
		return d.c.inv.Telldir(ctx, d.fd)
	})
}

// SeekDir moves to a position returned by Tell.
func (d *Dir) SeekDir(ctx context.Context, offset int64) error {
	_, err := doDir(d, ctx, "lseekdir", discard(func(ctx context.Context) error {
		return d.c.inv.Lseekdir(ctx, d.fd, offset)
	}))
	return err
}

// Close releases the directory. Closing a closed directory returns nil.
func (d *Dir) Close() error {
	return d.CloseContext(context.Background())
}

// CloseContext is Close with a context.
func (d *Dir) CloseContext(ctx context.Context) error {
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	d.c.untrack(d.id, true)
	if d.c.isClosed() {
		return nil
	}
	_, err := call(d.c, ctx, "closedir", d.label(), d.release(), telemetry.Descriptor(uint64(d.fd)))
	return err
}

// CloseAsync is the async form of Close.
func (d *Dir) CloseAsync(ctx context.Context) (*bridge.Future[struct{}], error) {
	if d.closed.Load() {
		return bridge.Resolved(none{}, nil), nil
	}
	if _, err := d.c.worker(); err != nil {
		return nil, err
	}
	if !d.closed.CompareAndSwap(false, true) {
		return bridge.Resolved(none{}, nil), nil
	}
	d.c.untrack(d.id, true)
	return callAsync(d.c, ctx, "closedir", d.label(), d.release(), telemetry.Descriptor(uint64(d.fd)))
}

func (d *Dir) release() func(ctx context.Context) (none, error) {
	return discard(func(ctx context.Context) error { return d.c.inv.Closedir(ctx, d.fd) })
}
