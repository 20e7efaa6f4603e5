package smbc

import (
	"context"
	"fmt"
	"io"
	"sync/atomic"
	"syscall"

	"github.com/marmos91/smbc/internal/telemetry"
	"github.com/marmos91/smbc/pkg/bridge"
	"github.com/marmos91/smbc/pkg/bufpool"
	"github.com/marmos91/smbc/pkg/invoker"
	"github.com/marmos91/smbc/pkg/metrics"
	"github.com/marmos91/smbc/pkg/smberr"
)

// spliceChunk is the transfer size used by File.Splice.
const spliceChunk = 64 << 10

// File is an open remote file.
//
// Read, Write and Seek use context.Background(); the other methods take a
// context. Using one File concurrently from several goroutines, or mixing
// its sync and async methods while a Future is pending, leaves the file
// offset undefined.
type File struct {
	c      *Context
	id     uint64
	fd     invoker.Descriptor
	url    string
	where  string
	closed atomic.Bool
}

var (
	_ io.ReadWriteSeeker = (*File)(nil)
	_ io.Closer          = (*File)(nil)
)

// Name returns the URL the file was opened with, password masked.
func (f *File) Name() string {
	return f.where
}

// Descriptor returns the backend descriptor of f.
func (f *File) Descriptor() invoker.Descriptor {
	return f.fd
}

func (f *File) check() error {
	if f.c.isClosed() {
		return ErrContextClosed
	}
	if f.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (f *File) label() string {
	return fmt.Sprintf("%s (fd %d)", f.where, f.fd)
}

func do[T any](f *File, ctx context.Context, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	if err := f.check(); err != nil {
		var zero T
		return zero, err
	}
	return call(f.c, ctx, op, f.label(), fn, telemetry.Descriptor(uint64(f.fd)))
}

func doAsync[T any](f *File, ctx context.Context, op string, fn func(ctx context.Context) (T, error)) (*bridge.Future[T], error) {
	if err := f.check(); err != nil {
		return nil, err
	}
	return callAsync(f.c, ctx, op, f.label(), fn, telemetry.Descriptor(uint64(f.fd)))
}

// Read reads up to len(p) bytes at the current offset. It returns io.EOF
// at end of file.
func (f *File) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, f.check()
	}
	n, err := do(f, context.Background(), "read", f.read(p))
	if err == nil && n == 0 {
		return 0, io.EOF
	}
	return n, err
}

func (f *File) read(p []byte) func(ctx context.Context) (int, error) {
	return func(ctx context.Context) (int, error) {
		n, err := f.c.inv.Read(ctx, f.fd, p)
		f.c.observeBytes(ctx, "read", n, 0)
		return n, err
	}
}

// ReadN reads up to n bytes, fewer only at end of file. A negative n reads
// to end of file.
func (f *File) ReadN(ctx context.Context, n int) ([]byte, error) {
	return do(f, ctx, "read", f.readN(n))
}

// ReadAsync is the async form of ReadN.
func (f *File) ReadAsync(ctx context.Context, n int) (*bridge.Future[[]byte], error) {
	return doAsync(f, ctx, "read", f.readN(n))
}

func (f *File) readN(n int) func(ctx context.Context) ([]byte, error) {
	return func(ctx context.Context) ([]byte, error) {
		data, err := readAll(ctx, f.c.inv, f.fd, n, f.c.readChunk)
		f.c.observeBytes(ctx, "read", len(data), 0)
		return data, err
	}
}

// readAll reads until want bytes arrived or the backend reports end of
// file. With want < 0 the buffer starts at chunk bytes and grows in whole
// chunks whenever less than half a chunk of room is left.
func readAll(ctx context.Context, inv invoker.Invoker, fd invoker.Descriptor, want, chunk int) ([]byte, error) {
	left := want
	if want < 0 {
		left = chunk
	}
	buf := make([]byte, left)
	off := 0
	for left > 0 {
		n, err := inv.Read(ctx, fd, buf[off:off+left])
		if err != nil {
			return buf[:off], err
		}
		if n == 0 {
			break
		}
		off += n
		left -= n
		if want < 0 {
			if grow := (chunk*3/2 - left) / chunk * chunk; grow > 0 {
				buf = append(buf, make([]byte, grow)...)
				left += grow
			}
		}
	}
	return buf[:off], nil
}

// Write writes all of p at the current offset.
func (f *File) Write(p []byte) (int, error) {
	return do(f, context.Background(), "write", f.write(p))
}

// WriteAll is Write with a context.
func (f *File) WriteAll(ctx context.Context, p []byte) error {
	_, err := do(f, ctx, "write", f.write(p))
	return err
}

// WriteAsync is the async form of WriteAll. p is copied before queueing.
func (f *File) WriteAsync(ctx context.Context, p []byte) (*bridge.Future[int], error) {
	return doAsync(f, ctx, "write", f.write(append([]byte(nil), p...)))
}

func (f *File) write(p []byte) func(ctx context.Context) (int, error) {
	return func(ctx context.Context) (int, error) {
		n, err := writeAll(ctx, f.c.inv, f.fd, p)
		f.c.observeBytes(ctx, "write", 0, n)
		return n, err
	}
}

// writeAll loops until p is written. A backend that accepts nothing is
// reported as EIO so the loop cannot spin.
func writeAll(ctx context.Context, inv invoker.Invoker, fd invoker.Descriptor, p []byte) (int, error) {
	total := 0
	for total < len(p) {
		n, err := inv.Write(ctx, fd, p[total:])
		total += n
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, smberr.Newf("write", fmt.Sprintf("fd %d", fd), syscall.EIO, "short write")
		}
	}
	return total, nil
}

// Seek sets the offset for the next Read or Write.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	return do(f, context.Background(), "lseek", f.seek(offset, whence))
}

// SeekAsync is the async form of Seek.
func (f *File) SeekAsync(ctx context.Context, offset int64, whence int) (*bridge.Future[int64], error) {
	return doAsync(f, ctx, "lseek", f.seek(offset, whence))
}

func (f *File) seek(offset int64, whence int) func(ctx context.Context) (int64, error) {
	return func(ctx context.Context) (int64, error) {
		telemetry.SetAttributes(ctx, telemetry.Offset(offset))
		return f.c.inv.Seek(ctx, f.fd, offset, whence)
	}
}

// Stat returns metadata for the open file.
func (f *File) Stat(ctx context.Context) (*invoker.Stat, error) {
	return do(f, ctx, "fstat", f.fstat())
}

// StatAsync is the async form of Stat.
func (f *File) StatAsync(ctx context.Context) (*bridge.Future[*invoker.Stat], error) {
	return doAsync(f, ctx, "fstat", f.fstat())
}

func (f *File) fstat() func(ctx context.Context) (*invoker.Stat, error) {
	return func(ctx context.Context) (*invoker.Stat, error) { return f.c.inv.Fstat(ctx, f.fd) }
}

// Truncate changes the file size.
func (f *File) Truncate(ctx context.Context, size int64) error {
	_, err := do(f, ctx, "ftruncate", f.truncate(size))
	return err
}

// TruncateAsync is the async form of Truncate.
func (f *File) TruncateAsync(ctx context.Context, size int64) (*bridge.Future[struct{}], error) {
	return doAsync(f, ctx, "ftruncate", f.truncate(size))
}

func (f *File) truncate(size int64) func(ctx context.Context) (none, error) {
	return discard(func(ctx context.Context) error {
		telemetry.SetAttributes(ctx, telemetry.Size(size))
		return f.c.inv.Ftruncate(ctx, f.fd, size)
	})
}

// Statvfs describes the filesystem holding the open file.
func (f *File) Statvfs(ctx context.Context) (*invoker.StatVFS, error) {
	return do(f, ctx, "fstatvfs", func(ctx context.Context) (*invoker.StatVFS, error) {
		return f.c.inv.Statvfs(ctx, f.url)
	})
}

// Splice copies up to count bytes from f to dst, starting at both current
// offsets. A negative count copies to end of file. progress, when set, is
// called after every chunk with the bytes copied so far; returning false
// stops the copy with ECANCELED. dst must belong to the same Context.
func (f *File) Splice(ctx context.Context, dst *File, count int64, progress func(copied int64) bool) (int64, error) {
	if dst == nil || dst.c != f.c {
		return 0, smberr.Invalid("splice: destination must be a file of the same context")
	}
	if err := dst.check(); err != nil {
		return 0, err
	}
	return do(f, ctx, "splice", func(ctx context.Context) (int64, error) {
		var copied int64
		buf := bufpool.Get(spliceChunk)
		defer bufpool.Put(buf)
		for count < 0 || copied < count {
			p := buf
			if count >= 0 && count-copied < int64(len(p)) {
				p = p[:count-copied]
			}
			n, err := f.c.inv.Read(ctx, f.fd, p)
			if err != nil {
				return copied, err
			}
			if n == 0 {
				break
			}
			w, err := writeAll(ctx, f.c.inv, dst.fd, p[:n])
			copied += int64(w)
			if err != nil {
				return copied, err
			}
			if progress != nil && !progress(copied) {
				return copied, smberr.New("splice", f.label(), syscall.ECANCELED)
			}
		}
		f.c.observeBytes(ctx, "splice", int(copied), 0)
		return copied, nil
	})
}

// Close releases the descriptor. Closing a closed file returns nil.
func (f *File) Close() error {
	return f.CloseContext(context.Background())
}

// CloseContext is Close with a context.
func (f *File) CloseContext(ctx context.Context) error {
	if !f.closed.CompareAndSwap(false, true) {
		return nil
	}
	f.c.untrack(f.id, false)
	if f.c.isClosed() {
		return nil
	}
	_, err := call(f.c, ctx, "close", f.label(), f.release(), telemetry.Descriptor(uint64(f.fd)))
	return err
}

// CloseAsync is the async form of Close. The file is unusable as soon as
// CloseAsync returns; an already closed file yields a completed Future.
func (f *File) CloseAsync(ctx context.Context) (*bridge.Future[struct{}], error) {
	if f.closed.Load() {
		return bridge.Resolved(none{}, nil), nil
	}
	if _, err := f.c.worker(); err != nil {
		return nil, err
	}
	if !f.closed.CompareAndSwap(false, true) {
		return bridge.Resolved(none{}, nil), nil
	}
	f.c.untrack(f.id, false)
	return callAsync(f.c, ctx, "close", f.label(), f.release(), telemetry.Descriptor(uint64(f.fd)))
}

func (f *File) release() func(ctx context.Context) (none, error) {
	return discard(func(ctx context.Context) error { return f.c.inv.Close(ctx, f.fd) })
}

func (c *Context) observeBytes(ctx context.Context, op string, read, written int) {
	if read > 0 {
		metrics.ObserveBytes(c.metrics, op, read)
		telemetry.SetAttributes(ctx, telemetry.BytesRead(read))
	}
	if written > 0 {
		metrics.ObserveBytes(c.metrics, op, written)
		telemetry.SetAttributes(ctx, telemetry.BytesWritten(written))
	}
}
