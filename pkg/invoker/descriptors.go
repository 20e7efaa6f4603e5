package invoker

import (
	"context"
	"errors"
	"io/fs"
	"net"
	"os"
	"slices"
	"sync"
	"syscall"
)

// Descriptors numbers open objects for a backend, starting at BaseDescriptor.
// Numbers are never reused within one table.
type Descriptors[T any] struct {
	mu   sync.Mutex
	next Descriptor
	open map[Descriptor]T
}

// NewDescriptors creates an empty table.
func NewDescriptors[T any]() *Descriptors[T] {
	return &Descriptors[T]{next: BaseDescriptor, open: make(map[Descriptor]T)}
}

// Add registers v and returns its descriptor.
func (d *Descriptors[T]) Add(v T) Descriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	fd := d.next
	d.next++
	d.open[fd] = v
	return fd
}

// Get looks up fd.
func (d *Descriptors[T]) Get(fd Descriptor) (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.open[fd]
	return v, ok
}

// Remove unregisters fd and returns what it referenced.
func (d *Descriptors[T]) Remove(fd Descriptor) (T, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.open[fd]
	delete(d.open, fd)
	return v, ok
}

// Len returns the number of open descriptors.
func (d *Descriptors[T]) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.open)
}

// All returns the open descriptors in ascending order.
func (d *Descriptors[T]) All() []Descriptor {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Descriptor, 0, len(d.open))
	for fd := range d.open {
		out = append(out, fd)
	}
	slices.Sort(out)
	return out
}

// ErrnoOf maps a Go error from a filesystem or network layer to the errno a
// C client would report. Unknown errors map to EIO.
func ErrnoOf(err error) syscall.Errno {
	var errno syscall.Errno
	switch {
	case err == nil:
		return 0
	case errors.As(err, &errno):
		return errno
	case errors.Is(err, fs.ErrNotExist):
		return syscall.ENOENT
	case errors.Is(err, fs.ErrExist):
		return syscall.EEXIST
	case errors.Is(err, fs.ErrPermission):
		return syscall.EACCES
	case errors.Is(err, fs.ErrClosed):
		return syscall.EBADF
	case errors.Is(err, fs.ErrInvalid):
		return syscall.EINVAL
	case errors.Is(err, context.DeadlineExceeded), os.IsTimeout(err):
		return syscall.ETIMEDOUT
	case errors.Is(err, context.Canceled):
		return syscall.ECANCELED
	}
	var netErr *net.OpError
	if errors.As(err, &netErr) {
		if netErr.Op == "dial" {
			return syscall.ECONNREFUSED
		}
		return syscall.ECONNRESET
	}
	return syscall.EIO
}
