// Package bufpool pools the transfer buffers used for bulk copies.
//
// Buffers come in three size classes. Requests above the largest class are
// allocated directly and dropped by Put, so an occasional huge transfer does
// not pin memory.
//
//	buf := bufpool.Get(size)
//	defer bufpool.Put(buf)
package bufpool

import "sync"

// Default size classes.
const (
	DefaultSmallSize  = 4 << 10
	DefaultMediumSize = 64 << 10
	DefaultLargeSize  = 1 << 20
)

// Pool hands out byte slices from a fixed set of size classes.
type Pool struct {
	sizes   [3]int
	classes [3]sync.Pool
}

// NewPool creates a pool with the given class sizes in ascending order.
// Zero sizes take the defaults.
func NewPool(small, medium, large int) *Pool {
	p := &Pool{sizes: [3]int{small, medium, large}}
	for i, def := range [3]int{DefaultSmallSize, DefaultMediumSize, DefaultLargeSize} {
		if p.sizes[i] <= 0 {
			p.sizes[i] = def
		}
		size := p.sizes[i]
		p.classes[i].New = func() any {
			buf := make([]byte, size)
			return &buf
		}
	}
	return p
}

// Get returns a slice of length size. Its capacity is that of the smallest
// class that fits.
func (p *Pool) Get(size int) []byte {
	for i, limit := range p.sizes {
		if size <= limit {
			buf := *p.classes[i].Get().(*[]byte)
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put returns buf to its class. Slices not obtained from Get are ignored.
func (p *Pool) Put(buf []byte) {
	for i, size := range p.sizes {
		if cap(buf) == size {
			full := buf[:size]
			p.classes[i].Put(&full)
			return
		}
	}
}

var global = NewPool(0, 0, 0)

// Get returns a buffer from the package pool.
func Get(size int) []byte {
	return global.Get(size)
}

// Put returns a buffer to the package pool.
func Put(buf []byte) {
	global.Put(buf)
}
