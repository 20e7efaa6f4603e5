package bufpool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetSizeClasses(t *testing.T) {
	tests := []struct {
		name string
		size int
		cap  int
	}{
		{"Zero", 0, DefaultSmallSize},
		{"Small", 100, DefaultSmallSize},
		{"SmallBoundary", DefaultSmallSize, DefaultSmallSize},
		{"Medium", DefaultSmallSize + 1, DefaultMediumSize},
		{"Large", 100 << 10, DefaultLargeSize},
		{"Oversized", 2 << 20, 2 << 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := Get(tt.size)
			defer Put(buf)

			assert.Len(t, buf, tt.size)
			assert.Equal(t, tt.cap, cap(buf))
		})
	}
}

func TestPutRestoresFullLength(t *testing.T) {
	p := NewPool(16, 32, 64)

	buf := p.Get(5)
	copy(buf, "hello")
	p.Put(buf)

	again := p.Get(16)
	assert.Len(t, again, 16)
	assert.Equal(t, 16, cap(again))
}

func TestPutIgnoresForeignSlices(t *testing.T) {
	p := NewPool(16, 32, 64)

	assert.NotPanics(t, func() {
		p.Put(nil)
		p.Put(make([]byte, 10))
		p.Put(make([]byte, 1000))
	})
}

func TestNewPoolDefaults(t *testing.T) {
	p := NewPool(0, 128, 0)

	assert.Equal(t, [3]int{DefaultSmallSize, 128, DefaultLargeSize}, p.sizes)
}

func TestConcurrentUse(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				buf := Get(n * 1024)
				buf[0] = byte(j)
				Put(buf)
			}
		}(i + 1)
	}
	wg.Wait()
}
