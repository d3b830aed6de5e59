package pools

import (
	"sync"
	"sync/atomic"
)

// BytePool is a tiered pool of byte slices. Connections take their read
// buffer from the smallest tier and move up a tier when a request line or
// header section outgrows it.
type BytePool struct {
	pools []*sync.Pool
	sizes []int

	gets   atomic.Uint64
	puts   atomic.Uint64
	allocs atomic.Uint64
}

// Read buffer tiers; the largest covers the default header budget.
var defaultSizes = []int{
	4 << 10,
	8 << 10,
	16 << 10,
	64 << 10,
}

// NewBytePool creates a new byte pool with standard size tiers
func NewBytePool() *BytePool {
	return NewBytePoolWithSizes(defaultSizes)
}

// NewBytePoolWithSizes creates a byte pool with custom size tiers. sizes
// must be ascending.
func NewBytePoolWithSizes(sizes []int) *BytePool {
	bp := &BytePool{
		pools: make([]*sync.Pool, len(sizes)),
		sizes: sizes,
	}

	for i, size := range sizes {
		sz := size
		bp.pools[i] = &sync.Pool{
			New: func() any {
				bp.allocs.Add(1)
				buf := make([]byte, sz)
				return &buf
			},
		}
	}

	return bp
}

// Get returns a slice with len == cap == the smallest tier >= size.
// Requests above the largest tier are allocated directly.
func (bp *BytePool) Get(size int) []byte {
	bp.gets.Add(1)
	for i, poolSize := range bp.sizes {
		if size <= poolSize {
			return *bp.pools[i].Get().(*[]byte)
		}
	}
	bp.allocs.Add(1)
	return make([]byte, size)
}

// Grow returns a buffer of at least size bytes holding a copy of
// buf[:keep]. buf is returned to the pool.
func (bp *BytePool) Grow(buf []byte, keep, size int) []byte {
	next := bp.Get(size)
	copy(next, buf[:keep])
	bp.Put(buf)
	return next
}

// Put returns a slice to its tier. Slices whose capacity matches no tier
// are left to the GC.
func (bp *BytePool) Put(buf []byte) {
	capacity := cap(buf)
	for i, poolSize := range bp.sizes {
		if capacity == poolSize {
			bp.puts.Add(1)
			buf = buf[:capacity]
			bp.pools[i].Put(&buf)
			return
		}
	}
}

// MaxTier returns the largest pooled size.
func (bp *BytePool) MaxTier() int {
	return bp.sizes[len(bp.sizes)-1]
}

// BytePoolStats reports pool usage.
type BytePoolStats struct {
	Gets   uint64 `json:"gets"`
	Puts   uint64 `json:"puts"`
	Allocs uint64 `json:"allocs"`
}

// Stats returns pool statistics
func (bp *BytePool) Stats() BytePoolStats {
	return BytePoolStats{
		Gets:   bp.gets.Load(),
		Puts:   bp.puts.Load(),
		Allocs: bp.allocs.Load(),
	}
}
