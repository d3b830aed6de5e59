package pools

import (
	"bufio"
	"io"
	"sync"
	"sync/atomic"
)

// DefaultWriterSize is the buffer size of pooled response writers.
const DefaultWriterSize = 8 << 10

// WriterPool recycles bufio.Writers for connection write sides.
type WriterPool struct {
	pool sync.Pool
	size int

	gets   atomic.Uint64
	allocs atomic.Uint64
}

// NewWriterPool creates a pool of writers with size-byte buffers.
func NewWriterPool(size int) *WriterPool {
	if size <= 0 {
		size = DefaultWriterSize
	}
	wp := &WriterPool{size: size}
	wp.pool.New = func() any {
		wp.allocs.Add(1)
		return bufio.NewWriterSize(nil, size)
	}
	return wp
}

// Get returns a writer bound to w.
func (wp *WriterPool) Get(w io.Writer) *bufio.Writer {
	wp.gets.Add(1)
	bw := wp.pool.Get().(*bufio.Writer)
	bw.Reset(w)
	return bw
}

// Put detaches bw from its destination and recycles it. Unflushed data is
// discarded.
func (wp *WriterPool) Put(bw *bufio.Writer) {
	if bw == nil {
		return
	}
	bw.Reset(nil)
	wp.pool.Put(bw)
}

// WriterPoolStats reports pool usage.
type WriterPoolStats struct {
	Gets    uint64  `json:"gets"`
	Allocs  uint64  `json:"allocs"`
	HitRate float64 `json:"hit_rate"`
}

// Stats returns writer pool statistics
func (wp *WriterPool) Stats() WriterPoolStats {
	gets := wp.gets.Load()
	allocs := wp.allocs.Load()
	hitRate := 0.0
	if gets > 0 && allocs <= gets {
		hitRate = float64(gets-allocs) / float64(gets)
	}
	return WriterPoolStats{Gets: gets, Allocs: allocs, HitRate: hitRate}
}
