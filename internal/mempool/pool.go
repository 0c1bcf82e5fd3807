// Package mempool recycles the large float32 buffers that back model input
// tensors, so consecutive runs do not allocate a fresh 640x640 tensor each time.
package mempool

import (
	"sync"
	"sync/atomic"
)

// bucketStep is the size-class granularity in elements.
const bucketStep = 1024

// Pool hands out slices grouped by size class. The zero value is ready to use
// and safe for concurrent use.
type Pool[T any] struct {
	buckets sync.Map // size class -> *sync.Pool of *[]T
	hits    atomic.Int64
	misses  atomic.Int64
}

// Stats reports how many Get calls were served from the pool.
type Stats struct {
	Hits   int64
	Misses int64
}

func sizeClass(n int) int {
	if n <= bucketStep {
		return bucketStep
	}
	return (n + bucketStep - 1) / bucketStep * bucketStep
}

func (p *Pool[T]) bucket(cls int) *sync.Pool {
	b, _ := p.buckets.LoadOrStore(cls, &sync.Pool{})
	return b.(*sync.Pool)
}

// Get returns a slice of length n. Its contents are unspecified; callers
// that do not overwrite every element must clear it.
func (p *Pool[T]) Get(n int) []T {
	if n <= 0 {
		return nil
	}
	cls := sizeClass(n)
	if v, ok := p.bucket(cls).Get().(*[]T); ok && cap(*v) >= n {
		p.hits.Add(1)
		return (*v)[:n]
	}
	p.misses.Add(1)
	return make([]T, n, cls)
}

// Put returns buf to the pool. Slices whose capacity is not a size class
// (for example ones not obtained from Get) are dropped.
func (p *Pool[T]) Put(buf []T) {
	c := cap(buf)
	if c == 0 || c != sizeClass(c) {
		return
	}
	buf = buf[:c]
	p.bucket(c).Put(&buf)
}

// Stats returns the hit and miss counters.
func (p *Pool[T]) Stats() Stats {
	return Stats{Hits: p.hits.Load(), Misses: p.misses.Load()}
}

var float32s Pool[float32]

// GetFloat32 takes a buffer from the shared float32 pool.
func GetFloat32(n int) []float32 { return float32s.Get(n) }

// PutFloat32 returns a buffer to the shared float32 pool.
func PutFloat32(buf []float32) { float32s.Put(buf) }

// Float32Stats reports the shared float32 pool counters.
func Float32Stats() Stats { return float32s.Stats() }
