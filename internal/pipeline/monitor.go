package pipeline

import (
	"runtime"

	"github.com/MeKo-Tech/netthinne/internal/mempool"
)

// MemStats is the process memory snapshot reported by /health. TensorPool*
// count preprocess buffers reused from, or newly allocated outside, the
// shared tensor pool.
type MemStats struct {
	HeapAllocBytes   uint64 `json:"heap_alloc_bytes"`
	SysBytes         uint64 `json:"sys_bytes"`
	NumGC            uint32 `json:"num_gc"`
	Goroutines       int    `json:"goroutines"`
	TensorPoolHits   int64  `json:"tensor_pool_hits"`
	TensorPoolMisses int64  `json:"tensor_pool_misses"`
}

// GetMemStats captures the current snapshot. It stops the world briefly.
func GetMemStats() MemStats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	pool := mempool.Float32Stats()
	return MemStats{
		HeapAllocBytes:   m.HeapAlloc,
		SysBytes:         m.Sys,
		NumGC:            m.NumGC,
		Goroutines:       runtime.NumGoroutine(),
		TensorPoolHits:   pool.Hits,
		TensorPoolMisses: pool.Misses,
	}
}
