package mempool

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSizeClass(t *testing.T) {
	tests := []struct {
		input, expected int
	}{
		{1, 1024},
		{1024, 1024},
		{1025, 2048},
		{3 * 224 * 224, 3 * 224 * 224},
		{3 * 640 * 640, 3 * 640 * 640},
		{3*640*640 + 1, 3*640*640 + 1024},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, sizeClass(tt.input), "n=%d", tt.input)
	}
}

func TestPool_GetPut(t *testing.T) {
	var p Pool[float32]

	assert.Nil(t, p.Get(0))
	assert.Nil(t, p.Get(-3))

	buf := p.Get(3000)
	require.Len(t, buf, 3000)
	assert.Equal(t, 3072, cap(buf))
	assert.Equal(t, Stats{Misses: 1}, p.Stats())

	p.Put(buf)
	again := p.Get(2500)
	require.Len(t, again, 2500)
	assert.Equal(t, 3072, cap(again))
	// sync.Pool may drop items at any GC, so only the total is fixed.
	st := p.Stats()
	assert.Equal(t, int64(2), st.Hits+st.Misses)
}

func TestPool_PutIgnoresForeignSlices(t *testing.T) {
	var p Pool[float32]
	p.Put(nil)
	p.Put(make([]float32, 10))

	buf := p.Get(10)
	assert.Equal(t, 1024, cap(buf))
	assert.Equal(t, Stats{Misses: 1}, p.Stats())
}

func TestPool_Concurrent(t *testing.T) {
	var p Pool[float32]
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				buf := p.Get(2048 + i)
				for j := range buf {
					buf[j] = float32(i)
				}
				for _, v := range buf {
					if v != float32(i) {
						t.Errorf("buffer shared between goroutines")
						return
					}
				}
				p.Put(buf)
			}
		}()
	}
	wg.Wait()
	st := p.Stats()
	assert.Equal(t, int64(8*50), st.Hits+st.Misses)
}

func TestSharedFloat32Pool(t *testing.T) {
	before := Float32Stats()
	buf := GetFloat32(5000)
	require.Len(t, buf, 5000)
	PutFloat32(buf)
	after := Float32Stats()
	assert.Equal(t, before.Hits+before.Misses+1, after.Hits+after.Misses)
}
