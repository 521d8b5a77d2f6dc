package allocator

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/riftlane/gdbstub/internal/gdbstub"
)

// PoolAllocator buckets allocation requests into fixed size classes,
// each backed by a sync.Pool of byte slices. Go's slice length and
// capacity travel with the value, so unlike a pointer-keyed pool there
// is never a need to guess which class a Free call belongs to: the
// slice's own capacity says so.
type PoolAllocator struct {
	mu       sync.RWMutex
	config   *Config
	classes  []int // ascending
	pools    map[int]*sync.Pool
	fallback *SystemAllocator

	hits, misses    uint64
	allocs, frees   uint64
	bytesOut, bytesBack uint64
}

func NewPoolAllocator(sizes []int, config *Config) *PoolAllocator {
	if config == nil {
		config = defaultConfig()
	}
	if len(sizes) == 0 {
		sizes = config.PoolSizes
	}

	classes := append([]int(nil), sizes...)
	sort.Ints(classes)

	pools := make(map[int]*sync.Pool, len(classes))
	for _, size := range classes {
		size := size
		pools[size] = &sync.Pool{
			New: func() interface{} {
				buf := make([]byte, size)
				return &buf
			},
		}
	}

	return &PoolAllocator{
		config:   config,
		classes:  classes,
		pools:    pools,
		fallback: NewSystemAllocator(config),
	}
}

// classFor returns the smallest configured size class that fits n, or
// 0 if n exceeds every class.
func (pa *PoolAllocator) classFor(n int) int {
	for _, c := range pa.classes {
		if n <= c {
			return c
		}
	}
	return 0
}

func (pa *PoolAllocator) Alloc(n int) ([]byte, gdbstub.StatusCode) {
	if n <= 0 {
		return nil, gdbstub.InvalidParameter
	}

	class := pa.classFor(n)
	if class == 0 {
		atomic.AddUint64(&pa.misses, 1)
		return pa.fallback.Alloc(n)
	}

	pa.mu.RLock()
	pool := pa.pools[class]
	pa.mu.RUnlock()

	bufp := pool.Get().(*[]byte)
	buf := (*bufp)[:n]
	atomic.AddUint64(&pa.hits, 1)
	atomic.AddUint64(&pa.allocs, 1)
	atomic.AddUint64(&pa.bytesOut, uint64(n))
	return buf, gdbstub.Success
}

// Free returns buf to the pool whose class matches its capacity. A
// slice grown past its original class (e.g. via append outgrowing the
// pool's backing array) no longer round-trips to that pool and is
// simply left for the garbage collector, same as the fallback path.
func (pa *PoolAllocator) Free(buf []byte) {
	if buf == nil {
		return
	}
	class := cap(buf)
	pa.mu.RLock()
	pool, ok := pa.pools[class]
	pa.mu.RUnlock()

	atomic.AddUint64(&pa.frees, 1)
	atomic.AddUint64(&pa.bytesBack, uint64(len(buf)))
	if !ok {
		pa.fallback.Free(buf)
		return
	}
	full := buf[:cap(buf)]
	pool.Put(&full)
}

func (pa *PoolAllocator) Stats() AllocatorStats {
	fb := pa.fallback.Stats()
	allocs := atomic.LoadUint64(&pa.allocs)
	frees := atomic.LoadUint64(&pa.frees)
	return AllocatorStats{
		TotalAllocated:    atomic.LoadUint64(&pa.bytesOut) + fb.TotalAllocated,
		TotalFreed:        atomic.LoadUint64(&pa.bytesBack) + fb.TotalFreed,
		ActiveAllocations: int(allocs-frees) + fb.ActiveAllocations,
		AllocationCount:   allocs + fb.AllocationCount,
		FreeCount:         frees + fb.FreeCount,
		BytesInUse:        (atomic.LoadUint64(&pa.bytesOut) - atomic.LoadUint64(&pa.bytesBack)) + fb.BytesInUse,
	}
}

// HitRate reports the fraction of Alloc calls served by a size class
// rather than falling back to the system allocator.
func (pa *PoolAllocator) HitRate() float64 {
	hits := atomic.LoadUint64(&pa.hits)
	misses := atomic.LoadUint64(&pa.misses)
	total := hits + misses
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total)
}

var _ gdbstub.Allocator = (*PoolAllocator)(nil)
