package allocator

import (
	"fmt"
	"sync"

	"github.com/riftlane/gdbstub/internal/gdbstub"
)

// ArenaAllocator hands out slices from a single pre-sized backing
// array by bumping an offset. It never frees individual allocations —
// Free does nothing — and exists for hosts that would
// rather eat one big upfront allocation than let a session's buffers
// trickle through the runtime allocator one packet at a time.
type ArenaAllocator struct {
	mu        sync.Mutex
	buffer    []byte
	current   int
	peakUsage int
	allocs    uint64
	alignment int
}

// NewArenaAllocator creates an arena of the given size. Allocations are
// aligned to 8 bytes, the Config.AlignmentSize default; Initialize
// passes only Config.ArenaSize, so a custom AlignmentSize does not
// apply to the arena.
func NewArenaAllocator(size int) (*ArenaAllocator, error) {
	if size <= 0 {
		return nil, fmt.Errorf("allocator: arena size must be greater than 0")
	}
	return &ArenaAllocator{
		buffer:    make([]byte, size),
		alignment: 8,
	}, nil
}

// Alloc returns the next n bytes of the arena, bumping the cursor.
// There is no reuse path: once the arena fills, every further Alloc
// returns NoMemory until Reset is called.
func (aa *ArenaAllocator) Alloc(n int) ([]byte, gdbstub.StatusCode) {
	if n <= 0 {
		return nil, gdbstub.InvalidParameter
	}
	aligned := alignUp(n, aa.alignment)

	aa.mu.Lock()
	defer aa.mu.Unlock()

	if aa.current+aligned > len(aa.buffer) {
		return nil, gdbstub.NoMemory
	}
	buf := aa.buffer[aa.current : aa.current+n : aa.current+aligned]
	aa.current += aligned
	aa.allocs++
	if aa.current > aa.peakUsage {
		aa.peakUsage = aa.current
	}
	return buf, gdbstub.Success
}

// Free is a no-op: the arena only reclaims space wholesale via Reset.
func (aa *ArenaAllocator) Free(buf []byte) {}

// Reset rewinds the arena to empty, making its entire backing array
// available to the next round of Alloc calls. Any slice handed out
// before Reset must not be used afterward — its backing bytes may be
// overwritten by a subsequent allocation.
func (aa *ArenaAllocator) Reset() {
	aa.mu.Lock()
	defer aa.mu.Unlock()
	aa.current = 0
}

func (aa *ArenaAllocator) Stats() AllocatorStats {
	aa.mu.Lock()
	defer aa.mu.Unlock()
	return AllocatorStats{
		TotalAllocated:    uint64(aa.current),
		TotalFreed:        0,
		ActiveAllocations: int(aa.allocs),
		AllocationCount:   aa.allocs,
		FreeCount:         0,
		BytesInUse:        uint64(aa.current),
	}
}

// Available reports the unallocated tail of the arena.
func (aa *ArenaAllocator) Available() int {
	aa.mu.Lock()
	defer aa.mu.Unlock()
	return len(aa.buffer) - aa.current
}

var _ gdbstub.Allocator = (*ArenaAllocator)(nil)
