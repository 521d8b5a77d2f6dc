// Package allocator provides the memory capability an embedding host
// plugs into a gdbstub session: a size-classed pool allocator for the
// packet buffer's typical growth sizes, a plain system allocator
// fallback, and (in arena.go) a single pre-sized region for hosts that
// want no per-session free path at all.
package allocator

import (
	"fmt"
	"sync/atomic"

	"github.com/riftlane/gdbstub/internal/gdbstub"
)

// AllocatorKind selects which concrete allocator Initialize builds.
type AllocatorKind int

const (
	SystemAllocatorKind AllocatorKind = iota
	ArenaAllocatorKind
	PoolAllocatorKind
)

// Size classes a PoolAllocator buckets requests into by default,
// sized around packet-buffer and register-scratch growth (a few
// hundred bytes) rather than arbitrary heap objects.
const (
	SizeClassTiny   = 64
	SizeClassSmall  = 128
	SizeClassMedium = 256
	SizeClassLarge  = 512
	SizeClassHuge   = 1024
)

// Config configures whichever allocator Initialize builds.
type Config struct {
	PoolSizes      []int
	ArenaSize      int
	MemoryLimit    int
	AlignmentSize  int
	EnableTracking bool
}

type Option func(*Config)

func defaultConfig() *Config {
	return &Config{
		EnableTracking: true,
		ArenaSize:      1 << 20, // 1MB: generous for a session's packet buffer
		PoolSizes:      []int{SizeClassTiny, SizeClassSmall, SizeClassMedium, SizeClassLarge, SizeClassHuge},
		MemoryLimit:    64 << 20, // 64MB
		AlignmentSize:  8,
	}
}

func WithTracking(enabled bool) Option    { return func(c *Config) { c.EnableTracking = enabled } }
func WithArenaSize(size int) Option       { return func(c *Config) { c.ArenaSize = size } }
func WithPoolSizes(sizes []int) Option    { return func(c *Config) { c.PoolSizes = sizes } }
func WithMemoryLimit(limit int) Option    { return func(c *Config) { c.MemoryLimit = limit } }
func WithAlignment(alignment int) Option  { return func(c *Config) { c.AlignmentSize = alignment } }

// AllocatorStats reports cumulative allocation activity, independent
// of which concrete allocator produced it.
type AllocatorStats struct {
	TotalAllocated    uint64
	TotalFreed        uint64
	ActiveAllocations int
	AllocationCount   uint64
	FreeCount         uint64
	BytesInUse        uint64
}

// Statter is implemented by every allocator in this package; it is not
// part of gdbstub.Allocator, which only needs Alloc/Free.
type Statter interface {
	Stats() AllocatorStats
}

// GlobalAllocator is the default allocator for callers that don't want
// to thread one through explicitly (e.g. quick CLI wiring).
var GlobalAllocator gdbstub.Allocator

// Initialize builds and installs GlobalAllocator.
func Initialize(kind AllocatorKind, options ...Option) error {
	config := defaultConfig()
	for _, opt := range options {
		opt(config)
	}

	switch kind {
	case SystemAllocatorKind:
		GlobalAllocator = NewSystemAllocator(config)
	case ArenaAllocatorKind:
		a, err := NewArenaAllocator(config.ArenaSize)
		if err != nil {
			return fmt.Errorf("allocator: arena: %w", err)
		}
		GlobalAllocator = a
	case PoolAllocatorKind:
		GlobalAllocator = NewPoolAllocator(config.PoolSizes, config)
	default:
		return fmt.Errorf("allocator: unknown kind %v", kind)
	}
	return nil
}

// SystemAllocator is a thin, tracked wrapper around Go's own
// allocator. Go's GC reclaims every slice once it is unreachable, so
// Free here only updates statistics — there is no manual free path to
// get wrong, unlike the host-level alloc/free pairing the capability
// interface still models for non-Go embedders.
type SystemAllocator struct {
	config *Config

	totalAllocated uint64
	totalFreed     uint64
	allocCount     uint64
	freeCount      uint64
}

func NewSystemAllocator(config *Config) *SystemAllocator {
	if config == nil {
		config = defaultConfig()
	}
	return &SystemAllocator{config: config}
}

func (sa *SystemAllocator) Alloc(n int) ([]byte, gdbstub.StatusCode) {
	if n <= 0 {
		return nil, gdbstub.InvalidParameter
	}
	aligned := alignUp(n, sa.config.AlignmentSize)
	if sa.config.MemoryLimit > 0 {
		inUse := atomic.LoadUint64(&sa.totalAllocated) - atomic.LoadUint64(&sa.totalFreed)
		if inUse+uint64(aligned) > uint64(sa.config.MemoryLimit) {
			return nil, gdbstub.NoMemory
		}
	}
	buf := make([]byte, n, aligned)
	atomic.AddUint64(&sa.totalAllocated, uint64(aligned))
	atomic.AddUint64(&sa.allocCount, 1)
	return buf, gdbstub.Success
}

func (sa *SystemAllocator) Free(buf []byte) {
	atomic.AddUint64(&sa.totalFreed, uint64(len(buf)))
	atomic.AddUint64(&sa.freeCount, 1)
}

func (sa *SystemAllocator) Stats() AllocatorStats {
	alloc := atomic.LoadUint64(&sa.totalAllocated)
	freed := atomic.LoadUint64(&sa.totalFreed)
	allocN := atomic.LoadUint64(&sa.allocCount)
	freeN := atomic.LoadUint64(&sa.freeCount)
	return AllocatorStats{
		TotalAllocated:    alloc,
		TotalFreed:        freed,
		ActiveAllocations: int(allocN - freeN),
		AllocationCount:   allocN,
		FreeCount:         freeN,
		BytesInUse:        alloc - freed,
	}
}

var _ gdbstub.Allocator = (*SystemAllocator)(nil)

// alignUp rounds size up to the nearest multiple of alignment.
func alignUp(size, alignment int) int {
	if alignment <= 1 {
		return size
	}
	return (size + alignment - 1) &^ (alignment - 1)
}
