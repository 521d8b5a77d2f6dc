// Package exampletarget is a minimal in-memory Target capability
// implementation, the kind cmd/gdbstub-server wires up so the binary is
// runnable without an embedder supplying a real debuggee. It simulates a
// flat byte-addressable memory space and a small ARM-shaped register
// file; Step advances pc by 4 and Cont/Stop only flip the run state,
// since there is no real instruction stream to execute.
package exampletarget

import (
	"encoding/binary"
	"sync"

	"github.com/riftlane/gdbstub/internal/gdbstub"
)

// registerCount mirrors a 32-bit ARM core: r0-r12, sp, lr, pc.
const registerCount = 16

var registers = []gdbstub.RegisterDescriptor{
	{Name: "r0", BitSize: 32, Kind: gdbstub.RegGP},
	{Name: "r1", BitSize: 32, Kind: gdbstub.RegGP},
	{Name: "r2", BitSize: 32, Kind: gdbstub.RegGP},
	{Name: "r3", BitSize: 32, Kind: gdbstub.RegGP},
	{Name: "r4", BitSize: 32, Kind: gdbstub.RegGP},
	{Name: "r5", BitSize: 32, Kind: gdbstub.RegGP},
	{Name: "r6", BitSize: 32, Kind: gdbstub.RegGP},
	{Name: "r7", BitSize: 32, Kind: gdbstub.RegGP},
	{Name: "r8", BitSize: 32, Kind: gdbstub.RegGP},
	{Name: "r9", BitSize: 32, Kind: gdbstub.RegGP},
	{Name: "r10", BitSize: 32, Kind: gdbstub.RegGP},
	{Name: "r11", BitSize: 32, Kind: gdbstub.RegGP},
	{Name: "r12", BitSize: 32, Kind: gdbstub.RegGP},
	{Name: "sp", BitSize: 32, Kind: gdbstub.RegStackPtr},
	{Name: "lr", BitSize: 32, Kind: gdbstub.RegGP},
	{Name: "pc", BitSize: 32, Kind: gdbstub.RegPC},
}

// Target is a debuggable stand-in: a byte slab of memory, a fixed
// register file, and a software-breakpoint set, guarded by one mutex
// since the run loop calls into it from a single goroutine per session
// but monitor commands may read it concurrently.
type Target struct {
	mu   sync.Mutex
	mem  []byte
	regs [registerCount]uint32
	bp   map[uint64]bool
	hwbp map[uint64]bool
	state gdbstub.TargetState
}

// New creates a target backed by memSize bytes of zeroed memory.
func New(memSize int) *Target {
	return &Target{
		mem:   make([]byte, memSize),
		bp:    make(map[uint64]bool),
		hwbp:  make(map[uint64]bool),
		state: gdbstub.StateStopped,
	}
}

func (t *Target) GetState() gdbstub.TargetState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

func (t *Target) Stop() gdbstub.StatusCode {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = gdbstub.StateStopped
	return gdbstub.Success
}

// Step advances pc by one simulated instruction word and reports
// stopped, since there is no real decoder driving execution here.
func (t *Target) Step() gdbstub.StatusCode {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.regs[len(registers)-1] += 4
	t.state = gdbstub.StateStopped
	return gdbstub.Success
}

// Cont marks the target running; GetState will report StateRunning
// until the next Stop, Step, or breakpoint hit (none simulated here).
func (t *Target) Cont() gdbstub.StatusCode {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = gdbstub.StateRunning
	return gdbstub.Success
}

func (t *Target) MemRead(addr uint64, dst []byte) gdbstub.StatusCode {
	t.mu.Lock()
	defer t.mu.Unlock()
	if addr+uint64(len(dst)) > uint64(len(t.mem)) {
		return gdbstub.InvalidParameter
	}
	copy(dst, t.mem[addr:addr+uint64(len(dst))])
	return gdbstub.Success
}

func (t *Target) MemWrite(addr uint64, src []byte) gdbstub.StatusCode {
	t.mu.Lock()
	defer t.mu.Unlock()
	if addr+uint64(len(src)) > uint64(len(t.mem)) {
		return gdbstub.InvalidParameter
	}
	copy(t.mem[addr:addr+uint64(len(src))], src)
	return gdbstub.Success
}

func (t *Target) RegsRead(indices []int, dst []byte) gdbstub.StatusCode {
	t.mu.Lock()
	defer t.mu.Unlock()
	off := 0
	for _, idx := range indices {
		if idx < 0 || idx >= registerCount {
			return gdbstub.InvalidParameter
		}
		w := registers[idx].BitSize / 8
		if off+w > len(dst) {
			return gdbstub.InvalidParameter
		}
		binary.LittleEndian.PutUint32(dst[off:], t.regs[idx])
		off += w
	}
	return gdbstub.Success
}

func (t *Target) RegsWrite(indices []int, src []byte) gdbstub.StatusCode {
	t.mu.Lock()
	defer t.mu.Unlock()
	off := 0
	for _, idx := range indices {
		if idx < 0 || idx >= registerCount {
			return gdbstub.InvalidParameter
		}
		w := registers[idx].BitSize / 8
		if off+w > len(src) {
			return gdbstub.InvalidParameter
		}
		var buf [4]byte
		copy(buf[:], src[off:off+w])
		t.regs[idx] = binary.LittleEndian.Uint32(buf[:])
		off += w
	}
	return gdbstub.Success
}

func (t *Target) Registers() []gdbstub.RegisterDescriptor { return registers }

func (t *Target) Architecture() gdbstub.Architecture { return gdbstub.ArchArm }

func (t *Target) Commands() []gdbstub.MonitorCommand {
	return []gdbstub.MonitorCommand{
		{
			Name:        "reset",
			Description: "zero every register and the memory slab",
			Handler: func(out *gdbstub.Output, args string) gdbstub.StatusCode {
				t.mu.Lock()
				defer t.mu.Unlock()
				for i := range t.regs {
					t.regs[i] = 0
				}
				for i := range t.mem {
					t.mem[i] = 0
				}
				out.Printf("reset complete")
				return gdbstub.Success
			},
		},
	}
}

func (t *Target) Restart() gdbstub.StatusCode {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i := range t.regs {
		t.regs[i] = 0
	}
	t.state = gdbstub.StateStopped
	return gdbstub.Success
}

func (t *Target) Kill() gdbstub.StatusCode {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = gdbstub.StateInvalid
	return gdbstub.Success
}

func (t *Target) TPSet(addr uint64, kind gdbstub.TracePointKind, action gdbstub.TracePointAction) gdbstub.StatusCode {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch kind {
	case gdbstub.TPExecSw:
		t.bp[addr] = true
	case gdbstub.TPExecHw:
		t.hwbp[addr] = true
	default:
		return gdbstub.NotSupported
	}
	return gdbstub.Success
}

func (t *Target) TPClear(addr uint64) gdbstub.StatusCode {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.bp, addr)
	delete(t.hwbp, addr)
	return gdbstub.Success
}

var (
	_ gdbstub.Target            = (*Target)(nil)
	_ gdbstub.Restarter         = (*Target)(nil)
	_ gdbstub.Killer            = (*Target)(nil)
	_ gdbstub.TracePointSetter  = (*Target)(nil)
	_ gdbstub.TracePointClearer = (*Target)(nil)
)
