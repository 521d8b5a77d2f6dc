// Package gdbstub implements the server side of the GDB Remote Serial
// Protocol as a transport- and target-agnostic protocol engine. The
// engine owns packet framing, command dispatch, and reply encoding; it
// never touches a socket or a register file directly, calling out to
// host-supplied capabilities for both.
package gdbstub

// Architecture names the target CPU family. It selects the
// target-description XML architecture tag and the core register
// feature namespace.
type Architecture int

const (
	ArchInvalid Architecture = iota
	ArchArm
	ArchX86
	ArchAmd64
)

func (a Architecture) String() string {
	switch a {
	case ArchArm:
		return "arm"
	case ArchX86, ArchAmd64:
		return "i386"
	default:
		return "invalid"
	}
}

// featureNamespace returns the core feature's XML name attribute.
// Amd64 shares X86's i386 namespace: GDB infers the real word size
// from the register widths carried in target.xml, so the stub never
// needs an amd64-specific namespace.
func (a Architecture) featureNamespace() string {
	switch a {
	case ArchArm:
		return "org.gnu.gdb.arm.core"
	case ArchX86, ArchAmd64:
		return "org.gnu.gdb.i386.core"
	default:
		return ""
	}
}

// RegisterKind classifies a register for target-description rendering
// and for the natural-width path used by p/P.
type RegisterKind int

const (
	RegGP RegisterKind = iota
	RegPC
	RegStackPtr
	RegCodePtr
	RegStatus
)

// RegisterDescriptor is one entry of the target's register table, read
// by the core only; GDB's register index is the table's slice index.
type RegisterDescriptor struct {
	Name    string
	BitSize int
	Kind    RegisterKind
}

// xmlTypeAttr reports the target.xml "type" attribute for this
// register's kind, and whether one is emitted at all.
func (r RegisterDescriptor) xmlTypeAttr() (string, bool) {
	switch r.Kind {
	case RegStackPtr:
		return "data_ptr", true
	case RegPC, RegCodePtr:
		return "code_ptr", true
	default:
		return "", false
	}
}

// byteWidth is the register's natural storage width in bytes, rounded
// up from its bit size.
func (r RegisterDescriptor) byteWidth() int {
	return (r.BitSize + 7) / 8
}

// TracePointKind enumerates the kinds of trace point GDB can request
// with Z/z.
type TracePointKind int

const (
	TPExecSw TracePointKind = iota
	TPExecHw
	TPMemWrite
	TPMemRead
	TPMemAccess
)

// tracePointKindForWireType maps the Z/z "type" field (0-4) onto a
// TracePointKind.
func tracePointKindForWireType(t uint64) (TracePointKind, bool) {
	switch t {
	case 0:
		return TPExecSw, true
	case 1:
		return TPExecHw, true
	case 2:
		return TPMemWrite, true
	case 3:
		return TPMemRead, true
	case 4:
		return TPMemAccess, true
	default:
		return 0, false
	}
}

// TracePointAction enumerates what happens when a trace point fires.
// Stop is the only action the core ever requests; collection/upload is
// out of scope.
type TracePointAction int

const (
	TPActionStop TracePointAction = iota
)

// TargetState is the run/stop state the target capability reports via
// GetState. The run loop watches for a Running→Stopped transition to
// emit an unsolicited stop reply.
type TargetState int

const (
	StateInvalid TargetState = iota
	StateRunning
	StateStopped
)

// MonitorCommand is one entry of the target-provided qRcmd table. The
// handler receives the raw argument string (everything after the first
// space) and an Output to write a reply into.
type MonitorCommand struct {
	Name        string
	Description string
	Handler     func(out *Output, args string) StatusCode
}

// IO is the transport capability the core consumes. peek must be
// non-blocking; poll, when present, may block; write must not return
// until every byte is accepted or a fatal error occurs.
type IO interface {
	Peek() int
	Read(dst []byte) (int, StatusCode)
	Write(src []byte) StatusCode
}

// Poller is an optional extension of IO. A session without one returns
// TryAgain from the run loop whenever there is nothing to read, rather
// than blocking.
type Poller interface {
	Poll() StatusCode
}

// Target is the capability bundle a host implements to expose a
// debuggable target: CPU state, memory, and trace points. Restart,
// Kill, TPSet and TPClear are optional; a Target that does not
// implement the corresponding sub-interface causes the matching
// command to fall back to an empty or NotSupported reply.
type Target interface {
	GetState() TargetState
	Stop() StatusCode
	Step() StatusCode
	Cont() StatusCode
	MemRead(addr uint64, dst []byte) StatusCode
	MemWrite(addr uint64, src []byte) StatusCode
	RegsRead(indices []int, dst []byte) StatusCode
	RegsWrite(indices []int, src []byte) StatusCode
	Registers() []RegisterDescriptor
	Commands() []MonitorCommand
	Architecture() Architecture
}

// Restarter is implemented by targets that support the extended-mode
// 'R' restart command.
type Restarter interface {
	Restart() StatusCode
}

// Killer is implemented by targets that support 'k'.
type Killer interface {
	Kill() StatusCode
}

// TracePointSetter is implemented by targets that support Z.
type TracePointSetter interface {
	TPSet(addr uint64, kind TracePointKind, action TracePointAction) StatusCode
}

// TracePointClearer is implemented by targets that support z.
type TracePointClearer interface {
	TPClear(addr uint64) StatusCode
}

// Allocator is the memory capability a host supplies for the session's
// packet buffer and scratch areas. Go's garbage collector makes manual
// frees optional in practice; Alloc/Free are kept as a pair so a
// bare-metal or size-bounded host can still observe and cap growth,
// exactly the role internal/allocator plays for the rest of this repo.
type Allocator interface {
	Alloc(n int) ([]byte, StatusCode)
	Free(buf []byte)
}
