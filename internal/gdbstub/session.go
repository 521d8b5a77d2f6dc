package gdbstub

import "errors"

// Config gathers everything NewSession needs: the capability bundles
// the host supplies plus the few behavioral knobs the core exposes.
type Config struct {
	IO        IO
	Target    Target
	Allocator Allocator

	// MaxPacketBytes bounds packet buffer growth. Zero selects
	// defaultMaxPacketBuf.
	MaxPacketBytes int

	// UseExtendedStopReply switches stop replies from bare S05 to the
	// extended T05thread:1; form. Off by default, so a plain S05 is the
	// wire behavior unless a host opts in.
	UseExtendedStopReply bool

	// SessionID optionally tags this session for CallError/LastError
	// diagnostics; an embedding host with many concurrent sessions can
	// set it to whatever it uses to key its own connection log. Left
	// empty, CallError simply reports an empty session id.
	SessionID string
}

// Session is the per-connection state owned exclusively by whatever
// goroutine calls Run. Nothing in Session may be touched concurrently;
// independent sessions (one per transport) run safely on independent
// goroutines.
type Session struct {
	io     IO
	poller Poller
	target Target
	alloc  Allocator

	pbuf   *packetBuffer
	framer *framer

	regs        []RegisterDescriptor
	regIndices  []int
	regScratch  []byte
	maxRegWidth int

	features  featureSet
	targetXML []byte

	extendedMode bool
	lastState    TargetState

	commands []MonitorCommand
	output   Output

	UseExtendedStopReply bool

	id      string
	lastErr error
}

// NewSession validates the capability bundle and derives the session's
// fixed-size register scratch per invariant 6: it is sized to hold all
// registers at the widest register's byte width, though only the sum
// of each register's own natural width is ever used when packing a 'g'
// dump.
func NewSession(cfg Config) (*Session, error) {
	if cfg.IO == nil {
		return nil, errors.New("gdbstub: Config.IO is required")
	}
	if cfg.Target == nil {
		return nil, errors.New("gdbstub: Config.Target is required")
	}
	if cfg.Allocator == nil {
		return nil, errors.New("gdbstub: Config.Allocator is required")
	}

	regs := cfg.Target.Registers()
	regIndices := make([]int, len(regs))
	maxWidth, totalWidth := 0, 0
	for i, r := range regs {
		regIndices[i] = i
		w := r.byteWidth()
		if w > maxWidth {
			maxWidth = w
		}
		totalWidth += w
	}

	s := &Session{
		io:                   cfg.IO,
		target:               cfg.Target,
		alloc:                cfg.Allocator,
		regs:                 regs,
		regIndices:           regIndices,
		regScratch:           make([]byte, totalWidth, maxInt(totalWidth, len(regs)*maxWidth)),
		maxRegWidth:          maxWidth,
		lastState:            StateInvalid,
		commands:             append([]MonitorCommand(nil), cfg.Target.Commands()...),
		UseExtendedStopReply: cfg.UseExtendedStopReply,
		id:                   cfg.SessionID,
	}
	if p, ok := cfg.IO.(Poller); ok {
		s.poller = p
	}
	s.pbuf = newPacketBuffer(cfg.Allocator, cfg.MaxPacketBytes)
	s.framer = newFramer(s.pbuf, cfg.IO, s)
	return s, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// LastError returns the most recent target-capability-callback failure
// wrapped as a *CallError, or nil if none has occurred since the session
// was created. The engine never logs this itself; an embedding host that
// wants its own logging or metrics on capability failures should consult
// this after a Run call returns an error-shaped StatusCode.
func (s *Session) LastError() error {
	if s.lastErr == nil {
		return nil
	}
	return s.lastErr
}

// ReloadCommands replaces the monitor-command table in place, used by
// internal/monitorwatch to hot-swap qRcmd handlers without tearing the
// session down.
func (s *Session) ReloadCommands(cmds []MonitorCommand) {
	s.commands = append([]MonitorCommand(nil), cmds...)
}

// regByteOffset returns the byte range within regScratch that register
// index i occupies when g/G pack the full register set tightly.
func (s *Session) regByteOffset(i int) (off, width int) {
	for j := 0; j < i; j++ {
		off += s.regs[j].byteWidth()
	}
	return off, s.regs[i].byteWidth()
}

// handlePacket implements packetHandler: it is the framer's sole entry
// point into dispatch.
func (s *Session) handlePacket(payload []byte) (reply []byte, silent bool) {
	return s.dispatch(payload)
}

// handleInterrupt implements packetHandler for the out-of-band 0x03
// case: stop the target and report SIGTRAP, regardless of whether stop
// itself succeeded (the spec names no failure path here).
func (s *Session) handleInterrupt() []byte {
	s.target.Stop()
	s.lastState = StateStopped
	return s.stopReply()
}

func (s *Session) stopReply() []byte {
	if s.UseExtendedStopReply {
		return replyExtendedStop05()
	}
	return replyStop05()
}
