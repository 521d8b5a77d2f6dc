package gdbstub

const (
	memReadChunk  = 1024
	memWriteChunk = 4096
)

// dispatch is the one-letter command switch. It returns a complete,
// already-framed reply (ready for the transport) and whether the
// command is silent — no reply at all.
func (s *Session) dispatch(payload []byte) ([]byte, bool) {
	if len(payload) == 0 {
		return replyEmpty(), false
	}

	switch payload[0] {
	case '!':
		if _, ok := s.target.(Restarter); ok {
			s.extendedMode = true
			return replyOK(), false
		}
		return replyEmpty(), false

	case '?':
		return s.stopReply(), false

	case 's':
		status := s.target.Step()
		if status != Success {
			return s.capabilityError('s', status), false
		}
		return s.stopReply(), false

	case 'c':
		status := s.target.Cont()
		if status != Success {
			return s.capabilityError('c', status), false
		}
		s.lastState = StateRunning
		return nil, true

	case 'g':
		return s.cmdRegsReadAll(), false

	case 'G':
		return s.cmdRegsWriteAll(payload[1:]), false

	case 'm':
		return s.cmdReadMemory(payload[1:]), false

	case 'M':
		return s.cmdWriteMemory(payload[1:]), false

	case 'p':
		return s.cmdReadOneRegister(payload[1:]), false

	case 'P':
		return s.cmdWriteOneRegister(payload[1:]), false

	case 'Z':
		return s.cmdTracePoint(payload[1:], true), false

	case 'z':
		return s.cmdTracePoint(payload[1:], false), false

	case 'q':
		return s.dispatchQ(payload)

	case 'v':
		return s.dispatchV(payload)

	case 'R':
		if s.extendedMode {
			if r, ok := s.target.(Restarter); ok {
				r.Restart()
			}
			return nil, true
		}
		return replyEmpty(), false

	case 'k':
		if k, ok := s.target.(Killer); ok {
			k.Kill()
		}
		return nil, true

	default:
		return replyEmpty(), false
	}
}

// capabilityError records a non-success status from a host-supplied
// Target method as the session's LastError, keyed by the command byte
// that triggered it, and returns the Exx wire reply the caller sends.
// It must never be used for parse failures (ProtocolViolation from
// malformed packet fields) — only genuine capability-callback failures.
func (s *Session) capabilityError(cmd byte, status StatusCode) []byte {
	s.lastErr = wrapCallError(s.id, cmd, status)
	return replyError(status)
}

func (s *Session) cmdRegsReadAll() []byte {
	status := s.target.RegsRead(s.regIndices, s.regScratch)
	if status != Success {
		return s.capabilityError('g', status)
	}
	hex := make([]byte, 0, 2*len(s.regScratch))
	hex = appendHexBytes(hex, s.regScratch)
	return frameReply(hex)
}

func (s *Session) cmdRegsWriteAll(rest []byte) []byte {
	n, status := parseHexAsBytes(rest, s.regScratch)
	if status != Success {
		return replyError(ProtocolViolation)
	}
	_ = n
	if status := s.target.RegsWrite(s.regIndices, s.regScratch); status != Success {
		return s.capabilityError('G', status)
	}
	return replyOK()
}

// parseAddrLen parses "addr,len[:...]" from rest, returning the two
// values and the byte offset immediately past len (the start of any
// trailing ":data" section).
func parseAddrLen(rest []byte) (addr, length uint64, tailOff int, ok bool) {
	addr, n1 := parseHexAsU64(rest, ',')
	if n1 == 0 || n1 >= len(rest) || rest[n1] != ',' {
		return 0, 0, 0, false
	}
	lenBuf := rest[n1+1:]
	length, n2 := parseHexAsU64(lenBuf, ':')
	if n2 == 0 && len(lenBuf) > 0 && lenBuf[0] != ':' {
		return 0, 0, 0, false
	}
	return addr, length, n1 + 1 + n2, true
}

func (s *Session) cmdReadMemory(rest []byte) []byte {
	addr, length, _, ok := parseAddrLen(rest)
	if !ok {
		return replyError(ProtocolViolation)
	}
	hex := make([]byte, 0, 2*length)
	tmp := make([]byte, memReadChunk)
	for remaining := length; remaining > 0; {
		n := memReadChunk
		if uint64(n) > remaining {
			n = int(remaining)
		}
		if status := s.target.MemRead(addr, tmp[:n]); status != Success {
			return s.capabilityError('m', status)
		}
		hex = appendHexBytes(hex, tmp[:n])
		addr += uint64(n)
		remaining -= uint64(n)
	}
	return frameReply(hex)
}

func (s *Session) cmdWriteMemory(rest []byte) []byte {
	addr, length, tailOff, ok := parseAddrLen(rest)
	if !ok || tailOff >= len(rest) || rest[tailOff] != ':' {
		return replyError(ProtocolViolation)
	}
	data := rest[tailOff+1:]
	if uint64(len(data)) != 2*length {
		return replyError(ProtocolViolation)
	}
	tmp := make([]byte, memWriteChunk)
	for remaining := length; remaining > 0; {
		n := memWriteChunk
		if uint64(n) > remaining {
			n = int(remaining)
		}
		hexChunk := data[:2*n]
		data = data[2*n:]
		if _, status := parseHexAsBytes(hexChunk, tmp[:n]); status != Success {
			return replyError(ProtocolViolation)
		}
		if status := s.target.MemWrite(addr, tmp[:n]); status != Success {
			return s.capabilityError('M', status)
		}
		addr += uint64(n)
		remaining -= uint64(n)
	}
	return replyOK()
}

func (s *Session) cmdReadOneRegister(rest []byte) []byte {
	idx, n := parseHexAsU64(rest, 0)
	if n == 0 {
		return replyError(ProtocolViolation)
	}
	if int(idx) >= len(s.regs) {
		return replyError(ProtocolViolation)
	}
	off, width := s.regByteOffset(int(idx))
	dst := s.regScratch[off : off+width]
	if status := s.target.RegsRead([]int{int(idx)}, dst); status != Success {
		return s.capabilityError('p', status)
	}
	hex := make([]byte, 0, 2*width)
	hex = appendHexBytes(hex, dst)
	return frameReply(hex)
}

// cmdWriteOneRegister hex-decodes at most 4 bytes of register value
// regardless of the register's declared bit width: hex digits past the
// eighth are ignored, so a register wider than 32 bits receives only
// its first 4 bytes.
func (s *Session) cmdWriteOneRegister(rest []byte) []byte {
	eq := indexByte(rest, '=')
	if eq < 0 {
		return replyError(ProtocolViolation)
	}
	idx, n := parseHexAsU64(rest[:eq], 0)
	if n == 0 || int(idx) >= len(s.regs) {
		return replyError(ProtocolViolation)
	}
	valHex := rest[eq+1:]
	if len(valHex) > 8 {
		valHex = valHex[:8]
	}
	var valBuf [4]byte
	width, status := parseHexAsBytes(valHex, valBuf[:])
	if status != Success {
		return replyError(ProtocolViolation)
	}
	if status := s.target.RegsWrite([]int{int(idx)}, valBuf[:width]); status != Success {
		if status == NotSupported {
			return replyEmpty()
		}
		return s.capabilityError('P', status)
	}
	return replyOK()
}

func (s *Session) cmdTracePoint(rest []byte, set bool) []byte {
	typ, n1 := parseHexAsU64(rest, ',')
	if n1 == 0 || n1 >= len(rest) || rest[n1] != ',' {
		return replyError(ProtocolViolation)
	}
	addrBuf := rest[n1+1:]
	addr, n2 := parseHexAsU64(addrBuf, ',')
	if n2 == 0 || n2 >= len(addrBuf) || addrBuf[n2] != ',' {
		return replyError(ProtocolViolation)
	}
	kind, ok := tracePointKindForWireType(typ)
	if !ok {
		return replyError(ProtocolViolation)
	}

	if set {
		setter, ok := s.target.(TracePointSetter)
		if !ok {
			return replyEmpty()
		}
		status := setter.TPSet(addr, kind, TPActionStop)
		if status == NotSupported {
			return replyEmpty()
		}
		if status != Success {
			return s.capabilityError('Z', status)
		}
		return replyOK()
	}

	clearer, ok := s.target.(TracePointClearer)
	if !ok {
		return replyEmpty()
	}
	status := clearer.TPClear(addr)
	if status == NotSupported {
		return replyEmpty()
	}
	if status != Success {
		return s.capabilityError('z', status)
	}
	return replyOK()
}

func indexByte(buf []byte, c byte) int {
	for i, b := range buf {
		if b == c {
			return i
		}
	}
	return -1
}
