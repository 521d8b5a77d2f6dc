package gdbstub

import "bytes"

const monitorCmdMaxBytes = 4096

// dispatchQ is the q-command table: a static list of (prefix, handler)
// pairs, linear-scanned since there are never more than a handful of
// entries.
func (s *Session) dispatchQ(payload []byte) ([]byte, bool) {
	switch {
	case bytes.HasPrefix(payload, []byte("qTStatus")):
		return frameReply([]byte("T0")), false
	case bytes.HasPrefix(payload, []byte("qSupported")):
		s.features = parseQSupported(payload, s.target.Architecture())
		return frameReply(s.features.reply()), false
	case bytes.HasPrefix(payload, []byte("qXfer:features:read:")):
		return s.cmdQXferFeatures(payload[len("qXfer:features:read:"):]), false
	case bytes.HasPrefix(payload, []byte("qRcmd,")):
		return s.cmdQRcmd(payload[len("qRcmd,"):]), false
	default:
		return replyEmpty(), false
	}
}

// cmdQXferFeatures serves qXfer:features:read:<annex>:<off>,<len>,
// lazily building the target.xml document on first access and
// streaming it back in caller-chosen windows.
func (s *Session) cmdQXferFeatures(rest []byte) []byte {
	colon := indexByte(rest, ':')
	if colon < 0 {
		return replyEmpty()
	}
	annex := string(rest[:colon])
	if annex != "target.xml" || !s.features.targetDescriptionSupported {
		return replyEmpty()
	}

	offLen := rest[colon+1:]
	comma := indexByte(offLen, ',')
	if comma < 0 {
		return replyError(ProtocolViolation)
	}
	off, n1 := parseHexAsU64(offLen[:comma], 0)
	if n1 == 0 {
		return replyError(ProtocolViolation)
	}
	length, _ := parseHexAsU64(offLen[comma+1:], 0)

	if s.targetXML == nil {
		s.targetXML = buildTargetXML(s.target.Architecture(), s.regs)
	}
	total := uint64(len(s.targetXML))
	if off > total {
		return replyError(InvalidParameter)
	}
	if off == total {
		return frameReply([]byte("l"))
	}
	end := off + length
	if end > total {
		end = total
	}
	marker := byte('m')
	if end == total {
		marker = 'l'
	}
	out := make([]byte, 0, 1+(end-off))
	out = append(out, marker)
	out = append(out, s.targetXML[off:end]...)
	return frameReply(out)
}

// cmdQRcmd decodes a qRcmd,<hex> request, splits the decoded line at
// the first space into command name and arguments, and dispatches to
// the matching host-provided monitor command.
func (s *Session) cmdQRcmd(rest []byte) []byte {
	var buf [monitorCmdMaxBytes]byte
	n, status := parseHexAsBytes(rest, buf[:])
	if status != Success {
		return replyError(ProtocolViolation)
	}
	line := buf[:n]

	name, args := string(line), ""
	if sp := indexByte(line, ' '); sp >= 0 {
		name, args = string(line[:sp]), string(line[sp+1:])
	}

	for _, c := range s.commands {
		if c.Name != name {
			continue
		}
		s.output.Reset()
		if status := c.Handler(&s.output, args); status != Success {
			return s.capabilityError('q', status)
		}
		if s.output.Len() == 0 {
			return replyOK()
		}
		hex := make([]byte, 0, 2*s.output.Len())
		hex = appendHexBytes(hex, s.output.Bytes())
		return frameReply(hex)
	}
	return replyEmpty()
}

// dispatchV is the v-command table: vCont? and vCont;<action>.
func (s *Session) dispatchV(payload []byte) ([]byte, bool) {
	switch {
	case bytes.Equal(payload, []byte("vCont?")):
		return frameReply([]byte("vCont;s;c;t")), false
	case bytes.HasPrefix(payload, []byte("vCont;")):
		return s.cmdVCont(payload[len("vCont;"):])
	default:
		return replyEmpty(), false
	}
}

// cmdVCont honors only the first action in the list.
func (s *Session) cmdVCont(rest []byte) ([]byte, bool) {
	if len(rest) == 0 {
		return replyError(ProtocolViolation), false
	}
	switch rest[0] {
	case 'c':
		status := s.target.Cont()
		if status != Success {
			return s.capabilityError('c', status), false
		}
		s.lastState = StateRunning
		return nil, true
	case 's':
		status := s.target.Step()
		if status != Success {
			return s.capabilityError('s', status), false
		}
		return s.stopReply(), false
	case 't':
		status := s.target.Stop()
		if status != Success {
			return s.capabilityError('t', status), false
		}
		s.lastState = StateStopped
		return s.stopReply(), false
	default:
		return replyError(ProtocolViolation), false
	}
}
