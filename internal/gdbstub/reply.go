package gdbstub

// frameReply wraps payload as a complete outbound RSP frame: '$',
// payload, '#', two lowercase hex digits of the 8-bit checksum. The
// transport write itself is the framer's job; this just builds bytes.
func frameReply(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+4)
	out = append(out, '$')
	out = append(out, payload...)
	out = append(out, '#')
	cksum := sum8(payload)
	out = append(out, toLowerHexDigit(hexToChr(cksum>>4)), toLowerHexDigit(hexToChr(cksum&0x0f)))
	return out
}

// replyOK is the canonical success reply with no payload data.
func replyOK() []byte { return frameReply([]byte("OK")) }

// replyEmpty tells GDB the command is unsupported.
func replyEmpty() []byte { return frameReply(nil) }

// replyStop05 is the sole stop signal the core ever reports: SIGTRAP.
func replyStop05() []byte { return frameReply([]byte("S05")) }

// replyExtendedStop05 is an extended stop reply carrying a thread id,
// emitted instead of replyStop05 when Session.UseExtendedStopReply is
// set. It still counts as exactly one reply frame.
func replyExtendedStop05() []byte { return frameReply([]byte("T05thread:1;")) }

// replyError renders a StatusCode as "Enn" with the wire mapping
// (-code)&0xff. Callers must not pass Success.
func replyError(status StatusCode) []byte {
	errno := status.WireErrno()
	payload := []byte{'E', toLowerHexDigit(hexToChr(errno >> 4)), toLowerHexDigit(hexToChr(errno & 0x0f))}
	return frameReply(payload)
}
