package gdbstub

import stdbytes "bytes"

type framerState int

const (
	waitForStart framerState = iota
	receiveBody
	receiveChecksum
)

var ackBytes = []byte{'+'}
var nackBytes = []byte{'-'}

// packetHandler is implemented by Session. It keeps the framer ignorant
// of dispatch and target semantics, so framing stays a pure byte-level
// state machine with no knowledge of what a command means.
type packetHandler interface {
	// handlePacket dispatches a verified payload and returns the complete,
	// already-framed reply, which the framer writes as-is, and whether
	// the command is silent (no reply at all).
	handlePacket(payload []byte) (reply []byte, silent bool)
	// handleInterrupt services an out-of-band 0x03 seen outside a
	// packet: stop the target and return an S05 reply frame, or nil if
	// the stop itself could not be serviced.
	handleInterrupt() []byte
}

// framer is the receive state machine: it owns the packet buffer,
// recognizes packet boundaries and the out-of-band interrupt, verifies
// the checksum, and drives ACK/NACK plus dispatch.
type framer struct {
	state      framerState
	pbuf       *packetBuffer
	payloadLen int
	io         IO
	handler    packetHandler
}

func newFramer(pbuf *packetBuffer, io IO, handler packetHandler) *framer {
	return &framer{state: waitForStart, pbuf: pbuf, io: io, handler: handler}
}

// feed reacts to newBytes additional bytes already appended to the
// packet buffer by the run loop, advancing the state machine as far as
// the available bytes allow. It returns a non-Success status only when
// a reply write failed fatally; framing and checksum errors are
// handled internally (NACK, discard, await retransmission).
func (f *framer) feed(newBytes int) StatusCode {
	for {
		switch f.state {
		case waitForStart:
			buf := f.pbuf.bytes()
			if idx := stdbytes.IndexByte(buf, '$'); idx >= 0 {
				f.pbuf.compact(idx)
				f.state = receiveBody
				continue
			}
			if stdbytes.IndexByte(buf, 0x03) >= 0 {
				if reply := f.handler.handleInterrupt(); reply != nil {
					if status := f.io.Write(reply); status != Success {
						f.pbuf.reset()
						return status
					}
				}
			}
			f.pbuf.reset()
			return Success

		case receiveBody:
			buf := f.pbuf.bytes()
			idx := stdbytes.IndexByte(buf[1:], '#')
			if idx < 0 {
				return Success
			}
			idx++ // account for the slice offset above
			f.payloadLen = idx - 1
			f.state = receiveChecksum
			continue

		case receiveChecksum:
			buf := f.pbuf.bytes()
			need := f.payloadLen + 4 // '$' + payload + '#' + 2 checksum digits
			if len(buf) < need {
				return Success
			}
			payload := buf[1 : 1+f.payloadLen]
			expected := chrToHex(buf[f.payloadLen+2])<<4 | chrToHex(buf[f.payloadLen+3])
			actual := sum8(payload)

			var writeStatus StatusCode
			if expected == actual && chrToHex(buf[f.payloadLen+2]) != 0xFF && chrToHex(buf[f.payloadLen+3]) != 0xFF {
				writeStatus = f.io.Write(ackBytes)
				if writeStatus == Success {
					reply, silent := f.handler.handlePacket(payload)
					if !silent {
						writeStatus = f.io.Write(reply)
					}
				}
			} else {
				writeStatus = f.io.Write(nackBytes)
			}

			remaining := len(buf) - need
			if remaining > 0 {
				f.pbuf.compact(need)
			} else {
				f.pbuf.reset()
			}
			f.state = waitForStart

			if writeStatus != Success {
				return writeStatus
			}
			continue
		}
	}
}
