package gdbstub

// Run drives the cooperative receive/dispatch loop until a fatal status
// is observed: peer disconnect, an internal error, a target-callback
// failure surfaced while sending a reply, or TryAgain when there is
// nothing to read and no Poller was supplied. The caller owns
// reconnection; Run never retries past a fatal exit.
func (s *Session) Run() StatusCode {
	if status := s.checkStateTransition(); status != Success {
		return status
	}
	for {
		n := s.io.Peek()
		if n <= 0 {
			if s.poller != nil {
				if status := s.poller.Poll(); status != Success {
					return status
				}
				continue
			}
			return TryAgain
		}

		tail, status := s.pbuf.growForRead(n)
		if status != Success {
			s.abandonPacket()
			return status
		}

		read, rstatus := s.io.Read(tail)
		if read < n {
			s.pbuf.truncate(s.pbuf.len() - (n - read))
		}
		if rstatus != Success && rstatus != TryAgain {
			return rstatus
		}
		if read > 0 {
			if status := s.framer.feed(read); status != Success {
				return status
			}
		}

		if status := s.checkStateTransition(); status != Success {
			return status
		}
	}
}

// checkStateTransition emits an unsolicited stop reply whenever the
// target reports Stopped and the last observed state was anything else
// (Running, or the initial Invalid state of a fresh session).
func (s *Session) checkStateTransition() StatusCode {
	cur := s.target.GetState()
	if cur == StateStopped && s.lastState != StateStopped {
		if status := s.io.Write(s.stopReply()); status != Success {
			s.lastState = cur
			return status
		}
	}
	s.lastState = cur
	return Success
}

// abandonPacket discards any in-flight packet after a buffer-growth
// failure, the same recovery the framer performs on a bad checksum:
// the packet is lost, the session is not.
func (s *Session) abandonPacket() {
	s.framer.state = waitForStart
	s.pbuf.reset()
}
