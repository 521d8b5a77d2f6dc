// Package transport adapts concrete byte-stream transports (TCP, QUIC) to
// the gdbstub IO and Poller capabilities, and supplies OS-level blocking
// poll implementations for the transports that can expose a raw file
// descriptor.
package transport

import (
	"net"
	"sync/atomic"
	"time"

	"github.com/riftlane/gdbstub/internal/gdbstub"
)

// connIO adapts a net.Conn to the gdbstub.IO capability. Peek reports
// whatever SetReadDeadline-probed byte count the last Read call left
// buffered; RSP traffic is small enough that a single Read per Peek/Read
// pair, rather than real OS-level peeking, keeps this adapter portable
// across every net.Conn implementation (TCP, Unix, TLS).
type connIO struct {
	conn    net.Conn
	pending []byte
	closed  int32
}

// NewTCPIO wraps an established TCP connection (e.g. from TCPServer's
// handler or DialTCP) as a gdbstub IO capability.
func NewTCPIO(conn net.Conn) gdbstub.IO {
	return &connIO{conn: conn}
}

// pollableConnIO bundles connIO with a connPoller over the same
// connection, so a gdbstub.Session built from it discovers Poll via the
// same cfg.IO.(Poller) type assertion NewSession already performs on the
// IO capability.
type pollableConnIO struct {
	*connIO
	poller gdbstub.Poller
}

func (p *pollableConnIO) Poll() gdbstub.StatusCode {
	if atomic.LoadInt32(&p.closed) != 0 {
		return gdbstub.PeerDisconnected
	}
	return p.poller.Poll()
}

// NewTCPIOWithPoll wraps conn as a gdbstub IO capability that also
// satisfies gdbstub.Poller, letting Session.Run block in the kernel via
// epoll/kevent instead of busy-looping when there is nothing to read.
// Falls back to a plain connIO (no Poller) if conn doesn't expose a raw
// file descriptor (e.g. it's a net.Pipe()).
func NewTCPIOWithPoll(conn net.Conn) gdbstub.IO {
	base := &connIO{conn: conn}
	poller, err := NewConnPoller(conn)
	if err != nil {
		return base
	}
	return &pollableConnIO{connIO: base, poller: poller}
}

func (c *connIO) Peek() int {
	if len(c.pending) > 0 {
		return len(c.pending)
	}
	if atomic.LoadInt32(&c.closed) != 0 {
		return 0
	}
	buf := make([]byte, 4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(time.Millisecond))
	n, err := c.conn.Read(buf)
	var zero time.Time
	_ = c.conn.SetReadDeadline(zero)
	if n > 0 {
		c.pending = append(c.pending, buf[:n]...)
	}
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return len(c.pending)
		}
		atomic.StoreInt32(&c.closed, 1)
	}
	return len(c.pending)
}

func (c *connIO) Read(dst []byte) (int, gdbstub.StatusCode) {
	if len(c.pending) == 0 {
		if atomic.LoadInt32(&c.closed) != 0 {
			return 0, gdbstub.PeerDisconnected
		}
		return 0, gdbstub.TryAgain
	}
	n := copy(dst, c.pending)
	c.pending = c.pending[n:]
	return n, gdbstub.Success
}

func (c *connIO) Write(src []byte) gdbstub.StatusCode {
	if _, err := c.conn.Write(src); err != nil {
		return gdbstub.PeerDisconnected
	}
	return gdbstub.Success
}

// TCPServer wraps a TCP listener with a handler-based accept loop,
// retrying transient Accept errors with bounded exponential backoff
// rather than aborting the whole listener.
type TCPServer struct {
	ln     net.Listener
	addr   string
	closed chan struct{}
}

// NewTCPServer creates a new TCP server listening on addr (host:port).
func NewTCPServer(addr string) *TCPServer {
	return &TCPServer{addr: addr, closed: make(chan struct{})}
}

// Start begins accepting connections, invoking handler once per accepted
// connection in its own goroutine. The accept loop exits when the
// listener is closed via Stop.
func (s *TCPServer) Start(handler func(conn net.Conn)) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	s.ln = ln

	go func() {
		defer close(s.closed)
		var backoff time.Duration
		for {
			conn, err := s.ln.Accept()
			if err != nil {
				if ne, ok := err.(net.Error); ok && ne.Temporary() {
					if backoff == 0 {
						backoff = 5 * time.Millisecond
					} else {
						backoff *= 2
						if backoff > 500*time.Millisecond {
							backoff = 500 * time.Millisecond
						}
					}
					time.Sleep(backoff)
					continue
				}
				return
			}
			backoff = 0
			go handler(conn)
		}
	}()
	return nil
}

// Stop closes the listener and waits for the accept loop to exit.
func (s *TCPServer) Stop() error {
	if s.ln != nil {
		_ = s.ln.Close()
	}
	<-s.closed
	return nil
}

// Addr returns the listener's bound address, valid only after Start.
func (s *TCPServer) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// DialTCP dials a TCP connection with an optional timeout, for clients
// or tests that want to drive a gdbstub session over loopback TCP.
func DialTCP(addr string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	return d.Dial("tcp", addr)
}
