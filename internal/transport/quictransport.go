package transport

import (
	"context"
	"crypto/tls"
	"net"
	"sync/atomic"
	"time"

	quic "github.com/quic-go/quic-go"

	"github.com/riftlane/gdbstub/internal/gdbstub"
)

// quicStreamIO adapts a single quic.Stream to the gdbstub.IO capability:
// one stream is treated as one ordered byte pipe. GDB's extended-remote
// protocol never needs more than one ordered byte stream per target, so
// a QUIC connection here carries exactly one RSP stream. Peek uses the
// same deadline-probed read connIO uses for a plain net.Conn, since
// quic.Stream exposes the same SetReadDeadline contract.
type quicStreamIO struct {
	stream  quicStream
	pending []byte
	closed  int32
}

// quicStream is the subset of quic.Stream this adapter needs, kept
// narrow so tests can fake it without a live QUIC handshake.
type quicStream interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	SetReadDeadline(t time.Time) error
}

// NewQUICStreamIO wraps an accepted QUIC stream as a gdbstub IO
// capability.
func NewQUICStreamIO(stream quicStream) gdbstub.IO {
	return &quicStreamIO{stream: stream}
}

func (q *quicStreamIO) Peek() int {
	if len(q.pending) > 0 {
		return len(q.pending)
	}
	if atomic.LoadInt32(&q.closed) != 0 {
		return 0
	}
	buf := make([]byte, 4096)
	_ = q.stream.SetReadDeadline(time.Now().Add(time.Millisecond))
	n, err := q.stream.Read(buf)
	var zero time.Time
	_ = q.stream.SetReadDeadline(zero)
	if n > 0 {
		q.pending = append(q.pending, buf[:n]...)
	}
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return len(q.pending)
		}
		atomic.StoreInt32(&q.closed, 1)
	}
	return len(q.pending)
}

func (q *quicStreamIO) Read(dst []byte) (int, gdbstub.StatusCode) {
	if len(q.pending) == 0 {
		if atomic.LoadInt32(&q.closed) != 0 {
			return 0, gdbstub.PeerDisconnected
		}
		return 0, gdbstub.TryAgain
	}
	n := copy(dst, q.pending)
	q.pending = q.pending[n:]
	return n, gdbstub.Success
}

func (q *quicStreamIO) Write(src []byte) gdbstub.StatusCode {
	if _, err := q.stream.Write(src); err != nil {
		return gdbstub.PeerDisconnected
	}
	return gdbstub.Success
}

// QUICServer listens for QUIC connections and accepts exactly one
// bidirectional stream per connection, handing it to handler as an RSP
// transport. TLS 1.3 is mandatory; NewQUICServer strengthens any weaker
// config it is given.
type QUICServer struct {
	addr   string
	tlsCfg *tls.Config
	ln     *quic.Listener
}

// NewQUICServer creates a server bound to addr. tlsCfg is strengthened
// to TLS 1.3 if the caller passed a weaker or nil config.
func NewQUICServer(addr string, tlsCfg *tls.Config) *QUICServer {
	if tlsCfg == nil {
		tlsCfg = &tls.Config{MinVersion: tls.VersionTLS13, NextProtos: []string{"gdb-rsp"}}
	} else if tlsCfg.MinVersion == 0 || tlsCfg.MinVersion < tls.VersionTLS13 {
		c := tlsCfg.Clone()
		c.MinVersion = tls.VersionTLS13
		if len(c.NextProtos) == 0 {
			c.NextProtos = []string{"gdb-rsp"}
		}
		tlsCfg = c
	}
	return &QUICServer{addr: addr, tlsCfg: tlsCfg}
}

// Start begins accepting QUIC connections, invoking handler once per
// accepted stream. Each connection yields a single stream: GDB's
// extended-remote session model has no use for multiplexed streams.
func (s *QUICServer) Start(ctx context.Context, handler func(gdbstub.IO)) error {
	ln, err := quic.ListenAddr(s.addr, s.tlsCfg, &quic.Config{})
	if err != nil {
		return err
	}
	s.ln = ln

	go func() {
		for {
			conn, err := ln.Accept(ctx)
			if err != nil {
				return
			}
			go func() {
				stream, err := conn.AcceptStream(ctx)
				if err != nil {
					return
				}
				handler(NewQUICStreamIO(stream))
			}()
		}
	}()
	return nil
}

// Stop closes the listener, aborting any in-progress Accept.
func (s *QUICServer) Stop() error {
	if s.ln == nil {
		return nil
	}
	return s.ln.Close()
}
