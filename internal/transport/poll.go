package transport

import (
	"errors"
	"net"
	"syscall"
	"time"

	"github.com/riftlane/gdbstub/internal/gdbstub"
)

// pollTimeout bounds each underlying epoll_wait/kevent call so Poll can
// reliably detect the gdbstub.TryAgain case and hand control back to the
// caller instead of blocking forever on a dead connection.
const pollTimeout = 2 * time.Second

// fdWaiter is satisfied by the OS-specific poller built in poll_linux.go
// or poll_bsd.go: block until fd is readable, the deadline elapses, or
// an error occurs.
type fdWaiter interface {
	waitReadable(fd int, timeout time.Duration) (ready bool, err error)
}

var errNoRawConn = errors.New("transport: connection does not expose a raw file descriptor")

// connFD extracts the integer file descriptor backing conn so the
// OS-specific poller can wait on it directly instead of going through
// net.Conn's buffered read path.
func connFD(conn net.Conn) (int, error) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return -1, errNoRawConn
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return -1, err
	}
	var fd int
	var ctrlErr error
	err = raw.Control(func(f uintptr) {
		fd = int(f)
	})
	if err != nil {
		return -1, err
	}
	if ctrlErr != nil {
		return -1, ctrlErr
	}
	return fd, nil
}

// connPoller implements gdbstub.Poller over a net.Conn's raw file
// descriptor, letting Session.Run block in the kernel instead of
// spin-polling when the transport has nothing to read.
type connPoller struct {
	conn net.Conn
}

// NewConnPoller builds a Poller for any net.Conn that exposes a raw file
// descriptor via syscall.Conn (TCP and Unix sockets qualify; a
// net.Pipe() does not, and should simply be run without a Poller — Run
// falls back to TryAgain in that case).
func NewConnPoller(conn net.Conn) (gdbstub.Poller, error) {
	if _, err := connFD(conn); err != nil {
		return nil, err
	}
	return &connPoller{conn: conn}, nil
}

func (p *connPoller) Poll() gdbstub.StatusCode {
	fd, err := connFD(p.conn)
	if err != nil {
		return gdbstub.InternalError
	}
	ready, err := osPoller.waitReadable(fd, pollTimeout)
	if err != nil {
		return gdbstub.PeerDisconnected
	}
	if !ready {
		return gdbstub.TryAgain
	}
	return gdbstub.Success
}
