//go:build linux

package transport

import (
	"time"

	"golang.org/x/sys/unix"
)

// linuxPoller blocks on a raw epoll_wait for a single file descriptor: it
// registers one EPOLLIN interest on a fresh epoll instance and waits for
// exactly that fd to become readable. A gdbstub session only ever needs
// "is this one fd readable", so there's no multi-connection registration
// table, just the bare syscall.
type linuxPoller struct{}

var osPoller fdWaiter = linuxPoller{}

func (linuxPoller) waitReadable(fd int, timeout time.Duration) (bool, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return false, err
	}
	defer unix.Close(epfd)

	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return false, err
	}

	events := make([]unix.EpollEvent, 1)
	msTimeout := int(timeout / time.Millisecond)
	for {
		n, err := unix.EpollWait(epfd, events, msTimeout)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return false, err
		}
		if n == 0 {
			return false, nil
		}
		// EPOLLERR/EPOLLHUP still counts as "ready": the caller's next
		// Peek/Read will observe the error or EOF and report
		// PeerDisconnected itself.
		return true, nil
	}
}
