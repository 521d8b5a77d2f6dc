//go:build darwin || freebsd || netbsd || openbsd

package transport

import (
	"time"

	"golang.org/x/sys/unix"
)

// bsdPoller blocks on a raw kevent call for a single file descriptor: it
// registers one EVFILT_READ interest on a fresh kqueue and waits for
// exactly that fd to become readable, without any multi-connection
// registration table — a gdbstub session only ever waits on one fd at a
// time.
type bsdPoller struct{}

var osPoller fdWaiter = bsdPoller{}

func (bsdPoller) waitReadable(fd int, timeout time.Duration) (bool, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return false, err
	}
	defer unix.Close(kq)

	changes := []unix.Kevent_t{{
		Ident:  uint64(fd),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
	}}
	if _, err := unix.Kevent(kq, changes, nil, nil); err != nil {
		return false, err
	}

	ts := unix.NsecToTimespec(timeout.Nanoseconds())
	events := make([]unix.Kevent_t, 1)
	for {
		n, err := unix.Kevent(kq, nil, events, &ts)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return false, err
		}
		if n == 0 {
			return false, nil
		}
		// EV_ERROR still counts as "ready": the caller's next
		// Peek/Read will observe the failure itself.
		return true, nil
	}
}
