//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd

package transport

import "time"

// fallbackPoller backs platforms without a raw epoll/kqueue binding
// (e.g. windows). It degrades to a short sleep-and-report-ready cycle;
// callers lose the true blocking wait but still get a Poller that
// eventually returns control to Session.Run instead of spinning.
type fallbackPoller struct{}

var osPoller fdWaiter = fallbackPoller{}

func (fallbackPoller) waitReadable(fd int, timeout time.Duration) (bool, error) {
	time.Sleep(10 * time.Millisecond)
	return true, nil
}
