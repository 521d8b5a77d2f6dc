package gdbstub

import (
	ierrors "github.com/riftlane/gdbstub/internal/errors"
)

// StatusCode is the result of a core operation or a capability callback.
//
// Values and signs mirror the host-interface error codes of the protocol
// this package implements: zero is success, negative values are errors,
// and TryAgain is the lone positive value (a transport condition, not a
// failure).
type StatusCode int

const (
	Success          StatusCode = 0
	InvalidParameter StatusCode = -1
	NoMemory         StatusCode = -2
	TryAgain         StatusCode = 3
	InternalError    StatusCode = -4
	PeerDisconnected StatusCode = -5
	NotSupported     StatusCode = -6
	ProtocolViolation StatusCode = -7
	BufferOverflow   StatusCode = -8
	NotFound         StatusCode = -9
)

// String renders the status as a short, hand-written switch: no
// reflection, no fmt.Stringer-generated table.
func (s StatusCode) String() string {
	switch s {
	case Success:
		return "success"
	case InvalidParameter:
		return "invalid parameter"
	case NoMemory:
		return "no memory"
	case TryAgain:
		return "try again"
	case InternalError:
		return "internal error"
	case PeerDisconnected:
		return "peer disconnected"
	case NotSupported:
		return "not supported"
	case ProtocolViolation:
		return "protocol violation"
	case BufferOverflow:
		return "buffer overflow"
	case NotFound:
		return "not found"
	default:
		return "unknown status"
	}
}

// WireErrno maps a status code onto the two lowercase hex digits of an
// "Enn" reply per the wire mapping (-rc)&0xff. Success has no wire form;
// callers must not invoke WireErrno(Success).
func (s StatusCode) WireErrno() byte {
	return byte(-int(s)) & 0xff
}

// CallError wraps a capability-callback failure with the command byte and
// session that produced it, using the same categorized-error shape
// (internal/errors.StandardError) the rest of this module uses, but scoped
// to protocol dispatch rather than memory safety. It is never returned to
// GDB on the wire — the wire reply is always the plain Exx error packet
// replyError builds — it is surfaced through Session.LastError so an
// embedding host's own logging can see which packet caused a capability
// failure without this package doing any logging itself.
type CallError struct {
	Status  StatusCode
	Command byte
	inner   *ierrors.StandardError
}

func (e *CallError) Error() string { return e.inner.Error() }

// Unwrap exposes the wrapped *errors.StandardError so a host can
// errors.As into it for structured fields (category, session id) instead
// of parsing Error()'s text.
func (e *CallError) Unwrap() error { return e.inner }

// wrapCallError builds the CallError surfaced via Session.LastError when
// a host-supplied Target method returns a non-success status while
// serving command cmd.
func wrapCallError(sessionID string, cmd byte, status StatusCode) *CallError {
	return &CallError{
		Status:  status,
		Command: cmd,
		inner:   ierrors.TargetCallbackFailed(sessionID, cmd, status),
	}
}
