package core

import (
	"errors"
	"io"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

// Error definitions
var (
	ErrServerClosed   = errors.New("core: server closed")
	ErrAlreadyServing = errors.New("core: engine is already serving")
	ErrRoutesFrozen   = errors.New("core: routes cannot change after the engine started")
)

// isConnGone reports IO errors that end a connection without a response:
// the peer went away, the socket was closed, or a deadline expired.
func isConnGone(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrDeadlineExceeded) ||
		errors.Is(err, unix.ECONNRESET) ||
		errors.Is(err, unix.EPIPE) ||
		errors.Is(err, unix.ECONNABORTED)
}

// closeReason names the cause of a silent close for the log.
func closeReason(err error) string {
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
		return "eof"
	case errors.Is(err, os.ErrDeadlineExceeded):
		return "timeout"
	case errors.Is(err, unix.ECONNRESET):
		return "reset"
	case errors.Is(err, unix.EPIPE):
		return "broken pipe"
	case errors.Is(err, net.ErrClosed):
		return "closed"
	}
	return "io error"
}

// isListenerGone reports accept errors that mean the listening socket
// itself is unusable. Anything else belongs to a single pending client or
// to resource exhaustion, and the accept loop backs off and retries.
func isListenerGone(err error) bool {
	return errors.Is(err, net.ErrClosed) ||
		errors.Is(err, unix.EBADF) ||
		errors.Is(err, unix.EINVAL) ||
		errors.Is(err, unix.ENOTSOCK)
}
