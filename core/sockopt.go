package core

import (
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// keepAlivePeriod is the idle time before the first TCP keepalive probe.
const keepAlivePeriod = 30 * time.Second

// listenConfig returns a ListenConfig that sets SO_REUSEADDR, and
// SO_REUSEPORT when reusePort is set, before bind.
func listenConfig(reusePort bool) net.ListenConfig {
	return net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var opErr error
			err := c.Control(func(fd uintptr) {
				opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
				if opErr == nil && reusePort {
					opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
				}
			})
			if err != nil {
				return err
			}
			return opErr
		},
	}
}

// tuneConn applies per-connection socket options. Failures are not fatal:
// the connection works without them.
func tuneConn(c net.Conn) error {
	tc, ok := c.(*net.TCPConn)
	if !ok {
		return nil
	}
	raw, err := tc.SyscallConn()
	if err != nil {
		return err
	}
	var opErr error
	err = raw.Control(func(fd uintptr) {
		// TCP_NODELAY: Disable Nagle's algorithm
		opErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)
		if opErr == nil {
			// SO_KEEPALIVE: Enable TCP keepalive
			opErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1)
		}
	})
	if err != nil {
		return err
	}
	if opErr != nil {
		return opErr
	}
	return tc.SetKeepAlivePeriod(keepAlivePeriod)
}
