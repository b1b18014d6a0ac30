// SPDX-License-Identifier: GPL-3.0-or-later

package dmtcore

import (
	"context"
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// ListenTCP opens the TCP listening socket for the clear or TLS-on-connect
// port (spec.md §4.G "Server acceptor" state: socket/protocol). Unlike
// [ListenSCTP], this goes through the standard net package — TCP needs no
// ancillary-data plumbing — but still sets SO_REUSEADDR via a Control
// callback so a restarted daemon can rebind immediately, matching the
// wildcard-vs-configured-endpoints choice the SCTP listener makes.
func ListenTCP(cfg *Config, port uint16) (net.Listener, error) {
	network, address := tcpListenTarget(cfg, port)
	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}
	ln, err := lc.Listen(context.Background(), network, address)
	if err != nil {
		return nil, fmt.Errorf("%w: tcp listen %s: %s", ErrResourceExhausted, address, err)
	}
	return ln, nil
}

// tcpListenTarget picks the "tcp"/"tcp4"/"tcp6" network and bind address
// from the configured endpoint set and address-family flags: wildcard
// when no endpoints are configured, the first configured endpoint
// otherwise (a TCP listener, unlike SCTP, cannot bind more than one
// local address at once).
func tcpListenTarget(cfg *Config, port uint16) (network, address string) {
	network = "tcp"
	switch {
	case cfg.DisableIPv6:
		network = "tcp4"
	case cfg.DisableIPv4:
		network = "tcp6"
	}
	if cfg.Endpoints == nil || cfg.Endpoints.Len() == 0 {
		return network, fmt.Sprintf(":%d", port)
	}
	ep := cfg.Endpoints.List()[0]
	return network, fmt.Sprintf("%s:%d", ep.Addr, port)
}
