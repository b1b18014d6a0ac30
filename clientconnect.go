// SPDX-License-Identifier: GPL-3.0-or-later

package dmtcore

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/netip"
)

// DialPeer implements spec.md §4.C's "Client connect" together with
// §4.E's "Handshake" (mode CLIENT): dial addr, optionally drive the
// client-side TLS handshake, and return a ready [*Cnx].
//
// For TCP, the dial runs through the observe→cancel-watch pipeline
// (component-level composition via [Compose3]) so every client
// connection gets the same I/O logging and responsive-cancellation
// behavior as the rest of this core's [Func] primitives. SCTP skips
// that wrapping: [Cnx] needs the concrete [*sctpConn] underneath for
// [sctpConn.ReceiveFramed]/[sctpConn.SendStream], which an
// [*observedConn]/[*cancelWatchedConn] wrapper would hide.
//
// pairs is the negotiated SCTP stream-pair count (0 for TCP or a
// single-stream SCTP association); the caller determines it from the
// association's INIT ACK, which this transport does not itself expose.
func DialPeer(ctx context.Context, cfg *Config, peerID string, transport Transport,
	addr netip.AddrPort, pairs uint16, tlsConfig *tls.Config) (*Cnx, error) {
	network := "tcp"
	if transport == TransportSCTP {
		network = "sctp"
	}

	connectFn := NewConnectFunc(cfg, network, cfg.Logger)
	var conn net.Conn
	var err error
	if transport == TransportSCTP {
		conn, err = connectFn.Call(ctx, addr)
	} else {
		pipeline := Compose3(connectFn, NewObserveConnFunc(cfg, cfg.Logger), NewCancelWatchFunc())
		conn, err = pipeline.Call(ctx, addr)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s %s: %s", ErrTransportTransient, network, addr, err)
	}

	cnx := NewClearCnx(cfg, peerID, transport, conn)
	if transport == TransportSCTP && pairs > 0 {
		cnx.SetNegotiatedPairs(pairs)
	}
	if tlsConfig != nil {
		if err := cnx.Handshake(ctx, RoleClient, tlsConfig); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return cnx, nil
}
