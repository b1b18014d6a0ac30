// SPDX-License-Identifier: GPL-3.0-or-later

package dmtcore

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
)

// AcceptorStatus mirrors spec.md §4.G's status enum.
type AcceptorStatus int32

const (
	AcceptorNotCreated AcceptorStatus = iota
	AcceptorRunning
	AcceptorTerminated
)

// AcceptedClient is what [Acceptor] hands off to the surrounding peer
// layer once a client connection clears its handshake (spec.md §4.G
// "hands off to the external peer layer"). The peer layer decides
// whether to run CER/CEA and eventually promote the connection to
// [PeerOpen]; this core's job ends at producing a validated [*Cnx].
type AcceptedClient struct {
	Cnx        *Cnx
	RemoteAddr net.Addr
}

// Acceptor is the server-side listening loop (spec.md §4.G). Transport
// selects TCP or SCTP; SecureOnConnect selects whether each accepted
// client immediately drives a server-mode TLS handshake (the dedicated
// TLS port) or stays clear (TLS-inband negotiation happens later, out of
// this core's scope).
type Acceptor struct {
	Transport        Transport
	SecureOnConnect  bool
	ServName         string
	TLSConfig        *tls.Config

	cfg      *Config
	listener net.Listener
	status   atomic.Int32

	clientsMu sync.Mutex
	clients   []*Cnx

	Clients chan AcceptedClient
	Events  *Fifo[Event]
}

// NewAcceptor constructs an [*Acceptor] bound to an already-listening
// socket (see [ListenTCP]/[ListenSCTP]).
func NewAcceptor(cfg *Config, transport Transport, listener net.Listener, servName string) *Acceptor {
	return &Acceptor{
		Transport: transport,
		ServName:  servName,
		cfg:       cfg,
		listener:  listener,
		Clients:   make(chan AcceptedClient, 16),
		Events:    NewFifo[Event](),
	}
}

// Status returns the acceptor's current [AcceptorStatus].
func (a *Acceptor) Status() AcceptorStatus {
	return AcceptorStatus(a.status.Load())
}

// Run implements spec.md §4.G's acceptor loop: accept repeatedly, spawn
// a per-client handshake goroutine for each. It returns when the
// listener is closed or ctx is cancelled.
func (a *Acceptor) Run(ctx context.Context) {
	a.status.Store(int32(AcceptorRunning))
	defer a.status.Store(int32(AcceptorTerminated))

	for {
		conn, err := a.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
			}
			a.Events.Post(Event{Kind: EventTerminate, Err: fmt.Errorf("%w: accept: %s", ErrTransportClosed, err)})
			return
		}
		go a.handleClient(ctx, conn)
	}
}

// handleClient implements spec.md §4.G's per-client thread: wrap the
// raw socket in a [*Cnx], optionally drive a server-mode handshake, then
// register the client under lock. Any error at or before registration
// tears the connection down silently; an error after registration
// raises TERMINATE on the acceptor's event fifo, matching the acceptor
// loop's own error exit.
func (a *Acceptor) handleClient(ctx context.Context, conn net.Conn) {
	cnx := NewClearCnx(a.cfg, conn.RemoteAddr().String(), a.Transport, conn)

	if a.SecureOnConnect {
		hctx, cancel := context.WithTimeout(ctx, a.cfg.IncomingHandshakeTimeout)
		defer cancel()
		if err := cnx.Handshake(hctx, RoleServer, a.TLSConfig); err != nil {
			a.cfg.Logger.Warn("acceptorHandshakeFailed",
				slog.String("remoteAddr", conn.RemoteAddr().String()),
				slog.Any("err", err),
			)
			conn.Close()
			return
		}
	}

	if !a.registerClient(cnx) {
		cnx.Close()
		return
	}

	cnx.Run()
	select {
	case a.Clients <- AcceptedClient{Cnx: cnx, RemoteAddr: conn.RemoteAddr()}:
	case <-ctx.Done():
		a.Events.Post(Event{Kind: EventTerminate, Err: fmt.Errorf("%w: acceptor shutting down mid-handoff", ErrTransportClosed)})
	}
}

// registerClient inserts cnx into the acceptor's client list under lock,
// reporting whether the acceptor is still accepting registrations.
func (a *Acceptor) registerClient(cnx *Cnx) bool {
	a.clientsMu.Lock()
	defer a.clientsMu.Unlock()
	if a.Status() == AcceptorTerminated {
		return false
	}
	a.clients = append(a.clients, cnx)
	return true
}

// Shutdown closes the listening socket and every registered client
// connection (spec.md §8 property 9 "Clean destroy").
func (a *Acceptor) Shutdown() error {
	err := a.listener.Close()
	a.clientsMu.Lock()
	clients := a.clients
	a.clients = nil
	a.clientsMu.Unlock()
	for _, c := range clients {
		c.Close()
	}
	a.Events.Delete()
	return err
}
