// SPDX-License-Identifier: GPL-3.0-or-later

package dmtcore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// Transport names the underlying socket kind a [Cnx] was built over.
type Transport int

const (
	TransportTCP Transport = iota
	TransportSCTP
)

func (t Transport) String() string {
	if t == TransportSCTP {
		return "sctp"
	}
	return "tcp"
}

// cnxMode is clear (TLS off) or protected (TLS on), spec.md §4.E.
type cnxMode int

const (
	modeClear cnxMode = iota
	modeProtected
)

// HandshakeRole selects which side of the TLS handshake a [Cnx] drives.
type HandshakeRole int

const (
	RoleClient HandshakeRole = iota
	RoleServer
)

// Cnx is the per-connection context unifying TCP and SCTP send/receive,
// wire framing, and TLS handshake orchestration (spec.md §4.E). It emits
// [Event] values onto Incoming and is driven by exactly one receiver
// goroutine and at most one sending goroutine at a time (spec.md §5
// "Send... assumed to be called from at most one thread per connection").
type Cnx struct {
	PeerID    string
	Transport Transport
	Incoming  *Fifo[Event]

	cfg      *Config
	logger   SLogger
	conn     net.Conn // raw net.Conn (clear) or TLSConn (protected), always satisfies net.Conn
	sctp     *sctpConn
	mode     atomic.Int32 // cnxMode
	closing  atomic.Bool
	extraTmo atomic.Int32
	sendMu   sync.Mutex
	pairs    uint16 // negotiated SCTP stream pairs, 0 outside multi-stream mode
	wrapper  *MultiStreamWrapper
	resumes  *ResumeStore // server-side only, lazily created on first multi-stream TLS handshake
	wg       sync.WaitGroup
}

// NewClearCnx wraps an already-connected [net.Conn] in clear mode: conn
// must be either a plain TCP [net.Conn] or an [*sctpConn] produced by
// [ListenSCTP]/[SCTPDialer].
func NewClearCnx(cfg *Config, peerID string, transport Transport, conn net.Conn) *Cnx {
	c := &Cnx{
		PeerID:    peerID,
		Transport: transport,
		Incoming:  NewFifo[Event](),
		cfg:       cfg,
		logger:    cfg.Logger,
		conn:      conn,
	}
	if sc, ok := conn.(*sctpConn); ok {
		c.sctp = sc
	}
	return c
}

func (c *Cnx) currentMode() cnxMode {
	return cnxMode(c.mode.Load())
}

// MarkClosing sets the closing flag spec.md §4.E and §5 describe: a
// receiver that is blocked on a socket read tolerates exactly one more
// timeout once this flag is set before giving up, bounding shutdown
// latency to at most two socket timeouts (≤ 6s at the default 3s).
func (c *Cnx) MarkClosing() {
	c.closing.Store(true)
}

// Close shuts down the connection and waits for its receiver goroutine
// (and, in multi-stream mode, the demuxer/decipher goroutines — see
// tlswrap.go) to exit (spec.md §8 property 9 "Clean destroy").
func (c *Cnx) Close() error {
	c.MarkClosing()
	if c.wrapper != nil {
		c.wrapper.Shutdown()
		c.Incoming.Delete()
		return nil
	}
	err := c.conn.Close()
	c.wg.Wait()
	c.Incoming.Delete()
	return err
}

// Handshake drives the TLS handshake for this connection (spec.md §4.E
// "Handshake"). On success c.conn is upgraded to the negotiated
// [TLSConn] and the connection is marked protected. When the transport
// is SCTP with more than one negotiated stream pair, Handshake also
// constructs and drives the multi-stream wrapper (component F) itself:
// it starts the wrapper's demuxer, drives the master handshake over
// stream 0's shim, then hands the result to [MultiStreamWrapper.Start]
// to bring up the remaining stream pairs. Otherwise this method drives
// the single master session directly over the raw connection.
func (c *Cnx) Handshake(ctx context.Context, role HandshakeRole, tlsConfig *tls.Config) error {
	config := tlsConfig.Clone()
	if role == RoleServer {
		config.ClientAuth = tls.RequireAndVerifyClientCert
	}

	multiStream := c.Transport == TransportSCTP && c.sctp != nil && c.pairs > 1
	if multiStream && role == RoleServer {
		c.resumes = NewResumeStore()
		config.WrapSession = c.resumes.WrapSession
		config.UnwrapSession = c.resumes.UnwrapSession
	}

	master := c.conn
	if multiStream {
		// spec.md §4.E: initialize the wrapper, and start its demuxer,
		// BEFORE the master handshake so the push/pull callbacks route
		// through stream 0's fifo instead of the bare socket. The
		// master handshake's first read would otherwise block forever
		// waiting for bytes nothing is depositing.
		c.wrapper = NewMultiStreamWrapper(c.cfg, c.PeerID, c.sctp, c.pairs, role, config, c.resumes, c.Incoming)
		c.wrapper.StartDemux()
		master = c.wrapper.subs[0].shim
	}

	hf := NewTLSHandshakeFunc(c.cfg, config, c.logger)
	if role == RoleServer {
		hf.Engine = serverTLSEngine{}
	}
	tconn, err := hf.Call(ctx, master)
	if err != nil {
		if multiStream {
			// StartDemux already launched the demuxer goroutine against
			// the real socket; it must be joined, not merely forgotten.
			c.wrapper.Shutdown()
		}
		c.wrapper = nil
		return fmt.Errorf("%w: %s", ErrTLSFatal, err)
	}

	if multiStream {
		if err := c.wrapper.Start(ctx, tconn); err != nil {
			c.wrapper = nil
			return err
		}
	} else {
		c.conn = tconn
	}
	c.mode.Store(int32(modeProtected))
	return nil
}

// serverTLSEngine is [TLSEngineStdlib] except it builds a server-side
// [*tls.Conn]; [TLSHandshakeFunc] otherwise always dials client-side.
type serverTLSEngine struct{}

func (serverTLSEngine) Client(conn net.Conn, config *tls.Config) TLSConn {
	return tls.Server(conn, config)
}
func (serverTLSEngine) Name() string   { return "stdlib" }
func (serverTLSEngine) Parrot() string { return "" }

// Run starts the receiver goroutine appropriate to this connection's
// transport and mode (spec.md §4.E). It returns immediately; events
// arrive on c.Incoming until a fatal error or [Cnx.Close]. When a
// multi-stream TLS wrapper is engaged, its own demuxer/decipher threads
// (started by [Cnx.Handshake]) already feed c.Incoming and Run is a
// no-op.
func (c *Cnx) Run() {
	if c.wrapper != nil {
		return
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		switch {
		case c.Transport == TransportSCTP && c.currentMode() == modeClear:
			c.runSCTPClearReceiver()
		default:
			c.runFramedReceiver()
		}
	}()
}

// runFramedReceiver covers TCP (clear or TLS-inline) and single-stream
// SCTP-with-TLS, since once c.conn is a [TLSConn] or a plain TCP
// [net.Conn], [ReadFramedMessage] works identically over either — both
// satisfy [io.Reader] (spec.md §4.E "Framed TCP reader" / "TLS inline
// reader").
func (c *Cnx) runFramedReceiver() {
	for {
		msg, err := c.readOneFrame()
		if err != nil {
			if errors.Is(err, errReceiverShuttingDown) {
				return
			}
			c.Incoming.Post(NewCnxErrorEvent(c.PeerID, err))
			return
		}
		c.Incoming.Post(NewMsgRecvEvent(c.PeerID, msg, 0))
	}
}

// errReceiverShuttingDown is a private sentinel distinguishing a clean
// shutdown (no event posted) from a genuine CNX_ERROR.
var errReceiverShuttingDown = errors.New("cnx: receiver shutting down")

// readOneFrame implements spec.md §4.E's "Socket timeout" rule: every
// read carries the configured socket timeout; a timeout is retried
// indefinitely while the connection is open, but once MarkClosing has
// been called exactly one further timeout is tolerated before the
// receiver gives up.
func (c *Cnx) readOneFrame() ([]byte, error) {
	maxMsgSize := uint32(DefaultMaxMsgSize)
	for {
		deadline := c.cfg.TimeNow().Add(c.cfg.SocketTimeout)
		if err := c.conn.SetReadDeadline(deadline); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrResourceExhausted, err)
		}
		msg, err := ReadFramedMessage(c.conn, maxMsgSize)
		if err == nil {
			c.extraTmo.Store(0)
			return msg, nil
		}
		if errors.Is(err, ErrTransportTransient) {
			if c.closing.Load() {
				if c.extraTmo.Add(1) > 1 {
					return nil, errReceiverShuttingDown
				}
				continue
			}
			continue
		}
		if c.closing.Load() {
			return nil, errReceiverShuttingDown
		}
		return nil, err
	}
}

// runSCTPClearReceiver implements spec.md §4.C's "Framed receive" for
// an unprotected multi-stream association: each reassembled message is
// classified as a notification (→ CNX_EP_CHANGE / CNX_ERROR) or a
// stream message (→ MSG_RECV carrying the originating stream id).
func (c *Cnx) runSCTPClearReceiver() {
	for {
		payload, streamID, kind, err := c.sctp.ReceiveFramed()
		if err != nil {
			if errors.Is(err, ErrTransportTransient) {
				if c.closing.Load() {
					if c.extraTmo.Add(1) > 1 {
						return
					}
					continue
				}
				continue
			}
			if c.closing.Load() {
				return
			}
			c.Incoming.Post(NewCnxErrorEvent(c.PeerID, err))
			return
		}
		c.extraTmo.Store(0)
		switch kind {
		case notificationEPChange:
			c.Incoming.Post(NewCnxEPChangeEvent(c.PeerID, Endpoint{}))
		case notificationError:
			c.Incoming.Post(NewCnxErrorEvent(c.PeerID, fmt.Errorf("%w: sctp notification", ErrTransportClosed)))
			return
		default:
			c.Incoming.Post(NewMsgRecvEvent(c.PeerID, payload, streamID))
		}
	}
}

// Send implements spec.md §4.E's "Send": synchronous, single-writer,
// framed. On an SCTP connection with negotiated pairs (through the
// multi-stream TLS wrapper when it is engaged, otherwise directly on the
// socket), messages round-robin across streams [1, pairs-1] via
// [sctpConn.NextRoundRobinStream]; every other transport/mode
// combination uses the inline path.
func (c *Cnx) Send(msg []byte) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.wrapper != nil {
		stream := c.sctp.NextRoundRobinStream(c.pairs)
		return c.wrapper.Send(stream, msg)
	}

	deadline := c.cfg.TimeNow().Add(c.cfg.SocketTimeout)
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("%w: %s", ErrResourceExhausted, err)
	}

	if c.Transport == TransportSCTP && c.sctp != nil && c.pairs > 0 {
		stream := c.sctp.NextRoundRobinStream(c.pairs)
		return c.sctp.SendStream(stream, msg)
	}
	return c.writeAll(msg)
}

// writeAll loops until the full buffer is written (spec.md §4.E "On
// partial writes, loop until the full buffer is sent"). It retries only
// after a write timeout while the connection is not closing; any other
// error, or a timeout once closing, ends the send with [ErrTransportClosed].
func (c *Cnx) writeAll(msg []byte) error {
	for written := 0; written < len(msg); {
		n, err := c.conn.Write(msg[written:])
		written += n
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() && !c.closing.Load() {
				continue
			}
			return fmt.Errorf("%w: %s", ErrTransportClosed, err)
		}
	}
	return nil
}

// SetNegotiatedPairs records pairs = min(str_in, str_out). It must be
// called before [Cnx.Handshake], which engages the multi-stream wrapper
// only when pairs > 1 ([DialPeer] does this) (spec.md §9 "likely bugs": this core
// deliberately picks min, not max, as the safe common subset — see
// DESIGN.md).
func (c *Cnx) SetNegotiatedPairs(pairs uint16) {
	c.pairs = pairs
}

// TimeNow returns this connection's configured clock (spec.md §6),
// for callers such as [OutSender] that log a send timestamp but keep
// no [*Config] of their own.
func (c *Cnx) TimeNow() time.Time {
	return c.cfg.TimeNow()
}
