// SPDX-License-Identifier: GPL-3.0-or-later

package dmtcore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sync"
	"time"

	"golang.org/x/sys/unix"
)

// SCTP protocol numbers and socket-option names from Linux's
// netinet/sctp.h. golang.org/x/sys/unix does not export these (SCTP gets
// no special-cased support the way TCP/UDP do), so component C talks to
// the kernel directly via [unix.Socket]/[unix.SetsockoptInt]/raw
// sendmsg-recvmsg rather than through the net package.
const (
	sctpIPProto = 132 // IPPROTO_SCTP

	sctpRTOInfo              = 0
	sctpAssocInfo             = 1
	sctpInitMsg               = 2
	sctpNoDelay               = 3
	sctpDisableFragments      = 8
	sctpPeerAddrParams        = 9
	sctpEvents                = 11
	sctpAutoASCONF            = 30
	sctpMaxSeg                = 13
	sctpFragmentInterleave    = 18
	sctpSockoptBindxAdd       = 100
	sctpSockoptBindxRem       = 101
	sctpSockoptConnectx       = 110

	// sctpCmsgSndRcv is the ancillary-data type carrying per-message
	// stream routing (struct sctp_sndrcvinfo).
	sctpCmsgSndRcv = 1

	// sctpSndRcvInfoSize is sizeof(struct sctp_sndrcvinfo) on Linux/amd64
	// and arm64: three uint16 fields, 2 bytes padding to restore 4-byte
	// alignment, then five uint32 fields and a 4-byte association id.
	sctpSndRcvInfoSize = 32
)

// sctpInitMsgParams mirrors struct sctp_initmsg.
type sctpInitMsgParams struct {
	NumOStreams    uint16
	MaxInStreams   uint16
	MaxAttempts    uint16
	MaxInitTimeout uint16
}

func (p sctpInitMsgParams) bytes() []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint16(buf[0:], p.NumOStreams)
	binary.LittleEndian.PutUint16(buf[2:], p.MaxInStreams)
	binary.LittleEndian.PutUint16(buf[4:], p.MaxAttempts)
	binary.LittleEndian.PutUint16(buf[6:], p.MaxInitTimeout)
	return buf
}

// sctpEventSubscribe mirrors struct sctp_event_subscribe: one byte per
// notification class. spec.md §4.C requires data-io, address-change,
// send-failure, peer-error, shutdown and partial-delivery; association
// events are explicitly left off.
type sctpEventSubscribe struct {
	dataIO, association, addressChange, sendFailure,
	peerError, shutdown, partialDelivery, adaptationLayer, authentication byte
}

func (e sctpEventSubscribe) bytes() []byte {
	return []byte{
		e.dataIO, e.association, e.addressChange, e.sendFailure,
		e.peerError, e.shutdown, e.partialDelivery, e.adaptationLayer, e.authentication,
	}
}

// defaultSCTPEvents implements the exact subscription list from spec.md
// §4.C: every notification this core acts on, nothing else.
var defaultSCTPEvents = sctpEventSubscribe{
	dataIO:          1,
	association:     0,
	addressChange:   1,
	sendFailure:     1,
	peerError:       1,
	shutdown:        1,
	partialDelivery: 1,
}

// sctpSndRcvInfo mirrors struct sctp_sndrcvinfo, the ancillary payload
// that both names the outbound stream on send and reports the inbound
// stream/flags on receive.
type sctpSndRcvInfo struct {
	Stream  uint16
	SSN     uint16
	Flags   uint16
	_       uint16 // alignment padding, not present in the C source
	PPID    uint32
	Context uint32
	TTL     uint32
	TSN     uint32
	CumTSN  uint32
	AssocID int32
}

func (s sctpSndRcvInfo) bytes() []byte {
	buf := make([]byte, sctpSndRcvInfoSize)
	binary.LittleEndian.PutUint16(buf[0:], s.Stream)
	binary.LittleEndian.PutUint16(buf[2:], s.SSN)
	binary.LittleEndian.PutUint16(buf[4:], s.Flags)
	binary.LittleEndian.PutUint32(buf[8:], s.PPID)
	binary.LittleEndian.PutUint32(buf[12:], s.Context)
	binary.LittleEndian.PutUint32(buf[16:], s.TTL)
	binary.LittleEndian.PutUint32(buf[20:], s.TSN)
	binary.LittleEndian.PutUint32(buf[24:], s.CumTSN)
	binary.LittleEndian.PutUint32(buf[28:], uint32(s.AssocID))
	return buf
}

func parseSCTPSndRcvInfo(buf []byte) (sctpSndRcvInfo, bool) {
	if len(buf) < sctpSndRcvInfoSize {
		return sctpSndRcvInfo{}, false
	}
	return sctpSndRcvInfo{
		Stream:  binary.LittleEndian.Uint16(buf[0:]),
		SSN:     binary.LittleEndian.Uint16(buf[2:]),
		Flags:   binary.LittleEndian.Uint16(buf[4:]),
		PPID:    binary.LittleEndian.Uint32(buf[8:]),
		Context: binary.LittleEndian.Uint32(buf[12:]),
		TTL:     binary.LittleEndian.Uint32(buf[16:]),
		TSN:     binary.LittleEndian.Uint32(buf[20:]),
		CumTSN:  binary.LittleEndian.Uint32(buf[24:]),
		AssocID: int32(binary.LittleEndian.Uint32(buf[28:])),
	}, true
}

// notificationKind classifies an SCTP notification for the framed
// receiver (spec.md §4.C "Framed receive").
type notificationKind int

const (
	notificationNone notificationKind = iota
	notificationEPChange
	notificationError
)

// sctpNotificationType values, from struct sctp_notification's
// sn_header.sn_type (netinet/sctp.h): SCTP_SN_TYPE_BASE (1<<15) plus one
// per type.
const (
	sctpAssocChange    = 0x8001
	sctpPeerAddrChange = 0x8002
	sctpSendFailedEvt  = 0x8003
	sctpRemoteError    = 0x8004
	sctpShutdownEvt    = 0x8005
	sctpPartialDeliveryEvt = 0x8006
)

func classifySCTPNotification(notifType uint16) notificationKind {
	switch notifType {
	case sctpPeerAddrChange, sctpAssocChange:
		return notificationEPChange
	case sctpSendFailedEvt, sctpRemoteError, sctpShutdownEvt:
		return notificationError
	default:
		return notificationError
	}
}

// newSCTPRawSocket creates a one-to-one style SCTP socket and applies
// every pre-bind option in the exact order spec.md §4.C requires: later
// options build on state established by earlier ones.
func newSCTPRawSocket(family int, cfg *Config) (int, error) {
	fd, err := unix.Socket(family, unix.SOCK_STREAM, sctpIPProto)
	if err != nil {
		return -1, fmt.Errorf("%w: sctp socket: %s", ErrResourceExhausted, err)
	}
	if err := applySCTPPreBindOptions(fd, family, cfg); err != nil {
		unix.Close(fd)
		return -1, err
	}
	return fd, nil
}

func applySCTPPreBindOptions(fd, family int, cfg *Config) error {
	if err := unix.SetsockoptString(fd, sctpIPProto, sctpEvents, string(defaultSCTPEvents.bytes())); err != nil {
		return fmt.Errorf("%w: SCTP_EVENTS: %s", ErrConfigInvalid, err)
	}

	initTimeout := uint16(cfg.Tc / time.Second)
	init := sctpInitMsgParams{NumOStreams: cfg.SCTPStreams, MaxInitTimeout: initTimeout}
	if err := unix.SetsockoptString(fd, sctpIPProto, sctpInitMsg, string(init.bytes())); err != nil {
		return fmt.Errorf("%w: SCTP_INITMSG: %s", ErrConfigInvalid, err)
	}

	// DISABLE_FRAGMENTS = false: let the kernel deliver partial fragments
	// with EOR marking instead of reassembling them itself; the TLS
	// wrapper and inline reader need to see record boundaries.
	if err := unix.SetsockoptInt(fd, sctpIPProto, sctpDisableFragments, 0); err != nil {
		return fmt.Errorf("%w: SCTP_DISABLE_FRAGMENTS: %s", ErrConfigInvalid, err)
	}

	rto := int(cfg.Tw/time.Second)/2 - 1
	if rto < 1 {
		rto = 1
	}
	if err := unix.SetsockoptInt(fd, sctpIPProto, sctpRTOInfo, rto); err != nil {
		return fmt.Errorf("%w: SCTP_RTOINFO: %s", ErrConfigInvalid, err)
	}
	if err := unix.SetsockoptInt(fd, sctpIPProto, sctpAssocInfo, 5); err != nil {
		return fmt.Errorf("%w: SCTP_ASSOCINFO max retransmits: %s", ErrConfigInvalid, err)
	}

	// Disable lingering: closing aborts the association instead of
	// waiting out a graceful shutdown.
	if err := unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{Onoff: 1, Linger: 0}); err != nil {
		return fmt.Errorf("%w: SO_LINGER: %s", ErrConfigInvalid, err)
	}

	if err := unix.SetsockoptInt(fd, sctpIPProto, sctpFragmentInterleave, 1); err != nil {
		return fmt.Errorf("%w: SCTP_FRAGMENT_INTERLEAVE: %s", ErrConfigInvalid, err)
	}

	if family == unix.AF_INET6 && cfg.DisableIPv4 {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 1); err != nil {
			return fmt.Errorf("%w: IPV6_V6ONLY: %s", ErrConfigInvalid, err)
		}
	}
	return nil
}

// setSCTPSocketTimeouts installs timeout (callers pass
// Config.SocketTimeout, default 3s) as the send/receive timeout, via SO_RCVTIMEO/SO_SNDTIMEO
// rather than Go deadlines, since this transport bypasses net's runtime
// poller entirely.
func setSCTPSocketTimeouts(fd int, timeout time.Duration) error {
	tv := unix.NsecToTimeval(timeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		return err
	}
	return unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv)
}

// SCTPListener accepts incoming SCTP associations (spec.md §4.C "Server
// bind"), implementing [net.Listener].
type SCTPListener struct {
	fd       int
	family   int
	addr     net.Addr
	cfg      *Config
	closeMu  sync.Mutex
	closed   bool
}

var _ net.Listener = (*SCTPListener)(nil)

// ListenSCTP binds and listens for SCTP associations per spec.md §4.C:
// multi-address bind when cfg.Endpoints lists explicit addresses,
// wildcard bind otherwise, with auto-ASCONF enabled only in the
// wildcard case.
func ListenSCTP(cfg *Config, port uint16) (*SCTPListener, error) {
	family := unix.AF_INET6
	if cfg.DisableIPv6 {
		family = unix.AF_INET
	}
	fd, err := newSCTPRawSocket(family, cfg)
	if err != nil {
		return nil, err
	}
	wildcard := cfg.Endpoints == nil || cfg.Endpoints.Len() == 0
	if err := bindSCTP(fd, family, cfg, port, wildcard); err != nil {
		unix.Close(fd)
		return nil, err
	}
	if wildcard {
		if err := unix.SetsockoptInt(fd, sctpIPProto, sctpAutoASCONF, 1); err != nil {
			// Auto-ASCONF is best-effort: a kernel lacking dynamic
			// address reconfiguration should not prevent listening.
			_ = err
		}
	}
	if err := unix.Listen(fd, 5); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: sctp listen: %s", ErrResourceExhausted, err)
	}
	return &SCTPListener{fd: fd, family: family, cfg: cfg, addr: sctpAddrOf(fd, false)}, nil
}

func bindSCTP(fd, family int, cfg *Config, port uint16, wildcard bool) error {
	if wildcard {
		sa := wildcardSockaddr(family, port)
		if err := unix.Bind(fd, sa); err != nil {
			return fmt.Errorf("%w: sctp bind wildcard: %s", ErrResourceExhausted, err)
		}
		return nil
	}
	// Multi-address bind: bind the first candidate normally, then
	// SCTP_SOCKOPT_BINDX_ADD the rest onto the same socket.
	eps := cfg.Endpoints.List()
	first := sockaddrFromEndpoint(eps[0], port)
	if err := unix.Bind(fd, first); err != nil {
		return fmt.Errorf("%w: sctp bind primary: %s", ErrResourceExhausted, err)
	}
	for _, ep := range eps[1:] {
		raw := rawSockaddrBytes(ep, port)
		if err := unix.SetsockoptString(fd, sctpIPProto, sctpSockoptBindxAdd, string(raw)); err != nil {
			return fmt.Errorf("%w: sctp bindx add %s: %s", ErrResourceExhausted, ep.Addr, err)
		}
	}
	return nil
}

func wildcardSockaddr(family int, port uint16) unix.Sockaddr {
	if family == unix.AF_INET {
		return &unix.SockaddrInet4{Port: int(port)}
	}
	return &unix.SockaddrInet6{Port: int(port)}
}

func sockaddrFromEndpoint(ep Endpoint, port uint16) unix.Sockaddr {
	addr := ep.Addr
	if addr.Is4() {
		return &unix.SockaddrInet4{Port: int(port), Addr: addr.As4()}
	}
	return &unix.SockaddrInet6{Port: int(port), Addr: addr.As16()}
}

// rawSockaddrBytes produces the flat sockaddr_in/sockaddr_in6 encoding
// SCTP_SOCKOPT_BINDX_ADD and SCTP_SOCKOPT_CONNECTX expect: one raw
// sockaddr per candidate, concatenated by the caller.
func rawSockaddrBytes(ep Endpoint, port uint16) []byte {
	if ep.Addr.Is4() {
		buf := make([]byte, 16)
		buf[0] = unix.AF_INET
		binary.BigEndian.PutUint16(buf[2:], port)
		a := ep.Addr.As4()
		copy(buf[4:8], a[:])
		return buf
	}
	buf := make([]byte, 28)
	buf[0] = unix.AF_INET6
	binary.BigEndian.PutUint16(buf[2:], port)
	a := ep.Addr.As16()
	copy(buf[8:24], a[:])
	return buf
}

// Accept implements [net.Listener].
func (l *SCTPListener) Accept() (net.Conn, error) {
	nfd, _, err := unix.Accept4(l.fd, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: sctp accept: %s", ErrTransportClosed, err)
	}
	if err := setSCTPSocketTimeouts(nfd, l.cfg.SocketTimeout); err != nil {
		unix.Close(nfd)
		return nil, fmt.Errorf("%w: sctp accepted-socket timeout: %s", ErrResourceExhausted, err)
	}
	return newSCTPConn(nfd, l.cfg), nil
}

// Close implements [net.Listener].
func (l *SCTPListener) Close() error {
	l.closeMu.Lock()
	defer l.closeMu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return unix.Close(l.fd)
}

// Addr implements [net.Listener].
func (l *SCTPListener) Addr() net.Addr {
	return l.addr
}

// SCTPDialer implements [Dialer] for the "sctp" network, dialing a
// multi-address candidate set built from [EndpointSet.CandidateOrder]
// (spec.md §4.C "Client connect").
type SCTPDialer struct {
	Config     *Config
	RemoteSet  *EndpointSet
	PreferIPv6 bool
}

var _ Dialer = (*SCTPDialer)(nil)

// DialContext implements [Dialer]. network must be "sctp"; address is a
// "host:port" string used only to extract the port, since the candidate
// address array comes from d.RemoteSet.
func (d *SCTPDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if network != "sctp" {
		return nil, fmt.Errorf("%w: SCTPDialer only supports \"sctp\", got %q", ErrConfigInvalid, network)
	}
	_, portStr, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrConfigInvalid, err)
	}
	var port uint16
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		return nil, fmt.Errorf("%w: invalid port %q", ErrConfigInvalid, portStr)
	}

	candidates := d.RemoteSet.CandidateOrder(d.PreferIPv6)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no candidate endpoints to connect to", ErrTransportTransient)
	}

	family := unix.AF_INET6
	if candidates[0].Addr.Is4() {
		family = unix.AF_INET
	}
	fd, err := newSCTPRawSocket(family, d.Config)
	if err != nil {
		return nil, err
	}
	if err := setSCTPSocketTimeouts(fd, d.Config.SocketTimeout); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: sctp socket timeout: %s", ErrResourceExhausted, err)
	}

	var raw []byte
	for _, ep := range candidates {
		raw = append(raw, rawSockaddrBytes(ep, port)...)
	}
	if err := unix.SetsockoptString(fd, sctpIPProto, sctpSockoptConnectx, string(raw)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("%w: sctp connectx: %s", ErrTransportTransient, err)
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = deadline // enforced by the 3s-timeout loop inside send/receive, not the connect itself
	}
	return newSCTPConn(fd, d.Config), nil
}

// sctpConn is a [net.Conn] over a raw one-to-one SCTP socket, used both
// for the single-stream inline path and as the demuxer's underlying
// transport in the multi-stream TLS wrapper (component F).
type sctpConn struct {
	fd        int
	cfg       *Config
	closeOnce sync.Once
	streamRR  uint32 // round-robin cursor for component H's send path
}

var _ net.Conn = (*sctpConn)(nil)

func newSCTPConn(fd int, cfg *Config) *sctpConn {
	return &sctpConn{fd: fd, cfg: cfg}
}

// Read implements [net.Conn] for the common case of a single-stream
// association: it strips the ancillary data and returns only the
// message payload. Component E's framed readers call
// [sctpConn.ReceiveFramed] instead when stream ids or notifications
// matter.
func (c *sctpConn) Read(p []byte) (int, error) {
	n, _, _, err := c.recvmsg(p)
	return n, err
}

// ReceiveFramed implements spec.md §4.C's "Framed receive": it
// repeatedly reads fragments into a growing buffer until the kernel
// reports end-of-record, then classifies the result as a notification
// (translated to EP_CHANGE/CNX_ERROR by the caller) or a stream message.
func (c *sctpConn) ReceiveFramed() (payload []byte, streamID uint16, kind notificationKind, err error) {
	var buf []byte
	chunk := make([]byte, 4096)
	for {
		n, info, eor, rerr := c.recvmsg(chunk)
		if rerr != nil {
			return nil, 0, notificationNone, rerr
		}
		buf = append(buf, chunk[:n]...)
		if info.isNotification {
			if eor {
				return buf, 0, classifySCTPNotification(info.notifType), nil
			}
			continue
		}
		if eor {
			return buf, info.info.Stream, notificationNone, nil
		}
	}
}

type recvInfo struct {
	info           sctpSndRcvInfo
	isNotification bool
	notifType      uint16
}

// recvmsg wraps unix.Recvmsg, parsing the SCTP_SNDRCV ancillary block
// when present and reading the end-of-record flag from MSG_EOR.
func (c *sctpConn) recvmsg(p []byte) (int, recvInfo, bool, error) {
	oob := make([]byte, 128)
	n, oobn, flags, _, err := unix.Recvmsg(c.fd, p, oob, 0)
	if err != nil {
		return 0, recvInfo{}, false, classifySCTPErr(err)
	}
	var ri recvInfo
	if oobn > 0 {
		msgs, perr := unix.ParseSocketControlMessage(oob[:oobn])
		if perr == nil {
			for _, m := range msgs {
				if m.Header.Level == sctpIPProto && m.Header.Type == sctpCmsgSndRcv {
					if info, ok := parseSCTPSndRcvInfo(m.Data); ok {
						ri.info = info
					}
				}
			}
		}
	}
	if flags&unix.MSG_NOTIFICATION != 0 {
		ri.isNotification = true
		if n >= 2 {
			ri.notifType = binary.LittleEndian.Uint16(p[0:2])
		}
	}
	eor := flags&unix.MSG_EOR != 0
	return n, ri, eor, nil
}

// Write implements [net.Conn] by sending on stream 0, matching spec.md
// §4.E's rule that "stream 0 is special and goes via the inline path".
func (c *sctpConn) Write(p []byte) (int, error) {
	return len(p), c.SendStream(0, p)
}

// SendStream implements spec.md §4.C's "Per-stream send": one sendmsg
// carrying the payload plus an SCTP_SNDRCV ancillary block naming the
// target stream. Partial delivery on send is not expected for messages
// within MAX_MSG_SIZE and is reported as [ErrResourceExhausted] if observed.
func (c *sctpConn) SendStream(streamID uint16, p []byte) error {
	info := sctpSndRcvInfo{Stream: streamID}
	oob := buildSndRcvCmsg(info)
	n, err := unix.SendmsgN(c.fd, p, oob, nil, 0)
	if err != nil {
		return classifySCTPErr(err)
	}
	if n != len(p) {
		return fmt.Errorf("%w: partial sctp sendmsg (%d of %d bytes)", ErrResourceExhausted, n, len(p))
	}
	return nil
}

// NextRoundRobinStream advances the per-connection stream cursor for
// component H's multi-stream send path, wrapping at pairs (spec.md §4.H
// "Send"). The negotiated streams are [0, pairs); stream 0 is reserved
// for the inline path, so the cycle covers [1, pairs-1], and pairs <= 1
// always yields stream 0.
func (c *sctpConn) NextRoundRobinStream(pairs uint16) uint16 {
	if pairs <= 1 {
		return 0
	}
	next := (c.streamRR % uint32(pairs-1)) + 1
	c.streamRR++
	return uint16(next)
}

// buildSndRcvCmsg builds a raw cmsghdr-plus-payload block by hand rather
// than through unsafe.Pointer casts onto unix.Cmsghdr: the header is
// cmsg_len(8)/cmsg_level(4)/cmsg_type(4) in native byte order on every
// Linux architecture this core targets (amd64, arm64).
func buildSndRcvCmsg(info sctpSndRcvInfo) []byte {
	data := info.bytes()
	buf := make([]byte, unix.CmsgSpace(len(data)))
	binary.LittleEndian.PutUint64(buf[0:8], uint64(unix.CmsgLen(len(data))))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(sctpIPProto))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(sctpCmsgSndRcv))
	copy(buf[unix.CmsgLen(0):], data)
	return buf
}

func (c *sctpConn) Close() (err error) {
	c.closeOnce.Do(func() {
		err = unix.Close(c.fd)
	})
	return
}

func (c *sctpConn) LocalAddr() net.Addr  { return sctpAddrOf(c.fd, false) }
func (c *sctpConn) RemoteAddr() net.Addr { return sctpAddrOf(c.fd, true) }

// SCTPAddr implements [net.Addr] for an SCTP endpoint, distinct from
// [net.TCPAddr] so logs and error messages correctly name the protocol.
type SCTPAddr struct {
	AddrPort netip.AddrPort
}

func (a SCTPAddr) Network() string { return "sctp" }
func (a SCTPAddr) String() string  { return a.AddrPort.String() }

func sctpAddrOf(fd int, peer bool) net.Addr {
	var sa unix.Sockaddr
	var err error
	if peer {
		sa, err = unix.Getpeername(fd)
	} else {
		sa, err = unix.Getsockname(fd)
	}
	if err != nil {
		return nil
	}
	switch v := sa.(type) {
	case *unix.SockaddrInet4:
		return SCTPAddr{AddrPort: netip.AddrPortFrom(netip.AddrFrom4(v.Addr), uint16(v.Port))}
	case *unix.SockaddrInet6:
		return SCTPAddr{AddrPort: netip.AddrPortFrom(netip.AddrFrom16(v.Addr), uint16(v.Port))}
	default:
		return nil
	}
}

// SetDeadline, SetReadDeadline and SetWriteDeadline implement [net.Conn]
// by reinstalling SO_RCVTIMEO/SO_SNDTIMEO rather than relying on the
// runtime poller, consistent with the rest of this raw-socket transport.
func (c *sctpConn) SetDeadline(t time.Time) error {
	if err := c.SetReadDeadline(t); err != nil {
		return err
	}
	return c.SetWriteDeadline(t)
}

func (c *sctpConn) SetReadDeadline(t time.Time) error {
	tv := unix.NsecToTimeval(time.Until(t).Nanoseconds())
	return unix.SetsockoptTimeval(c.fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv)
}

func (c *sctpConn) SetWriteDeadline(t time.Time) error {
	tv := unix.NsecToTimeval(time.Until(t).Nanoseconds())
	return unix.SetsockoptTimeval(c.fd, unix.SOL_SOCKET, unix.SO_SNDTIMEO, &tv)
}

// classifySCTPErr maps a raw errno from an SCTP syscall onto this
// core's kind taxonomy (spec.md §7).
func classifySCTPErr(err error) error {
	if isRetryableErrno(err) {
		return fmt.Errorf("%w: %s", ErrTransportTransient, err)
	}
	return fmt.Errorf("%w: %s", ErrTransportClosed, err)
}

// isRetryableErrno reports whether err is the EAGAIN/EWOULDBLOCK/EINTR
// family spec.md §4.E calls out as retryable rather than fatal.
func isRetryableErrno(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EWOULDBLOCK) || errors.Is(err, unix.EINTR)
}
