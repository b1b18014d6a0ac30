// SPDX-License-Identifier: GPL-3.0-or-later

package dmtcore

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// subConnShim is a per-stream pseudo [net.Conn] implementing spec.md
// §4.F's "custom transport callbacks that read from and write to
// per-stream buffers rather than the kernel socket directly". It is the
// TLS library's view of one SCTP stream pair: Read pulls reassembled
// records the demuxer deposited into rawRecv; Write sends one SCTP
// message on streamID.
//
// The parent/child relationship is a one-way pointer (sub → parent);
// the wrapper never reaches back into a sub-context except through the
// map it owns, avoiding the cyclic-reference shape spec.md §9 flags.
type subConnShim struct {
	streamID uint16
	parent   *sctpConn
	rawRecv  *Fifo[[]byte]

	buf     []byte
	closed  atomic.Bool
	readDl  time.Time
	writeDl time.Time
	mu      sync.Mutex
}

func newSubConnShim(streamID uint16, parent *sctpConn) *subConnShim {
	return &subConnShim{streamID: streamID, parent: parent, rawRecv: NewFifo[[]byte]()}
}

// subStreamTimeoutError reports a [subConnShim] read/write deadline
// elapsing; it implements [net.Error] so callers (notably
// [TLSHandshakeFunc] and [ReadFramedMessage]) classify it the same way
// as a real socket timeout.
type subStreamTimeoutError struct{}

func (subStreamTimeoutError) Error() string   { return "substream: i/o timeout" }
func (subStreamTimeoutError) Timeout() bool   { return true }
func (subStreamTimeoutError) Temporary() bool { return true }

var _ net.Error = subStreamTimeoutError{}

func (s *subConnShim) Read(p []byte) (int, error) {
	for len(s.buf) == 0 {
		chunk, err := s.nextChunk()
		if err != nil {
			return 0, err
		}
		s.buf = chunk
	}
	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	return n, nil
}

func (s *subConnShim) nextChunk() ([]byte, error) {
	s.mu.Lock()
	dl := s.readDl
	s.mu.Unlock()

	if dl.IsZero() {
		chunk, err := s.rawRecv.Get()
		if err != nil {
			return nil, fmt.Errorf("%w: substream %d closed", ErrTransportClosed, s.streamID)
		}
		return chunk, nil
	}
	remaining := time.Until(dl)
	if remaining <= 0 {
		return nil, subStreamTimeoutError{}
	}
	chunk, err := s.rawRecv.TimedGet(remaining)
	if errors.Is(err, ErrFifoTimeout) {
		return nil, subStreamTimeoutError{}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: substream %d closed", ErrTransportClosed, s.streamID)
	}
	return chunk, nil
}

func (s *subConnShim) Write(p []byte) (int, error) {
	if s.closed.Load() {
		return 0, fmt.Errorf("%w: substream %d closed", ErrTransportClosed, s.streamID)
	}
	if err := s.parent.SendStream(s.streamID, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close unblocks any goroutine parked in [subConnShim.Read]; it does
// not touch the shared SCTP socket, which the wrapper owns.
func (s *subConnShim) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.rawRecv.Delete()
	}
	return nil
}

func (s *subConnShim) LocalAddr() net.Addr  { return s.parent.LocalAddr() }
func (s *subConnShim) RemoteAddr() net.Addr { return s.parent.RemoteAddr() }

func (s *subConnShim) SetDeadline(t time.Time) error {
	s.mu.Lock()
	s.readDl, s.writeDl = t, t
	s.mu.Unlock()
	return nil
}

func (s *subConnShim) SetReadDeadline(t time.Time) error {
	s.mu.Lock()
	s.readDl = t
	s.mu.Unlock()
	return nil
}

func (s *subConnShim) SetWriteDeadline(t time.Time) error {
	s.mu.Lock()
	s.writeDl = t
	s.mu.Unlock()
	return nil
}

var _ net.Conn = &subConnShim{}

// subContext is spec.md §4.E's "per-stream sub-context": a stream id,
// its own TLS session, the raw-receive fifo the demuxer feeds, and
// (while deciphering) the goroutine draining it.
type subContext struct {
	streamID uint16
	shim     *subConnShim
	tconn    TLSConn
}

// MultiStreamWrapper is spec.md §4.F: the component that lets a
// multi-stream SCTP association carry one TLS session per negotiated
// stream pair, deposited and drained through per-stream sub-contexts
// instead of a single kernel socket. Stream 0 always carries the
// master session; streams [1, pairs) resume from it.
type MultiStreamWrapper struct {
	cfg         *Config
	logger      SLogger
	peerID      string
	sctp        *sctpConn
	pairs       uint16
	role        HandshakeRole
	tlsConfig   *tls.Config
	resumeStore *ResumeStore

	subs map[uint16]*subContext

	Incoming *Fifo[Event]

	demuxWG    sync.WaitGroup
	decipherWG sync.WaitGroup
	torndown   atomic.Bool
}

// NewMultiStreamWrapper constructs a wrapper over an already-connected,
// already-negotiated [*sctpConn]. resumeStore is nil on the client side
// (the client has no store to serve fetches from) and non-nil on the
// server side. On the client side the master session is not copied into
// the other streams: see [MultiStreamWrapper.Start].
func NewMultiStreamWrapper(cfg *Config, peerID string, sctp *sctpConn, pairs uint16,
	role HandshakeRole, tlsConfig *tls.Config, resumeStore *ResumeStore, incoming *Fifo[Event]) *MultiStreamWrapper {
	w := &MultiStreamWrapper{
		cfg:         cfg,
		logger:      cfg.Logger,
		peerID:      peerID,
		sctp:        sctp,
		pairs:       pairs,
		role:        role,
		tlsConfig:   tlsConfig,
		resumeStore: resumeStore,
		subs:        make(map[uint16]*subContext, pairs),
		Incoming:    incoming,
	}
	for id := uint16(0); id < pairs; id++ {
		w.subs[id] = &subContext{streamID: id, shim: newSubConnShim(id, sctp)}
	}
	return w
}

// StartDemux launches the demuxer goroutine that routes raw socket reads
// into each stream's shim fifo. spec.md §4.E requires this to happen
// BEFORE the master handshake is driven: stream 0's shim only ever
// receives bytes the demuxer deposits, so the caller must call
// StartDemux, then drive the master handshake over w.subs[0].shim, and
// only then call [MultiStreamWrapper.Start] with the resulting
// [TLSConn]. Calling the master handshake before the demuxer runs
// deadlocks the first read.
func (w *MultiStreamWrapper) StartDemux() {
	w.demuxWG.Add(1)
	go w.runDemuxer()
}

// Start runs spec.md §4.F/§4.E's multi-stream handshake sequence: the
// master handshake on stream 0 has already been driven by the caller,
// over the shim returned by [MultiStreamWrapper.StartDemux]'s
// subs[0].shim, with the demuxer already running (see StartDemux); the
// caller supplies the resulting [TLSConn] as masterConn. Start then
// drives every remaining stream pair's handshake in parallel and finally
// launches one decipher goroutine per stream (including stream 0). On
// the client side those handshakes share a session cache that Start
// creates empty after the master handshake, so they do not resume the
// master session.
func (w *MultiStreamWrapper) Start(ctx context.Context, masterConn TLSConn) error {
	w.subs[0].tconn = masterConn

	type result struct {
		id  uint16
		err error
	}
	results := make(chan result, w.pairs-1)
	var clientCache tls.ClientSessionCache
	if w.role == RoleClient {
		clientCache = tls.NewLRUClientSessionCache(int(w.pairs))
	}
	for id := uint16(1); id < w.pairs; id++ {
		go func(id uint16) {
			tconn, err := w.handshakeStream(ctx, id, clientCache)
			if err == nil {
				w.subs[id].tconn = tconn
			}
			results <- result{id: id, err: err}
		}(id)
	}
	for i := uint16(1); i < w.pairs; i++ {
		r := <-results
		if r.err != nil {
			w.Shutdown()
			return fmt.Errorf("%w: stream %d handshake: %s", ErrTLSFatal, r.id, r.err)
		}
	}

	for id, sub := range w.subs {
		w.decipherWG.Add(1)
		go w.runDecipher(id, sub)
	}
	return nil
}

// handshakeStream drives one non-master stream's TLS handshake: client
// side uses sharedCache as its session cache (the master handshake does
// not fill it, so it holds no master session); server side resumes
// via w.resumeStore's WrapSession/UnwrapSession hooks already installed
// on w.tlsConfig (spec.md §4.F "Per-stream handshake... if resumption
// fails, perform a full handshake and repeat credential verification").
func (w *MultiStreamWrapper) handshakeStream(ctx context.Context, id uint16, sharedCache tls.ClientSessionCache) (TLSConn, error) {
	config := w.tlsConfig.Clone()
	if w.role == RoleClient {
		config.ClientSessionCache = sharedCache
	}
	hf := NewTLSHandshakeFunc(w.cfg, config, w.logger)
	if w.role == RoleServer {
		hf.Engine = serverTLSEngine{}
	}
	return hf.Call(ctx, w.subs[id].shim)
}

// runDemuxer implements spec.md §4.F's demuxer thread: read the shared
// SCTP socket, route each reassembled record by stream id, forward
// EP_CHANGE notifications, and tear every sub-context down on a fatal
// CNX_ERROR.
func (w *MultiStreamWrapper) runDemuxer() {
	defer w.demuxWG.Done()
	for {
		payload, streamID, kind, err := w.sctp.ReceiveFramed()
		if err != nil {
			if errors.Is(err, ErrTransportTransient) {
				continue
			}
			w.teardown(err)
			return
		}
		switch kind {
		case notificationEPChange:
			w.Incoming.Post(NewCnxEPChangeEvent(w.peerID, Endpoint{}))
		case notificationError:
			w.teardown(fmt.Errorf("%w: sctp notification", ErrTransportClosed))
			return
		default:
			sub, ok := w.subs[streamID]
			if !ok {
				w.logger.Warn("tlswrapDemuxOutOfRange", slog.Uint64("streamID", uint64(streamID)))
				continue
			}
			if err := sub.shim.rawRecv.Post(payload); err != nil {
				return
			}
		}
	}
}

// runDecipher implements spec.md §4.F's per-stream decipher thread: it
// drives the generic framed reader over the stream's already-negotiated
// TLS session and emits MSG_RECV tagged with the originating stream id.
func (w *MultiStreamWrapper) runDecipher(streamID uint16, sub *subContext) {
	defer w.decipherWG.Done()
	for {
		msg, err := ReadFramedMessage(sub.tconn, DefaultMaxMsgSize)
		if err != nil {
			if errors.Is(err, ErrTransportTransient) {
				continue
			}
			if w.torndown.Load() {
				return
			}
			w.teardown(err)
			return
		}
		w.Incoming.Post(NewMsgRecvEvent(w.peerID, msg, streamID))
	}
}

// teardown implements spec.md §4.F's fatal-CNX_ERROR path: destroy
// every sub-context's raw fifo, which unblocks every decipher thread
// blocked in a shim read, then report the failure once.
func (w *MultiStreamWrapper) teardown(err error) {
	if !w.torndown.CompareAndSwap(false, true) {
		return
	}
	for _, sub := range w.subs {
		sub.shim.Close()
	}
	w.Incoming.Post(NewCnxErrorEvent(w.peerID, fmt.Errorf("%w: %s", ErrTransportClosed, err)))
}

// Shutdown implements spec.md §4.F's shutdown sequence: close every
// session's write direction in series (here: full close, since
// [*tls.Conn] has no independent write-only close), letting each
// decipher thread observe end-of-stream and exit, then join every
// thread including the demuxer.
func (w *MultiStreamWrapper) Shutdown() {
	w.torndown.Store(true)
	for id := uint16(0); id < w.pairs; id++ {
		sub := w.subs[id]
		if sub.tconn != nil {
			sub.tconn.Close()
		}
		sub.shim.Close()
	}
	w.sctp.Close()
	w.decipherWG.Wait()
	w.demuxWG.Wait()
}

// Send writes msg on the given stream's protected session, used by
// [Cnx.Send]'s round-robin when multi-stream TLS is engaged.
func (w *MultiStreamWrapper) Send(streamID uint16, msg []byte) error {
	sub, ok := w.subs[streamID]
	if !ok || sub.tconn == nil {
		return fmt.Errorf("%w: stream %d not ready", ErrTransportClosed, streamID)
	}
	_, err := sub.tconn.Write(msg)
	return err
}
