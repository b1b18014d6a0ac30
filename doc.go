// SPDX-License-Identifier: GPL-3.0-or-later

// Package dmtcore implements the transport and connection-context layer of
// a Diameter base-protocol (RFC 6733) node: the pieces below the peer
// state machine and above raw sockets.
//
// # Core Abstraction
//
// Two connection-carrying transports, TCP and SCTP, are unified behind
// [*Cnx], which owns exactly one socket, optionally secures it with TLS,
// reconstructs message boundaries from the wire, and delivers reassembled
// messages as [Event] values on a [Fifo]:
//
//	cnx := NewClearCnx(cfg, peerID, TransportSCTP, conn)
//	cnx.Run()
//	ev, err := cnx.Incoming.Get()
//
// Multi-stream SCTP associations carrying TLS engage [MultiStreamWrapper]
// (component F): one TLS session per negotiated stream pair, demultiplexed
// off the shared socket and deciphered independently so message ordering
// is preserved per stream without serializing unrelated streams behind a
// single TLS record stream.
//
// # Available Components
//
// Transport and framing:
//   - [ListenTCP] / [ListenSCTP]: server-side bind and listen
//   - [SCTPDialer]: client-side multi-address SCTP connect
//   - [ReadFramedMessage] / [EncodeHeader]: wire-level message boundaries
//
// Connection context:
//   - [Cnx]: per-connection state, framed receiver, synchronous send
//   - [MultiStreamWrapper]: per-stream-pair TLS demux/decipher
//   - [ResumeStore]: server-side TLS session-resumption storage
//
// Server and peer plumbing:
//   - [Acceptor]: listening loop handing off validated connections
//   - [Peer] / [PeerList]: per-peer state and the process-wide peer registry
//   - [OutSender]: per-peer outbound thread with hop-by-hop rewriting
//   - [HopByHopCounter] / [SentRequestTable]: request/answer correlation
//
// Composition utilities (used internally by [DialPeer]'s TCP
// connect → observe → cancel-watch pipeline):
//   - [Func]: a single operation with one success mode and one failure mode
//   - [Compose2] through [Compose8]: chain [Func] values into pipelines
//   - [FuncAdapter] / [Apply] / [ConstFunc]: ad-hoc and fixed-input adapters
//
// # Observability
//
// Every component logs through [SLogger] (compatible with [log/slog]);
// logging is disabled by default. [ErrClassifier] maps raw errors to short,
// stable labels for structured logging fields; [DefaultErrClassifier]
// covers the usual POSIX errnos and TLS certificate-verification
// failures, and has no labels for SCTP notification reasons. Use [NewSpanID] (UUIDv7) to correlate log
// lines across a connection's or handshake's lifetime.
//
// # Timeout and Cancellation Philosophy
//
// Every socket operation carries [Config.SocketTimeout] (default 3s) via
// SO_RCVTIMEO/SO_SNDTIMEO or Go deadlines, never blocking indefinitely.
// [Cnx.MarkClosing] plus [Cnx.Close] bound shutdown latency to at most two
// socket timeouts: a receiver blocked in a read tolerates exactly one more
// timeout once closing begins before it gives up.
//
// # Design Boundaries
//
// This package intentionally stops at the connection layer. The following
// are out of scope and belong to the surrounding peer state machine and
// message layer:
//
//   - AVP encoding/decoding and the Diameter dictionary
//   - CER/CEA, DWR/DWA, and the rest of the peer state machine
//   - Realm-based routing and application-specific message handling
//
// These concerns have their own failure modes and lifecycles; mixing them
// into this layer would compromise its compositional simplicity.
package dmtcore
