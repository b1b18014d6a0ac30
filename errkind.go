// SPDX-License-Identifier: GPL-3.0-or-later

package dmtcore

import "errors"

// The error kinds below are spec.md §7's taxonomy. They are sentinels, not
// types: wrap one with fmt.Errorf("%w: ...", ErrXxx) and callers match with
// errors.Is. Kinds, not Go types, because several unrelated call sites
// (framing, SCTP notifications, TLS) all produce the same kind for
// different underlying reasons, and callers only ever need to branch on
// the kind.
var (
	// ErrMalformedFrame means header validation failed (spec.md §8 property 2).
	// Unrecoverable on that connection; the caller raises CNX_ERROR.
	ErrMalformedFrame = errors.New("malformed frame")

	// ErrTransportClosed means the peer shut down or reset the transport.
	ErrTransportClosed = errors.New("transport closed")

	// ErrTransportTransient means an EAGAIN-like condition: resume if the
	// connection isn't closing, else allow exactly one more retry.
	ErrTransportTransient = errors.New("transport transient")

	// ErrTLSFatal means handshake failure, certificate rejection, or an
	// unrecoverable TLS record error.
	ErrTLSFatal = errors.New("tls fatal")

	// ErrTLSRehandshake means the peer requested a new handshake mid-stream;
	// the caller should drive it to completion and retry the I/O.
	ErrTLSRehandshake = errors.New("tls rehandshake requested")

	// ErrResourceExhausted means an allocation failed; the connection that
	// hit it is torn down.
	ErrResourceExhausted = errors.New("resource exhausted")

	// ErrConfigInvalid means configuration failed validation at startup.
	ErrConfigInvalid = errors.New("invalid configuration")

	// ErrRoutingTransient means an out-sender cancellation or send failure;
	// the message is re-queued where possible, else dropped with a log entry.
	ErrRoutingTransient = errors.New("routing transient")
)
