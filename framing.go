// SPDX-License-Identifier: GPL-3.0-or-later

package dmtcore

import (
	"errors"
	"fmt"
	"io"
	"net"
)

const (
	// DiameterVersion is the only version byte this core accepts
	// (spec.md §6 "Wire protocol").
	DiameterVersion = 1

	// DefaultMaxMsgSize bounds the accepted message length, including the
	// header, absent an explicit configuration override.
	DefaultMaxMsgSize = 65535

	// headerSize is the fixed Diameter header length this core frames on;
	// the remaining 16 octets of command-code/flags/application-id/
	// hop-by-hop/end-to-end fields are opaque to framing (spec.md §6).
	headerSize = 4

	// minMsgSize is the shortest legal Diameter message: a 4-octet
	// version/length header plus the 16-octet fixed remainder of the
	// header (command flags, command code, application id, hop-by-hop,
	// end-to-end). Anything shorter cannot be a well-formed message.
	minMsgSize = 20
)

// ParseHeader validates the first 4 octets of a Diameter message and
// returns the total message length they encode (spec.md §6, §4.E
// "Framed TCP reader"). maxMsgSize is the caller's configured upper
// bound (spec.md default 65535, itself bounded by the wire format's
// 2^24-1 ceiling).
func ParseHeader(hdr [headerSize]byte, maxMsgSize uint32) (length uint32, err error) {
	if hdr[0] != DiameterVersion {
		return 0, fmt.Errorf("%w: version %d, want %d", ErrMalformedFrame, hdr[0], DiameterVersion)
	}
	length = uint32(hdr[1])<<16 | uint32(hdr[2])<<8 | uint32(hdr[3])
	if length < minMsgSize {
		return 0, fmt.Errorf("%w: length %d below minimum %d", ErrMalformedFrame, length, minMsgSize)
	}
	if length > maxMsgSize {
		return 0, fmt.Errorf("%w: length %d exceeds max %d", ErrMalformedFrame, length, maxMsgSize)
	}
	return length, nil
}

// EncodeHeader overwrites the first 4 octets of msg with the version byte
// and the big-endian 24-bit length of msg itself. msg must already be
// allocated to its final length.
func EncodeHeader(msg []byte) {
	n := len(msg)
	msg[0] = DiameterVersion
	msg[1] = byte(n >> 16)
	msg[2] = byte(n >> 8)
	msg[3] = byte(n)
}

// ReadFramedMessage reads exactly one Diameter message from r: 4 header
// octets (looping on short reads via [io.ReadFull]), validated by
// [ParseHeader], then length-4 more octets. It returns the full buffer
// with the header prepended, ready to hand to the message decoder this
// core treats as an external collaborator (spec.md §1).
//
// A header that fails validation is treated as disconnection: the
// returned error wraps [ErrMalformedFrame] and the caller must raise
// CNX_ERROR rather than attempt to resynchronize (spec.md §4.E).
func ReadFramedMessage(r io.Reader, maxMsgSize uint32) ([]byte, error) {
	if maxMsgSize == 0 {
		maxMsgSize = DefaultMaxMsgSize
	}
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, classifyReadErr(err)
	}
	length, err := ParseHeader(hdr, maxMsgSize)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, length)
	copy(buf, hdr[:])
	if _, err := io.ReadFull(r, buf[headerSize:]); err != nil {
		return nil, classifyReadErr(err)
	}
	return buf, nil
}

// classifyReadErr maps a short-read failure to the appropriate taxonomy
// kind: a socket-timeout error is TransportTransient so the caller's
// retry loop (spec.md §4.E "Socket timeout") can decide whether to
// retry or give up; a clean EOF, reset, or anything else is
// TransportClosed (spec.md §7 "Receiver threads never throw; they
// convert errors into event posts").
func classifyReadErr(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %s", ErrTransportTransient, err)
	}
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return fmt.Errorf("%w: %s", ErrTransportClosed, err)
	}
	return fmt.Errorf("%w: %s", ErrTransportClosed, err)
}
