// SPDX-License-Identifier: GPL-3.0-or-later

package dmtcore

import "encoding/binary"

// Fixed offsets of the Diameter header (RFC 6733 §3), beyond the 4-byte
// version/length framing header this core already parses in framing.go.
// AVP payload starting at offset 20 stays opaque to this core; only the
// routing fields the out-sender needs (spec.md §4.H) are read here.
const (
	cmdFlagsOffset = 4
	hopByHopOffset = 12
	endToEndOffset = 16
)

// cmdFlagRequest is the 'R' bit of the Command Flags octet (RFC 6733 §3).
const cmdFlagRequest = 0x80

// IsRequest reports whether msg's Command Flags octet has the R bit set.
// msg must be at least 20 bytes (the fixed Diameter header); shorter
// buffers are never produced by [ReadFramedMessage] (spec.md §4.E
// enforces length ≥ minMsgSize).
func IsRequest(msg []byte) bool {
	return len(msg) > cmdFlagsOffset && msg[cmdFlagsOffset]&cmdFlagRequest != 0
}

// HopByHop reads the Hop-by-Hop Identifier field.
func HopByHop(msg []byte) uint32 {
	if len(msg) < hopByHopOffset+4 {
		return 0
	}
	return binary.BigEndian.Uint32(msg[hopByHopOffset : hopByHopOffset+4])
}

// SetHopByHop overwrites the Hop-by-Hop Identifier field in place.
func SetHopByHop(msg []byte, hbh uint32) {
	if len(msg) < hopByHopOffset+4 {
		return
	}
	binary.BigEndian.PutUint32(msg[hopByHopOffset:hopByHopOffset+4], hbh)
}

// EndToEnd reads the End-to-End Identifier field.
func EndToEnd(msg []byte) uint32 {
	if len(msg) < endToEndOffset+4 {
		return 0
	}
	return binary.BigEndian.Uint32(msg[endToEndOffset : endToEndOffset+4])
}
