// SPDX-License-Identifier: GPL-3.0-or-later

package dmtcore

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestFramingRoundTrip is spec.md §8 property 1 / scenario S1: a 28-byte
// well-formed buffer round-trips through ReadFramedMessage unchanged.
func TestFramingRoundTrip(t *testing.T) {
	msg := make([]byte, 28)
	EncodeHeader(msg)
	for i := headerSize; i < len(msg); i++ {
		msg[i] = byte(i)
	}

	got, err := ReadFramedMessage(bytes.NewReader(msg), DefaultMaxMsgSize)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

// TestFramingS1Literal is the literal scenario in spec.md §8: a 28-byte
// buffer 01 00 00 1C <24 opaque bytes>.
func TestFramingS1Literal(t *testing.T) {
	msg := append([]byte{0x01, 0x00, 0x00, 0x1C}, bytes.Repeat([]byte{0xAA}, 24)...)
	require.Len(t, msg, 28)

	got, err := ReadFramedMessage(bytes.NewReader(msg), DefaultMaxMsgSize)
	require.NoError(t, err)
	assert.Equal(t, msg, got)
}

// TestFramingOversizeRejection is spec.md §8 scenario S2: a header
// claiming length 0xFFFFFF (16777215) is rejected without reading
// further, and the failure is classified as a malformed frame.
func TestFramingOversizeRejection(t *testing.T) {
	hdr := []byte{0x01, 0xFF, 0xFF, 0xFF}
	_, err := ReadFramedMessage(bytes.NewReader(hdr), DefaultMaxMsgSize)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

// TestFramingBadVersionRejected is spec.md §8 property 2: any first byte
// other than 1 is rejected.
func TestFramingBadVersionRejected(t *testing.T) {
	hdr := []byte{0x02, 0x00, 0x00, 0x14}
	_, err := ReadFramedMessage(bytes.NewReader(hdr), DefaultMaxMsgSize)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestFramingBelowMinimumRejected(t *testing.T) {
	hdr := []byte{0x01, 0x00, 0x00, 0x04}
	_, err := ReadFramedMessage(bytes.NewReader(hdr), DefaultMaxMsgSize)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestFramingShortReadIsTransportClosed(t *testing.T) {
	hdr := []byte{0x01, 0x00}
	_, err := ReadFramedMessage(bytes.NewReader(hdr), DefaultMaxMsgSize)
	assert.ErrorIs(t, err, ErrTransportClosed)
}

func TestParseHeaderRespectsCustomMax(t *testing.T) {
	hdr := [4]byte{0x01, 0x00, 0x01, 0x00} // length 256
	_, err := ParseHeader(hdr, 100)
	assert.ErrorIs(t, err, ErrMalformedFrame)

	length, err := ParseHeader(hdr, 1000)
	require.NoError(t, err)
	assert.EqualValues(t, 256, length)
}
