// SPDX-License-Identifier: GPL-3.0-or-later

package dmtcore

import (
	"crypto/tls"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResumeStoreStoreFetchRemove(t *testing.T) {
	rs := NewResumeStore()
	require.NoError(t, rs.Store("k1", []byte("session-a")))
	assert.Equal(t, 1, rs.Len())

	got, ok := rs.Fetch("k1")
	require.True(t, ok)
	assert.Equal(t, []byte("session-a"), got)

	rs.Remove("k1")
	assert.Equal(t, 0, rs.Len())
	_, ok = rs.Fetch("k1")
	assert.False(t, ok)
}

// TestResumeStoreDuplicateIdempotent is spec.md §8 property 8
// "resume-store idempotence": storing identical data under the same key
// twice must not be an error.
func TestResumeStoreDuplicateIdempotent(t *testing.T) {
	rs := NewResumeStore()
	require.NoError(t, rs.Store("k1", []byte("same")))
	require.NoError(t, rs.Store("k1", []byte("same")))
	assert.Equal(t, 1, rs.Len())
}

func TestResumeStoreDuplicateMismatchErrors(t *testing.T) {
	rs := NewResumeStore()
	require.NoError(t, rs.Store("k1", []byte("a")))
	err := rs.Store("k1", []byte("b"))
	assert.ErrorIs(t, err, ErrResumeDataMismatch)
	assert.Equal(t, 1, rs.Len())
}

func TestResumeStoreFetchReturnsCopy(t *testing.T) {
	rs := NewResumeStore()
	require.NoError(t, rs.Store("k1", []byte("abc")))
	got, ok := rs.Fetch("k1")
	require.True(t, ok)
	got[0] = 'z'

	got2, ok := rs.Fetch("k1")
	require.True(t, ok)
	assert.Equal(t, byte('a'), got2[0])
}

func TestResumeStoreStoreFetchRoundTrip(t *testing.T) {
	rs := NewResumeStore()
	require.NoError(t, rs.Store("session-id", []byte("ticket-bytes")))

	data, ok := rs.Fetch("session-id")
	require.True(t, ok)
	assert.Equal(t, []byte("ticket-bytes"), data)
}

func TestResumeStoreUnwrapMissReturnsNilNil(t *testing.T) {
	rs := NewResumeStore()
	state, err := rs.UnwrapSession([]byte("missing"), tls.ConnectionState{})
	require.NoError(t, err)
	assert.Nil(t, state)
}
