// SPDX-License-Identifier: GPL-3.0-or-later

package dmtcore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubConnShimReadDeliversPostedChunks(t *testing.T) {
	shim := newSubConnShim(3, nil)
	require.NoError(t, shim.rawRecv.Post([]byte("hello")))

	buf := make([]byte, 2)
	n, err := shim.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "he", string(buf[:n]))

	n, err = shim.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "ll", string(buf[:n]))
}

func TestSubConnShimReadTimesOut(t *testing.T) {
	shim := newSubConnShim(1, nil)
	require.NoError(t, shim.SetReadDeadline(time.Now().Add(10*time.Millisecond)))

	_, err := shim.Read(make([]byte, 4))
	require.Error(t, err)
	assert.True(t, err.(interface{ Timeout() bool }).Timeout())
}

func TestSubConnShimCloseUnblocksRead(t *testing.T) {
	shim := newSubConnShim(2, nil)
	errCh := make(chan error, 1)
	go func() {
		_, err := shim.Read(make([]byte, 4))
		errCh <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, shim.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrTransportClosed)
	case <-time.After(time.Second):
		t.Fatal("close did not unblock the pending read")
	}
}

func TestSubConnShimWriteAfterCloseFails(t *testing.T) {
	shim := newSubConnShim(4, nil)
	require.NoError(t, shim.Close())
	_, err := shim.Write([]byte("x"))
	assert.ErrorIs(t, err, ErrTransportClosed)
}
