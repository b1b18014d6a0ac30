// SPDX-License-Identifier: GPL-3.0-or-later

package dmtcore

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFifoOrderSingleProducer(t *testing.T) {
	q := NewFifo[int]()
	for i := 0; i < 5; i++ {
		require.NoError(t, q.Post(i))
	}
	for i := 0; i < 5; i++ {
		v, err := q.Get()
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
}

func TestFifoTryGetWouldBlock(t *testing.T) {
	q := NewFifo[int]()
	_, err := q.TryGet()
	assert.ErrorIs(t, err, ErrFifoWouldBlock)
}

func TestFifoTimedGetTimeout(t *testing.T) {
	q := NewFifo[int]()
	_, err := q.TimedGet(20 * time.Millisecond)
	assert.ErrorIs(t, err, ErrFifoTimeout)
}

func TestFifoTimedGetSucceedsBeforeDeadline(t *testing.T) {
	q := NewFifo[int]()
	go func() {
		time.Sleep(5 * time.Millisecond)
		_ = q.Post(42)
	}()
	v, err := q.TimedGet(200 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 42, v)
}

func TestFifoGetBlocksUntilPost(t *testing.T) {
	q := NewFifo[int]()
	done := make(chan int, 1)
	go func() {
		v, err := q.Get()
		require.NoError(t, err)
		done <- v
	}()
	time.Sleep(10 * time.Millisecond) // give the getter time to block
	require.NoError(t, q.Post(7))
	select {
	case v := <-done:
		assert.Equal(t, 7, v)
	case <-time.After(time.Second):
		t.Fatal("Get never unblocked after Post")
	}
}

func TestFifoDeleteUnblocksGet(t *testing.T) {
	q := NewFifo[int]()
	errCh := make(chan error, 1)
	go func() {
		_, err := q.Get()
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	q.Delete()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrFifoClosed)
	case <-time.After(time.Second):
		t.Fatal("Get never unblocked after Delete")
	}
}

// TestFifoThresholdAlternation reproduces spec.md §8 scenario S6 exactly:
// high=6, low=4. Post 5 (no cb). Post 1 (high fires). Get 2 (low fires
// once). Post 2 (high fires again). Get 6 (low fires once). Final
// counts: high=2, low=2.
func TestFifoThresholdAlternation(t *testing.T) {
	q := NewFifo[int]()
	var mu sync.Mutex
	var highCount, lowCount int

	q.SetThresholds(6, func(q *Fifo[int], token *any) {
		mu.Lock()
		defer mu.Unlock()
		highCount++
		*token = "armed"
	}, 4, func(q *Fifo[int], token *any) {
		mu.Lock()
		defer mu.Unlock()
		require.NotNil(t, *token)
		lowCount++
		*token = nil
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Post(i))
	}
	mu.Lock()
	assert.Equal(t, 0, highCount)
	mu.Unlock()

	require.NoError(t, q.Post(5))
	mu.Lock()
	assert.Equal(t, 1, highCount)
	mu.Unlock()

	for i := 0; i < 2; i++ {
		_, err := q.Get()
		require.NoError(t, err)
	}
	mu.Lock()
	assert.Equal(t, 1, lowCount)
	mu.Unlock()

	for i := 0; i < 2; i++ {
		require.NoError(t, q.Post(i))
	}
	mu.Lock()
	assert.Equal(t, 2, highCount)
	mu.Unlock()

	for i := 0; i < 6; i++ {
		_, err := q.Get()
		require.NoError(t, err)
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 2, highCount)
	assert.Equal(t, 2, lowCount)
}

func TestFifoMoveToPreservesOrder(t *testing.T) {
	src := NewFifo[int]()
	dst := NewFifo[int]()
	for i := 0; i < 3; i++ {
		require.NoError(t, src.Post(i))
	}
	src.MoveTo(dst)
	assert.Equal(t, 0, src.Length())
	for i := 0; i < 3; i++ {
		v, err := dst.Get()
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
}

func TestFifoBoundedPostBlocks(t *testing.T) {
	q := NewBoundedFifo[int](2)
	require.NoError(t, q.Post(1))
	require.NoError(t, q.Post(2))

	postDone := make(chan struct{})
	go func() {
		_ = q.Post(3)
		close(postDone)
	}()

	select {
	case <-postDone:
		t.Fatal("Post should have blocked at the soft limit")
	case <-time.After(20 * time.Millisecond):
	}

	_, err := q.Get()
	require.NoError(t, err)

	select {
	case <-postDone:
	case <-time.After(time.Second):
		t.Fatal("Post never unblocked after Get freed a slot")
	}
}
