// SPDX-License-Identifier: GPL-3.0-or-later

package dmtcore

import (
	"context"
	"errors"
	"sync"
	"time"
	"unsafe"
)

// ErrFifoClosed is returned by [Fifo.Get] when the queue was deleted while
// a consumer was blocked on it (spec.md §4.A: "get on a destroyed queue
// returns a sentinel that callers must treat as fatal").
var ErrFifoClosed = errors.New("fifo: closed")

// ErrFifoWouldBlock is returned by [Fifo.TryGet] on an empty queue.
var ErrFifoWouldBlock = errors.New("fifo: would block")

// ErrFifoTimeout is returned by [Fifo.TimedGet] when the deadline elapses
// before an item is available.
var ErrFifoTimeout = errors.New("fifo: timeout")

// ThresholdFunc is a callback fired when a [Fifo]'s length crosses a
// configured threshold (spec.md §4.A "set_thresholds"). It runs on the
// posting or getting goroutine, holding no internal Fifo lock, and may
// read or write *token to stash state across the high/low pair — the
// high callback installs it, the following low callback must clear it.
type ThresholdFunc[T any] func(q *Fifo[T], token *any)

// Fifo is an ordered, optionally bounded, blocking queue of items with
// threshold callbacks (spec.md §4.A). The zero value is not usable; use
// [NewFifo]. Fifo is generic because the core uses the same queue
// primitive for two different payloads: [Event] on the receive side, and
// outbound wire messages on the per-peer "tosend" side (component H).
//
// Invariants upheld: FIFO order across concurrent producers and a single
// consumer; a single blocked consumer is unblocked by exactly one post;
// high/low callbacks strictly alternate starting with high.
type Fifo[T any] struct {
	mu     sync.Mutex
	items  []T
	closed bool
	limit  int // 0 = unbounded

	notEmpty chan struct{}
	notFull  chan struct{}

	high, low     int
	highCB, lowCB ThresholdFunc[T]
	armed         bool
	token         any
}

// NewFifo returns a new, unbounded [*Fifo].
func NewFifo[T any]() *Fifo[T] {
	return &Fifo[T]{
		notEmpty: make(chan struct{}),
		notFull:  make(chan struct{}),
	}
}

// NewBoundedFifo returns a new [*Fifo] whose [Fifo.Post] blocks once the
// queue holds limit items.
func NewBoundedFifo[T any](limit int) *Fifo[T] {
	q := NewFifo[T]()
	q.limit = limit
	return q
}

// SetThresholds installs high/low watermark callbacks (spec.md §4.A).
// Passing a nil lowCB disables low-watermark notification.
func (q *Fifo[T]) SetThresholds(high int, highCB ThresholdFunc[T], low int, lowCB ThresholdFunc[T]) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.high, q.highCB = high, highCB
	q.low, q.lowCB = low, lowCB
	q.armed = false
	q.token = nil
}

// Length returns the current number of queued items.
func (q *Fifo[T]) Length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Post appends item to the queue, blocking while a configured soft limit
// is reached. After the append, fires the high-watermark callback when
// the count has reached high and the high mark is not already armed,
// and arms it.
func (q *Fifo[T]) Post(item T) error {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return ErrFifoClosed
		}
		if q.limit > 0 && len(q.items) >= q.limit {
			waitCh := q.notFull
			q.mu.Unlock()
			<-waitCh
			continue
		}
		q.items = append(q.items, item)
		count := len(q.items)
		q.broadcastNotEmptyLocked()
		cb, tokenPtr, fire := q.armHighLocked(count)
		q.mu.Unlock()
		if fire {
			cb(q, tokenPtr)
		}
		return nil
	}
}

// Get blocks until an item is available or the queue is deleted, in
// which case it returns [ErrFifoClosed]. Fires the low-watermark callback,
// if armed, after the removal.
func (q *Fifo[T]) Get() (T, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.popLocked()
			cb, tokenPtr, fire := q.armLowLocked()
			q.mu.Unlock()
			if fire {
				cb(q, tokenPtr)
			}
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			var zero T
			return zero, ErrFifoClosed
		}
		waitCh := q.notEmpty
		q.mu.Unlock()
		<-waitCh
	}
}

// TryGet is the non-blocking form of [Fifo.Get]; it fails with
// [ErrFifoWouldBlock] on an empty queue.
func (q *Fifo[T]) TryGet() (T, error) {
	q.mu.Lock()
	if len(q.items) == 0 {
		closed := q.closed
		q.mu.Unlock()
		var zero T
		if closed {
			return zero, ErrFifoClosed
		}
		return zero, ErrFifoWouldBlock
	}
	item := q.popLocked()
	cb, tokenPtr, fire := q.armLowLocked()
	q.mu.Unlock()
	if fire {
		cb(q, tokenPtr)
	}
	return item, nil
}

// TimedGet is the bounded-wait form of [Fifo.Get]; it fails with
// [ErrFifoTimeout] if no item becomes available before timeout elapses.
func (q *Fifo[T]) TimedGet(timeout time.Duration) (T, error) {
	deadline := time.Now().Add(timeout)
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.popLocked()
			cb, tokenPtr, fire := q.armLowLocked()
			q.mu.Unlock()
			if fire {
				cb(q, tokenPtr)
			}
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			var zero T
			return zero, ErrFifoClosed
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			q.mu.Unlock()
			var zero T
			return zero, ErrFifoTimeout
		}
		waitCh := q.notEmpty
		q.mu.Unlock()
		select {
		case <-waitCh:
		case <-time.After(remaining):
		}
	}
}

// GetContext is [Fifo.Get] with an additional cancellation source,
// matching spec.md §5's suspension-point model ("all fifo get operations
// (blocking or timed)" are cancellable). Returns ctx.Err() if ctx is
// done before an item or a delete arrives.
func (q *Fifo[T]) GetContext(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			item := q.popLocked()
			cb, tokenPtr, fire := q.armLowLocked()
			q.mu.Unlock()
			if fire {
				cb(q, tokenPtr)
			}
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			var zero T
			return zero, ErrFifoClosed
		}
		waitCh := q.notEmpty
		q.mu.Unlock()
		select {
		case <-waitCh:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// MoveTo atomically rebinds every item currently queued in q onto dst,
// preserving order (spec.md §4.A "move"). q remains usable afterward;
// subsequent posts to q are not redirected by this call alone — that
// redirection is the caller's responsibility (e.g. the multi-stream TLS
// demuxer switching a sub-context's output fifo).
func (q *Fifo[T]) MoveTo(dst *Fifo[T]) {
	// Lock in a fixed order (by pointer address as a uintptr) to avoid
	// deadlocking against a concurrent reverse move.
	first, second := q, dst
	if uintptrOf(dst) < uintptrOf(q) {
		first, second = dst, q
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	if first != second {
		second.mu.Lock()
		defer second.mu.Unlock()
	}

	moved := q.items
	q.items = nil
	if len(moved) == 0 {
		return
	}
	dst.items = append(dst.items, moved...)
	dst.broadcastNotEmptyLocked()
}

// Delete closes the queue: any goroutine blocked in [Fifo.Get] or
// [Fifo.TimedGet] wakes with [ErrFifoClosed]. Does not free queued items;
// callers should drain with [Fifo.TryGet] first if they care about
// discarding them individually (spec.md "Clean destroy" §8 property 9).
func (q *Fifo[T]) Delete() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.notEmpty)
	close(q.notFull)
}

func uintptrOf[T any](p *Fifo[T]) uintptr {
	return uintptr(unsafe.Pointer(p))
}

func (q *Fifo[T]) popLocked() T {
	item := q.items[0]
	q.items = q.items[1:]
	if q.limit > 0 {
		q.broadcastNotFullLocked()
	}
	return item
}

func (q *Fifo[T]) broadcastNotEmptyLocked() {
	close(q.notEmpty)
	q.notEmpty = make(chan struct{})
}

func (q *Fifo[T]) broadcastNotFullLocked() {
	close(q.notFull)
	q.notFull = make(chan struct{})
}

// armHighLocked must be called with q.mu held; it returns the callback to
// invoke (outside the lock) if the post just crossed the high watermark
// upward while unarmed.
func (q *Fifo[T]) armHighLocked(count int) (ThresholdFunc[T], *any, bool) {
	if q.highCB == nil || q.armed || count < q.high {
		return nil, nil, false
	}
	q.armed = true
	return q.highCB, &q.token, true
}

// armLowLocked must be called with q.mu held; it returns the callback to
// invoke (outside the lock) if the get just crossed the low watermark
// downward while armed.
func (q *Fifo[T]) armLowLocked() (ThresholdFunc[T], *any, bool) {
	if q.lowCB == nil || !q.armed || len(q.items) > q.low {
		return nil, nil, false
	}
	q.armed = false
	return q.lowCB, &q.token, true
}
