// SPDX-License-Identifier: GPL-3.0-or-later

package dmtcore

import (
	"errors"
	"sync"
)

// ErrDuplicateHopByHop is returned by [SentRequestTable.Insert] when the
// hop-by-hop id is already tracked, which would violate spec.md §8
// property 5 ("at-most-one request-with-hbh in flight").
var ErrDuplicateHopByHop = errors.New("sentrequest: duplicate hop-by-hop id")

// SentRequest is what the out-sender remembers about a request it has
// transmitted but not yet received an answer for (spec.md §4.H).
type SentRequest struct {
	// OriginalHBH is the hop-by-hop id the request carried before this
	// peer's out-sender rewrote it, restored if the send must be rolled
	// back (spec.md §4.H step 1).
	OriginalHBH uint32

	// Msg is the serialized request, kept so failover routing can
	// re-queue it verbatim if the out-sender is cancelled mid-send.
	Msg []byte
}

// SentRequestTable is a peer's table of in-flight requests keyed by the
// hop-by-hop id this peer assigned them (spec.md §5 "Shared-resource
// policy": per-peer, protected by the table's own reader-writer lock).
type SentRequestTable struct {
	mu    sync.RWMutex
	byHBH map[uint32]SentRequest
}

// NewSentRequestTable returns an empty [*SentRequestTable].
func NewSentRequestTable() *SentRequestTable {
	return &SentRequestTable{byHBH: make(map[uint32]SentRequest)}
}

// Insert records a request before it is transmitted (spec.md §4.H step 3,
// §8 property 6 "Request tracking precedes transmission"). Fails with
// [ErrDuplicateHopByHop] if newHBH is already tracked.
func (t *SentRequestTable) Insert(newHBH uint32, req SentRequest) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.byHBH[newHBH]; exists {
		return ErrDuplicateHopByHop
	}
	t.byHBH[newHBH] = req
	return nil
}

// Take removes and returns the request tracked under hbh, for when a
// matching answer arrives.
func (t *SentRequestTable) Take(hbh uint32) (SentRequest, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	req, ok := t.byHBH[hbh]
	if ok {
		delete(t.byHBH, hbh)
	}
	return req, ok
}

// Remove discards the tracked request under hbh without returning it,
// used to undo a failed send (spec.md §4.H step 1 "remembering the
// original hbh value so that on error it can be restored").
func (t *SentRequestTable) Remove(hbh uint32) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byHBH, hbh)
}

// Len reports the number of in-flight requests, mainly for tests.
func (t *SentRequestTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.byHBH)
}
