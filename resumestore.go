// SPDX-License-Identifier: GPL-3.0-or-later

package dmtcore

import (
	"bytes"
	"crypto/tls"
	"errors"
	"fmt"
	"sync"
)

// ErrResumeDataMismatch is returned by [ResumeStore.Store] when the same
// key is stored twice with different data (spec.md §8 property 8
// "Resume-store idempotence").
var ErrResumeDataMismatch = errors.New("resumestore: key already stored with different data")

// ResumeStore implements the server-side session-resumption callbacks
// spec.md §4.F describes as the library triplet store/remove/fetch,
// mapped onto Go's [tls.Config.WrapSession]/[tls.Config.UnwrapSession]
// hooks (see DESIGN.md for why: Go 1.23 has no direct store/fetch TLS
// session cache API the way GnuTLS does, but WrapSession/UnwrapSession
// let this core own the storage side of ticket-based resumption
// instead of relying on stdlib's built-in, unobservable session cache).
//
// Ordered insert and the reader-writer split (spec.md §5 "the resume
// store uses a reader-writer lock (reader for fetch, writer for
// store/remove)") are both upheld: order is the slice below, lookups go
// through the map, and RWMutex gives fetch concurrent access.
type ResumeStore struct {
	mu    sync.RWMutex
	order []string
	data  map[string][]byte
}

// NewResumeStore returns an empty [*ResumeStore].
func NewResumeStore() *ResumeStore {
	return &ResumeStore{data: make(map[string][]byte)}
}

// Store inserts (key, value). A duplicate store of identical data is
// idempotent; a duplicate store of different data under the same key
// fails with [ErrResumeDataMismatch].
func (r *ResumeStore) Store(key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.data[key]; ok {
		if bytes.Equal(existing, value) {
			return nil
		}
		return fmt.Errorf("%w: key %q", ErrResumeDataMismatch, key)
	}
	cp := append([]byte(nil), value...)
	r.data[key] = cp
	r.order = append(r.order, key)
	return nil
}

// Remove discards the entry stored under key, if any.
func (r *ResumeStore) Remove(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.data[key]; !ok {
		return
	}
	delete(r.data, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Fetch returns a freshly allocated copy of the data stored under key,
// matching spec.md §4.F's "Fetch returns a freshly allocated copy owned
// by the library" (here: owned by the caller, since Go has no manual
// free to hand it back through).
func (r *ResumeStore) Fetch(key string) ([]byte, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.data[key]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), v...), true
}

// Len reports the number of tracked entries, mainly for tests (spec.md
// §8 scenario S5 expects exactly one entry after a 4-pair handshake).
func (r *ResumeStore) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// WrapSession implements the [tls.Config.WrapSession] hook: it stores
// the session state under a freshly minted identity and returns that
// identity as the wire-visible session ticket label.
func (r *ResumeStore) WrapSession(_ tls.ConnectionState, ss *tls.SessionState) ([]byte, error) {
	data, err := ss.Bytes()
	if err != nil {
		return nil, fmt.Errorf("%w: marshal session state: %s", ErrTLSFatal, err)
	}
	key := NewSpanID()
	if err := r.Store(key, data); err != nil {
		return nil, err
	}
	return []byte(key), nil
}

// UnwrapSession implements the [tls.Config.UnwrapSession] hook: a miss
// is reported by returning a nil state and nil error, per the hook's
// contract, which falls back to a full handshake exactly as spec.md
// §4.F's "if resumption fails, perform a full handshake" requires.
func (r *ResumeStore) UnwrapSession(identity []byte, _ tls.ConnectionState) (*tls.SessionState, error) {
	data, ok := r.Fetch(string(identity))
	if !ok {
		return nil, nil
	}
	return tls.ParseSessionState(data)
}
