// SPDX-License-Identifier: GPL-3.0-or-later

package dmtcore

import (
	"net/netip"
	"sort"
	"sync"
)

// EndpointFlag is one bit of the flag set spec.md §3 attaches to an
// [Endpoint]: {CONFIGURED, DISCOVERED, LINK-LOCAL, PRIMARY, ACCEPT-ALL}.
type EndpointFlag uint8

const (
	// EndpointConfigured marks an endpoint read from configuration.
	EndpointConfigured EndpointFlag = 1 << iota

	// EndpointDiscovered marks an endpoint learned from a CNX_EP_CHANGE
	// notification (spec.md §4.C "Framed receive").
	EndpointDiscovered

	// EndpointLinkLocal marks a link-local address. The flag does not
	// exclude it from candidate lists; [EndpointSet.CandidateOrder]
	// places it by its other flags.
	EndpointLinkLocal

	// EndpointPrimary marks the address an SCTP association currently
	// uses as its primary path.
	EndpointPrimary

	// EndpointAcceptAll marks the wildcard bind address.
	EndpointAcceptAll
)

// Has reports whether f includes the bits in other.
func (f EndpointFlag) Has(other EndpointFlag) bool {
	return f&other == other
}

// Endpoint is an IPv4 or IPv6 socket address plus a flag set (spec.md §3).
// Endpoint is comparable by value; use [EndpointSet] for uniqueness and
// flag merging semantics.
type Endpoint struct {
	Addr  netip.Addr
	Port  uint16
	Flags EndpointFlag
}

// endpointKey identifies an endpoint by (family, address, port) — spec.md
// §3's uniqueness key for an [EndpointSet]. The family is implicit in
// netip.Addr's internal representation, which already distinguishes a
// v4-mapped address from a plain v4 address.
type endpointKey struct {
	addr netip.Addr
	port uint16
}

func (e Endpoint) key() endpointKey {
	return endpointKey{addr: e.Addr, port: e.Port}
}

// AddrPort returns e as a [netip.AddrPort].
func (e Endpoint) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(e.Addr, e.Port)
}

// EndpointSet is a deduplicated collection of [Endpoint] records,
// maintaining uniqueness by (family, address, port); merging a duplicate
// ORs the flag sets (spec.md §3). Safe for concurrent use: the local bind
// set is read by the acceptor and transport setup while CNX_EP_CHANGE
// notifications from multiple connections may concurrently discover new
// remote candidates.
type EndpointSet struct {
	mu      sync.RWMutex
	order   []endpointKey
	entries map[endpointKey]Endpoint
}

// NewEndpointSet returns an empty [*EndpointSet].
func NewEndpointSet() *EndpointSet {
	return &EndpointSet{entries: make(map[endpointKey]Endpoint)}
}

// Merge inserts e, or ORs its flags into the existing entry sharing e's
// (family, address, port) key. Returns true if this created a new entry.
func (s *EndpointSet) Merge(e Endpoint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := e.key()
	if existing, ok := s.entries[k]; ok {
		existing.Flags |= e.Flags
		s.entries[k] = existing
		return false
	}
	s.entries[k] = e
	s.order = append(s.order, k)
	return true
}

// Remove deletes the entry matching e's (family, address, port) key, if any.
func (s *EndpointSet) Remove(e Endpoint) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := e.key()
	if _, ok := s.entries[k]; !ok {
		return
	}
	delete(s.entries, k)
	for i, kk := range s.order {
		if kk == k {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of distinct endpoints in s.
func (s *EndpointSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// List returns a snapshot of s's entries, in insertion order.
func (s *EndpointSet) List() []Endpoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Endpoint, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.entries[k])
	}
	return out
}

// CandidateOrder returns s's entries ordered CONFIGURED first, then
// DISCOVERED, then any remaining entries, with entries matching
// preferIPv6 sorted first within each group — spec.md §4.C "Client
// connect": "Build a candidate address array in priority order —
// CONFIGURED first, then DISCOVERED, then any remaining — each entry
// using the negotiated family."
func (s *EndpointSet) CandidateOrder(preferIPv6 bool) []Endpoint {
	all := s.List()
	var configured, discovered, rest []Endpoint
	for _, e := range all {
		switch {
		case e.Flags.Has(EndpointConfigured):
			configured = append(configured, e)
		case e.Flags.Has(EndpointDiscovered):
			discovered = append(discovered, e)
		default:
			rest = append(rest, e)
		}
	}
	byFamily := func(in []Endpoint) []Endpoint {
		sort.SliceStable(in, func(i, j int) bool {
			return in[i].Addr.Is6() == preferIPv6 && in[j].Addr.Is6() != preferIPv6
		})
		return in
	}
	out := append(byFamily(configured), byFamily(discovered)...)
	out = append(out, byFamily(rest)...)
	return out
}

// NewEndpointFunc returns a [Func] that always returns the given [netip.AddrPort].
//
// This is a convenience wrapper around [ConstFunc] for the common case of
// injecting a network endpoint into a pipeline.
func NewEndpointFunc(endpoint netip.AddrPort) Func[Unit, netip.AddrPort] {
	return ConstFunc(endpoint)
}
