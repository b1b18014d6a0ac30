// SPDX-License-Identifier: GPL-3.0-or-later

package dmtcore

import "sync/atomic"

// PeerState is the subset of the external peer state machine this core
// needs to decide whether out-sends go through the per-peer out-sender
// thread or are invoked inline (spec.md §4.H "Unstarted peer"). The full
// state machine (wait-conn-ack, wait-cea, etc.) lives outside this core;
// we only distinguish "open" from "not yet open".
type PeerState int32

const (
	PeerNotOpen PeerState = iota
	PeerOpen
	PeerClosed
)

// Peer is the per-peer state this core owns directly: its connection,
// hop-by-hop counter, sent-request table, and outgoing fifo (spec.md
// §4.H, §9 "Global mutable state... scope to a process-lifetime context
// object"). Everything else about a Diameter peer (capabilities,
// realm-routing table entries, watchdog timers) belongs to the
// surrounding peer state machine, out of scope here.
type Peer struct {
	ID string

	Cnx         *Cnx
	HopByHop    HopByHopCounter
	SentReqs    *SentRequestTable
	ToSend      *Fifo[[]byte]
	state       atomic.Int32
	outSenderWG chan struct{}
}

// NewPeer constructs a [*Peer] bound to an established [*Cnx].
func NewPeer(id string, cnx *Cnx) *Peer {
	return &Peer{
		ID:       id,
		Cnx:      cnx,
		SentReqs: NewSentRequestTable(),
		ToSend:   NewFifo[[]byte](),
	}
}

// State returns the peer's current [PeerState].
func (p *Peer) State() PeerState {
	return PeerState(p.state.Load())
}

// SetState transitions the peer's state. [OutSender.Start] does not
// check the state.
func (p *Peer) SetState(s PeerState) {
	p.state.Store(int32(s))
}
