// SPDX-License-Identifier: GPL-3.0-or-later

package dmtcore

import "fmt"

// EventKind tags the payload carried by an [Event] (spec.md §3 "Event").
type EventKind int

const (
	// EventMsgRecv carries a fully reassembled Diameter message.
	EventMsgRecv EventKind = iota

	// EventCnxError signals a fatal, unrecoverable condition on a
	// connection: transport closed, malformed frame, TLS fatal.
	EventCnxError

	// EventCnxEPChange carries a peer address-change notification
	// (SCTP address add/remove, association change).
	EventCnxEPChange

	// EventTimeout signals that a caller-specified deadline elapsed. No
	// component of this core posts it; the acceptor drops a client whose
	// handshake times out without posting an event.
	EventTimeout

	// EventPSMTimeout is the externally defined peer state machine
	// timeout (spec.md §6 "Internal event codes"); the core only
	// carries it through the fifo plumbing, it never interprets it.
	EventPSMTimeout

	// EventTerminate is the externally defined shutdown signal posted
	// by the server acceptor when Accept fails, and when it shuts down
	// while handing off a client that has already been registered
	// (spec.md §4.G).
	EventTerminate
)

// String implements [fmt.Stringer] for structured log fields.
func (k EventKind) String() string {
	switch k {
	case EventMsgRecv:
		return "MSG_RECV"
	case EventCnxError:
		return "CNX_ERROR"
	case EventCnxEPChange:
		return "CNX_EP_CHANGE"
	case EventTimeout:
		return "TIMEOUT"
	case EventPSMTimeout:
		return "PSM_TIMEOUT"
	case EventTerminate:
		return "TERMINATE"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is a tagged union carrying one of MSG_RECV(bytes), CNX_ERROR,
// CNX_EP_CHANGE(payload), TIMEOUT (spec.md §3). Dequeuing an Event from a
// [Fifo] transfers ownership of its payload to the caller; nothing else
// retains a reference to Msg after [Fifo.Get] returns it.
type Event struct {
	// Kind selects which of the fields below is meaningful.
	Kind EventKind

	// PeerID identifies the connection or peer this event originated
	// from, for log correlation. Empty for events with no single owner
	// (e.g. a TERMINATE posted to the main fifo).
	PeerID string

	// Msg carries the reassembled message for EventMsgRecv.
	Msg []byte

	// StreamID carries the originating SCTP stream for EventMsgRecv
	// events produced by a multi-stream connection; zero otherwise.
	StreamID uint16

	// EPChange is the endpoint field of EventCnxEPChange. This core's
	// SCTP receivers post a zero Endpoint: the notification's address is
	// not parsed, so the event carries no changed address.
	EPChange Endpoint

	// Err carries the failure reason for EventCnxError.
	Err error
}

// NewMsgRecvEvent builds an [EventMsgRecv] event.
func NewMsgRecvEvent(peerID string, msg []byte, streamID uint16) Event {
	return Event{Kind: EventMsgRecv, PeerID: peerID, Msg: msg, StreamID: streamID}
}

// NewCnxErrorEvent builds an [EventCnxError] event.
func NewCnxErrorEvent(peerID string, err error) Event {
	return Event{Kind: EventCnxError, PeerID: peerID, Err: err}
}

// NewCnxEPChangeEvent builds an [EventCnxEPChange] event.
func NewCnxEPChangeEvent(peerID string, ep Endpoint) Event {
	return Event{Kind: EventCnxEPChange, PeerID: peerID, EPChange: ep}
}
