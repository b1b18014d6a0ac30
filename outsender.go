// SPDX-License-Identifier: GPL-3.0-or-later

package dmtcore

import (
	"context"
	"fmt"
	"log/slog"
)

// OutSender drives a peer's per-message send protocol (spec.md §4.H).
// While the peer is [PeerOpen] one goroutine pulls from [Peer.ToSend]
// and transmits; before that, [OutSender.DoSend] is invoked inline by
// the caller (spec.md §4.H "Unstarted peer").
type OutSender struct {
	Peer   *Peer
	Logger SLogger
}

// NewOutSender returns an [*OutSender] bound to peer.
func NewOutSender(peer *Peer, logger SLogger) *OutSender {
	return &OutSender{Peer: peer, Logger: logger}
}

// Start spawns the per-peer out thread once the peer transitions to
// [PeerOpen]. Cancelling ctx stops the loop after its current send
// completes or is cancelled mid-flight (spec.md §4.H "Cancellation").
func (s *OutSender) Start(ctx context.Context) {
	go s.run(ctx)
}

// run is spec.md §4.H's per-peer out thread. [Cnx.Send] is synchronous
// with no cancellation hook of its own (it runs to completion bounded
// only by the socket timeout), so once a message has been handed to
// [OutSender.DoSend] this thread cannot observe ctx cancellation until
// that call returns. The one window where a message is "pulled but
// unsent" and cancellation is still observable is the race between
// [Fifo.GetContext] returning a message and the next loop iteration
// noticing ctx is already done; that message is re-queued here per
// spec.md §4.H "Cancellation" rather than handed to DoSend and sent
// anyway by a thread that is shutting down.
func (s *OutSender) run(ctx context.Context) {
	for {
		msg, err := s.Peer.ToSend.GetContext(ctx)
		if err != nil {
			// Either ctx was cancelled or the peer's ToSend fifo was
			// destroyed (Fifo.Delete); both mean this out-sender is done.
			return
		}
		if ctx.Err() != nil {
			s.Requeue(msg)
			return
		}
		if sendErr := s.DoSend(msg); sendErr != nil {
			s.Logger.Error("outSenderSendFailed",
				slog.String("peerID", s.Peer.ID),
				slog.Any("err", sendErr),
			)
		}
	}
}

// DoSend implements spec.md §4.H's per-message protocol steps 1-6. It is
// called both by the out-sender loop (peer OPEN) and inline by callers
// when the peer has no out thread yet.
func (s *OutSender) DoSend(msg []byte) error {
	var newHBH uint32
	var originalHBH uint32
	isRequest := IsRequest(msg)

	if isRequest {
		originalHBH = HopByHop(msg)
		newHBH = s.Peer.HopByHop.Next()
		SetHopByHop(msg, newHBH)

		if err := s.Peer.SentReqs.Insert(newHBH, SentRequest{OriginalHBH: originalHBH, Msg: msg}); err != nil {
			SetHopByHop(msg, originalHBH)
			return fmt.Errorf("%w: %s", ErrRoutingTransient, err)
		}
	}

	s.Logger.Info("sent",
		slog.String("peerID", s.Peer.ID),
		slog.Bool("isRequest", isRequest),
		slog.Uint64("hopByHop", uint64(HopByHop(msg))),
		slog.Time("t", s.Peer.Cnx.TimeNow()),
	)

	if err := s.Peer.Cnx.Send(msg); err != nil {
		if isRequest {
			s.Peer.SentReqs.Remove(newHBH)
			SetHopByHop(msg, originalHBH)
		}
		s.Peer.Cnx.Incoming.Post(NewCnxErrorEvent(s.Peer.ID, err))
		return err
	}
	return nil
}

// Requeue implements spec.md §4.H's cancellation handling: a message
// that was pulled from ToSend but never sent (the out-sender goroutine
// was cancelled mid-send) is pushed back so failover routing can pick
// it up. A failure to re-queue is logged and the message is dropped,
// matching [ErrRoutingTransient]'s propagation rule (spec.md §7).
func (s *OutSender) Requeue(msg []byte) {
	if err := s.Peer.ToSend.Post(msg); err != nil {
		s.Logger.Warn("outSenderRequeueFailed",
			slog.String("peerID", s.Peer.ID),
			slog.Any("err", err),
		)
	}
}
