package orch

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Buzzline/internal/core"
	"github.com/dkeye/Buzzline/internal/domain"
)

// Join admits the session into req.RoomID. On failure the session stays
// unjoined and a *SignalError describes why.
func (o *Orchestrator) Join(ctx context.Context, s *Session, req JoinRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	logCtx := log.With().Str("module", "orch").Str("peer", string(s.ID)).Str("room", string(req.RoomID)).Logger()

	if s.roomID != "" {
		return signalErr(CodeJoinFailed, "already in a room")
	}
	resolved, err := o.validate(ctx, req.Token)
	if err != nil && !errors.Is(err, domain.ErrInvalidToken) {
		logCtx.Warn().Err(err).Msg("join rejected: token check failed")
		return signalErr(CodeJoinFailed, "token check failed")
	}
	if err != nil || req.RoomID == "" || resolved != req.RoomID {
		logCtx.Info().Msg("join rejected: invalid token")
		return signalErr(CodeInvalidToken, "Invalid or expired token")
	}
	room, err := o.Rooms.GetRoom(ctx, req.RoomID)
	if err != nil {
		logCtx.Warn().Err(err).Msg("join rejected: room lookup failed")
		return signalErr(CodeJoinFailed, err.Error())
	}
	if room.IsClosed() {
		return signalErr(CodeJoinFailed, domain.ErrRoomClosed.Error())
	}
	peer, err := domain.NewPeer(s.ID, req.DisplayName)
	if err != nil {
		return signalErr(CodeJoinFailed, err.Error())
	}

	joined := encode(peerJoinedMsg{Type: TypePeerJoined, PeerID: peer.ID, DisplayName: peer.DisplayName})
	admit := func(t core.Transition) error {
		if err := o.redeem(ctx, req.Token, req.RoomID); err != nil {
			return err
		}
		if t.Size == 1 {
			if err := o.Rooms.MarkActive(ctx, req.RoomID); err != nil {
				return err
			}
		}
		others := make([]domain.Peer, 0, len(t.Others))
		for _, m := range t.Others {
			others = append(others, m.Peer)
		}
		// Enqueued before the joiner becomes visible, so it precedes any
		// later notification about this room.
		o.send(core.Member{Peer: peer, Conn: s.Conn}, req.RoomID, encode(roomJoinedMsg{
			Type:       TypeRoomJoined,
			RoomID:     req.RoomID,
			Peers:      others,
			ICEServers: o.ICEServers,
		}))
		o.fanOut(req.RoomID, t.Others, joined)
		return nil
	}

	_, err = o.Peers.AddPeer(req.RoomID, core.Member{Peer: peer, Conn: s.Conn}, room.MaxParticipants, admit)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidToken):
		logCtx.Info().Msg("join rejected: token already redeemed or rotated")
		return signalErr(CodeInvalidToken, "Invalid or expired token")
	case errors.Is(err, domain.ErrRoomFull):
		logCtx.Info().Msg("join rejected: room full")
		return signalErr(CodeJoinFailed, domain.ErrRoomFull.Error())
	default:
		logCtx.Warn().Err(err).Msg("join rejected")
		return signalErr(CodeJoinFailed, err.Error())
	}

	s.roomID = req.RoomID
	s.peer = peer
	logCtx.Info().Msg("joined")
	return nil
}

// Leave removes the session from its room. It is a no-op when unjoined, so
// an explicit leave followed by a disconnect removes the peer once.
func (o *Orchestrator) Leave(ctx context.Context, s *Session) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roomID == "" {
		return false
	}
	roomID, peerID := s.roomID, s.peer.ID
	s.roomID = ""
	s.peer = domain.Peer{}

	// The store applies its own timeout; a closing connection must still
	// be able to close its room.
	ctx = context.WithoutCancel(ctx)
	left := encode(peerLeftMsg{Type: TypePeerLeft, PeerID: peerID})
	removed := o.Peers.RemovePeer(roomID, peerID, func(t core.Transition) error {
		o.fanOut(roomID, t.Others, left)
		if t.Size == 0 {
			closedAt := o.now()
			if err := o.Rooms.MarkClosed(ctx, roomID, closedAt); err != nil {
				log.Warn().Err(err).Str("module", "orch").Str("room", string(roomID)).Msg("failed to close room, retrying")
				o.retryClose(ctx, roomID, closedAt)
			}
		}
		return nil
	})
	log.Info().Str("module", "orch").Str("peer", string(peerID)).Str("room", string(roomID)).Bool("removed", removed).Msg("left")
	return removed
}

func (o *Orchestrator) validate(ctx context.Context, token string) (domain.RoomID, error) {
	ctx, cancel := o.bounded(ctx)
	defer cancel()
	return o.Tokens.Validate(ctx, token)
}

func (o *Orchestrator) redeem(ctx context.Context, token string, roomID domain.RoomID) error {
	ctx, cancel := o.bounded(ctx)
	defer cancel()
	return o.Tokens.Redeem(ctx, token, roomID)
}

// retryClose keeps trying to close an emptied room in the background. Each
// attempt runs under the room's lock and only while the room is still
// empty; a peer joining in between takes over the room's lifecycle.
func (o *Orchestrator) retryClose(ctx context.Context, roomID domain.RoomID, closedAt time.Time) {
	attempts, backoff := o.CloseRetries, o.CloseBackoff
	if attempts <= 0 {
		attempts = defaultCloseRetries
	}
	if backoff <= 0 {
		backoff = defaultCloseBackoff
	}
	logCtx := log.With().Str("module", "orch").Str("room", string(roomID)).Logger()

	o.closing.Add(1)
	go func() {
		defer o.closing.Done()
		for i := 1; i <= attempts; i++ {
			time.Sleep(backoff)
			backoff *= 2
			ran, err := o.Peers.WhenEmpty(roomID, func() error {
				return o.Rooms.MarkClosed(ctx, roomID, closedAt)
			})
			switch {
			case err == nil && !ran:
				logCtx.Info().Msg("room refilled, close abandoned")
				return
			case err == nil:
				logCtx.Info().Int("attempt", i).Msg("room closed on retry")
				return
			}
			logCtx.Warn().Err(err).Int("attempt", i).Msg("close retry failed")
		}
		logCtx.Error().Int("attempts", attempts).Msg("giving up closing room")
	}()
}

// Relay forwards an opaque negotiation message to the target peer of the
// sender's room, tagged with the sender's id.
func (o *Orchestrator) Relay(s *Session, kind string, req RelayRequest) error {
	s.mu.Lock()
	roomID, from := s.roomID, s.peer.ID
	s.mu.Unlock()

	if roomID == "" {
		return signalErr(CodeNotJoined, "join a room before sending "+kind)
	}
	target, ok := o.Peers.Lookup(roomID, req.TargetPeerID)
	if !ok {
		log.Debug().Str("module", "orch").Str("room", string(roomID)).Str("target", string(req.TargetPeerID)).Str("kind", kind).Msg("relay target absent")
		if o.NotifyUnavailable {
			return signalErr(CodePeerUnavailable, "peer "+string(req.TargetPeerID)+" is not in the room")
		}
		return nil
	}
	o.send(target, roomID, encode(relayMsg{
		Type:      kind,
		PeerID:    from,
		SDP:       req.SDP,
		Candidate: req.Candidate,
	}))
	return nil
}
