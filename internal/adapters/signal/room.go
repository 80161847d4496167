package signal

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Buzzline/internal/app/orch"
)

func (ctl *SignalWSController) handleJoin(
	ctx context.Context,
	sess *orch.Session,
	conn *WsSignalConn,
	data []byte,
) {
	var p orch.JoinRequest
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendError(conn, orch.CodeBadPayload, "malformed join-room payload")
		return
	}
	if ctl.Limiter != nil && !ctl.Limiter.Allow(sess.ID) {
		log.Warn().Str("module", "signal").Str("peer", string(sess.ID)).Msg("join rate limited")
		ctl.sendError(conn, orch.CodeJoinFailed, "too many join attempts")
		return
	}

	log.Info().Str("module", "signal").Str("peer", string(sess.ID)).Str("room", string(p.RoomID)).Msg("join")
	if err := ctl.Orch.Join(ctx, sess, p); err != nil {
		ctl.reply(conn, orch.CodeJoinFailed, err)
	}
}

// handleLeave leaves the current room without a reply; the connection
// stays open and may join again.
func (ctl *SignalWSController) handleLeave(
	ctx context.Context,
	sess *orch.Session,
) {
	roomID, joined := sess.Room()
	if !joined {
		log.Debug().Str("module", "signal").Str("peer", string(sess.ID)).Msg("leave while not in a room")
		return
	}
	removed := ctl.Orch.Leave(ctx, sess)
	log.Info().Str("module", "signal").Str("peer", string(sess.ID)).Str("room", string(roomID)).Bool("removed", removed).Msg("leave")
}
