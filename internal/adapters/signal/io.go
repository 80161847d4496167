package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Buzzline/internal/app/orch"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.opts.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.opts.WriteWait)); err != nil {
				return
			}
		}
	}
}

// readPump owns the session: when it returns the peer leaves its room
// exactly once, whatever ended the connection.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, sess *orch.Session, c *WsSignalConn) {
	defer func() {
		roomID, joined := sess.Room()
		log.Info().Str("module", "signal").Str("peer", string(sess.ID)).Str("room", string(roomID)).Bool("joined", joined).Msg("readPump closing")
		ctl.Orch.Leave(ctx, sess)
		if ctl.Limiter != nil {
			ctl.Limiter.Forget(sess.ID)
		}
		cancel()
		c.Close()
	}()

	pongWait := ctl.opts.PingPeriod * 10 / 9
	c.conn.SetReadLimit(ctl.opts.ReadLimit)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "signal").Str("peer", string(sess.ID)).Msg("readPump read error")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
			ctl.handleSignal(ctx, sess, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(ctx context.Context, sess *orch.Session, c *WsSignalConn, data []byte) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad json")
		ctl.sendError(c, orch.CodeBadPayload, "message must be a JSON object with a type")
		return
	}

	switch env.Type {
	case orch.TypeJoinRoom:
		ctl.handleJoin(ctx, sess, c, data)
	case orch.TypeLeaveRoom:
		ctl.handleLeave(ctx, sess)
	case orch.TypeOffer, orch.TypeAnswer, orch.TypeICECandidate:
		ctl.handleRelay(sess, c, env.Type, data)
	case orch.TypePing:
		ctl.handlePing(c)
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
	}
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}

func (ctl *SignalWSController) sendError(c *WsSignalConn, code, message string) {
	_ = c.TrySend(orch.ErrorFrame(code, message))
}

// reply turns an orchestrator error into an error event; other errors are
// reported as a generic failure of the given code.
func (ctl *SignalWSController) reply(c *WsSignalConn, fallback string, err error) {
	var se *orch.SignalError
	if errors.As(err, &se) {
		ctl.sendError(c, se.Code, se.Message)
		return
	}
	ctl.sendError(c, fallback, err.Error())
}
