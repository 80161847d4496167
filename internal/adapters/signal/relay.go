package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/Buzzline/internal/app/orch"
)

func (ctl *SignalWSController) handleRelay(
	sess *orch.Session,
	conn *WsSignalConn,
	kind string,
	data []byte,
) {
	var p orch.RelayRequest
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("kind", kind).Msg("bad relay payload")
		ctl.sendError(conn, orch.CodeBadPayload, "malformed "+kind+" payload")
		return
	}
	if err := ctl.Orch.Relay(sess, kind, p); err != nil {
		ctl.reply(conn, orch.CodeBadPayload, err)
	}
}
