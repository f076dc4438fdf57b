package signal

import (
	"encoding/json"

	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleDescription(
	pid domain.ParticipantID,
	conn *WsSignalConn,
	kind string,
	data []byte,
) {
	var p protocol.Description
	if err := json.Unmarshal(data, &p); err != nil || p.To == "" {
		log.Warn().Err(err).Str("module", "signal").Str("kind", kind).Msg("bad description payload")
		ctl.sendJSON(conn, protocol.NewError(protocol.ErrCodeBadPayload))
		return
	}
	p.Type = kind
	ctl.Orch.RelayDescription(pid, p)
}

func (ctl *SignalWSController) handleCandidate(
	pid domain.ParticipantID,
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.Candidate
	if err := json.Unmarshal(data, &p); err != nil || p.To == "" {
		log.Warn().Err(err).Str("module", "signal").Msg("bad candidate payload")
		ctl.sendJSON(conn, protocol.NewError(protocol.ErrCodeBadPayload))
		return
	}
	ctl.Orch.RelayCandidate(pid, p)
}
