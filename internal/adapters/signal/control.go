package signal

import (
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/protocol"
)

func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
) {
	ctl.sendJSON(conn, protocol.Simple{Type: protocol.TypePong})
}

func (ctl *SignalWSController) handleWhoAmI(
	pid domain.ParticipantID,
	conn *WsSignalConn,
) {
	ctl.sendJSON(conn, ctl.Orch.WhoAmI(pid))
}
