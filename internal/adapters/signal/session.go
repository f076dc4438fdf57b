package signal

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/Mesh/internal/app"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/metrics"
	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(
	pid domain.ParticipantID,
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.JoinSession
	if err := json.Unmarshal(data, &p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Msg("bad join payload")
		ctl.sendJSON(conn, protocol.NewError(protocol.ErrCodeBadPayload))
		return
	}
	if err := validate.Struct(p); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("pid", string(pid)).Msg("invalid join payload")
		ctl.sendJSON(conn, protocol.NewError(protocol.ErrCodeBadPayload))
		return
	}
	if lim := ctl.opts.JoinLimiter; lim != nil && !lim.Allow(pid) {
		ctl.Orch.Metrics.Dropped.WithLabelValues(metrics.DropRateLimited).Inc()
		log.Warn().Str("module", "signal").Str("pid", string(pid)).Msg("join rate limited")
		ctl.sendJSON(conn, protocol.NewError(protocol.ErrCodeRateLimited))
		return
	}

	code, err := domain.NormalizeSessionCode(p.SessionCode)
	if err != nil {
		ctl.sendJSON(conn, protocol.NewError(protocol.ErrCodeInvalidSession))
		return
	}
	name := p.DisplayName
	if name == "" {
		if ch, ok := ctl.Orch.Channels.Get(pid); ok {
			name = ch.DisplayName()
		}
	}
	name, err = domain.ValidateDisplayName(name)
	if errors.Is(err, domain.ErrDisplayNameTooLong) {
		ctl.sendJSON(conn, protocol.NewError(protocol.ErrCodeInvalidName))
		return
	}

	log.Info().Str("module", "signal").Str("pid", string(pid)).Str("session", string(code)).Msg("join")
	if err := ctl.Orch.Join(pid, code, name); err != nil {
		if errors.Is(err, app.ErrAlreadyInSession) {
			ctl.sendJSON(conn, protocol.NewError(protocol.ErrCodeAlreadyInSession))
			return
		}
		log.Error().Err(err).Str("module", "signal").Str("pid", string(pid)).Msg("join")
	}
}

// handleLeave exits the current session; the channel stays open.
func (ctl *SignalWSController) handleLeave(
	pid domain.ParticipantID,
	conn *WsSignalConn,
	data []byte,
) {
	var p protocol.LeaveSession
	_ = json.Unmarshal(data, &p)
	if p.SessionCode != "" {
		code, _ := domain.NormalizeSessionCode(p.SessionCode)
		if cur, ok := ctl.Orch.Registry.ResolveSession(pid); ok && cur != code {
			log.Warn().Str("module", "signal").Str("pid", string(pid)).Str("session", string(cur)).Str("requested", p.SessionCode).Msg("leave names another session, leaving current")
		}
	}

	log.Info().Str("module", "signal").Str("pid", string(pid)).Msg("leave")
	if !ctl.Orch.Leave(pid) {
		log.Debug().Str("module", "signal").Str("pid", string(pid)).Msg("leave without session ignored")
	}
	ctl.sendJSON(conn, protocol.Simple{Type: protocol.TypeLeft})
}
