package orch

import (
	"github.com/dkeye/Mesh/internal/app"
	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/metrics"
	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// Connect registers a freshly opened channel and greets it with its participant id.
func (o *Orchestrator) Connect(pid domain.ParticipantID, displayName string, sig core.SignalConnection) *app.Channel {
	ch := o.Channels.Open(pid, displayName, sig)
	o.Metrics.Channels.Inc()
	o.send(pid, protocol.TypeWelcome, protocol.Welcome{Type: protocol.TypeWelcome, ParticipantID: pid})
	return ch
}

// Join adds pid to the session, replies with the other members and announces the joiner.
func (o *Orchestrator) Join(pid domain.ParticipantID, code domain.SessionCode, displayName string) error {
	members, fresh, err := o.Registry.Join(pid, code, displayName)
	if err != nil {
		return err
	}
	if ch, ok := o.Channels.Get(pid); ok {
		ch.SetDisplayName(displayName)
	}

	others := lo.Reject(members, func(p domain.Participant, _ int) bool { return p.ID == pid })
	otherIDs := lo.Map(others, func(p domain.Participant, _ int) domain.ParticipantID { return p.ID })

	o.send(pid, protocol.TypeExistingParticipants, protocol.ExistingParticipants{
		Type:           protocol.TypeExistingParticipants,
		SessionCode:    code,
		ParticipantIDs: otherIDs,
		Participants:   others,
	})
	if !fresh {
		return nil
	}

	o.Metrics.Joins.Inc()
	o.Metrics.Sessions.Set(float64(len(o.Registry.Sessions())))
	sent := o.broadcast(otherIDs, protocol.TypeParticipantJoined, protocol.ParticipantJoined{
		Type:          protocol.TypeParticipantJoined,
		ParticipantID: pid,
		DisplayName:   displayName,
	})
	log.Info().Str("module", "orch").Str("pid", string(pid)).Str("session", string(code)).Int("notified", sent).Msg("participant joined")
	o.adjustCount(code, 1)
	return nil
}

// Leave removes pid from its session and notifies the remaining members.
// It returns false when pid was not in a session.
func (o *Orchestrator) Leave(pid domain.ParticipantID) bool {
	return o.leave(pid, metrics.LeaveExplicit)
}

func (o *Orchestrator) leave(pid domain.ParticipantID, reason string) bool {
	code, remaining, ok := o.Registry.Leave(pid)
	if !ok {
		return false
	}
	o.Metrics.Leaves.WithLabelValues(reason).Inc()
	o.Metrics.Sessions.Set(float64(len(o.Registry.Sessions())))
	sent := o.broadcast(remaining, protocol.TypeParticipantLeft, protocol.ParticipantLeft{
		Type:          protocol.TypeParticipantLeft,
		ParticipantID: pid,
	})
	log.Info().Str("module", "orch").Str("pid", string(pid)).Str("session", string(code)).Str("reason", reason).Int("notified", sent).Msg("participant left")
	o.adjustCount(code, -1)
	return true
}

// Disconnect handles channel close: membership is dropped and the session notified
// before the channel is forgotten.
func (o *Orchestrator) Disconnect(pid domain.ParticipantID) {
	o.leave(pid, metrics.LeaveDisconnect)
	if o.Channels.Close(pid) {
		o.Metrics.Channels.Dec()
	}
}

func (o *Orchestrator) WhoAmI(pid domain.ParticipantID) protocol.WhoAmI {
	resp := protocol.WhoAmI{Type: protocol.TypeWhoAmI, ParticipantID: pid}
	if ch, ok := o.Channels.Get(pid); ok {
		resp.DisplayName = ch.DisplayName()
	}
	if code, ok := o.Registry.ResolveSession(pid); ok {
		resp.SessionCode = code
	}
	return resp
}
