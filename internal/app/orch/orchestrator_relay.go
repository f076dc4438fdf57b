package orch

import (
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/metrics"
	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/rs/zerolog/log"
)

// RelayDescription forwards an offer or answer to msg.To. The SDP is not inspected.
func (o *Orchestrator) RelayDescription(from domain.ParticipantID, msg protocol.Description) bool {
	to := msg.To
	out := protocol.Description{Type: msg.Type, From: from, SDP: msg.SDP}
	return o.relay(from, to, msg.Type, out)
}

// RelayCandidate forwards an ICE candidate to msg.To. The candidate is not inspected.
func (o *Orchestrator) RelayCandidate(from domain.ParticipantID, msg protocol.Candidate) bool {
	to := msg.To
	out := protocol.Candidate{Type: protocol.TypeICECandidate, From: from, Candidate: msg.Candidate}
	return o.relay(from, to, protocol.TypeICECandidate, out)
}

// relay drops messages whose sender and recipient do not share a session.
// Missing recipients are not reported back; the sender's link times out instead.
func (o *Orchestrator) relay(from, to domain.ParticipantID, kind string, v any) bool {
	if to == "" || to == from || !o.Registry.SameSession(from, to) {
		o.Metrics.Dropped.WithLabelValues(metrics.DropNotInSession).Inc()
		log.Debug().Str("module", "orch").Str("from", string(from)).Str("to", string(to)).Str("kind", kind).Msg("recipient not in sender's session, dropped")
		return false
	}
	if !o.send(to, kind, v) {
		return false
	}
	o.Metrics.Relayed.WithLabelValues(kind).Inc()
	log.Debug().Str("module", "orch").Str("from", string(from)).Str("to", string(to)).Str("kind", kind).Msg("relayed")
	return true
}
