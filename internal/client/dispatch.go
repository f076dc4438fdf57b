package client

import (
	"encoding/json"
	"errors"

	"github.com/dkeye/Mesh/internal/peer"
	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

func (c *Client) handle(data []byte) {
	typ, err := protocol.PeekType(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "client").Msg("bad frame")
		return
	}

	switch typ {
	case protocol.TypeExistingParticipants:
		var msg protocol.ExistingParticipants
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Str("module", "client").Str("type", typ).Msg("bad payload")
			return
		}
		c.mu.Lock()
		c.session = msg.SessionCode
		c.mu.Unlock()
		log.Info().Str("module", "client").Str("session", string(msg.SessionCode)).Int("members", len(msg.ParticipantIDs)).Msg("joined")
		// the newcomer calls everyone; existing members wait for the offer
		for _, id := range msg.ParticipantIDs {
			if _, err := c.Manager.InitiateCall(id); err != nil {
				log.Warn().Err(err).Str("module", "client").Str("remote", string(id)).Msg("initiate call")
			}
		}

	case protocol.TypeOffer:
		var msg protocol.Description
		if err := json.Unmarshal(data, &msg); err != nil || msg.From == "" {
			log.Warn().Err(err).Str("module", "client").Str("type", typ).Msg("bad payload")
			return
		}
		offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: msg.SDP}
		if _, err := c.Manager.AcceptCall(msg.From, offer); err != nil {
			if errors.Is(err, peer.ErrGlareIgnored) {
				return
			}
			log.Warn().Err(err).Str("module", "client").Str("remote", string(msg.From)).Msg("accept call")
		}

	case protocol.TypeAnswer:
		var msg protocol.Description
		if err := json.Unmarshal(data, &msg); err != nil || msg.From == "" {
			log.Warn().Err(err).Str("module", "client").Str("type", typ).Msg("bad payload")
			return
		}
		answer := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: msg.SDP}
		if err := c.Manager.CompleteNegotiation(msg.From, answer); err != nil && !errors.Is(err, peer.ErrStaleNegotiation) {
			log.Warn().Err(err).Str("module", "client").Str("remote", string(msg.From)).Msg("complete negotiation")
		}

	case protocol.TypeICECandidate:
		var msg protocol.Candidate
		if err := json.Unmarshal(data, &msg); err != nil || msg.From == "" {
			log.Warn().Err(err).Str("module", "client").Str("type", typ).Msg("bad payload")
			return
		}
		var ci webrtc.ICECandidateInit
		if err := json.Unmarshal(msg.Candidate, &ci); err != nil {
			log.Warn().Err(err).Str("module", "client").Str("remote", string(msg.From)).Msg("bad candidate")
			return
		}
		_ = c.Manager.AddRemoteCandidate(msg.From, ci)

	case protocol.TypeParticipantJoined:
		var msg protocol.ParticipantJoined
		if err := json.Unmarshal(data, &msg); err == nil {
			log.Info().Str("module", "client").Str("remote", string(msg.ParticipantID)).Str("name", msg.DisplayName).Msg("participant joined")
		}

	case protocol.TypeParticipantLeft:
		var msg protocol.ParticipantLeft
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Str("module", "client").Str("type", typ).Msg("bad payload")
			return
		}
		c.Manager.Teardown(msg.ParticipantID)

	case protocol.TypeSessionCreated, protocol.TypeSessionUpdated:
		var msg protocol.SessionChanged
		if err := json.Unmarshal(data, &msg); err == nil {
			log.Info().Str("module", "client").Str("type", typ).Str("session", string(msg.Session.Code)).Bool("live", msg.Session.Live).Int("participants", msg.Session.ParticipantCount).Msg("session record changed")
		}

	case protocol.TypeError:
		var msg protocol.Error
		_ = json.Unmarshal(data, &msg)
		log.Warn().Str("module", "client").Str("error", msg.Error).Msg("relay error")

	case protocol.TypeLeft, protocol.TypePong, protocol.TypeWhoAmI, protocol.TypeWelcome:
		log.Debug().Str("module", "client").Str("type", typ).Msg("control")

	default:
		log.Debug().Str("module", "client").Str("type", typ).Msg("unknown message type")
	}
}
