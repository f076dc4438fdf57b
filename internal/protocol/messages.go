// Package protocol holds the JSON signaling messages exchanged between clients and the relay.
// Every frame is a flat object with a "type" discriminator.
package protocol

import (
	"encoding/json"

	"github.com/dkeye/Mesh/internal/domain"
)

const (
	// client -> server
	TypeJoinSession  = "join-session"
	TypeLeaveSession = "leave-session"
	TypePing         = "ping"
	TypeWhoAmI       = "whoami"

	// both directions, addressed
	TypeOffer        = "offer"
	TypeAnswer       = "answer"
	TypeICECandidate = "ice-candidate"

	// server -> client
	TypeWelcome              = "welcome"
	TypeExistingParticipants = "existing-participants"
	TypeParticipantJoined    = "participant-joined"
	TypeParticipantLeft      = "participant-left"
	TypeSessionCreated       = "session-created"
	TypeSessionUpdated       = "session-updated"
	TypeLeft                 = "left"
	TypePong                 = "pong"
	TypeError                = "error"
)

// Error codes carried in Error frames.
const (
	ErrCodeBadPayload       = "bad_payload"
	ErrCodeInvalidSession   = "invalid_session_code"
	ErrCodeInvalidName      = "invalid_name"
	ErrCodeAlreadyInSession = "already_in_session"
	ErrCodeRateLimited      = "rate_limited"
	ErrCodeNotInSession     = "not_in_session"
)

type Envelope struct {
	Type string `json:"type"`
}

type JoinSession struct {
	Type        string `json:"type"`
	SessionCode string `json:"sessionCode" validate:"required,max=16"`
	DisplayName string `json:"displayName,omitempty" validate:"max=36"`
}

type LeaveSession struct {
	Type        string `json:"type"`
	SessionCode string `json:"sessionCode,omitempty"`
}

// Description carries an offer or answer. To is set by the sender, From by the relay.
type Description struct {
	Type string               `json:"type"`
	To   domain.ParticipantID `json:"to,omitempty"`
	From domain.ParticipantID `json:"from,omitempty"`
	SDP  string               `json:"sdp"`
}

// Candidate is relayed without inspection; Candidate holds the raw ICE candidate object.
type Candidate struct {
	Type      string               `json:"type"`
	To        domain.ParticipantID `json:"to,omitempty"`
	From      domain.ParticipantID `json:"from,omitempty"`
	Candidate json.RawMessage      `json:"candidate"`
}

type Welcome struct {
	Type          string               `json:"type"`
	ParticipantID domain.ParticipantID `json:"participantId"`
}

type ExistingParticipants struct {
	Type           string                 `json:"type"`
	SessionCode    domain.SessionCode     `json:"sessionCode"`
	ParticipantIDs []domain.ParticipantID `json:"participantIds"`
	Participants   []domain.Participant   `json:"participants"`
}

type ParticipantJoined struct {
	Type          string               `json:"type"`
	ParticipantID domain.ParticipantID `json:"participantId"`
	DisplayName   string               `json:"displayName"`
}

type ParticipantLeft struct {
	Type          string               `json:"type"`
	ParticipantID domain.ParticipantID `json:"participantId"`
}

type SessionChanged struct {
	Type    string               `json:"type"`
	Session domain.SessionRecord `json:"session"`
}

type WhoAmI struct {
	Type          string               `json:"type"`
	ParticipantID domain.ParticipantID `json:"participantId"`
	DisplayName   string               `json:"displayName"`
	SessionCode   domain.SessionCode   `json:"sessionCode,omitempty"`
}

type Error struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type Simple struct {
	Type string `json:"type"`
}

func NewError(code string) Error { return Error{Type: TypeError, Error: code} }

// PeekType reads only the discriminator of a frame.
func PeekType(data []byte) (string, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", err
	}
	return env.Type, nil
}
