package domain

import (
	"errors"
	"strings"
	"time"

	gonanoid "github.com/matoous/go-nanoid"
)

const (
	SessionCodeLen    = 6
	MaxSessionCodeLen = 16

	sessionCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

var ErrInvalidSessionCode = errors.New("invalid session code")

// SessionCode is the short human-shareable identifier of a session ("room").
type SessionCode string

func NewSessionCode() (SessionCode, error) {
	code, err := gonanoid.Generate(sessionCodeAlphabet, SessionCodeLen)
	if err != nil {
		return "", err
	}
	return SessionCode(code), nil
}

// NormalizeSessionCode upper-cases and trims user input.
func NormalizeSessionCode(raw string) (SessionCode, error) {
	code := strings.ToUpper(strings.TrimSpace(raw))
	if code == "" || len(code) > MaxSessionCodeLen {
		return "", ErrInvalidSessionCode
	}
	return SessionCode(code), nil
}

// SessionRecord is the persisted metadata of a session.
// ParticipantCount is a display number only; the runtime registry is authoritative.
type SessionRecord struct {
	Code             SessionCode `json:"code"`
	Name             string      `json:"name"`
	Agenda           string      `json:"agenda,omitempty"`
	Category         string      `json:"category,omitempty"`
	Owner            string      `json:"owner,omitempty"`
	ScheduledAt      *time.Time  `json:"scheduledAt,omitempty"`
	Live             bool        `json:"live"`
	ParticipantCount int         `json:"participantCount"`
	CreatedAt        time.Time   `json:"createdAt"`
}
