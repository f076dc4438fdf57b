// Package domain contains the entities shared by the relay and the client, with light validation
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const (
	MaxDisplayNameLen  = 36
	DefaultDisplayName = "guest"
)

var (
	ErrDisplayNameTooLong = errors.New("display name too long")
	ErrDisplayNameEmpty   = errors.New("display name empty")
)

// ParticipantID is assigned per signaling channel. It is not stable across reconnects.
type ParticipantID string

func NewParticipantID() ParticipantID {
	return ParticipantID(uuid.NewString())
}

// Participant is the server-side view of one open channel.
type Participant struct {
	ID          ParticipantID `json:"id"`
	DisplayName string        `json:"displayName"`
}

// ValidateDisplayName returns the name to use, falling back to DefaultDisplayName when empty.
func ValidateDisplayName(name string) (string, error) {
	if len(name) == 0 {
		return DefaultDisplayName, ErrDisplayNameEmpty
	}
	if len(name) > MaxDisplayNameLen {
		return "", ErrDisplayNameTooLong
	}
	return name, nil
}
