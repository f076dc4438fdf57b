package app

import "github.com/dkeye/Mesh/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	Disconnect
)

// Policy decides what happens to a recipient whose send buffer is full.
type Policy interface {
	OnBackPressure(pid domain.ParticipantID, kind string) BackpressureAction
}

// DropPolicy drops the frame; the sender observes a negotiation timeout.
type DropPolicy struct{}

func (DropPolicy) OnBackPressure(domain.ParticipantID, string) BackpressureAction {
	return DropFrame
}

// DisconnectPolicy closes the slow channel, which triggers the usual leave handling.
type DisconnectPolicy struct{}

func (DisconnectPolicy) OnBackPressure(domain.ParticipantID, string) BackpressureAction {
	return Disconnect
}

func PolicyByName(name string) Policy {
	switch name {
	case "disconnect":
		return DisconnectPolicy{}
	default:
		return DropPolicy{}
	}
}
