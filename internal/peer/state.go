package peer

import (
	"errors"
	"fmt"
)

var (
	ErrAlreadyLinked     = errors.New("peer link already exists")
	ErrStaleNegotiation  = errors.New("no negotiation in progress for answer")
	ErrGlareIgnored      = errors.New("incoming offer ignored, local side is the designated offerer")
	ErrSelfLink          = errors.New("cannot link to self")
	ErrNoCapture         = errors.New("no local capture")
	ErrUnknownKind       = errors.New("unknown media kind")
	ErrIllegalTransition = errors.New("illegal link state transition")
)

// LinkState is the negotiation state of one peer link. It only moves forward.
type LinkState int

const (
	StateIdle LinkState = iota
	StateOffering
	StateAnswering
	StateConnected
	StateClosed
)

func (s LinkState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateOffering:
		return "OFFERING"
	case StateAnswering:
		return "ANSWERING"
	case StateConnected:
		return "CONNECTED"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("LinkState(%d)", int(s))
	}
}

func canAdvance(from, to LinkState) bool {
	switch to {
	case StateOffering, StateAnswering:
		return from == StateIdle
	case StateConnected:
		return from == StateOffering || from == StateAnswering
	case StateClosed:
		return from != StateClosed
	default:
		return false
	}
}
