package peer

import (
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/media"
	"github.com/pion/webrtc/v4"
)

// Transport is the peer connection behind one link.
type Transport interface {
	AddTrack(kind media.Kind, codec webrtc.RTPCodecCapability, streamID string) (media.SampleWriter, error)
	// CreateOffer creates an offer and sets it as the local description.
	CreateOffer() (webrtc.SessionDescription, error)
	ApplyOffer(offer webrtc.SessionDescription) error
	// CreateAnswer creates an answer and sets it as the local description.
	CreateAnswer() (webrtc.SessionDescription, error)
	ApplyAnswer(answer webrtc.SessionDescription) error
	AddICECandidate(c webrtc.ICECandidateInit) error
	Close() error
}

// TransportEvents receives the callbacks of one transport. Events of a transport that no
// longer backs the current link are ignored.
type TransportEvents interface {
	LocalCandidate(c webrtc.ICECandidateInit)
	TransportFailed(reason string)
	RemoteTrack(track *webrtc.TrackRemote)
}

type TransportFactory interface {
	NewTransport(remote domain.ParticipantID, events TransportEvents) (Transport, error)
}

// Signaler sends negotiation messages to a remote participant through the relay.
type Signaler interface {
	SendOffer(to domain.ParticipantID, offer webrtc.SessionDescription) error
	SendAnswer(to domain.ParticipantID, answer webrtc.SessionDescription) error
	SendCandidate(to domain.ParticipantID, c webrtc.ICECandidateInit) error
}

// Observer is told about link state changes and remote media.
type Observer interface {
	LinkStateChanged(remote domain.ParticipantID, state LinkState)
	RemoteTrack(remote domain.ParticipantID, track *webrtc.TrackRemote)
}
