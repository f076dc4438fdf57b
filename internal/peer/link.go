package peer

import (
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/media"
	"github.com/pion/webrtc/v4"
)

// Link is one side of the peer link to a remote participant.
// All fields are guarded by the owning Manager's mutex.
type Link struct {
	remote    domain.ParticipantID
	state     LinkState
	transport Transport
	remoteSet bool
	// remote candidates waiting for the remote description, in arrival order
	pending []webrtc.ICECandidateInit
	senders map[media.Kind]*media.OutTrack
}

func (l *Link) advance(to LinkState) error {
	if !canAdvance(l.state, to) {
		return ErrIllegalTransition
	}
	l.state = to
	return nil
}

// LinkInfo is a read-only view of a link.
type LinkInfo struct {
	Remote  domain.ParticipantID
	State   LinkState
	Pending int
	Senders map[media.Kind]media.TrackState
}

func (l *Link) info() LinkInfo {
	out := LinkInfo{Remote: l.remote, State: l.state, Pending: len(l.pending), Senders: make(map[media.Kind]media.TrackState, len(l.senders))}
	for k, s := range l.senders {
		out.Senders[k] = s.GetState()
	}
	return out
}

// linkEvents binds transport callbacks to the link that created the transport.
type linkEvents struct {
	m    *Manager
	link *Link
}

func (e linkEvents) LocalCandidate(c webrtc.ICECandidateInit) { e.m.onLocalCandidate(e.link, c) }
func (e linkEvents) TransportFailed(reason string)            { e.m.onTransportFailed(e.link, reason) }
func (e linkEvents) RemoteTrack(track *webrtc.TrackRemote)    { e.m.onRemoteTrack(e.link, track) }
