// Package peer manages the client side of a full mesh: one peer link per remote
// participant, each negotiated independently through the signaling relay.
package peer

import (
	"fmt"
	"sync"

	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/media"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

type Deps struct {
	Factory  TransportFactory
	Signaler Signaler
	// Observer is optional.
	Observer Observer
}

type stateChange struct {
	remote domain.ParticipantID
	state  LinkState
}

type Manager struct {
	local    domain.ParticipantID
	capture  *media.Capture
	factory  TransportFactory
	signaler Signaler
	observer Observer

	mu    sync.Mutex
	links map[domain.ParticipantID]*Link
	// candidates that arrived before any link to the sender existed
	early map[domain.ParticipantID][]webrtc.ICECandidateInit
	// observer notifications and transports to close, drained after unlock
	changes []stateChange
	closing []closingTransport
}

type closingTransport struct {
	remote domain.ParticipantID
	t      Transport
}

// NewManager builds a manager for the local participant. capture may be nil for a
// receive-only client.
func NewManager(local domain.ParticipantID, capture *media.Capture, deps Deps) *Manager {
	return &Manager{
		local:    local,
		capture:  capture,
		factory:  deps.Factory,
		signaler: deps.Signaler,
		observer: deps.Observer,
		links:    make(map[domain.ParticipantID]*Link),
		early:    make(map[domain.ParticipantID][]webrtc.ICECandidateInit),
	}
}

func (m *Manager) LocalID() domain.ParticipantID { return m.local }

// InitiateCall creates a link to remote, sends an offer and moves the link to OFFERING.
func (m *Manager) InitiateCall(remote domain.ParticipantID) (webrtc.SessionDescription, error) {
	m.mu.Lock()
	defer m.unlock()

	if remote == m.local {
		return webrtc.SessionDescription{}, ErrSelfLink
	}
	if _, ok := m.links[remote]; ok {
		return webrtc.SessionDescription{}, ErrAlreadyLinked
	}

	l, err := m.newLinkLocked(remote, nil)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	offer, err := l.transport.CreateOffer()
	if err != nil {
		m.failLocked(l, "create offer")
		return webrtc.SessionDescription{}, fmt.Errorf("create offer: %w", err)
	}
	m.advanceLocked(l, StateOffering)

	if err := m.signaler.SendOffer(remote, offer); err != nil {
		log.Warn().Err(err).Str("module", "peer").Str("remote", string(remote)).Msg("send offer")
	}
	log.Info().Str("module", "peer").Str("remote", string(remote)).Msg("call initiated")
	return offer, nil
}

// AcceptCall answers an incoming offer. When both sides offered at once, the
// participant with the smaller id stays the offerer: the smaller side ignores the
// incoming offer with ErrGlareIgnored, the larger side drops its own pending offer
// and answers on a fresh link.
func (m *Manager) AcceptCall(remote domain.ParticipantID, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	m.mu.Lock()
	defer m.unlock()

	if remote == m.local {
		return webrtc.SessionDescription{}, ErrSelfLink
	}

	var carried []webrtc.ICECandidateInit
	if l, ok := m.links[remote]; ok {
		if l.state != StateOffering {
			return webrtc.SessionDescription{}, ErrAlreadyLinked
		}
		if m.local < remote {
			log.Info().Str("module", "peer").Str("remote", string(remote)).Msg("glare: keeping own offer")
			return webrtc.SessionDescription{}, ErrGlareIgnored
		}
		log.Info().Str("module", "peer").Str("remote", string(remote)).Msg("glare: discarding own offer")
		carried = l.pending
		l.pending = nil
		m.closeLocked(l)
	}

	l, err := m.newLinkLocked(remote, carried)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	if err := l.transport.ApplyOffer(offer); err != nil {
		m.failLocked(l, "apply offer")
		return webrtc.SessionDescription{}, fmt.Errorf("apply offer: %w", err)
	}
	m.remoteDescriptionSetLocked(l)
	m.advanceLocked(l, StateAnswering)

	answer, err := l.transport.CreateAnswer()
	if err != nil {
		m.failLocked(l, "create answer")
		return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	m.advanceLocked(l, StateConnected)

	if err := m.signaler.SendAnswer(remote, answer); err != nil {
		log.Warn().Err(err).Str("module", "peer").Str("remote", string(remote)).Msg("send answer")
	}
	log.Info().Str("module", "peer").Str("remote", string(remote)).Msg("call accepted")
	return answer, nil
}

// CompleteNegotiation applies the remote answer to a link in OFFERING.
// Late or duplicate answers return ErrStaleNegotiation and change nothing.
func (m *Manager) CompleteNegotiation(remote domain.ParticipantID, answer webrtc.SessionDescription) error {
	m.mu.Lock()
	defer m.unlock()

	l, ok := m.links[remote]
	if !ok || l.state != StateOffering {
		log.Debug().Str("module", "peer").Str("remote", string(remote)).Msg("stale answer ignored")
		return ErrStaleNegotiation
	}
	if err := l.transport.ApplyAnswer(answer); err != nil {
		m.failLocked(l, "apply answer")
		return fmt.Errorf("apply answer: %w", err)
	}
	m.remoteDescriptionSetLocked(l)
	m.advanceLocked(l, StateConnected)
	log.Info().Str("module", "peer").Str("remote", string(remote)).Msg("negotiation complete")
	return nil
}

// AddRemoteCandidate applies c, or buffers it until the remote description is set.
func (m *Manager) AddRemoteCandidate(remote domain.ParticipantID, c webrtc.ICECandidateInit) error {
	m.mu.Lock()
	defer m.unlock()

	l, ok := m.links[remote]
	if !ok {
		m.early[remote] = append(m.early[remote], c)
		log.Debug().Str("module", "peer").Str("remote", string(remote)).Msg("candidate before offer, buffered")
		return nil
	}
	if !l.remoteSet {
		l.pending = append(l.pending, c)
		return nil
	}
	if err := l.transport.AddICECandidate(c); err != nil {
		log.Warn().Err(err).Str("module", "peer").Str("remote", string(remote)).Msg("add ice candidate")
		return err
	}
	return nil
}

// SetLocalMediaEnabled mutes or unmutes kind on the capture and on every open link
// before returning. No renegotiation happens.
func (m *Manager) SetLocalMediaEnabled(kind media.Kind, enabled bool) error {
	m.mu.Lock()
	defer m.unlock()

	if m.capture == nil {
		return ErrNoCapture
	}
	if !m.capture.SetEnabled(kind, enabled) {
		return ErrUnknownKind
	}
	for _, l := range m.links {
		if s, ok := l.senders[kind]; ok {
			s.SetEnabled(enabled)
		}
	}
	log.Info().Str("module", "peer").Str("kind", string(kind)).Bool("enabled", enabled).Int("links", len(m.links)).Msg("local media toggled")
	return nil
}

// Teardown closes the link to remote. Calling it again is a no-op.
func (m *Manager) Teardown(remote domain.ParticipantID) {
	m.mu.Lock()
	defer m.unlock()

	delete(m.early, remote)
	if l, ok := m.links[remote]; ok {
		m.closeLocked(l)
		log.Info().Str("module", "peer").Str("remote", string(remote)).Msg("link torn down")
	}
}

// TeardownAll closes every link. The capture stays acquired.
func (m *Manager) TeardownAll() {
	m.mu.Lock()
	defer m.unlock()

	clear(m.early)
	for _, l := range m.links {
		m.closeLocked(l)
	}
}

// State reports the state of the link to remote; ok is false when there is none.
func (m *Manager) State(remote domain.ParticipantID) (LinkState, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.links[remote]
	if !ok {
		return StateClosed, false
	}
	return l.state, true
}

func (m *Manager) Links() []LinkInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]LinkInfo, 0, len(m.links))
	for _, l := range m.links {
		out = append(out, l.info())
	}
	return out
}

func (m *Manager) newLinkLocked(remote domain.ParticipantID, carried []webrtc.ICECandidateInit) (*Link, error) {
	l := &Link{
		remote:  remote,
		state:   StateIdle,
		pending: append(carried, m.early[remote]...),
		senders: make(map[media.Kind]*media.OutTrack),
	}
	delete(m.early, remote)

	t, err := m.factory.NewTransport(remote, linkEvents{m: m, link: l})
	if err != nil {
		return nil, fmt.Errorf("new transport: %w", err)
	}
	l.transport = t
	m.links[remote] = l
	m.changes = append(m.changes, stateChange{remote, StateIdle})

	if m.capture != nil {
		for _, lt := range m.capture.Tracks() {
			w, err := t.AddTrack(lt.Kind, lt.Codec, m.capture.StreamID())
			if err != nil {
				m.failLocked(l, "add track")
				return nil, fmt.Errorf("add %s track: %w", lt.Kind, err)
			}
			if ot, ok := m.capture.Attach(remote, lt.Kind, w); ok {
				l.senders[lt.Kind] = ot
			}
		}
	}
	return l, nil
}

// remoteDescriptionSetLocked applies buffered candidates in arrival order.
func (m *Manager) remoteDescriptionSetLocked(l *Link) {
	l.remoteSet = true
	pending := l.pending
	l.pending = nil
	for _, c := range pending {
		if err := l.transport.AddICECandidate(c); err != nil {
			log.Warn().Err(err).Str("module", "peer").Str("remote", string(l.remote)).Msg("apply buffered candidate")
		}
	}
	if len(pending) > 0 {
		log.Debug().Str("module", "peer").Str("remote", string(l.remote)).Int("candidates", len(pending)).Msg("buffered candidates applied")
	}
}

func (m *Manager) advanceLocked(l *Link, to LinkState) {
	if err := l.advance(to); err != nil {
		log.Error().Str("module", "peer").Str("remote", string(l.remote)).Str("from", l.state.String()).Str("to", to.String()).Msg("illegal transition")
		return
	}
	m.changes = append(m.changes, stateChange{l.remote, to})
}

func (m *Manager) failLocked(l *Link, step string) {
	log.Warn().Str("module", "peer").Str("remote", string(l.remote)).Str("step", step).Msg("link failed")
	m.closeLocked(l)
}

// closeLocked moves l to CLOSED and releases its resources once.
func (m *Manager) closeLocked(l *Link) {
	if l.state == StateClosed {
		return
	}
	m.advanceLocked(l, StateClosed)
	for _, s := range l.senders {
		s.MarkDelete()
	}
	if cur, ok := m.links[l.remote]; ok && cur == l {
		delete(m.links, l.remote)
		if m.capture != nil {
			m.capture.Detach(l.remote)
		}
	}
	if l.transport != nil {
		m.closing = append(m.closing, closingTransport{l.remote, l.transport})
	}
}

func (m *Manager) current(l *Link) bool {
	cur, ok := m.links[l.remote]
	return ok && cur == l && l.state != StateClosed
}

func (m *Manager) onLocalCandidate(l *Link, c webrtc.ICECandidateInit) {
	m.mu.Lock()
	defer m.unlock()
	if !m.current(l) {
		return
	}
	if err := m.signaler.SendCandidate(l.remote, c); err != nil {
		log.Warn().Err(err).Str("module", "peer").Str("remote", string(l.remote)).Msg("send candidate")
	}
}

func (m *Manager) onTransportFailed(l *Link, reason string) {
	m.mu.Lock()
	defer m.unlock()
	if !m.current(l) {
		return
	}
	log.Warn().Str("module", "peer").Str("remote", string(l.remote)).Str("reason", reason).Msg("transport failed, tearing down")
	m.closeLocked(l)
}

func (m *Manager) onRemoteTrack(l *Link, track *webrtc.TrackRemote) {
	m.mu.Lock()
	ok := m.current(l)
	m.mu.Unlock()
	if ok && m.observer != nil {
		m.observer.RemoteTrack(l.remote, track)
	}
}

// unlock releases mu, then closes dropped transports and delivers queued state
// changes in order. pion may fire callbacks from Close, so mu is never held there.
func (m *Manager) unlock() {
	changes, closing := m.changes, m.closing
	m.changes, m.closing = nil, nil
	m.mu.Unlock()

	for _, c := range closing {
		if err := c.t.Close(); err != nil {
			log.Warn().Err(err).Str("module", "peer").Str("remote", string(c.remote)).Msg("close transport")
		}
	}
	if m.observer == nil {
		return
	}
	for _, c := range changes {
		m.observer.LinkStateChanged(c.remote, c.state)
	}
}
