package app

import (
	"errors"
	"sync"

	"github.com/dkeye/Mesh/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

var ErrAlreadyInSession = errors.New("participant already in another session")

type sessionEntry struct {
	// join order
	members []domain.Participant
}

// SessionInfo is a read-only view of one runtime session.
type SessionInfo struct {
	Code             domain.SessionCode `json:"code"`
	ParticipantCount int                `json:"participantCount"`
}

// Registry is the authoritative runtime membership: session code -> participants and
// participant -> session code. Sessions exist only while they have members.
type Registry struct {
	mu            sync.RWMutex
	sessions      map[domain.SessionCode]*sessionEntry
	byParticipant map[domain.ParticipantID]domain.SessionCode
}

func NewRegistry() *Registry {
	return &Registry{
		sessions:      make(map[domain.SessionCode]*sessionEntry),
		byParticipant: make(map[domain.ParticipantID]domain.SessionCode),
	}
}

// Join adds pid to code and returns the full member list, joiner included, in join order.
// Joining the session the participant is already in is a no-op reported with fresh=false.
func (r *Registry) Join(pid domain.ParticipantID, code domain.SessionCode, displayName string) (members []domain.Participant, fresh bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cur, ok := r.byParticipant[pid]; ok {
		if cur != code {
			return nil, false, ErrAlreadyInSession
		}
		log.Debug().Str("module", "app.registry").Str("pid", string(pid)).Str("session", string(code)).Msg("duplicate join ignored")
		return r.snapshotLocked(code), false, nil
	}

	entry, ok := r.sessions[code]
	if !ok {
		entry = &sessionEntry{}
		r.sessions[code] = entry
		log.Info().Str("module", "app.registry").Str("session", string(code)).Msg("session created")
	}
	entry.members = append(entry.members, domain.Participant{ID: pid, DisplayName: displayName})
	r.byParticipant[pid] = code
	log.Info().Str("module", "app.registry").Str("pid", string(pid)).Str("session", string(code)).Int("members", len(entry.members)).Msg("joined")
	return r.snapshotLocked(code), true, nil
}

// Leave removes pid from its session and returns the members that remain.
// ok is false if pid was not in any session.
func (r *Registry) Leave(pid domain.ParticipantID) (domain.SessionCode, []domain.ParticipantID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, ok := r.byParticipant[pid]
	if !ok {
		return "", nil, false
	}
	delete(r.byParticipant, pid)

	entry := r.sessions[code]
	entry.members = lo.Reject(entry.members, func(p domain.Participant, _ int) bool { return p.ID == pid })
	remaining := lo.Map(entry.members, func(p domain.Participant, _ int) domain.ParticipantID { return p.ID })
	if len(entry.members) == 0 {
		delete(r.sessions, code)
		log.Info().Str("module", "app.registry").Str("session", string(code)).Msg("session removed")
	}
	log.Info().Str("module", "app.registry").Str("pid", string(pid)).Str("session", string(code)).Int("members", len(remaining)).Msg("left")
	return code, remaining, true
}

func (r *Registry) ResolveSession(pid domain.ParticipantID) (domain.SessionCode, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	code, ok := r.byParticipant[pid]
	return code, ok
}

func (r *Registry) Members(code domain.SessionCode) []domain.Participant {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked(code)
}

// SameSession reports whether a and b are currently joined to the same session.
func (r *Registry) SameSession(a, b domain.ParticipantID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ca, ok := r.byParticipant[a]
	if !ok {
		return false
	}
	cb, ok := r.byParticipant[b]
	return ok && ca == cb
}

func (r *Registry) Sessions() []SessionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]SessionInfo, 0, len(r.sessions))
	for code, e := range r.sessions {
		out = append(out, SessionInfo{Code: code, ParticipantCount: len(e.members)})
	}
	return out
}

func (r *Registry) snapshotLocked(code domain.SessionCode) []domain.Participant {
	entry, ok := r.sessions[code]
	if !ok {
		return []domain.Participant{}
	}
	out := make([]domain.Participant, len(entry.members))
	copy(out, entry.members)
	return out
}
