//go:generate go run go.uber.org/mock/mockgen -source=store_iface.go -destination=../mocks/mock_store.go -package=mocks
package core

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/Mesh/internal/domain"
)

var ErrSessionNotFound = errors.New("session not found")

// NewSession is the input for creating a persisted session record.
type NewSession struct {
	Name        string     `json:"name" binding:"required,max=128"`
	Agenda      string     `json:"agenda" binding:"max=1024"`
	Category    string     `json:"category" binding:"max=64"`
	Owner       string     `json:"owner" binding:"max=64"`
	ScheduledAt *time.Time `json:"scheduledAt"`
}

// SessionStore persists session metadata. The runtime registry does not depend on it.
type SessionStore interface {
	Create(ctx context.Context, in NewSession) (domain.SessionRecord, error)
	List(ctx context.Context) ([]domain.SessionRecord, error)
	GetByCode(ctx context.Context, code domain.SessionCode) (domain.SessionRecord, error)
	Activate(ctx context.Context, code domain.SessionCode) (domain.SessionRecord, error)
	// ActivateDue makes every scheduled session whose time has come live.
	ActivateDue(ctx context.Context, now time.Time) ([]domain.SessionRecord, error)
	AdjustParticipants(ctx context.Context, code domain.SessionCode, delta int) error
}

// SessionObserver is notified after a store mutation has been committed.
type SessionObserver interface {
	SessionCreated(rec domain.SessionRecord)
	SessionUpdated(rec domain.SessionRecord)
}
