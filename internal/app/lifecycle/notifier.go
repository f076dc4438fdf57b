// Package lifecycle pushes persisted session changes to every connected client.
// It is independent of membership events and gives no ordering guarantee relative to them.
package lifecycle

import (
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/metrics"
	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/rs/zerolog/log"
)

type Broadcaster interface {
	BroadcastAll(kind string, v any) int
}

// Notifier implements core.SessionObserver.
type Notifier struct {
	out     Broadcaster
	metrics *metrics.Metrics
}

func NewNotifier(out Broadcaster, m *metrics.Metrics) *Notifier {
	return &Notifier{out: out, metrics: m}
}

func (n *Notifier) SessionCreated(rec domain.SessionRecord) {
	n.publish(protocol.TypeSessionCreated, rec)
}

func (n *Notifier) SessionUpdated(rec domain.SessionRecord) {
	n.publish(protocol.TypeSessionUpdated, rec)
}

func (n *Notifier) publish(kind string, rec domain.SessionRecord) {
	sent := n.out.BroadcastAll(kind, protocol.SessionChanged{Type: kind, Session: rec})
	if n.metrics != nil {
		n.metrics.Broadcasts.WithLabelValues(kind).Inc()
	}
	log.Info().Str("module", "lifecycle").Str("kind", kind).Str("session", string(rec.Code)).Int("sent_to", sent).Msg("broadcast")
}
