// Package orch is the signaling relay: it funnels membership changes through the
// registry and forwards negotiation messages between open channels.
package orch

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dkeye/Mesh/internal/app"
	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/metrics"
	"github.com/rs/zerolog/log"
)

// ParticipantCounter keeps the persisted participant count loosely in sync.
type ParticipantCounter interface {
	AdjustParticipants(ctx context.Context, code domain.SessionCode, delta int) error
}

type Orchestrator struct {
	Registry *app.Registry
	Channels *app.Channels
	Policy   app.Policy
	Metrics  *metrics.Metrics
	// Counter is optional.
	Counter ParticipantCounter
}

// send encodes v and queues it on pid's channel. It reports whether the frame was queued.
func (o *Orchestrator) send(pid domain.ParticipantID, kind string, v any) bool {
	ch, ok := o.Channels.Get(pid)
	if !ok {
		o.Metrics.Dropped.WithLabelValues(metrics.DropNoChannel).Inc()
		log.Debug().Str("module", "orch").Str("to", string(pid)).Str("kind", kind).Msg("no channel, dropped")
		return false
	}
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "orch").Str("kind", kind).Msg("marshal")
		return false
	}
	err = ch.Signal.TrySend(core.Frame(b))
	if err == nil {
		return true
	}
	if !errors.Is(err, core.ErrBackpressure) {
		o.Metrics.Dropped.WithLabelValues(metrics.DropNoChannel).Inc()
		log.Debug().Err(err).Str("module", "orch").Str("to", string(pid)).Str("kind", kind).Msg("send failed")
		return false
	}

	o.Metrics.Dropped.WithLabelValues(metrics.DropBackpressure).Inc()
	if o.Policy == nil {
		return false
	}
	switch o.Policy.OnBackPressure(pid, kind) {
	case app.Disconnect:
		log.Warn().Str("module", "orch").Str("pid", string(pid)).Msg("slow channel, disconnecting")
		ch.Signal.Close()
	case app.DropFrame, app.NoAction:
		log.Warn().Str("module", "orch").Str("pid", string(pid)).Str("kind", kind).Msg("slow channel, frame dropped")
	}
	return false
}

func (o *Orchestrator) broadcast(to []domain.ParticipantID, kind string, v any) int {
	sent := 0
	for _, pid := range to {
		if o.send(pid, kind, v) {
			sent++
		}
	}
	return sent
}

// Send queues a message to one participant.
func (o *Orchestrator) Send(pid domain.ParticipantID, kind string, v any) bool {
	return o.send(pid, kind, v)
}

// BroadcastAll sends v to every open channel regardless of session membership.
func (o *Orchestrator) BroadcastAll(kind string, v any) int {
	chans := o.Channels.Snapshot()
	to := make([]domain.ParticipantID, 0, len(chans))
	for _, ch := range chans {
		to = append(to, ch.ID)
	}
	return o.broadcast(to, kind, v)
}

func (o *Orchestrator) adjustCount(code domain.SessionCode, delta int) {
	if o.Counter == nil {
		return
	}
	if err := o.Counter.AdjustParticipants(context.Background(), code, delta); err != nil {
		log.Debug().Err(err).Str("module", "orch").Str("session", string(code)).Int("delta", delta).Msg("participant count not adjusted")
	}
}
