package lifecycle

import (
	"context"
	"time"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// Sweeper periodically turns scheduled sessions live.
// The store's observer publishes the resulting updates.
type Sweeper struct {
	store core.SessionStore
	cron  *cron.Cron
	now   func() time.Time
}

func NewSweeper(store core.SessionStore, spec string) (*Sweeper, error) {
	s := &Sweeper{store: store, cron: cron.New(), now: time.Now}
	if _, err := s.cron.AddFunc(spec, func() { s.Sweep(context.Background()) }); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
	log.Info().Str("module", "lifecycle.sweeper").Msg("started")
}

// Stop waits for a running sweep to finish or ctx to expire.
func (s *Sweeper) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// Sweep activates every due session and returns how many became live.
func (s *Sweeper) Sweep(ctx context.Context) int {
	recs, err := s.store.ActivateDue(ctx, s.now())
	if err != nil {
		log.Error().Err(err).Str("module", "lifecycle.sweeper").Msg("activate due sessions")
		return 0
	}
	if len(recs) > 0 {
		log.Info().Str("module", "lifecycle.sweeper").Int("activated", len(recs)).Msg("sweep")
	}
	return len(recs)
}
