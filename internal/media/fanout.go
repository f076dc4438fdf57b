package media

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/dkeye/Mesh/internal/domain"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog"
)

// Source yields paced media samples from one capture device.
type Source interface {
	ReadSample() (pionmedia.Sample, error)
	Close() error
}

// Fanout copies every sample of one source to all attached out tracks.
type Fanout struct {
	Src Source

	mu        sync.RWMutex
	outTracks map[domain.ParticipantID]*OutTrack
}

func NewFanout(src Source) *Fanout {
	return &Fanout{
		Src:       src,
		outTracks: make(map[domain.ParticipantID]*OutTrack),
	}
}

// loop reads samples from the source and forwards them until ctx ends or the source fails.
func (f *Fanout) loop(ctx context.Context, logger *zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Debug().Msg("fanout ctx done, marking all out tracks for delete")
			f.markAllDelete()
			return
		default:
		}
		sample, err := f.Src.ReadSample()
		if err != nil {
			logger.Warn().Err(err).Msg("capture read error, stopping")
			f.markAllDelete()
			return
		}
		f.forward(sample, logger)

		if sample.Duration <= 0 {
			continue
		}
		timer := time.NewTimer(sample.Duration)
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
}

func (f *Fanout) forward(sample pionmedia.Sample, logger *zerolog.Logger) {
	f.mu.RLock()
	snapshot := make(map[domain.ParticipantID]*OutTrack, len(f.outTracks))
	maps.Copy(snapshot, f.outTracks)
	f.mu.RUnlock()

	dirty := make([]domain.ParticipantID, 0, len(snapshot))
	for dst, ot := range snapshot {
		switch ot.GetState() {
		case TrackStateDelete:
			dirty = append(dirty, dst)
		case TrackStateMuted:
		case TrackStateOk:
			if err := ot.Track.WriteSample(sample); err != nil {
				logger.Error().
					Err(err).
					Str("to", string(dst)).
					Msg("write sample error, marking outtrack as delete")
				ot.MarkDelete()
				dirty = append(dirty, dst)
			}
		}
	}

	// Cleanup is done outside the RLock.
	if len(dirty) > 0 {
		f.cleanupDeleted(dirty)
	}
}

func (f *Fanout) cleanupDeleted(dirty []domain.ParticipantID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, pid := range dirty {
		if ot, ok := f.outTracks[pid]; ok && ot.GetState() == TrackStateDelete {
			delete(f.outTracks, pid)
		}
	}
}

func (f *Fanout) markAllDelete() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ot := range f.outTracks {
		ot.MarkDelete()
	}
}

// AddOutTrack attaches ot for dst, replacing and deleting any previous one.
func (f *Fanout) AddOutTrack(dst domain.ParticipantID, ot *OutTrack) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if old, ok := f.outTracks[dst]; ok && old != ot {
		old.MarkDelete()
	}
	f.outTracks[dst] = ot
}

func (f *Fanout) RemoveOutTrack(dst domain.ParticipantID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ot, ok := f.outTracks[dst]; ok {
		ot.MarkDelete()
		delete(f.outTracks, dst)
	}
}

func (f *Fanout) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.outTracks)
}
