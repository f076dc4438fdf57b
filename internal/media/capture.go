// Package media owns the local capture: one device acquisition per client process,
// shared by every peer link through per-link out tracks.
package media

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/Mesh/internal/domain"
	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var ErrMediaUnavailable = errors.New("media unavailable")

type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Device opens a source for one kind of media.
type Device interface {
	Open(kind Kind) (Source, webrtc.RTPCodecCapability, error)
}

// LocalTrack is one captured kind and its enabled flag.
type LocalTrack struct {
	Kind   Kind
	Codec  webrtc.RTPCodecCapability
	fanout *Fanout

	enabled atomic.Bool
}

func (t *LocalTrack) Enabled() bool { return t.enabled.Load() }

type Capture struct {
	streamID string
	order    []Kind
	tracks   map[Kind]*LocalTrack

	cancel   context.CancelFunc
	wg       sync.WaitGroup
	released atomic.Bool
}

// Acquire opens every requested kind on device and starts capturing.
// Any failure releases what was opened and returns ErrMediaUnavailable.
func Acquire(ctx context.Context, device Device, kinds ...Kind) (*Capture, error) {
	if len(kinds) == 0 {
		kinds = []Kind{KindAudio, KindVideo}
	}
	c := &Capture{
		streamID: uuid.NewString(),
		tracks:   make(map[Kind]*LocalTrack, len(kinds)),
	}
	for _, kind := range kinds {
		src, codec, err := device.Open(kind)
		if err != nil {
			c.closeSources()
			return nil, fmt.Errorf("%w: %s: %v", ErrMediaUnavailable, kind, err)
		}
		t := &LocalTrack{Kind: kind, Codec: codec, fanout: NewFanout(src)}
		t.enabled.Store(true)
		c.tracks[kind] = t
		c.order = append(c.order, kind)
	}

	loopCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	for _, kind := range c.order {
		t := c.tracks[kind]
		logger := log.With().Str("module", "media").Str("kind", string(kind)).Logger()
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			t.fanout.loop(loopCtx, &logger)
		}()
	}
	log.Info().Str("module", "media").Str("stream", c.streamID).Int("tracks", len(c.order)).Msg("capture acquired")
	return c, nil
}

func (c *Capture) StreamID() string { return c.streamID }

// Tracks returns the captured tracks in acquisition order.
func (c *Capture) Tracks() []*LocalTrack {
	out := make([]*LocalTrack, 0, len(c.order))
	for _, k := range c.order {
		out = append(out, c.tracks[k])
	}
	return out
}

func (c *Capture) Track(kind Kind) (*LocalTrack, bool) {
	t, ok := c.tracks[kind]
	return t, ok
}

// Attach subscribes w to kind for one remote participant. The new out track starts
// muted when the local track is disabled.
func (c *Capture) Attach(pid domain.ParticipantID, kind Kind, w SampleWriter) (*OutTrack, bool) {
	t, ok := c.tracks[kind]
	if !ok || c.released.Load() {
		return nil, false
	}
	ot := NewOutTrack(w)
	if !t.Enabled() {
		ot.MarkMuted()
	}
	t.fanout.AddOutTrack(pid, ot)
	return ot, true
}

// Detach stops feeding every track of pid.
func (c *Capture) Detach(pid domain.ParticipantID) {
	for _, t := range c.tracks {
		t.fanout.RemoveOutTrack(pid)
	}
}

// SetEnabled flips the local flag of kind. Per-link senders are updated by their owner.
func (c *Capture) SetEnabled(kind Kind, enabled bool) bool {
	t, ok := c.tracks[kind]
	if !ok {
		return false
	}
	t.enabled.Store(enabled)
	return true
}

// Release stops capture and closes the device. Safe to call more than once.
func (c *Capture) Release() {
	if !c.released.CompareAndSwap(false, true) {
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.closeSources()
	log.Info().Str("module", "media").Str("stream", c.streamID).Msg("capture released")
}

func (c *Capture) closeSources() {
	for kind, t := range c.tracks {
		if err := t.fanout.Src.Close(); err != nil {
			log.Warn().Err(err).Str("module", "media").Str("kind", string(kind)).Msg("close source")
		}
	}
}
