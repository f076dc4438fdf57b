package media

import (
	"sync/atomic"

	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

type TrackState int32

const (
	TrackStateOk TrackState = iota
	TrackStateMuted
	TrackStateDelete
)

// SampleWriter is the outbound end of one peer link, usually *webrtc.TrackLocalStaticSample.
type SampleWriter interface {
	WriteSample(pionmedia.Sample) error
}

// OutTrack represents a single outgoing track to one remote participant.
type OutTrack struct {
	Track SampleWriter
	state atomic.Int32 // Zero by default (TrackStateOk)
}

func NewOutTrack(track SampleWriter) *OutTrack {
	return &OutTrack{Track: track}
}

func (ot *OutTrack) GetState() TrackState {
	return TrackState(ot.state.Load())
}

func (ot *OutTrack) MarkOk() {
	ot.state.CompareAndSwap(int32(TrackStateMuted), int32(TrackStateOk))
}

func (ot *OutTrack) MarkMuted() {
	ot.state.CompareAndSwap(int32(TrackStateOk), int32(TrackStateMuted))
}

// MarkDelete is final; a deleted track is never written again.
func (ot *OutTrack) MarkDelete() {
	ot.state.Store(int32(TrackStateDelete))
}

// SetEnabled maps the local enabled flag onto Ok/Muted.
func (ot *OutTrack) SetEnabled(enabled bool) {
	if enabled {
		ot.MarkOk()
	} else {
		ot.MarkMuted()
	}
}
