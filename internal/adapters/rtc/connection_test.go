package rtc

import (
	"strings"
	"sync"
	"testing"

	"github.com/dkeye/Mesh/internal/media"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

type recordingEvents struct {
	mu         sync.Mutex
	candidates []webrtc.ICECandidateInit
}

func (e *recordingEvents) LocalCandidate(c webrtc.ICECandidateInit) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.candidates = append(e.candidates, c)
}

func (e *recordingEvents) TransportFailed(string)          {}
func (e *recordingEvents) RemoteTrack(*webrtc.TrackRemote) {}

func TestOfferAnswerRoundTrip(t *testing.T) {
	req := require.New(t)
	factory := NewFactory(ConfigFromURLs(nil))

	// Given a sending offerer and a receive-only answerer
	offerer, err := factory.NewTransport("b", &recordingEvents{})
	req.NoError(err)
	t.Cleanup(func() { _ = offerer.Close() })
	answerer, err := factory.NewTransport("a", &recordingEvents{})
	req.NoError(err)
	t.Cleanup(func() { _ = answerer.Close() })

	_, err = offerer.AddTrack(media.KindAudio, webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}, "stream")
	req.NoError(err)

	// When
	offer, err := offerer.CreateOffer()
	req.NoError(err)
	req.NoError(answerer.ApplyOffer(offer))
	answer, err := answerer.CreateAnswer()
	req.NoError(err)
	req.NoError(offerer.ApplyAnswer(answer))

	// Then
	req.Equal(webrtc.SDPTypeOffer, offer.Type)
	req.Contains(offer.SDP, "m=audio")
	req.Equal(webrtc.SDPTypeAnswer, answer.Type)
	req.True(strings.Contains(answer.SDP, "m=audio"))
}

func TestReceiveOnlyOfferHasMediaSections(t *testing.T) {
	req := require.New(t)
	tr, err := NewFactory(ConfigFromURLs(nil)).NewTransport("b", &recordingEvents{})
	req.NoError(err)
	t.Cleanup(func() { _ = tr.Close() })

	offer, err := tr.CreateOffer()
	req.NoError(err)
	req.Contains(offer.SDP, "m=audio")
	req.Contains(offer.SDP, "m=video")
	req.Contains(offer.SDP, "a=recvonly")
}

func TestApplyRejectsWrongType(t *testing.T) {
	req := require.New(t)
	tr, err := NewFactory(ConfigFromURLs(nil)).NewTransport("b", &recordingEvents{})
	req.NoError(err)

	req.Error(tr.ApplyOffer(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}))
	req.Error(tr.ApplyAnswer(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}))

	req.NoError(tr.Close())
	req.NoError(tr.Close())
}

func TestConfigFromURLs(t *testing.T) {
	cfg := ConfigFromURLs([]string{"stun:one:3478", "stun:two:3478"})
	require.Len(t, cfg.ICEServers, 2)
	require.Equal(t, []string{"stun:two:3478"}, cfg.ICEServers[1].URLs)
}
