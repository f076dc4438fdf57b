package orch

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/dkeye/Mesh/internal/app"
	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/metrics"
	"github.com/dkeye/Mesh/internal/mocks"
	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// recorder is an in-memory channel that keeps every frame it was given.
type recorder struct {
	mu     sync.Mutex
	frames []core.Frame
	closed bool
}

func (r *recorder) TrySend(f core.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return core.ErrClosed
	}
	r.frames = append(r.frames, f)
	return nil
}

func (r *recorder) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.frames))
	for _, f := range r.frames {
		typ, _ := protocol.PeekType(f)
		out = append(out, typ)
	}
	return out
}

// last decodes the most recent frame of type typ into v.
func (r *recorder) last(t *testing.T, typ string, v any) {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.frames) - 1; i >= 0; i-- {
		if got, _ := protocol.PeekType(r.frames[i]); got == typ {
			require.NoError(t, json.Unmarshal(r.frames[i], v))
			return
		}
	}
	t.Fatalf("no %s frame", typ)
}

func newOrch() *Orchestrator {
	return &Orchestrator{
		Registry: app.NewRegistry(),
		Channels: app.NewChannels(),
		Policy:   app.DropPolicy{},
		Metrics:  metrics.New(),
	}
}

func connect(o *Orchestrator, pid domain.ParticipantID) *recorder {
	r := &recorder{}
	o.Connect(pid, "guest", r)
	return r
}

func TestConnect_SendsWelcome(t *testing.T) {
	req := require.New(t)
	o := newOrch()

	a := connect(o, "a")

	var w protocol.Welcome
	a.last(t, protocol.TypeWelcome, &w)
	req.Equal(domain.ParticipantID("a"), w.ParticipantID)
	req.Equal(1.0, testutil.ToFloat64(o.Metrics.Channels))
}

func TestJoin_ExistingParticipantsAndJoinedBroadcast(t *testing.T) {
	req := require.New(t)
	o := newOrch()
	a, b := connect(o, "a"), connect(o, "b")

	// Given A joined first
	req.NoError(o.Join("a", "ABC123", "alice"))
	var existing protocol.ExistingParticipants
	a.last(t, protocol.TypeExistingParticipants, &existing)
	req.Empty(existing.ParticipantIDs)

	// When B joins
	req.NoError(o.Join("b", "ABC123", "bob"))

	// Then B learns about A and A learns about B
	b.last(t, protocol.TypeExistingParticipants, &existing)
	req.Equal([]domain.ParticipantID{"a"}, existing.ParticipantIDs)
	req.Equal("alice", existing.Participants[0].DisplayName)

	var joined protocol.ParticipantJoined
	a.last(t, protocol.TypeParticipantJoined, &joined)
	req.Equal(domain.ParticipantID("b"), joined.ParticipantID)
	req.Equal("bob", joined.DisplayName)
	req.NotContains(b.types(), protocol.TypeParticipantJoined)
	req.Equal(2.0, testutil.ToFloat64(o.Metrics.Joins))
}

func TestJoin_DuplicateDoesNotRebroadcast(t *testing.T) {
	req := require.New(t)
	o := newOrch()
	a, _ := connect(o, "a"), connect(o, "b")
	req.NoError(o.Join("a", "ABC123", "alice"))
	req.NoError(o.Join("b", "ABC123", "bob"))

	req.NoError(o.Join("b", "ABC123", "bob"))

	joinedCount := 0
	for _, typ := range a.types() {
		if typ == protocol.TypeParticipantJoined {
			joinedCount++
		}
	}
	req.Equal(1, joinedCount)
}

func TestJoin_OtherSessionRejected(t *testing.T) {
	req := require.New(t)
	o := newOrch()
	connect(o, "a")
	req.NoError(o.Join("a", "ONE", "alice"))

	req.ErrorIs(o.Join("a", "TWO", "alice"), app.ErrAlreadyInSession)
}

func TestDisconnect_BroadcastsParticipantLeft(t *testing.T) {
	req := require.New(t)
	o := newOrch()
	a, _, c := connect(o, "a"), connect(o, "b"), connect(o, "c")
	for _, pid := range []domain.ParticipantID{"a", "b", "c"} {
		req.NoError(o.Join(pid, "ABC123", string(pid)))
	}

	// When B's channel closes
	o.Disconnect("b")

	// Then A and C are told in the same pass
	for _, r := range []*recorder{a, c} {
		var left protocol.ParticipantLeft
		r.last(t, protocol.TypeParticipantLeft, &left)
		req.Equal(domain.ParticipantID("b"), left.ParticipantID)
	}
	req.Equal([]domain.ParticipantID{"a", "c"}, []domain.ParticipantID{
		o.Registry.Members("ABC123")[0].ID, o.Registry.Members("ABC123")[1].ID,
	})
	_, ok := o.Channels.Get("b")
	req.False(ok)
	req.Equal(1.0, testutil.ToFloat64(o.Metrics.Leaves.WithLabelValues(metrics.LeaveDisconnect)))

	// Disconnecting twice is harmless
	o.Disconnect("b")
	req.Equal(2.0, testutil.ToFloat64(o.Metrics.Channels))
}

func TestLeave_WithoutSession(t *testing.T) {
	o := newOrch()
	connect(o, "a")
	require.False(t, o.Leave("a"))
}

func TestRelay_RewritesToFrom(t *testing.T) {
	req := require.New(t)
	o := newOrch()
	_, b := connect(o, "a"), connect(o, "b")
	req.NoError(o.Join("a", "ABC123", "alice"))
	req.NoError(o.Join("b", "ABC123", "bob"))

	// When A sends an offer and a candidate to B
	req.True(o.RelayDescription("a", protocol.Description{Type: protocol.TypeOffer, To: "b", SDP: "v=0 sdp"}))
	req.True(o.RelayCandidate("a", protocol.Candidate{Type: protocol.TypeICECandidate, To: "b", Candidate: json.RawMessage(`{"candidate":"c1","sdpMid":"0"}`)}))

	// Then B receives them from A, payload untouched, in order
	var offer protocol.Description
	b.last(t, protocol.TypeOffer, &offer)
	req.Equal(domain.ParticipantID("a"), offer.From)
	req.Empty(offer.To)
	req.Equal("v=0 sdp", offer.SDP)

	var cand protocol.Candidate
	b.last(t, protocol.TypeICECandidate, &cand)
	req.JSONEq(`{"candidate":"c1","sdpMid":"0"}`, string(cand.Candidate))

	types := b.types()
	req.Equal([]string{protocol.TypeOffer, protocol.TypeICECandidate}, types[len(types)-2:])
	req.Equal(1.0, testutil.ToFloat64(o.Metrics.Relayed.WithLabelValues(protocol.TypeOffer)))
}

func TestRelay_DropsOutsideSession(t *testing.T) {
	req := require.New(t)
	o := newOrch()
	_, _, c := connect(o, "a"), connect(o, "b"), connect(o, "c")
	req.NoError(o.Join("a", "ONE", "alice"))
	req.NoError(o.Join("b", "ONE", "bob"))
	req.NoError(o.Join("c", "TWO", "carol"))

	req.False(o.RelayDescription("a", protocol.Description{Type: protocol.TypeOffer, To: "c", SDP: "x"}))
	req.False(o.RelayDescription("a", protocol.Description{Type: protocol.TypeOffer, To: "ghost", SDP: "x"}))
	req.False(o.RelayDescription("a", protocol.Description{Type: protocol.TypeOffer, To: "a", SDP: "x"}))

	req.NotContains(c.types(), protocol.TypeOffer)
	req.Equal(3.0, testutil.ToFloat64(o.Metrics.Dropped.WithLabelValues(metrics.DropNotInSession)))
}

func TestRelay_RecipientChannelGone(t *testing.T) {
	req := require.New(t)
	o := newOrch()
	connect(o, "a")
	connect(o, "b")
	req.NoError(o.Join("a", "ABC123", "alice"))
	req.NoError(o.Join("b", "ABC123", "bob"))

	// the channel is gone but membership has not been cleaned up yet
	o.Channels.Close("b")

	req.False(o.RelayDescription("a", protocol.Description{Type: protocol.TypeAnswer, To: "b", SDP: "x"}))
	req.Equal(1.0, testutil.ToFloat64(o.Metrics.Dropped.WithLabelValues(metrics.DropNoChannel)))
}

func TestSend_BackpressureDrop(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	o := newOrch()

	// Given a slow channel
	slow := mocks.NewMockSignalConnection(ctrl)
	slow.EXPECT().TrySend(gomock.Any()).Return(core.ErrBackpressure).Times(2)
	slow.EXPECT().Close().Times(0)
	o.Connect("slow", "guest", slow)

	// When a frame is sent under the drop policy
	req.False(o.Send("slow", protocol.TypePong, protocol.Simple{Type: protocol.TypePong}))

	// Then it is dropped and counted
	req.Equal(2.0, testutil.ToFloat64(o.Metrics.Dropped.WithLabelValues(metrics.DropBackpressure)))
}

func TestSend_BackpressureDisconnect(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	o := newOrch()
	o.Policy = app.DisconnectPolicy{}

	slow := mocks.NewMockSignalConnection(ctrl)
	gomock.InOrder(
		slow.EXPECT().TrySend(gomock.Any()).Return(nil),
		slow.EXPECT().TrySend(gomock.Any()).Return(core.ErrBackpressure),
		slow.EXPECT().Close().Times(1),
	)
	o.Connect("slow", "guest", slow)

	req.False(o.Send("slow", protocol.TypePong, protocol.Simple{Type: protocol.TypePong}))
}

func TestJoinLeave_AdjustsParticipantCount(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	o := newOrch()
	counter := mocks.NewMockSessionStore(ctrl)
	o.Counter = counter
	connect(o, "a")

	gomock.InOrder(
		counter.EXPECT().AdjustParticipants(gomock.Any(), domain.SessionCode("ABC123"), 1).Return(nil),
		counter.EXPECT().AdjustParticipants(gomock.Any(), domain.SessionCode("ABC123"), -1).Return(core.ErrSessionNotFound),
	)

	req.NoError(o.Join("a", "ABC123", "alice"))
	req.True(o.Leave("a"))
}

func TestBroadcastAll_ReachesEveryChannel(t *testing.T) {
	req := require.New(t)
	o := newOrch()
	a, b := connect(o, "a"), connect(o, "b")
	req.NoError(o.Join("a", "ONE", "alice"))

	sent := o.BroadcastAll(protocol.TypeSessionCreated, protocol.SessionChanged{Type: protocol.TypeSessionCreated})

	req.Equal(2, sent)
	req.Contains(a.types(), protocol.TypeSessionCreated)
	req.Contains(b.types(), protocol.TypeSessionCreated)
}

func TestWhoAmI(t *testing.T) {
	req := require.New(t)
	o := newOrch()
	connect(o, "a")
	req.NoError(o.Join("a", "ABC123", "alice"))

	who := o.WhoAmI("a")
	req.Equal(domain.ParticipantID("a"), who.ParticipantID)
	req.Equal("alice", who.DisplayName)
	req.Equal(domain.SessionCode("ABC123"), who.SessionCode)
}
