package signal

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dkeye/Mesh/internal/app"
	"github.com/dkeye/Mesh/internal/app/orch"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/metrics"
	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, opts Options) (string, *orch.Orchestrator) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	o := &orch.Orchestrator{
		Registry: app.NewRegistry(),
		Channels: app.NewChannels(),
		Policy:   app.DropPolicy{},
		Metrics:  metrics.New(),
	}
	ctrl := NewSignalWSController(o, opts)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	r := gin.New()
	r.Use(sessions.Sessions("MeshSessions", cookie.NewStore([]byte("test"))))
	r.GET("/ws", func(c *gin.Context) { ctrl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws", o
}

type wsPeer struct {
	t    *testing.T
	conn *websocket.Conn
	id   domain.ParticipantID
}

func connectPeer(t *testing.T, url string) *wsPeer {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	p := &wsPeer{t: t, conn: conn}
	var w protocol.Welcome
	p.expect(protocol.TypeWelcome, &w)
	require.NotEmpty(t, w.ParticipantID)
	p.id = w.ParticipantID
	return p
}

func (p *wsPeer) send(v any) {
	p.t.Helper()
	require.NoError(p.t, p.conn.WriteJSON(v))
}

// expect reads frames until one of type typ arrives and decodes it into v.
func (p *wsPeer) expect(typ string, v any) {
	p.t.Helper()
	_ = p.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := p.conn.ReadMessage()
		require.NoError(p.t, err, "waiting for %s", typ)
		if got, _ := protocol.PeekType(data); got == typ {
			require.NoError(p.t, json.Unmarshal(data, v))
			return
		}
	}
}

func TestSignal_JoinRelayDisconnect(t *testing.T) {
	req := require.New(t)
	url, o := startServer(t, Options{ReadLimit: 1 << 16})

	a := connectPeer(t, url)
	b := connectPeer(t, url)

	// Given A joined ABC123 alone
	a.send(protocol.JoinSession{Type: protocol.TypeJoinSession, SessionCode: "abc123", DisplayName: "alice"})
	var existing protocol.ExistingParticipants
	a.expect(protocol.TypeExistingParticipants, &existing)
	req.Equal(domain.SessionCode("ABC123"), existing.SessionCode)
	req.Empty(existing.ParticipantIDs)

	// When B joins
	b.send(protocol.JoinSession{Type: protocol.TypeJoinSession, SessionCode: "ABC123", DisplayName: "bob"})

	// Then B sees A and A is told about B
	b.expect(protocol.TypeExistingParticipants, &existing)
	req.Equal([]domain.ParticipantID{a.id}, existing.ParticipantIDs)
	var joined protocol.ParticipantJoined
	a.expect(protocol.TypeParticipantJoined, &joined)
	req.Equal(b.id, joined.ParticipantID)
	req.Equal("bob", joined.DisplayName)

	// When B offers to A followed by a candidate
	b.send(protocol.Description{Type: protocol.TypeOffer, To: a.id, SDP: "v=0 offer"})
	b.send(protocol.Candidate{Type: protocol.TypeICECandidate, To: a.id, Candidate: json.RawMessage(`{"candidate":"c1"}`)})

	// Then A receives them from B, in order
	var offer protocol.Description
	a.expect(protocol.TypeOffer, &offer)
	req.Equal(b.id, offer.From)
	req.Equal("v=0 offer", offer.SDP)
	var cand protocol.Candidate
	a.expect(protocol.TypeICECandidate, &cand)
	req.Equal(b.id, cand.From)
	req.JSONEq(`{"candidate":"c1"}`, string(cand.Candidate))

	// When B's connection drops
	_ = b.conn.Close()

	// Then A gets participant-left and B is gone from the registry
	var left protocol.ParticipantLeft
	a.expect(protocol.TypeParticipantLeft, &left)
	req.Equal(b.id, left.ParticipantID)
	req.Eventually(func() bool { return len(o.Registry.Members("ABC123")) == 1 }, time.Second, 10*time.Millisecond)
}

func TestSignal_ErrorsAndControl(t *testing.T) {
	req := require.New(t)
	url, _ := startServer(t, Options{})
	a := connectPeer(t, url)

	var e protocol.Error

	// bad json
	req.NoError(a.conn.WriteMessage(websocket.TextMessage, []byte("{")))
	a.expect(protocol.TypeError, &e)
	req.Equal(protocol.ErrCodeBadPayload, e.Error)

	// missing session code
	a.send(protocol.JoinSession{Type: protocol.TypeJoinSession})
	a.expect(protocol.TypeError, &e)
	req.Equal(protocol.ErrCodeBadPayload, e.Error)

	// name too long
	a.send(protocol.JoinSession{Type: protocol.TypeJoinSession, SessionCode: "X", DisplayName: strings.Repeat("n", 37)})
	a.expect(protocol.TypeError, &e)
	req.Equal(protocol.ErrCodeBadPayload, e.Error)

	// offer without recipient
	a.send(protocol.Description{Type: protocol.TypeOffer, SDP: "x"})
	a.expect(protocol.TypeError, &e)
	req.Equal(protocol.ErrCodeBadPayload, e.Error)

	// joining a second session
	a.send(protocol.JoinSession{Type: protocol.TypeJoinSession, SessionCode: "ONE"})
	var existing protocol.ExistingParticipants
	a.expect(protocol.TypeExistingParticipants, &existing)
	a.send(protocol.JoinSession{Type: protocol.TypeJoinSession, SessionCode: "TWO"})
	a.expect(protocol.TypeError, &e)
	req.Equal(protocol.ErrCodeAlreadyInSession, e.Error)

	// whoami reflects the current session and default name
	a.send(protocol.Simple{Type: protocol.TypeWhoAmI})
	var who protocol.WhoAmI
	a.expect(protocol.TypeWhoAmI, &who)
	req.Equal(a.id, who.ParticipantID)
	req.Equal(domain.SessionCode("ONE"), who.SessionCode)
	req.Equal(domain.DefaultDisplayName, who.DisplayName)

	a.send(protocol.Simple{Type: protocol.TypePing})
	var pong protocol.Simple
	a.expect(protocol.TypePong, &pong)

	// leave keeps the channel open
	a.send(protocol.LeaveSession{Type: protocol.TypeLeaveSession, SessionCode: "ONE"})
	var leftAck protocol.Simple
	a.expect(protocol.TypeLeft, &leftAck)
	a.send(protocol.Simple{Type: protocol.TypeWhoAmI})
	var afterLeave protocol.WhoAmI
	a.expect(protocol.TypeWhoAmI, &afterLeave)
	req.Empty(afterLeave.SessionCode)
}

func TestSignal_JoinRateLimited(t *testing.T) {
	req := require.New(t)
	url, o := startServer(t, Options{JoinLimiter: NewRoomRateLimiter(1, time.Minute)})
	a := connectPeer(t, url)

	a.send(protocol.JoinSession{Type: protocol.TypeJoinSession, SessionCode: "ONE"})
	var existing protocol.ExistingParticipants
	a.expect(protocol.TypeExistingParticipants, &existing)

	a.send(protocol.JoinSession{Type: protocol.TypeJoinSession, SessionCode: "ONE"})
	var e protocol.Error
	a.expect(protocol.TypeError, &e)
	req.Equal(protocol.ErrCodeRateLimited, e.Error)
	req.Equal(1.0, testutil.ToFloat64(o.Metrics.Dropped.WithLabelValues(metrics.DropRateLimited)))
}
