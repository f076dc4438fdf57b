// Package client is the headless mesh participant: it talks to the relay over a
// WebSocket and drives one peer link per remote participant.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/media"
	"github.com/dkeye/Mesh/internal/peer"
	"github.com/dkeye/Mesh/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

var (
	ErrClosed       = errors.New("client closed")
	ErrBackpressure = errors.New("send buffer full")
	ErrNoWelcome    = errors.New("relay did not send welcome")
	ErrNotJoined    = errors.New("not in a session")
)

const (
	writeWait      = 5 * time.Second
	welcomeTimeout = 10 * time.Second
	sendBuffer     = 64
)

type Options struct {
	DisplayName string
	Factory     peer.TransportFactory
	// Capture is optional; without it the client only receives.
	Capture *media.Capture
	// Observer is optional.
	Observer peer.Observer
	Dialer   *websocket.Dialer
}

type Client struct {
	conn *websocket.Conn
	send chan []byte
	opts Options

	self    domain.ParticipantID
	Manager *peer.Manager

	mu      sync.Mutex
	session domain.SessionCode
	closed  bool

	done chan struct{}
}

// Dial connects to the relay at url and waits for the welcome frame carrying the
// local participant id.
func Dial(ctx context.Context, url string, opts Options) (*Client, error) {
	dialer := opts.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}

	welcome, err := awaitWelcome(conn)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	c := &Client{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		opts: opts,
		self: welcome.ParticipantID,
		done: make(chan struct{}),
	}
	c.Manager = peer.NewManager(c.self, opts.Capture, peer.Deps{
		Factory:  opts.Factory,
		Signaler: c,
		Observer: opts.Observer,
	})
	log.Info().Str("module", "client").Str("pid", string(c.self)).Msg("connected")

	go c.writePump()
	go c.readPump()
	return c, nil
}

// awaitWelcome skips broadcasts that may race ahead of the welcome frame.
func awaitWelcome(conn *websocket.Conn) (protocol.Welcome, error) {
	_ = conn.SetReadDeadline(time.Now().Add(welcomeTimeout))
	defer func() { _ = conn.SetReadDeadline(time.Time{}) }()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return protocol.Welcome{}, fmt.Errorf("%w: %v", ErrNoWelcome, err)
		}
		if typ, _ := protocol.PeekType(data); typ != protocol.TypeWelcome {
			continue
		}
		var w protocol.Welcome
		if err := json.Unmarshal(data, &w); err != nil || w.ParticipantID == "" {
			return protocol.Welcome{}, ErrNoWelcome
		}
		return w, nil
	}
}

func (c *Client) ID() domain.ParticipantID { return c.self }

// Done is closed when the connection to the relay is gone.
func (c *Client) Done() <-chan struct{} { return c.done }

func (c *Client) Session() (domain.SessionCode, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session, c.session != ""
}

// Join asks the relay to add this participant to code. The relay answers with
// existing-participants, which starts a call to every member.
func (c *Client) Join(code domain.SessionCode) error {
	return c.sendJSON(protocol.JoinSession{
		Type:        protocol.TypeJoinSession,
		SessionCode: string(code),
		DisplayName: c.opts.DisplayName,
	})
}

// Leave closes every link and leaves the current session. The capture is released
// since the client has fully exited the session.
func (c *Client) Leave() error {
	c.mu.Lock()
	code := c.session
	c.session = ""
	c.mu.Unlock()
	if code == "" {
		return ErrNotJoined
	}

	c.Manager.TeardownAll()
	if c.opts.Capture != nil {
		c.opts.Capture.Release()
	}
	return c.sendJSON(protocol.LeaveSession{Type: protocol.TypeLeaveSession, SessionCode: string(code)})
}

func (c *Client) Ping() error {
	return c.sendJSON(protocol.Simple{Type: protocol.TypePing})
}

// Close drops every link. Queued frames are flushed before the relay connection
// is closed by the write pump.
func (c *Client) Close() {
	c.Manager.TeardownAll()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) SendOffer(to domain.ParticipantID, offer webrtc.SessionDescription) error {
	return c.sendJSON(protocol.Description{Type: protocol.TypeOffer, To: to, SDP: offer.SDP})
}

func (c *Client) SendAnswer(to domain.ParticipantID, answer webrtc.SessionDescription) error {
	return c.sendJSON(protocol.Description{Type: protocol.TypeAnswer, To: to, SDP: answer.SDP})
}

func (c *Client) SendCandidate(to domain.ParticipantID, ci webrtc.ICECandidateInit) error {
	raw, err := json.Marshal(ci)
	if err != nil {
		return err
	}
	return c.sendJSON(protocol.Candidate{Type: protocol.TypeICECandidate, To: to, Candidate: raw})
}

func (c *Client) sendJSON(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *Client) writePump() {
	defer func() { _ = c.conn.Close() }()
	for data := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
			log.Error().Err(err).Str("module", "client").Msg("writePump set deadline")
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Str("module", "client").Msg("writePump write error")
			return
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		log.Info().Str("module", "client").Str("pid", string(c.self)).Msg("readPump closing")
		c.Close()
		close(c.done)
	}()
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("module", "client").Msg("read error")
			}
			return
		}
		c.handle(data)
	}
}
