package app

import (
	"sync"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/rs/zerolog/log"
)

// Channel is one open signaling connection and the participant behind it.
type Channel struct {
	ID     domain.ParticipantID
	Signal core.SignalConnection

	mu          sync.RWMutex
	displayName string
}

func (c *Channel) DisplayName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.displayName
}

func (c *Channel) SetDisplayName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.displayName = name
}

// Channels owns every open channel, keyed by participant id.
// Entries live from channel open to channel close.
type Channels struct {
	mu       sync.RWMutex
	channels map[domain.ParticipantID]*Channel
}

func NewChannels() *Channels {
	return &Channels{channels: make(map[domain.ParticipantID]*Channel)}
}

func (c *Channels) Open(pid domain.ParticipantID, displayName string, sig core.SignalConnection) *Channel {
	ch := &Channel{ID: pid, Signal: sig, displayName: displayName}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[pid] = ch
	log.Info().Str("module", "app.channels").Str("pid", string(pid)).Int("open", len(c.channels)).Msg("channel opened")
	return ch
}

// Close forgets the channel. It returns false if it was already gone.
func (c *Channels) Close(pid domain.ParticipantID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.channels[pid]; !ok {
		return false
	}
	delete(c.channels, pid)
	log.Info().Str("module", "app.channels").Str("pid", string(pid)).Int("open", len(c.channels)).Msg("channel closed")
	return true
}

func (c *Channels) Get(pid domain.ParticipantID) (*Channel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ch, ok := c.channels[pid]
	return ch, ok
}

func (c *Channels) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.channels)
}

// Snapshot returns the open channels at the time of the call.
func (c *Channels) Snapshot() []*Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Channel, 0, len(c.channels))
	for _, ch := range c.channels {
		out = append(out, ch)
	}
	return out
}
