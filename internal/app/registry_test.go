package app

import (
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/Mesh/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(ps []domain.Participant) []domain.ParticipantID {
	out := make([]domain.ParticipantID, 0, len(ps))
	for _, p := range ps {
		out = append(out, p.ID)
	}
	return out
}

func TestRegistry_JoinReturnsMembersInJoinOrder(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	// Given A and B joined ABC123
	_, fresh, err := r.Join("a", "ABC123", "alice")
	req.NoError(err)
	req.True(fresh)
	_, _, err = r.Join("b", "ABC123", "bob")
	req.NoError(err)

	// When C joins
	members, fresh, err := r.Join("c", "ABC123", "carol")

	// Then the list includes everyone in join order
	req.NoError(err)
	req.True(fresh)
	req.Equal([]domain.ParticipantID{"a", "b", "c"}, ids(members))
	req.Equal("carol", members[2].DisplayName)
}

func TestRegistry_DuplicateJoinIsNoop(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	_, _, err := r.Join("a", "ABC123", "alice")
	req.NoError(err)

	members, fresh, err := r.Join("a", "ABC123", "alice")
	req.NoError(err)
	req.False(fresh)
	req.Len(members, 1)
}

func TestRegistry_JoinOtherSessionFails(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	_, _, err := r.Join("a", "ABC123", "alice")
	req.NoError(err)

	_, _, err = r.Join("a", "XYZ789", "alice")
	req.ErrorIs(err, ErrAlreadyInSession)

	code, ok := r.ResolveSession("a")
	req.True(ok)
	req.Equal(domain.SessionCode("ABC123"), code)
	req.Empty(r.Members("XYZ789"))
}

func TestRegistry_LeaveReturnsRemainingAndDropsEmptySession(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	// Given A and B in ABC123
	_, _, _ = r.Join("a", "ABC123", "alice")
	_, _, _ = r.Join("b", "ABC123", "bob")

	// When A leaves
	code, remaining, ok := r.Leave("a")

	// Then B remains
	req.True(ok)
	req.Equal(domain.SessionCode("ABC123"), code)
	req.Equal([]domain.ParticipantID{"b"}, remaining)
	_, inSession := r.ResolveSession("a")
	req.False(inSession)

	// When B leaves
	_, remaining, ok = r.Leave("b")

	// Then the session is gone
	req.True(ok)
	req.Empty(remaining)
	req.Empty(r.Sessions())

	// And leaving again is a no-op
	_, _, ok = r.Leave("b")
	req.False(ok)
}

func TestRegistry_SameSession(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()
	_, _, _ = r.Join("a", "ONE", "alice")
	_, _, _ = r.Join("b", "ONE", "bob")
	_, _, _ = r.Join("c", "TWO", "carol")

	req.True(r.SameSession("a", "b"))
	req.False(r.SameSession("a", "c"))
	req.False(r.SameSession("a", "ghost"))
	req.False(r.SameSession("ghost", "a"))
}

func TestRegistry_ConcurrentJoinLeave(t *testing.T) {
	req := require.New(t)
	r := NewRegistry()

	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pid := domain.ParticipantID(fmt.Sprintf("p%d", i))
			_, _, err := r.Join(pid, "ABC123", "guest")
			assert.NoError(t, err)
			if i%2 == 0 {
				r.Leave(pid)
			}
		}(i)
	}
	wg.Wait()

	members := r.Members("ABC123")
	req.Len(members, 25)
	for _, m := range members {
		code, ok := r.ResolveSession(m.ID)
		req.True(ok)
		req.Equal(domain.SessionCode("ABC123"), code)
	}
	req.Equal([]SessionInfo{{Code: "ABC123", ParticipantCount: 25}}, r.Sessions())
}
