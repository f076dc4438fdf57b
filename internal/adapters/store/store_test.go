package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/dkeye/Mesh/internal/core"
	"github.com/dkeye/Mesh/internal/domain"
	"github.com/dkeye/Mesh/internal/mocks"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func openTestStore(t *testing.T, observer core.SessionObserver) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "mesh.db"), observer)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	clock := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func TestStore_CreateLiveAndScheduled(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	obs := mocks.NewMockSessionObserver(ctrl)
	s := openTestStore(t, obs)

	obs.EXPECT().SessionCreated(gomock.Any()).Times(2)

	// When one session is created now and one for later
	live, err := s.Create(ctx, core.NewSession{Name: "standup", Agenda: "daily", Owner: "tok"})
	req.NoError(err)
	later := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	scheduled, err := s.Create(ctx, core.NewSession{Name: "retro", ScheduledAt: &later})
	req.NoError(err)

	// Then codes are short and liveness follows the schedule
	req.Len(string(live.Code), domain.SessionCodeLen)
	req.NotEqual(live.Code, scheduled.Code)
	req.True(live.Live)
	req.False(scheduled.Live)

	got, err := s.GetByCode(ctx, live.Code)
	req.NoError(err)
	req.Equal("daily", got.Agenda)
	req.Equal("tok", got.Owner)
}

func TestStore_ListNewestFirst(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := openTestStore(t, nil)

	for _, name := range []string{"first", "second", "third"} {
		_, err := s.Create(ctx, core.NewSession{Name: name})
		req.NoError(err)
	}

	list, err := s.List(ctx)
	req.NoError(err)
	req.Len(list, 3)
	req.Equal("third", list[0].Name)
	req.Equal("first", list[2].Name)
}

func TestStore_GetUnknown(t *testing.T) {
	s := openTestStore(t, nil)
	_, err := s.GetByCode(context.Background(), "NOPE42")
	require.ErrorIs(t, err, core.ErrSessionNotFound)
}

func TestStore_ActivateNotifiesOnce(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	obs := mocks.NewMockSessionObserver(ctrl)
	s := openTestStore(t, obs)

	later := time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC)
	obs.EXPECT().SessionCreated(gomock.Any())
	rec, err := s.Create(ctx, core.NewSession{Name: "retro", ScheduledAt: &later})
	req.NoError(err)

	obs.EXPECT().SessionUpdated(gomock.Any()).Do(func(r domain.SessionRecord) {
		req.True(r.Live)
		req.Equal(rec.Code, r.Code)
	}).Times(1)

	got, err := s.Activate(ctx, rec.Code)
	req.NoError(err)
	req.True(got.Live)

	// already live: no second notification
	_, err = s.Activate(ctx, rec.Code)
	req.NoError(err)

	_, err = s.Activate(ctx, "NOPE42")
	req.ErrorIs(err, core.ErrSessionNotFound)
}

func TestStore_ActivateDue(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := openTestStore(t, nil)

	past := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	future := time.Date(2027, 2, 1, 0, 0, 0, 0, time.UTC)
	due, err := s.Create(ctx, core.NewSession{Name: "due", ScheduledAt: &future})
	req.NoError(err)
	notDue, err := s.Create(ctx, core.NewSession{Name: "not due", ScheduledAt: &future})
	req.NoError(err)
	// move the first one into the past
	req.NoError(s.db.Model(&sessionRow{}).Where("code = ?", string(due.Code)).Update("scheduled_at", past).Error)

	activated, err := s.ActivateDue(ctx, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	req.NoError(err)
	req.Len(activated, 1)
	req.Equal(due.Code, activated[0].Code)

	got, err := s.GetByCode(ctx, notDue.Code)
	req.NoError(err)
	req.False(got.Live)

	// a second sweep finds nothing
	activated, err = s.ActivateDue(ctx, time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC))
	req.NoError(err)
	req.Empty(activated)
}

func TestStore_AdjustParticipantsNeverNegative(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := openTestStore(t, nil)

	rec, err := s.Create(ctx, core.NewSession{Name: "standup"})
	req.NoError(err)

	req.NoError(s.AdjustParticipants(ctx, rec.Code, 1))
	req.NoError(s.AdjustParticipants(ctx, rec.Code, 1))
	got, _ := s.GetByCode(ctx, rec.Code)
	req.Equal(2, got.ParticipantCount)

	for range 3 {
		req.NoError(s.AdjustParticipants(ctx, rec.Code, -1))
	}
	got, _ = s.GetByCode(ctx, rec.Code)
	req.Zero(got.ParticipantCount)

	req.ErrorIs(s.AdjustParticipants(ctx, "AD-HOC", 1), core.ErrSessionNotFound)
}
