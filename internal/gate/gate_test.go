package gate

import (
	"context"
	"errors"
	"testing"
	"time"

	"gridpicks/engine/internal/clock"
	"gridpicks/engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCalendar struct {
	sessions []*models.Session
	err      error
}

func (f *fakeCalendar) Meetings(context.Context, int) ([]*models.Meeting, error) { return nil, nil }

func (f *fakeCalendar) Sessions(context.Context, int) ([]*models.Session, error) {
	return f.sessions, f.err
}

type fakeGrid struct {
	rows  []models.GridPosition
	err   error
	calls int
}

func (f *fakeGrid) FetchStartingGrid(context.Context, int) ([]models.GridPosition, error) {
	f.calls++
	return f.rows, f.err
}

var (
	qualiStart = time.Date(2025, 3, 15, 5, 0, 0, 0, time.UTC)
	raceStart  = time.Date(2025, 3, 16, 4, 0, 0, 0, time.UTC)

	qualifying = &models.Session{SessionKey: 9690, MeetingKey: 1254, SessionName: models.SessionQualifying, DateStart: qualiStart, DateEnd: qualiStart.Add(time.Hour)}
	race       = &models.Session{SessionKey: 9693, MeetingKey: 1254, SessionName: models.SessionRace, DateStart: raceStart, DateEnd: raceStart.Add(2 * time.Hour)}
	sprint     = &models.Session{SessionKey: 9989, MeetingKey: 1254, SessionName: models.SessionSprint, DateStart: raceStart.Add(-3 * time.Hour), DateEnd: raceStart.Add(-2 * time.Hour)}
	pole       = []models.GridPosition{{Position: 1, DriverNumber: 4, SessionKey: 9690}}
)

func TestGate_CanMakePrediction(t *testing.T) {
	tests := []struct {
		name     string
		now      time.Time
		session  *models.Session
		sessions []*models.Session
		grid     *fakeGrid
		want     Outcome
	}{
		{
			name:     "open after qualifying with grid",
			now:      raceStart.Add(-12 * time.Hour),
			session:  race,
			sessions: []*models.Session{qualifying, race},
			grid:     &fakeGrid{rows: pole},
			want:     Opened(),
		},
		{
			name:     "started beats published grid",
			now:      raceStart,
			session:  race,
			sessions: []*models.Session{qualifying, race},
			grid:     &fakeGrid{rows: pole},
			want:     Closed(ReasonStarted),
		},
		{
			name:     "qualifying missing",
			now:      raceStart.Add(-12 * time.Hour),
			session:  race,
			sessions: []*models.Session{race},
			grid:     &fakeGrid{rows: pole},
			want:     Closed(ReasonQualifyingNotFound),
		},
		{
			name:     "sprint needs sprint qualifying",
			now:      raceStart.Add(-12 * time.Hour),
			session:  sprint,
			sessions: []*models.Session{qualifying, sprint, race},
			grid:     &fakeGrid{rows: pole},
			want:     Closed(ReasonQualifyingNotFound),
		},
		{
			name:     "qualifying still running",
			now:      qualiStart.Add(30 * time.Minute),
			session:  race,
			sessions: []*models.Session{qualifying, race},
			grid:     &fakeGrid{rows: pole},
			want:     Closed(ReasonQualifyingPending),
		},
		{
			name:     "grid not published",
			now:      raceStart.Add(-12 * time.Hour),
			session:  race,
			sessions: []*models.Session{qualifying, race},
			grid:     &fakeGrid{},
			want:     Closed(ReasonGridUnavailable),
		},
		{
			name:     "grid fetch fails",
			now:      raceStart.Add(-12 * time.Hour),
			session:  race,
			sessions: []*models.Session{qualifying, race},
			grid:     &fakeGrid{err: errors.New("503")},
			want:     Closed(ReasonGridCheckFailed),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := New(&fakeCalendar{sessions: tt.sessions}, tt.grid, clock.Fixed(tt.now))

			got, err := g.CanMakePrediction(context.Background(), tt.session, 1254)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGate_StartedSkipsGridLookup(t *testing.T) {
	grid := &fakeGrid{rows: pole}
	g := New(&fakeCalendar{sessions: []*models.Session{qualifying, race}}, grid, clock.Fixed(raceStart.Add(time.Minute)))

	got, err := g.CanMakePrediction(context.Background(), race, 1254)
	require.NoError(t, err)
	assert.False(t, got.Open)
	assert.Equal(t, 0, grid.calls)
}

func TestGate_CalendarErrorPropagates(t *testing.T) {
	g := New(&fakeCalendar{err: errors.New("db down")}, &fakeGrid{rows: pole}, clock.Fixed(raceStart.Add(-time.Hour)))

	_, err := g.CanMakePrediction(context.Background(), race, 1254)
	assert.Error(t, err)
}

func TestGate_NilSession(t *testing.T) {
	g := New(&fakeCalendar{}, &fakeGrid{}, clock.Real{})

	_, err := g.CanMakePrediction(context.Background(), nil, 1254)
	assert.Error(t, err)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "open", Opened().String())
	assert.Equal(t, "closed: race has started", Closed(ReasonStarted).String())
}
