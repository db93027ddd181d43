package season

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"testing"
	"time"

	"gridpicks/engine/internal/clock"
	"gridpicks/engine/internal/models"
	"gridpicks/engine/internal/scoring"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDB stands in for the predictions and season score tables
type fakeDB struct {
	mu          sync.Mutex
	predictions []*models.Prediction
	scores      map[uuid.UUID]*models.SeasonScore
	sumCalls    int
	upserts     int
}

func newFakeDB() *fakeDB {
	return &fakeDB{scores: map[uuid.UUID]*models.SeasonScore{}}
}

func (f *fakeDB) ListUnscored(_ context.Context, userIDs []uuid.UUID, _ int) ([]*models.Prediction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := map[uuid.UUID]bool{}
	for _, id := range userIDs {
		want[id] = true
	}
	var out []*models.Prediction
	for _, p := range f.predictions {
		if want[p.UserID] && !p.Points.Valid {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeDB) SumPoints(_ context.Context, userID uuid.UUID, _ int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sumCalls++
	total := 0
	for _, p := range f.predictions {
		if p.UserID == userID && p.Points.Valid {
			total += int(p.Points.Int32)
		}
	}
	return total, nil
}

func (f *fakeDB) SetPointsIfUnset(_ context.Context, id int64, points int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.predictions {
		if p.ID == id {
			if !p.Points.Valid {
				p.Points = sql.NullInt32{Int32: int32(points), Valid: true}
			}
			return int(p.Points.Int32), nil
		}
	}
	return 0, errors.New("not found")
}

func (f *fakeDB) unscored() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.predictions {
		if !p.Points.Valid {
			n++
		}
	}
	return n
}

type scoreStore struct{ *fakeDB }

func (s scoreStore) ListForUsers(_ context.Context, _ int, userIDs []uuid.UUID) (map[uuid.UUID]*models.SeasonScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[uuid.UUID]*models.SeasonScore{}
	for _, id := range userIDs {
		if row, ok := s.scores[id]; ok {
			cp := *row
			out[id] = &cp
		}
	}
	return out, nil
}

func (s scoreStore) Upsert(_ context.Context, row *models.SeasonScore) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++
	cp := *row
	s.scores[row.UserID] = &cp
	return nil
}

type fakeSessions struct {
	byMeeting map[int]*models.Session
	// finished holds recorded race and sprint sessions that have ended
	finished map[int]*models.Session
	hwm      time.Time
	hwmErr   error
}

func (f *fakeSessions) ScoringSession(_ context.Context, meetingKey, sessionKey int) (*models.Session, error) {
	if sessionKey != 0 {
		return f.finished[sessionKey], nil
	}
	return f.byMeeting[meetingKey], nil
}

func (f *fakeSessions) HighWaterMark(context.Context, int) (time.Time, error) {
	return f.hwm, f.hwmErr
}

type fakeResults map[int][]models.ResultRow

func (f fakeResults) FetchSessionResult(_ context.Context, sessionKey int) ([]models.ResultRow, error) {
	return f[sessionKey], nil
}

var (
	now       = time.Date(2025, 3, 24, 12, 0, 0, 0, time.UTC)
	raceEnd   = time.Date(2025, 3, 23, 9, 0, 0, 0, time.UTC)
	finishing = [10]int{1, 4, 16, 81, 63, 44, 14, 55, 10, 22}
)

func fullResult() []models.ResultRow {
	rows := make([]models.ResultRow, 10)
	for i, d := range finishing {
		rows[i] = models.ResultRow{Position: i + 1, DriverNumber: d}
	}
	return rows
}

type fixture struct {
	db       *fakeDB
	sessions *fakeSessions
	results  fakeResults
	svc      *Service
}

func newFixture() *fixture {
	db := newFakeDB()
	sessions := &fakeSessions{
		byMeeting: map[int]*models.Session{
			1255: {SessionKey: 9998, MeetingKey: 1255, SessionName: models.SessionRace, DateEnd: raceEnd},
		},
		finished: map[int]*models.Session{
			9998: {SessionKey: 9998, MeetingKey: 1255, SessionName: models.SessionRace, DateEnd: raceEnd},
		},
		hwm: raceEnd,
	}
	results := fakeResults{9998: fullResult()}
	scorer := scoring.NewScorer(results, db)

	return &fixture{
		db:       db,
		sessions: sessions,
		results:  results,
		svc:      NewService(db, scoreStore{db}, sessions, scorer, clock.Fixed(now)).WithConcurrency(2),
	}
}

func TestService_FreshRowIsServedWithoutSummation(t *testing.T) {
	f := newFixture()
	user := uuid.New()
	f.db.scores[user] = &models.SeasonScore{UserID: user, SeasonYear: 2025, Points: 33, UpdatedAt: raceEnd.Add(time.Minute)}

	totals, err := f.svc.GetOrComputeSeasonPointsForUsers(context.Background(), []uuid.UUID{user}, 2025)
	require.NoError(t, err)
	assert.Equal(t, 33, totals[user])
	assert.Equal(t, 0, f.db.sumCalls)
	assert.Equal(t, 0, f.db.upserts)
}

func TestService_StaleRowIsRecomputed(t *testing.T) {
	f := newFixture()
	user := uuid.New()
	f.db.scores[user] = &models.SeasonScore{UserID: user, SeasonYear: 2025, Points: 5, UpdatedAt: raceEnd.Add(-time.Minute)}
	f.db.predictions = []*models.Prediction{
		{ID: 1, UserID: user, MeetingKey: 1254, Points: sql.NullInt32{Int32: 20, Valid: true}},
	}

	totals, err := f.svc.GetOrComputeSeasonPointsForUsers(context.Background(), []uuid.UUID{user}, 2025)
	require.NoError(t, err)
	assert.Equal(t, 20, totals[user])
	assert.Equal(t, 1, f.db.sumCalls)
	assert.Equal(t, now, f.db.scores[user].UpdatedAt)
}

func TestService_MissingRowIsComputed(t *testing.T) {
	f := newFixture()
	user := uuid.New()

	totals, err := f.svc.GetOrComputeSeasonPointsForUsers(context.Background(), []uuid.UUID{user}, 2025)
	require.NoError(t, err)
	assert.Equal(t, 0, totals[user])
	require.Contains(t, f.db.scores, user)
	assert.Equal(t, 0, f.db.scores[user].Points)
}

func TestService_NewlyScoredPredictionForcesRecompute(t *testing.T) {
	f := newFixture()
	user := uuid.New()
	// Written after the race ended but before the result was scored
	f.db.scores[user] = &models.SeasonScore{UserID: user, SeasonYear: 2025, Points: 0, UpdatedAt: raceEnd.Add(time.Hour)}
	f.db.predictions = []*models.Prediction{
		{ID: 1, UserID: user, MeetingKey: 1255, Drivers: finishing},
	}

	totals, err := f.svc.GetOrComputeSeasonPointsForUsers(context.Background(), []uuid.UUID{user}, 2025)
	require.NoError(t, err)
	assert.Equal(t, scoring.MaxPoints, totals[user])
	assert.Equal(t, scoring.MaxPoints, f.db.scores[user].Points)
}

func TestService_BackfillConverges(t *testing.T) {
	f := newFixture()
	users := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	for i := 0; i < 9; i++ {
		f.db.predictions = append(f.db.predictions, &models.Prediction{
			ID:         int64(i + 1),
			UserID:     users[i%3],
			MeetingKey: 1255,
			Drivers:    [10]int{finishing[1], finishing[0], 16, 81, 63, 44, 14, 55, 10, 22},
		})
	}
	require.Equal(t, 9, f.db.unscored())

	flagged, err := f.svc.Reconcile(context.Background(), users, 2025)
	require.NoError(t, err)
	assert.Len(t, flagged, 3)
	assert.Equal(t, 0, f.db.unscored(), "One pass scores every finished prediction")

	totals, err := f.svc.GetOrComputeSeasonPointsForUsers(context.Background(), users, 2025)
	require.NoError(t, err)
	for _, u := range users {
		assert.Equal(t, 3*(1+1+5*8), totals[u])
	}
}

func TestService_IncompleteResultLeavesPredictionPending(t *testing.T) {
	f := newFixture()
	f.results[9998] = fullResult()[:7]
	user := uuid.New()
	f.db.predictions = []*models.Prediction{{ID: 1, UserID: user, MeetingKey: 1255, Drivers: finishing}}

	flagged, err := f.svc.Reconcile(context.Background(), []uuid.UUID{user}, 2025)
	require.NoError(t, err)
	assert.Empty(t, flagged)
	assert.Equal(t, 1, f.db.unscored())
}

func TestService_UnfinishedMeetingIsSkipped(t *testing.T) {
	f := newFixture()
	user := uuid.New()
	f.db.predictions = []*models.Prediction{{ID: 1, UserID: user, MeetingKey: 1256, Drivers: finishing}}

	flagged, err := f.svc.Reconcile(context.Background(), []uuid.UUID{user}, 2025)
	require.NoError(t, err)
	assert.Empty(t, flagged)
	assert.Equal(t, 1, f.db.unscored())
}

func TestService_RecordedSessionDecidesScoring(t *testing.T) {
	f := newFixture()
	sprintEnd := raceEnd.Add(-26 * time.Hour)
	// Only the sprint has finished
	f.sessions.finished = map[int]*models.Session{
		9989: {SessionKey: 9989, MeetingKey: 1255, SessionName: models.SessionSprint, DateEnd: sprintEnd},
	}
	f.sessions.byMeeting[1255] = f.sessions.finished[9989]
	f.results[9989] = fullResult()

	sprintUser, raceUser := uuid.New(), uuid.New()
	f.db.predictions = []*models.Prediction{
		{ID: 1, UserID: sprintUser, MeetingKey: 1255, SessionKey: 9989, Drivers: finishing},
		{ID: 2, UserID: raceUser, MeetingKey: 1255, SessionKey: 9998, Drivers: finishing},
	}

	flagged, err := f.svc.Reconcile(context.Background(), []uuid.UUID{sprintUser, raceUser}, 2025)
	require.NoError(t, err)
	assert.True(t, flagged[sprintUser])
	assert.False(t, flagged[raceUser], "A race prediction is not scored against the sprint")
	assert.Equal(t, 1, f.db.unscored())
	assert.Equal(t, int32(scoring.MaxPoints), f.db.predictions[0].Points.Int32)
}

func TestService_UnknownHighWaterMarkServesStoredRows(t *testing.T) {
	f := newFixture()
	f.sessions.hwmErr = errors.New("feed down")
	user := uuid.New()
	f.db.scores[user] = &models.SeasonScore{UserID: user, SeasonYear: 2025, Points: 12, UpdatedAt: raceEnd.Add(-48 * time.Hour)}

	totals, err := f.svc.GetOrComputeSeasonPointsForUsers(context.Background(), []uuid.UUID{user}, 2025)
	require.NoError(t, err)
	assert.Equal(t, 12, totals[user])
	assert.Equal(t, 0, f.db.sumCalls)
}

func TestService_GetOrComputeUserSeasonPoints(t *testing.T) {
	f := newFixture()
	user := uuid.New()
	f.db.predictions = []*models.Prediction{{ID: 1, UserID: user, MeetingKey: 1255, Drivers: finishing}}

	points, err := f.svc.GetOrComputeUserSeasonPoints(context.Background(), user, 2025)
	require.NoError(t, err)
	assert.Equal(t, scoring.MaxPoints, points)
}

func TestService_EmptyUserSet(t *testing.T) {
	f := newFixture()

	totals, err := f.svc.GetOrComputeSeasonPointsForUsers(context.Background(), nil, 2025)
	require.NoError(t, err)
	assert.Empty(t, totals)
}
