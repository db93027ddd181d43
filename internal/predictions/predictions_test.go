package predictions

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"gridpicks/engine/internal/gate"
	"gridpicks/engine/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	saved  map[int]*models.Prediction
	recent []*models.PredictionWithMeta

	// upsertErr simulates a row scored between the read and the write
	upsertErr error
}

func (f *fakeStore) Upsert(_ context.Context, p *models.Prediction) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	if f.saved == nil {
		f.saved = map[int]*models.Prediction{}
	}
	p.ID = int64(len(f.saved) + 1)
	f.saved[p.MeetingKey] = p
	return nil
}

func (f *fakeStore) FindForUserAndMeeting(_ context.Context, _ uuid.UUID, meetingKey int) (*models.Prediction, error) {
	return f.saved[meetingKey], nil
}

func (f *fakeStore) ListRecentForUser(context.Context, uuid.UUID, int) ([]*models.PredictionWithMeta, error) {
	return f.recent, nil
}

type fakeSessions struct {
	target     *models.Session
	qualifying *models.Session
	err        error
}

func (f *fakeSessions) TargetSession(context.Context, int) (*models.Session, error) {
	return f.target, f.err
}

func (f *fakeSessions) MeetingSessions(context.Context, *models.Meeting) (*models.Session, *models.Session, error) {
	return f.target, f.qualifying, f.err
}

type fakeGate struct {
	outcome gate.Outcome
	checked *models.Session
}

func (f *fakeGate) CanMakePrediction(_ context.Context, s *models.Session, _ int) (gate.Outcome, error) {
	f.checked = s
	return f.outcome, nil
}

var (
	race    = &models.Session{SessionKey: 9693, MeetingKey: 1254, SessionName: models.SessionRace}
	quali   = &models.Session{SessionKey: 9690, MeetingKey: 1254, SessionName: models.SessionQualifying}
	drivers = []int{1, 4, 16, 81, 63, 44, 14, 55, 10, 22}
)

func TestService_Save(t *testing.T) {
	store := &fakeStore{}
	g := &fakeGate{outcome: gate.Opened()}
	svc := NewService(store, &fakeSessions{target: race}, g)

	p, err := svc.Save(context.Background(), uuid.New(), 1254, drivers)
	require.NoError(t, err)
	assert.Equal(t, 1254, p.MeetingKey)
	assert.Equal(t, 16, p.Drivers[2])
	assert.Same(t, race, g.checked)
	assert.Contains(t, store.saved, 1254)
	assert.Equal(t, 9693, store.saved[1254].SessionKey, "The target session is recorded with the prediction")
}

func TestService_Save_ScoredPredictionIsFinal(t *testing.T) {
	userID := uuid.New()
	scored := &models.Prediction{
		ID:         7,
		UserID:     userID,
		MeetingKey: 1255,
		SessionKey: 9989,
		Points:     sql.NullInt32{Int32: 12, Valid: true},
	}
	store := &fakeStore{saved: map[int]*models.Prediction{1255: scored}}
	sprintWeekendRace := &models.Session{SessionKey: 9998, MeetingKey: 1255, SessionName: models.SessionRace}
	g := &fakeGate{outcome: gate.Opened()}
	svc := NewService(store, &fakeSessions{target: sprintWeekendRace}, g)

	_, err := svc.Save(context.Background(), userID, 1255, drivers)

	var closed *ClosedError
	require.True(t, errors.As(err, &closed))
	assert.Equal(t, ReasonScored, closed.Reason)
	assert.Nil(t, g.checked, "The gate is not consulted for a scored prediction")

	kept := store.saved[1255]
	assert.Same(t, scored, kept)
	assert.Equal(t, int32(12), kept.Points.Int32)
	assert.Equal(t, 9989, kept.SessionKey)
}

func TestService_Save_ScoredBetweenReadAndWrite(t *testing.T) {
	store := &fakeStore{upsertErr: models.ErrPredictionScored}
	svc := NewService(store, &fakeSessions{target: race}, &fakeGate{outcome: gate.Opened()})

	_, err := svc.Save(context.Background(), uuid.New(), 1254, drivers)

	var closed *ClosedError
	require.True(t, errors.As(err, &closed))
	assert.Equal(t, ReasonScored, closed.Reason)
}

func TestService_Save_InvalidDrivers(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store, &fakeSessions{target: race}, &fakeGate{outcome: gate.Opened()})

	dup := append([]int{}, drivers...)
	dup[9] = 1

	for _, in := range [][]int{dup, drivers[:9], {1, 2, 3, 4, 5, 6, 7, 8, 9, 0}} {
		_, err := svc.Save(context.Background(), uuid.New(), 1254, in)
		assert.ErrorIs(t, err, models.ErrInvalidPrediction)
	}
	assert.Empty(t, store.saved, "Invalid predictions never reach the store")
}

func TestService_Save_GateClosed(t *testing.T) {
	store := &fakeStore{}
	svc := NewService(store, &fakeSessions{target: race}, &fakeGate{outcome: gate.Closed(gate.ReasonGridUnavailable)})

	_, err := svc.Save(context.Background(), uuid.New(), 1254, drivers)

	var closed *ClosedError
	require.True(t, errors.As(err, &closed))
	assert.Equal(t, gate.ReasonGridUnavailable, closed.Reason)
	assert.Empty(t, store.saved)
}

func TestService_Save_NoTargetSession(t *testing.T) {
	svc := NewService(&fakeStore{}, &fakeSessions{}, &fakeGate{outcome: gate.Opened()})

	_, err := svc.Save(context.Background(), uuid.New(), 1254, drivers)
	assert.ErrorIs(t, err, ErrNoTargetSession)
}

func TestService_Recent(t *testing.T) {
	store := &fakeStore{recent: []*models.PredictionWithMeta{
		{MeetingKey: 1254, MeetingName: "Australian Grand Prix", DateStart: time.Date(2025, 3, 14, 1, 30, 0, 0, time.UTC)},
	}}
	svc := NewService(store, &fakeSessions{target: race, qualifying: quali}, &fakeGate{})

	recent, err := svc.Recent(context.Background(), uuid.New(), 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	require.NotNil(t, recent[0].SessionKey)
	require.NotNil(t, recent[0].QualifyingSessionKey)
	assert.Equal(t, 9693, *recent[0].SessionKey)
	assert.Equal(t, 9690, *recent[0].QualifyingSessionKey)
}

func TestService_Recent_PrefersRecordedSession(t *testing.T) {
	store := &fakeStore{recent: []*models.PredictionWithMeta{
		{MeetingKey: 1255, Prediction: &models.Prediction{MeetingKey: 1255, SessionKey: 9989}},
	}}
	svc := NewService(store, &fakeSessions{target: race, qualifying: quali}, &fakeGate{})

	recent, err := svc.Recent(context.Background(), uuid.New(), 5)
	require.NoError(t, err)
	require.NotNil(t, recent[0].SessionKey)
	assert.Equal(t, 9989, *recent[0].SessionKey)
}

func TestService_Recent_SessionLookupFailureDegrades(t *testing.T) {
	store := &fakeStore{recent: []*models.PredictionWithMeta{{MeetingKey: 1254}}}
	svc := NewService(store, &fakeSessions{err: errors.New("feed down")}, &fakeGate{})

	recent, err := svc.Recent(context.Background(), uuid.New(), 5)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Nil(t, recent[0].SessionKey)
}
