// Package predictions is the write boundary for user predictions.
package predictions

import (
	"context"
	"errors"
	"fmt"

	"gridpicks/engine/internal/gate"
	"gridpicks/engine/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ReasonScored means the meeting's prediction already earned points and is final
const ReasonScored gate.Reason = "prediction already scored"

// ErrNoTargetSession is returned when a meeting has no race or sprint to predict
var ErrNoTargetSession = errors.New("meeting has no race or sprint session")

// ClosedError is returned when the gate refuses a prediction
type ClosedError struct {
	Reason gate.Reason
}

func (e *ClosedError) Error() string {
	return "predictions closed: " + string(e.Reason)
}

// Store persists predictions
type Store interface {
	Upsert(ctx context.Context, p *models.Prediction) error
	FindForUserAndMeeting(ctx context.Context, userID uuid.UUID, meetingKey int) (*models.Prediction, error)
	ListRecentForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.PredictionWithMeta, error)
}

// Sessions resolves the sessions a prediction relates to
type Sessions interface {
	TargetSession(ctx context.Context, meetingKey int) (*models.Session, error)
	MeetingSessions(ctx context.Context, meeting *models.Meeting) (target, qualifying *models.Session, err error)
}

// Gate decides whether a session accepts predictions
type Gate interface {
	CanMakePrediction(ctx context.Context, session *models.Session, meetingKey int) (gate.Outcome, error)
}

// Service saves and reads predictions
type Service struct {
	store    Store
	sessions Sessions
	gate     Gate
}

// NewService creates a prediction service
func NewService(store Store, sessions Sessions, g Gate) *Service {
	return &Service{store: store, sessions: sessions, gate: g}
}

// Save validates the drivers, checks the gate for the meeting's next race or sprint,
// and stores the prediction against that session. Saving again replaces the previous
// one until it has been scored.
func (s *Service) Save(ctx context.Context, userID uuid.UUID, meetingKey int, drivers []int) (*models.Prediction, error) {
	input := models.PredictionInput{Drivers: drivers}
	p, err := input.ToPrediction(userID, meetingKey)
	if err != nil {
		return nil, err
	}

	target, err := s.sessions.TargetSession(ctx, meetingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve session for meeting %d: %w", meetingKey, err)
	}
	if target == nil {
		return nil, fmt.Errorf("%w: meeting_key=%d", ErrNoTargetSession, meetingKey)
	}

	existing, err := s.store.FindForUserAndMeeting(ctx, userID, meetingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load prediction for meeting %d: %w", meetingKey, err)
	}
	if existing != nil && existing.IsScored() {
		return nil, &ClosedError{Reason: ReasonScored}
	}

	outcome, err := s.gate.CanMakePrediction(ctx, target, meetingKey)
	if err != nil {
		return nil, err
	}
	if !outcome.Open {
		return nil, &ClosedError{Reason: outcome.Reason}
	}

	p.SessionKey = target.SessionKey
	if err := s.store.Upsert(ctx, p); err != nil {
		if errors.Is(err, models.ErrPredictionScored) {
			return nil, &ClosedError{Reason: ReasonScored}
		}
		return nil, err
	}
	return p, nil
}

// Get returns the user's prediction for a meeting, or nil
func (s *Service) Get(ctx context.Context, userID uuid.UUID, meetingKey int) (*models.Prediction, error) {
	return s.store.FindForUserAndMeeting(ctx, userID, meetingKey)
}

// Recent returns the user's latest predictions with their session keys filled in
func (s *Service) Recent(ctx context.Context, userID uuid.UUID, limit int) ([]*models.PredictionWithMeta, error) {
	recent, err := s.store.ListRecentForUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	for _, item := range recent {
		meeting := &models.Meeting{MeetingKey: item.MeetingKey, DateStart: item.DateStart, DateEnd: item.DateEnd}
		target, quali, err := s.sessions.MeetingSessions(ctx, meeting)
		if err != nil {
			log.Warn().Err(err).Int("meeting_key", item.MeetingKey).Msg("Could not resolve sessions for prediction")
			continue
		}
		if item.Prediction != nil && item.Prediction.SessionKey > 0 {
			key := item.Prediction.SessionKey
			item.SessionKey = &key
		} else if target != nil {
			key := target.SessionKey
			item.SessionKey = &key
		}
		if quali != nil {
			key := quali.SessionKey
			item.QualifyingSessionKey = &key
		}
	}
	return recent, nil
}
