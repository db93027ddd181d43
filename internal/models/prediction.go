package models

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PredictedPositions is the number of finishing slots a prediction covers
const PredictedPositions = 10

// ErrInvalidPrediction is returned when a prediction violates its data invariants
var ErrInvalidPrediction = errors.New("invalid prediction")

// ErrPredictionScored is returned when a write would replace a prediction that already has points
var ErrPredictionScored = errors.New("prediction already scored")

// Prediction represents one user's ordered top-10 guess for one meeting
type Prediction struct {
	ID         int64     `db:"id"`
	UserID     uuid.UUID `db:"user_id"`
	MeetingKey int       `db:"meeting_key"`

	// Drivers[0] is the predicted winner; stored as position_1..position_10
	Drivers [PredictedPositions]int

	// SessionKey is the race or sprint the prediction was written against; 0 when unknown
	SessionKey int `db:"session_key"`

	// Points is null until a result exists
	Points sql.NullInt32 `db:"points"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// PredictionInput is the body of a prediction submission
type PredictionInput struct {
	Drivers []int `json:"drivers"`
}

// ToPrediction validates the input and builds a prediction for the user and meeting
func (pi *PredictionInput) ToPrediction(userID uuid.UUID, meetingKey int) (*Prediction, error) {
	drivers, err := ValidateDrivers(pi.Drivers)
	if err != nil {
		return nil, err
	}
	if meetingKey <= 0 {
		return nil, fmt.Errorf("%w: meeting_key must be positive", ErrInvalidPrediction)
	}
	return &Prediction{
		UserID:     userID,
		MeetingKey: meetingKey,
		Drivers:    drivers,
	}, nil
}

// ValidateDrivers checks for exactly ten distinct, positive driver numbers
func ValidateDrivers(drivers []int) ([PredictedPositions]int, error) {
	var out [PredictedPositions]int
	if len(drivers) != PredictedPositions {
		return out, fmt.Errorf("%w: must predict exactly %d drivers, got %d",
			ErrInvalidPrediction, PredictedPositions, len(drivers))
	}

	seen := make(map[int]struct{}, PredictedPositions)
	for i, d := range drivers {
		if d <= 0 {
			return out, fmt.Errorf("%w: position %d has invalid driver number %d", ErrInvalidPrediction, i+1, d)
		}
		if _, dup := seen[d]; dup {
			return out, fmt.Errorf("%w: driver %d selected more than once", ErrInvalidPrediction, d)
		}
		seen[d] = struct{}{}
		out[i] = d
	}
	return out, nil
}

// IsScored returns true once points have been assigned
func (p *Prediction) IsScored() bool {
	return p.Points.Valid
}

// PointsValue returns the cached points and whether they are known
func (p *Prediction) PointsValue() (int, bool) {
	if !p.Points.Valid {
		return 0, false
	}
	return int(p.Points.Int32), true
}

// PredictionWithMeta is a prediction with the meeting and session context a profile shows
type PredictionWithMeta struct {
	MeetingKey           int         `json:"meeting_key"`
	MeetingName          string      `json:"meeting_name"`
	DateStart            time.Time   `json:"date_start"`
	DateEnd              time.Time   `json:"-"`
	Drivers              []int       `json:"drivers"`
	Points               *int        `json:"points"`
	SessionKey           *int        `json:"session_key"`
	QualifyingSessionKey *int        `json:"qualifying_session_key"`
	UpdatedAt            time.Time   `json:"updated_at"`
	Prediction           *Prediction `json:"-"`
}
