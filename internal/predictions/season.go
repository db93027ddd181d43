package predictions

import (
	"context"
	"fmt"

	"gridpicks/engine/internal/clock"
	"gridpicks/engine/internal/gate"
	"gridpicks/engine/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ReasonSeasonStarted means the season's first weekend has begun
const ReasonSeasonStarted gate.Reason = "season already started"

// SeasonStore persists season-long predictions
type SeasonStore interface {
	Find(ctx context.Context, userID uuid.UUID, year int) (*models.SeasonPrediction, error)
	Upsert(ctx context.Context, p *models.SeasonPrediction) error
}

// Meetings lists a season's weekends
type Meetings interface {
	Meetings(ctx context.Context, year int) ([]*models.Meeting, error)
}

// SeasonService saves and reads season-long predictions
type SeasonService struct {
	store    SeasonStore
	meetings Meetings
	clock    clock.Clock
}

// NewSeasonService creates a season prediction service
func NewSeasonService(store SeasonStore, meetings Meetings, c clock.Clock) *SeasonService {
	return &SeasonService{store: store, meetings: meetings, clock: c}
}

// Save validates and stores the user's picks for a season. Picks can be changed
// until the first weekend of the season starts.
func (s *SeasonService) Save(ctx context.Context, userID uuid.UUID, year int, in *models.SeasonPredictionInput) (*models.SeasonPrediction, error) {
	p, err := in.ToSeasonPrediction(userID, year)
	if err != nil {
		return nil, err
	}

	open, err := s.isOpen(ctx, year)
	if err != nil {
		return nil, err
	}
	if !open {
		return nil, &ClosedError{Reason: ReasonSeasonStarted}
	}

	if err := s.store.Upsert(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// Get returns the user's picks for a season, or nil
func (s *SeasonService) Get(ctx context.Context, userID uuid.UUID, year int) (*models.SeasonPrediction, error) {
	return s.store.Find(ctx, userID, year)
}

func (s *SeasonService) isOpen(ctx context.Context, year int) (bool, error) {
	now := s.clock.Now()
	if year < now.Year() {
		return false, nil
	}

	meetings, err := s.meetings.Meetings(ctx, year)
	if err != nil {
		return false, fmt.Errorf("failed to load %d calendar: %w", year, err)
	}
	for _, m := range meetings {
		if m.HasStarted(now) {
			log.Debug().Int("year", year).Int("meeting_key", m.MeetingKey).Msg("Season predictions closed")
			return false, nil
		}
	}
	return true, nil
}
