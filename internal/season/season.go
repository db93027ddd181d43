// Package season maintains cached per-user season totals, scoring outstanding
// predictions before deciding which totals must be recomputed.
package season

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gridpicks/engine/internal/clock"
	"gridpicks/engine/internal/metrics"
	"gridpicks/engine/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// PredictionStore reads predictions for reconciliation and summation
type PredictionStore interface {
	ListUnscored(ctx context.Context, userIDs []uuid.UUID, year int) ([]*models.Prediction, error)
	SumPoints(ctx context.Context, userID uuid.UUID, year int) (int, error)
}

// ScoreStore persists season totals
type ScoreStore interface {
	ListForUsers(ctx context.Context, year int, userIDs []uuid.UUID) (map[uuid.UUID]*models.SeasonScore, error)
	Upsert(ctx context.Context, s *models.SeasonScore) error
}

// Sessions resolves the sessions reconciliation depends on
type Sessions interface {
	ScoringSession(ctx context.Context, meetingKey, sessionKey int) (*models.Session, error)
	HighWaterMark(ctx context.Context, year int) (time.Time, error)
}

// Scorer scores a single prediction
type Scorer interface {
	GetPointsForPrediction(ctx context.Context, p *models.Prediction, sessionKey int) (int, bool, error)
}

// Service serves season totals
type Service struct {
	predictions PredictionStore
	scores      ScoreStore
	sessions    Sessions
	scorer      Scorer
	clock       clock.Clock
	concurrency int
}

// NewService creates a season score service
func NewService(predictions PredictionStore, scores ScoreStore, sessions Sessions, scorer Scorer, c clock.Clock) *Service {
	return &Service{
		predictions: predictions,
		scores:      scores,
		sessions:    sessions,
		scorer:      scorer,
		clock:       c,
		concurrency: 4,
	}
}

// WithConcurrency sets how many predictions are scored at once during reconciliation
func (s *Service) WithConcurrency(n int) *Service {
	if n > 0 {
		s.concurrency = n
	}
	return s
}

// GetOrComputeSeasonPointsForUsers returns each user's total for the season. Rows are
// recomputed when missing, stale against the season's last finished session, or when
// reconciliation just scored one of the user's predictions.
func (s *Service) GetOrComputeSeasonPointsForUsers(ctx context.Context, userIDs []uuid.UUID, year int) (map[uuid.UUID]int, error) {
	totals := make(map[uuid.UUID]int, len(userIDs))
	if len(userIDs) == 0 {
		return totals, nil
	}

	flagged, err := s.Reconcile(ctx, userIDs, year)
	if err != nil {
		return nil, err
	}

	hwm, hwmErr := s.sessions.HighWaterMark(ctx, year)
	if hwmErr != nil {
		log.Warn().Err(hwmErr).Int("year", year).Msg("High-water mark unknown, serving stored season totals")
		metrics.RecordError("season", "high_water_mark")
	}

	rows, err := s.scores.ListForUsers(ctx, year, userIDs)
	if err != nil {
		return nil, err
	}

	for _, id := range userIDs {
		if _, done := totals[id]; done {
			continue
		}

		row := rows[id]
		cause := ""
		switch {
		case row == nil:
			cause = "missing"
		case flagged[id]:
			cause = "flagged"
		case hwmErr == nil && !row.FreshAsOf(hwm):
			cause = "stale"
		}

		if cause == "" {
			metrics.RecordSeasonCacheHit()
			totals[id] = row.Points
			continue
		}

		points, err := s.recompute(ctx, id, year, cause)
		if err != nil {
			return nil, err
		}
		totals[id] = points
	}

	return totals, nil
}

// GetOrComputeUserSeasonPoints is GetOrComputeSeasonPointsForUsers for one user
func (s *Service) GetOrComputeUserSeasonPoints(ctx context.Context, userID uuid.UUID, year int) (int, error) {
	totals, err := s.GetOrComputeSeasonPointsForUsers(ctx, []uuid.UUID{userID}, year)
	if err != nil {
		return 0, err
	}
	return totals[userID], nil
}

func (s *Service) recompute(ctx context.Context, userID uuid.UUID, year int, cause string) (int, error) {
	points, err := s.predictions.SumPoints(ctx, userID, year)
	if err != nil {
		return 0, err
	}

	row := &models.SeasonScore{
		UserID:     userID,
		SeasonYear: year,
		Points:     points,
		UpdatedAt:  s.clock.Now().Truncate(time.Microsecond),
	}
	if err := s.scores.Upsert(ctx, row); err != nil {
		return 0, err
	}

	metrics.RecordSeasonRecompute(cause)
	log.Debug().
		Str("user_id", userID.String()).
		Int("year", year).
		Int("points", points).
		Str("cause", cause).
		Msg("Season total recomputed")
	return points, nil
}

// Reconcile scores the users' unscored predictions for the season whose race or sprint
// has finished. It returns the users that had at least one prediction newly scored.
// Failures for a single prediction are logged and skipped.
func (s *Service) Reconcile(ctx context.Context, userIDs []uuid.UUID, year int) (map[uuid.UUID]bool, error) {
	flagged := make(map[uuid.UUID]bool)

	pending, err := s.predictions.ListUnscored(ctx, userIDs, year)
	if err != nil {
		return nil, fmt.Errorf("failed to load unscored predictions: %w", err)
	}
	if len(pending) == 0 {
		return flagged, nil
	}

	// One session lookup per meeting and recorded session
	type target struct{ meeting, session int }
	targets := make(map[target]*models.Session)
	for _, p := range pending {
		key := target{p.MeetingKey, p.SessionKey}
		if _, seen := targets[key]; seen {
			continue
		}
		session, err := s.sessions.ScoringSession(ctx, p.MeetingKey, p.SessionKey)
		if err != nil {
			log.Error().Err(err).Int("meeting_key", p.MeetingKey).Int("session_key", p.SessionKey).Msg("Failed to resolve scoring session")
			metrics.RecordError("season", "scoring_session")
		}
		targets[key] = session
	}

	var (
		mu     sync.Mutex
		scored int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for _, p := range pending {
		p := p
		session := targets[target{p.MeetingKey, p.SessionKey}]
		if session == nil {
			continue
		}

		g.Go(func() error {
			_, known, err := s.scorer.GetPointsForPrediction(gctx, p, session.SessionKey)
			if err != nil {
				log.Error().
					Err(err).
					Int64("prediction_id", p.ID).
					Int("session_key", session.SessionKey).
					Msg("Failed to score prediction")
				metrics.RecordError("season", "score_prediction")
				return nil
			}
			if known {
				mu.Lock()
				flagged[p.UserID] = true
				scored++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Info().
		Int("year", year).
		Int("pending", len(pending)).
		Int("scored", scored).
		Int("users_flagged", len(flagged)).
		Msg("Reconciliation complete")
	return flagged, nil
}
