package repository

import (
	"context"
	"fmt"
	"time"

	"gridpicks/engine/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// SeasonScoreRepository handles the cached season totals
type SeasonScoreRepository struct {
	db *Database
}

// ListForUsers returns the existing rows for the users in a season, keyed by user
func (r *SeasonScoreRepository) ListForUsers(ctx context.Context, year int, userIDs []uuid.UUID) (map[uuid.UUID]*models.SeasonScore, error) {
	out := make(map[uuid.UUID]*models.SeasonScore, len(userIDs))
	if len(userIDs) == 0 {
		return out, nil
	}

	query := `
		SELECT user_id, season_year, points, updated_at
		FROM user_season_scores
		WHERE season_year = $1 AND user_id = ANY($2)
	`

	start := time.Now()
	rows, err := r.db.Pool.Query(ctx, query, year, userIDs)
	if err != nil {
		observe("select", "user_season_scores", start, err)
		return nil, fmt.Errorf("failed to query season scores: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s models.SeasonScore
		if err := rows.Scan(&s.UserID, &s.SeasonYear, &s.Points, &s.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan season score: %w", err)
		}
		out[s.UserID] = &s
	}

	err = rows.Err()
	observe("select", "user_season_scores", start, err)
	if err != nil {
		return nil, fmt.Errorf("error iterating season scores: %w", err)
	}
	return out, nil
}

// Upsert writes the season total for a user
func (r *SeasonScoreRepository) Upsert(ctx context.Context, s *models.SeasonScore) error {
	query := `
		INSERT INTO user_season_scores (user_id, season_year, points, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id, season_year) DO UPDATE SET
			points = EXCLUDED.points,
			updated_at = EXCLUDED.updated_at
	`

	start := time.Now()
	_, err := r.db.Pool.Exec(ctx, query, s.UserID, s.SeasonYear, s.Points, s.UpdatedAt)
	observe("upsert", "user_season_scores", start, err)

	if err != nil {
		log.Error().Err(err).Str("user_id", s.UserID.String()).Int("season", s.SeasonYear).Msg("Failed to upsert season score")
		return fmt.Errorf("failed to upsert season score: %w", err)
	}
	return nil
}
