package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gridpicks/engine/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

const predictionColumns = `
	p.id, p.user_id, p.meeting_key,
	p.position_1, p.position_2, p.position_3, p.position_4, p.position_5,
	p.position_6, p.position_7, p.position_8, p.position_9, p.position_10,
	p.points, p.created_at, p.updated_at, COALESCE(p.session_key, 0)`

// PredictionRepository handles prediction-related database operations
type PredictionRepository struct {
	db *Database
}

func predictionScanTargets(p *models.Prediction) []any {
	targets := []any{&p.ID, &p.UserID, &p.MeetingKey}
	for i := range p.Drivers {
		targets = append(targets, &p.Drivers[i])
	}
	return append(targets, &p.Points, &p.CreatedAt, &p.UpdatedAt, &p.SessionKey)
}

// Upsert stores the user's prediction for a meeting. Re-submitting replaces the
// driver order and target session while the stored row has no points; a scored
// row is left untouched and ErrPredictionScored is returned.
func (r *PredictionRepository) Upsert(ctx context.Context, p *models.Prediction) error {
	if p == nil {
		return fmt.Errorf("prediction cannot be nil")
	}
	if _, err := models.ValidateDrivers(p.Drivers[:]); err != nil {
		return fmt.Errorf("prediction validation failed: %w", err)
	}

	query := `
		INSERT INTO predictions (
			user_id, meeting_key,
			position_1, position_2, position_3, position_4, position_5,
			position_6, position_7, position_8, position_9, position_10,
			session_key
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NULLIF($13::INTEGER, 0))
		ON CONFLICT (user_id, meeting_key) DO UPDATE SET
			position_1 = EXCLUDED.position_1,
			position_2 = EXCLUDED.position_2,
			position_3 = EXCLUDED.position_3,
			position_4 = EXCLUDED.position_4,
			position_5 = EXCLUDED.position_5,
			position_6 = EXCLUDED.position_6,
			position_7 = EXCLUDED.position_7,
			position_8 = EXCLUDED.position_8,
			position_9 = EXCLUDED.position_9,
			position_10 = EXCLUDED.position_10,
			session_key = EXCLUDED.session_key,
			updated_at = NOW()
		WHERE predictions.points IS NULL
		RETURNING id, points, created_at, updated_at
	`

	args := []any{p.UserID, p.MeetingKey}
	for _, d := range p.Drivers {
		args = append(args, d)
	}
	args = append(args, p.SessionKey)

	start := time.Now()
	err := r.db.Pool.QueryRow(ctx, query, args...).Scan(&p.ID, &p.Points, &p.CreatedAt, &p.UpdatedAt)
	observe("upsert", "predictions", start, err)

	if errors.Is(err, pgx.ErrNoRows) {
		log.Warn().Str("user_id", p.UserID.String()).Int("meeting_key", p.MeetingKey).Msg("Refusing to overwrite scored prediction")
		return models.ErrPredictionScored
	}
	if err != nil {
		log.Error().Err(err).Str("user_id", p.UserID.String()).Int("meeting_key", p.MeetingKey).Msg("Failed to upsert prediction")
		return fmt.Errorf("failed to upsert prediction: %w", err)
	}

	log.Info().Int64("id", p.ID).Int("meeting_key", p.MeetingKey).Msg("Prediction saved")
	return nil
}

// FindForUserAndMeeting returns the user's prediction for a meeting, or nil if there is none
func (r *PredictionRepository) FindForUserAndMeeting(ctx context.Context, userID uuid.UUID, meetingKey int) (*models.Prediction, error) {
	query := `SELECT ` + predictionColumns + `
		FROM predictions p
		WHERE p.user_id = $1 AND p.meeting_key = $2`

	var p models.Prediction
	err := r.db.Pool.QueryRow(ctx, query, userID, meetingKey).Scan(predictionScanTargets(&p)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get prediction: %w", err)
	}
	return &p, nil
}

// SetPointsIfUnset writes points only while the stored value is null and returns
// whatever value is stored afterwards.
func (r *PredictionRepository) SetPointsIfUnset(ctx context.Context, predictionID int64, points int) (int, error) {
	query := `
		WITH updated AS (
			UPDATE predictions
			SET points = $2, updated_at = NOW()
			WHERE id = $1 AND points IS NULL
			RETURNING points
		)
		SELECT points FROM updated
		UNION ALL
		SELECT points FROM predictions
		WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM updated)
	`

	start := time.Now()
	var stored int
	err := r.db.Pool.QueryRow(ctx, query, predictionID, points).Scan(&stored)
	observe("update", "predictions", start, err)

	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("prediction not found: id=%d", predictionID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to set prediction points: %w", err)
	}
	return stored, nil
}

// ListUnscored retrieves the users' predictions for meetings of a season that have no points yet
func (r *PredictionRepository) ListUnscored(ctx context.Context, userIDs []uuid.UUID, year int) ([]*models.Prediction, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	query := `SELECT ` + predictionColumns + `
		FROM predictions p
		JOIN meetings m ON m.meeting_key = p.meeting_key
		WHERE p.user_id = ANY($1)
		  AND p.points IS NULL
		  AND m.year = $2
		ORDER BY m.date_start, p.id`

	start := time.Now()
	rows, err := r.db.Pool.Query(ctx, query, userIDs, year)
	if err != nil {
		observe("select", "predictions", start, err)
		log.Error().Err(err).Msg("Failed to query unscored predictions")
		return nil, fmt.Errorf("failed to list unscored predictions: %w", err)
	}
	defer rows.Close()

	var predictions []*models.Prediction
	for rows.Next() {
		var p models.Prediction
		if err := rows.Scan(predictionScanTargets(&p)...); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}
		predictions = append(predictions, &p)
	}

	err = rows.Err()
	observe("select", "predictions", start, err)
	if err != nil {
		return nil, fmt.Errorf("error iterating predictions: %w", err)
	}

	log.Debug().Int("count", len(predictions)).Int("year", year).Msg("Unscored predictions retrieved")
	return predictions, nil
}

// SumPoints totals the user's non-null points for meetings of a season
func (r *PredictionRepository) SumPoints(ctx context.Context, userID uuid.UUID, year int) (int, error) {
	query := `
		SELECT COALESCE(SUM(p.points), 0)
		FROM predictions p
		JOIN meetings m ON m.meeting_key = p.meeting_key
		WHERE p.user_id = $1 AND m.year = $2 AND p.points IS NOT NULL
	`

	start := time.Now()
	var total int
	err := r.db.Pool.QueryRow(ctx, query, userID, year).Scan(&total)
	observe("sum", "predictions", start, err)

	if err != nil {
		return 0, fmt.Errorf("failed to sum season points: %w", err)
	}
	return total, nil
}

// ListRecentForUser retrieves the user's latest predictions with their meeting
func (r *PredictionRepository) ListRecentForUser(ctx context.Context, userID uuid.UUID, limit int) ([]*models.PredictionWithMeta, error) {
	query := `SELECT ` + predictionColumns + `, m.meeting_name, m.date_start, m.date_end
		FROM predictions p
		JOIN meetings m ON m.meeting_key = p.meeting_key
		WHERE p.user_id = $1
		ORDER BY p.updated_at DESC
		LIMIT $2`

	rows, err := r.db.Pool.Query(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recent predictions: %w", err)
	}
	defer rows.Close()

	var out []*models.PredictionWithMeta
	for rows.Next() {
		var p models.Prediction
		meta := &models.PredictionWithMeta{Prediction: &p}
		targets := append(predictionScanTargets(&p), &meta.MeetingName, &meta.DateStart, &meta.DateEnd)
		if err := rows.Scan(targets...); err != nil {
			return nil, fmt.Errorf("failed to scan prediction: %w", err)
		}

		meta.MeetingKey = p.MeetingKey
		meta.Drivers = append([]int(nil), p.Drivers[:]...)
		meta.UpdatedAt = p.UpdatedAt
		if v, ok := p.PointsValue(); ok {
			meta.Points = &v
		}
		out = append(out, meta)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating predictions: %w", err)
	}
	return out, nil
}
