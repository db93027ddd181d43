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

const seasonPredictionColumns = `
	user_id, season_year,
	constructors_1st, constructors_2nd, constructors_3rd, fastest_pitstop_team,
	drivers_1st, drivers_2nd, drivers_3rd,
	most_dnfs_driver, fewest_dnfs_driver, safety_car_count,
	most_overtakes_driver, fewest_overtakes_driver, updated_at`

// SeasonPredictionRepository handles season-long predictions
type SeasonPredictionRepository struct {
	db *Database
}

// Find returns the user's prediction for a season, or nil if there is none
func (r *SeasonPredictionRepository) Find(ctx context.Context, userID uuid.UUID, year int) (*models.SeasonPrediction, error) {
	query := `SELECT ` + seasonPredictionColumns + `
		FROM season_predictions
		WHERE user_id = $1 AND season_year = $2`

	start := time.Now()
	var p models.SeasonPrediction
	err := r.db.Pool.QueryRow(ctx, query, userID, year).Scan(
		&p.UserID, &p.SeasonYear,
		&p.Constructors1st, &p.Constructors2nd, &p.Constructors3rd, &p.FastestPitstopTeam,
		&p.Drivers1st, &p.Drivers2nd, &p.Drivers3rd,
		&p.MostDNFsDriver, &p.FewestDNFsDriver, &p.SafetyCarCount,
		&p.MostOvertakesDriver, &p.FewestOvertakesDriver, &p.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		observe("select", "season_predictions", start, nil)
		return nil, nil
	}
	observe("select", "season_predictions", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to get season prediction: %w", err)
	}
	return &p, nil
}

// Upsert stores the user's season prediction, replacing every pick
func (r *SeasonPredictionRepository) Upsert(ctx context.Context, p *models.SeasonPrediction) error {
	if p == nil {
		return fmt.Errorf("season prediction cannot be nil")
	}

	query := `
		INSERT INTO season_predictions (` + seasonPredictionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW())
		ON CONFLICT (user_id, season_year) DO UPDATE SET
			constructors_1st = EXCLUDED.constructors_1st,
			constructors_2nd = EXCLUDED.constructors_2nd,
			constructors_3rd = EXCLUDED.constructors_3rd,
			fastest_pitstop_team = EXCLUDED.fastest_pitstop_team,
			drivers_1st = EXCLUDED.drivers_1st,
			drivers_2nd = EXCLUDED.drivers_2nd,
			drivers_3rd = EXCLUDED.drivers_3rd,
			most_dnfs_driver = EXCLUDED.most_dnfs_driver,
			fewest_dnfs_driver = EXCLUDED.fewest_dnfs_driver,
			safety_car_count = EXCLUDED.safety_car_count,
			most_overtakes_driver = EXCLUDED.most_overtakes_driver,
			fewest_overtakes_driver = EXCLUDED.fewest_overtakes_driver,
			updated_at = NOW()
		RETURNING updated_at
	`

	start := time.Now()
	err := r.db.Pool.QueryRow(ctx, query,
		p.UserID, p.SeasonYear,
		p.Constructors1st, p.Constructors2nd, p.Constructors3rd, p.FastestPitstopTeam,
		p.Drivers1st, p.Drivers2nd, p.Drivers3rd,
		p.MostDNFsDriver, p.FewestDNFsDriver, p.SafetyCarCount,
		p.MostOvertakesDriver, p.FewestOvertakesDriver,
	).Scan(&p.UpdatedAt)
	observe("upsert", "season_predictions", start, err)

	if err != nil {
		log.Error().Err(err).Str("user_id", p.UserID.String()).Int("season", p.SeasonYear).Msg("Failed to upsert season prediction")
		return fmt.Errorf("failed to upsert season prediction: %w", err)
	}

	log.Info().Str("user_id", p.UserID.String()).Int("season", p.SeasonYear).Msg("Season prediction saved")
	return nil
}
