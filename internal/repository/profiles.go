package repository

import (
	"context"
	"fmt"
	"time"

	"gridpicks/engine/internal/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ProfileRepository reads user profiles
type ProfileRepository struct {
	db *Database
}

func collectProfiles(rows pgx.Rows) ([]*models.Profile, error) {
	defer rows.Close()

	var profiles []*models.Profile
	for rows.Next() {
		var p models.Profile
		if err := rows.Scan(&p.ID, &p.Username, &p.AvatarURL); err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, &p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating profiles: %w", err)
	}
	return profiles, nil
}

// ListWithUsername returns up to limit profiles that have chosen a username
func (r *ProfileRepository) ListWithUsername(ctx context.Context, limit int) ([]*models.Profile, error) {
	query := `
		SELECT id, username, avatar_url
		FROM profiles
		WHERE username IS NOT NULL
		ORDER BY username
		LIMIT $1
	`

	start := time.Now()
	rows, err := r.db.Pool.Query(ctx, query, limit)
	observe("select", "profiles", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return collectProfiles(rows)
}

// ListByIDs returns the profiles among ids that exist
func (r *ProfileRepository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Profile, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.Pool.Query(ctx, `SELECT id, username, avatar_url FROM profiles WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return collectProfiles(rows)
}

// Upsert creates or updates a profile
func (r *ProfileRepository) Upsert(ctx context.Context, p *models.Profile) error {
	query := `
		INSERT INTO profiles (id, username, avatar_url)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			avatar_url = EXCLUDED.avatar_url
	`

	start := time.Now()
	_, err := r.db.Pool.Exec(ctx, query, p.ID, p.Username, p.AvatarURL)
	observe("upsert", "profiles", start, err)
	if err != nil {
		return fmt.Errorf("failed to upsert profile: %w", err)
	}
	return nil
}
