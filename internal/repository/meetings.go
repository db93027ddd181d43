package repository

import (
	"context"
	"fmt"
	"time"

	"gridpicks/engine/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

const meetingColumns = `
	id, meeting_key, meeting_name, meeting_official_name, location,
	country_key, country_code, country_name, country_flag,
	circuit_key, circuit_short_name, circuit_type, circuit_image,
	gmt_offset, date_start, date_end, year, created_at, updated_at`

const upsertMeetingQuery = `
	INSERT INTO meetings (
		meeting_key, meeting_name, meeting_official_name, location,
		country_key, country_code, country_name, country_flag,
		circuit_key, circuit_short_name, circuit_type, circuit_image,
		gmt_offset, date_start, date_end, year
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	ON CONFLICT (meeting_key) DO UPDATE SET
		meeting_name = EXCLUDED.meeting_name,
		meeting_official_name = EXCLUDED.meeting_official_name,
		location = EXCLUDED.location,
		country_key = EXCLUDED.country_key,
		country_code = EXCLUDED.country_code,
		country_name = EXCLUDED.country_name,
		country_flag = EXCLUDED.country_flag,
		circuit_key = EXCLUDED.circuit_key,
		circuit_short_name = EXCLUDED.circuit_short_name,
		circuit_type = EXCLUDED.circuit_type,
		circuit_image = EXCLUDED.circuit_image,
		gmt_offset = EXCLUDED.gmt_offset,
		date_start = EXCLUDED.date_start,
		date_end = EXCLUDED.date_end,
		year = EXCLUDED.year,
		updated_at = NOW()
	RETURNING id, created_at, updated_at
`

// MeetingRepository handles meeting database operations
type MeetingRepository struct {
	db *Database
}

func meetingArgs(m *models.Meeting) []any {
	return []any{
		m.MeetingKey, m.MeetingName, m.MeetingOfficialName, m.Location,
		m.CountryKey, m.CountryCode, m.CountryName, m.CountryFlag,
		m.CircuitKey, m.CircuitShortName, m.CircuitType, m.CircuitImage,
		m.GMTOffset, m.DateStart, m.DateEnd, m.Year,
	}
}

func scanMeeting(row pgx.Row) (*models.Meeting, error) {
	var m models.Meeting
	err := row.Scan(
		&m.ID, &m.MeetingKey, &m.MeetingName, &m.MeetingOfficialName, &m.Location,
		&m.CountryKey, &m.CountryCode, &m.CountryName, &m.CountryFlag,
		&m.CircuitKey, &m.CircuitShortName, &m.CircuitType, &m.CircuitImage,
		&m.GMTOffset, &m.DateStart, &m.DateEnd, &m.Year, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Upsert inserts or updates a meeting keyed on its feed identifier
func (r *MeetingRepository) Upsert(ctx context.Context, m *models.Meeting) error {
	start := time.Now()
	err := r.db.Pool.QueryRow(ctx, upsertMeetingQuery, meetingArgs(m)...).
		Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	observe("upsert", "meetings", start, err)

	if err != nil {
		return fmt.Errorf("failed to upsert meeting: %w", err)
	}
	return nil
}

// UpsertMany upserts meetings in one batch round trip
func (r *MeetingRepository) UpsertMany(ctx context.Context, meetings []*models.Meeting) error {
	if len(meetings) == 0 {
		return nil
	}

	start := time.Now()
	batch := &pgx.Batch{}
	for _, m := range meetings {
		batch.Queue(upsertMeetingQuery, meetingArgs(m)...)
	}

	br := r.db.Pool.SendBatch(ctx, batch)
	var err error
	for _, m := range meetings {
		if err = br.QueryRow().Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt); err != nil {
			err = fmt.Errorf("failed to upsert meeting %d: %w", m.MeetingKey, err)
			break
		}
	}
	if closeErr := br.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to upsert meetings: %w", closeErr)
	}
	observe("upsert_batch", "meetings", start, err)

	if err != nil {
		return err
	}

	log.Debug().Int("count", len(meetings)).Msg("Meetings upserted")
	return nil
}

// HasSeason reports whether any meeting of the season is stored
func (r *MeetingRepository) HasSeason(ctx context.Context, year int) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM meetings WHERE year = $1)`

	start := time.Now()
	var exists bool
	err := r.db.Pool.QueryRow(ctx, query, year).Scan(&exists)
	observe("exists", "meetings", start, err)

	if err != nil {
		return false, fmt.Errorf("failed to probe meetings: %w", err)
	}
	return exists, nil
}

// ListBySeason retrieves every meeting of a season in calendar order
func (r *MeetingRepository) ListBySeason(ctx context.Context, year int) ([]*models.Meeting, error) {
	query := `SELECT ` + meetingColumns + `
		FROM meetings
		WHERE year = $1
		ORDER BY date_start, meeting_key`

	start := time.Now()
	rows, err := r.db.Pool.Query(ctx, query, year)
	if err != nil {
		observe("select", "meetings", start, err)
		return nil, fmt.Errorf("failed to list meetings: %w", err)
	}
	defer rows.Close()

	var meetings []*models.Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan meeting: %w", err)
		}
		meetings = append(meetings, m)
	}

	err = rows.Err()
	observe("select", "meetings", start, err)
	if err != nil {
		return nil, fmt.Errorf("error iterating meetings: %w", err)
	}

	return meetings, nil
}
