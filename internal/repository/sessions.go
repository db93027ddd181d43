package repository

import (
	"context"
	"fmt"
	"time"

	"gridpicks/engine/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
)

const sessionColumns = `
	id, session_key, meeting_key, session_name, session_type,
	date_start, date_end, circuit_key, circuit_short_name,
	country_key, country_code, country_name, location, gmt_offset, year,
	created_at, updated_at`

const upsertSessionQuery = `
	INSERT INTO sessions (
		session_key, meeting_key, session_name, session_type,
		date_start, date_end, circuit_key, circuit_short_name,
		country_key, country_code, country_name, location, gmt_offset, year
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (session_key) DO UPDATE SET
		meeting_key = EXCLUDED.meeting_key,
		session_name = EXCLUDED.session_name,
		session_type = EXCLUDED.session_type,
		date_start = EXCLUDED.date_start,
		date_end = EXCLUDED.date_end,
		circuit_key = EXCLUDED.circuit_key,
		circuit_short_name = EXCLUDED.circuit_short_name,
		country_key = EXCLUDED.country_key,
		country_code = EXCLUDED.country_code,
		country_name = EXCLUDED.country_name,
		location = EXCLUDED.location,
		gmt_offset = EXCLUDED.gmt_offset,
		year = EXCLUDED.year,
		updated_at = NOW()
	RETURNING id, created_at, updated_at
`

// SessionRepository handles session database operations
type SessionRepository struct {
	db *Database
}

func sessionArgs(s *models.Session) []any {
	return []any{
		s.SessionKey, s.MeetingKey, string(s.SessionName), s.SessionType,
		s.DateStart, s.DateEnd, s.CircuitKey, s.CircuitShortName,
		s.CountryKey, s.CountryCode, s.CountryName, s.Location, s.GMTOffset, s.Year,
	}
}

func scanSession(row pgx.Row) (*models.Session, error) {
	var s models.Session
	var name string
	err := row.Scan(
		&s.ID, &s.SessionKey, &s.MeetingKey, &name, &s.SessionType,
		&s.DateStart, &s.DateEnd, &s.CircuitKey, &s.CircuitShortName,
		&s.CountryKey, &s.CountryCode, &s.CountryName, &s.Location, &s.GMTOffset, &s.Year,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.SessionName = models.SessionName(name)
	return &s, nil
}

// UpsertMany upserts sessions in one batch round trip
func (r *SessionRepository) UpsertMany(ctx context.Context, sessions []*models.Session) error {
	if len(sessions) == 0 {
		return nil
	}

	start := time.Now()
	batch := &pgx.Batch{}
	for _, s := range sessions {
		batch.Queue(upsertSessionQuery, sessionArgs(s)...)
	}

	br := r.db.Pool.SendBatch(ctx, batch)
	var err error
	for _, s := range sessions {
		if err = br.QueryRow().Scan(&s.ID, &s.CreatedAt, &s.UpdatedAt); err != nil {
			err = fmt.Errorf("failed to upsert session %d: %w", s.SessionKey, err)
			break
		}
	}
	if closeErr := br.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("failed to upsert sessions: %w", closeErr)
	}
	observe("upsert_batch", "sessions", start, err)

	if err != nil {
		return err
	}

	log.Debug().Int("count", len(sessions)).Msg("Sessions upserted")
	return nil
}

// HasRaceOrSprint reports whether a race or sprint session of the meeting is stored
func (r *SessionRepository) HasRaceOrSprint(ctx context.Context, meetingKey int) (bool, error) {
	query := `SELECT EXISTS (
		SELECT 1 FROM sessions WHERE meeting_key = $1 AND session_name = ANY($2)
	)`

	start := time.Now()
	var exists bool
	err := r.db.Pool.QueryRow(ctx, query, meetingKey, models.Strings(models.RaceOrSprintNames)).Scan(&exists)
	observe("exists", "sessions", start, err)

	if err != nil {
		return false, fmt.Errorf("failed to probe sessions: %w", err)
	}
	return exists, nil
}

// ListByMeeting retrieves the mirrored sessions of a meeting in start order
func (r *SessionRepository) ListByMeeting(ctx context.Context, meetingKey int) ([]*models.Session, error) {
	return r.list(ctx, meetingKey, models.RelevantSessionNames)
}

// ListQualifying retrieves the grid-deciding sessions of a meeting in start order
func (r *SessionRepository) ListQualifying(ctx context.Context, meetingKey int) ([]*models.Session, error) {
	return r.list(ctx, meetingKey, models.QualifyingNames)
}

func (r *SessionRepository) list(ctx context.Context, meetingKey int, names []models.SessionName) ([]*models.Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM sessions
		WHERE meeting_key = $1 AND session_name = ANY($2)
		ORDER BY date_start, session_key`

	start := time.Now()
	rows, err := r.db.Pool.Query(ctx, query, meetingKey, models.Strings(names))
	if err != nil {
		observe("select", "sessions", start, err)
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*models.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}

	err = rows.Err()
	observe("select", "sessions", start, err)
	if err != nil {
		return nil, fmt.Errorf("error iterating sessions: %w", err)
	}

	return sessions, nil
}
