package models

import (
	"time"

	"github.com/google/uuid"
)

// SeasonScore is the cached season total for one user
type SeasonScore struct {
	UserID     uuid.UUID `db:"user_id"`
	SeasonYear int       `db:"season_year"`
	Points     int       `db:"points"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// FreshAsOf reports whether the row was written at or after the high-water mark
func (s *SeasonScore) FreshAsOf(highWaterMark time.Time) bool {
	return !s.UpdatedAt.Before(highWaterMark)
}
