package models

import (
	"database/sql"

	"github.com/google/uuid"
)

// Profile is the public face of a user
type Profile struct {
	ID        uuid.UUID      `db:"id"`
	Username  sql.NullString `db:"username"`
	AvatarURL sql.NullString `db:"avatar_url"`
}

// DisplayName returns the handle, or "Unknown" if it is not set
func (p *Profile) DisplayName() string {
	if p.Username.Valid && p.Username.String != "" {
		return p.Username.String
	}
	return "Unknown"
}
