package models

import (
	"fmt"
	"time"
)

// SessionName is the feed's session_name vocabulary
type SessionName string

const (
	SessionPractice1        SessionName = "Practice 1"
	SessionPractice2        SessionName = "Practice 2"
	SessionPractice3        SessionName = "Practice 3"
	SessionQualifying       SessionName = "Qualifying"
	SessionSprintQualifying SessionName = "Sprint Qualifying"
	SessionSprint           SessionName = "Sprint"
	SessionRace             SessionName = "Race"
)

// RelevantSessionNames are the session kinds mirrored locally
var RelevantSessionNames = []SessionName{
	SessionRace,
	SessionSprint,
	SessionQualifying,
	SessionSprintQualifying,
}

// RaceOrSprintNames are the session kinds a prediction can target
var RaceOrSprintNames = []SessionName{SessionRace, SessionSprint}

// QualifyingNames are the grid-deciding session kinds
var QualifyingNames = []SessionName{SessionQualifying, SessionSprintQualifying}

// IsRelevant reports whether the session kind is mirrored locally
func (n SessionName) IsRelevant() bool {
	for _, name := range RelevantSessionNames {
		if n == name {
			return true
		}
	}
	return false
}

// IsRaceOrSprint reports whether predictions can target this kind
func (n SessionName) IsRaceOrSprint() bool {
	return n == SessionRace || n == SessionSprint
}

// GridSession returns the qualifying kind that sets the starting grid for n
func (n SessionName) GridSession() (SessionName, bool) {
	switch n {
	case SessionRace:
		return SessionQualifying, true
	case SessionSprint:
		return SessionSprintQualifying, true
	default:
		return "", false
	}
}

// Strings converts names for use as a query parameter
func Strings(names []SessionName) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	return out
}

// Session represents one timed activity within a meeting
type Session struct {
	ID               int         `db:"id" json:"id"`
	SessionKey       int         `db:"session_key" json:"session_key"`
	MeetingKey       int         `db:"meeting_key" json:"meeting_key"`
	SessionName      SessionName `db:"session_name" json:"session_name"`
	SessionType      string      `db:"session_type" json:"session_type"`
	DateStart        time.Time   `db:"date_start" json:"date_start"`
	DateEnd          time.Time   `db:"date_end" json:"date_end"`
	CircuitKey       int         `db:"circuit_key" json:"circuit_key"`
	CircuitShortName string      `db:"circuit_short_name" json:"circuit_short_name"`
	CountryKey       int         `db:"country_key" json:"country_key"`
	CountryCode      string      `db:"country_code" json:"country_code"`
	CountryName      string      `db:"country_name" json:"country_name"`
	Location         string      `db:"location" json:"location"`
	GMTOffset        string      `db:"gmt_offset" json:"gmt_offset"`
	Year             int         `db:"year" json:"year"`
	CreatedAt        time.Time   `db:"created_at" json:"-"`
	UpdatedAt        time.Time   `db:"updated_at" json:"-"`
}

// SessionInput is a session as returned by the feed's sessions endpoint
type SessionInput struct {
	SessionKey       int    `json:"session_key"`
	SessionType      string `json:"session_type"`
	SessionName      string `json:"session_name"`
	DateStart        string `json:"date_start"`
	DateEnd          string `json:"date_end"`
	MeetingKey       int    `json:"meeting_key"`
	CircuitKey       int    `json:"circuit_key"`
	CircuitShortName string `json:"circuit_short_name"`
	CountryKey       int    `json:"country_key"`
	CountryCode      string `json:"country_code"`
	CountryName      string `json:"country_name"`
	Location         string `json:"location"`
	GMTOffset        string `json:"gmt_offset"`
	Year             int    `json:"year"`
}

// IsRelevant reports whether the session should be mirrored
func (si *SessionInput) IsRelevant() bool {
	return SessionName(si.SessionName).IsRelevant()
}

// ToSession converts SessionInput (from API) to Session model
func (si *SessionInput) ToSession() (*Session, error) {
	start, err := parseFeedTime(si.DateStart)
	if err != nil {
		return nil, fmt.Errorf("session %d: invalid date_start: %w", si.SessionKey, err)
	}
	end, err := parseFeedTime(si.DateEnd)
	if err != nil {
		return nil, fmt.Errorf("session %d: invalid date_end: %w", si.SessionKey, err)
	}

	return &Session{
		SessionKey:       si.SessionKey,
		MeetingKey:       si.MeetingKey,
		SessionName:      SessionName(si.SessionName),
		SessionType:      si.SessionType,
		DateStart:        start,
		DateEnd:          end,
		CircuitKey:       si.CircuitKey,
		CircuitShortName: si.CircuitShortName,
		CountryKey:       si.CountryKey,
		CountryCode:      si.CountryCode,
		CountryName:      si.CountryName,
		Location:         si.Location,
		GMTOffset:        si.GMTOffset,
		Year:             si.Year,
	}, nil
}

// HasStarted returns true if the session start is at or before now
func (s *Session) HasStarted(now time.Time) bool {
	return !s.DateStart.After(now)
}

// HasFinished returns true if the session ended strictly before now
func (s *Session) HasFinished(now time.Time) bool {
	return s.DateEnd.Before(now)
}
