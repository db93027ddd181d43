package models

import (
	"fmt"
	"strings"
	"time"
)

// championshipMarker identifies championship race weekends in the feed's meeting names.
// Testing and exhibition events never carry it.
const championshipMarker = "Grand Prix"

// Meeting represents one race weekend
type Meeting struct {
	ID                  int       `db:"id" json:"id"`
	MeetingKey          int       `db:"meeting_key" json:"meeting_key"`
	MeetingName         string    `db:"meeting_name" json:"meeting_name"`
	MeetingOfficialName string    `db:"meeting_official_name" json:"meeting_official_name"`
	Location            string    `db:"location" json:"location"`
	CountryKey          int       `db:"country_key" json:"country_key"`
	CountryCode         string    `db:"country_code" json:"country_code"`
	CountryName         string    `db:"country_name" json:"country_name"`
	CountryFlag         string    `db:"country_flag" json:"country_flag,omitempty"`
	CircuitKey          int       `db:"circuit_key" json:"circuit_key"`
	CircuitShortName    string    `db:"circuit_short_name" json:"circuit_short_name"`
	CircuitType         string    `db:"circuit_type" json:"circuit_type,omitempty"`
	CircuitImage        string    `db:"circuit_image" json:"circuit_image,omitempty"`
	GMTOffset           string    `db:"gmt_offset" json:"gmt_offset"`
	DateStart           time.Time `db:"date_start" json:"date_start"`
	DateEnd             time.Time `db:"date_end" json:"date_end"`
	Year                int       `db:"year" json:"year"`
	CreatedAt           time.Time `db:"created_at" json:"-"`
	UpdatedAt           time.Time `db:"updated_at" json:"-"`
}

// MeetingInput is a meeting as returned by the feed's meetings endpoint
type MeetingInput struct {
	MeetingKey          int     `json:"meeting_key"`
	MeetingName         string  `json:"meeting_name"`
	MeetingOfficialName string  `json:"meeting_official_name"`
	Location            string  `json:"location"`
	CountryKey          int     `json:"country_key"`
	CountryCode         string  `json:"country_code"`
	CountryName         string  `json:"country_name"`
	CountryFlag         *string `json:"country_flag,omitempty"`
	CircuitKey          int     `json:"circuit_key"`
	CircuitShortName    string  `json:"circuit_short_name"`
	CircuitType         *string `json:"circuit_type,omitempty"`
	CircuitImage        *string `json:"circuit_image,omitempty"`
	GMTOffset           string  `json:"gmt_offset"`
	DateStart           string  `json:"date_start"` // ISO 8601
	DateEnd             string  `json:"date_end"`
	Year                int     `json:"year"`
}

// IsChampionshipRound reports whether the meeting is a championship race weekend
func (mi *MeetingInput) IsChampionshipRound() bool {
	return strings.Contains(mi.MeetingName, championshipMarker)
}

// ToMeeting converts MeetingInput (from API) to Meeting model
func (mi *MeetingInput) ToMeeting() (*Meeting, error) {
	start, err := parseFeedTime(mi.DateStart)
	if err != nil {
		return nil, fmt.Errorf("meeting %d: invalid date_start: %w", mi.MeetingKey, err)
	}
	end, err := parseFeedTime(mi.DateEnd)
	if err != nil {
		return nil, fmt.Errorf("meeting %d: invalid date_end: %w", mi.MeetingKey, err)
	}

	return &Meeting{
		MeetingKey:          mi.MeetingKey,
		MeetingName:         mi.MeetingName,
		MeetingOfficialName: mi.MeetingOfficialName,
		Location:            mi.Location,
		CountryKey:          mi.CountryKey,
		CountryCode:         mi.CountryCode,
		CountryName:         mi.CountryName,
		CountryFlag:         deref(mi.CountryFlag),
		CircuitKey:          mi.CircuitKey,
		CircuitShortName:    mi.CircuitShortName,
		CircuitType:         deref(mi.CircuitType),
		CircuitImage:        deref(mi.CircuitImage),
		GMTOffset:           mi.GMTOffset,
		DateStart:           start,
		DateEnd:             end,
		Year:                mi.Year,
	}, nil
}

// HasStarted returns true once the first session of the weekend has begun
func (m *Meeting) HasStarted(now time.Time) bool {
	return !m.DateStart.After(now)
}

// IsOver returns true once the weekend has ended
func (m *Meeting) IsOver(now time.Time) bool {
	return m.DateEnd.Before(now)
}

// NextEvent pairs a race or sprint session with its meeting
type NextEvent struct {
	Session *Session `json:"session"`
	Meeting *Meeting `json:"meeting"`
}

func parseFeedTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
