package models

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateDrivers(t *testing.T) {
	valid := []int{1, 11, 16, 55, 44, 63, 4, 81, 14, 18}

	drivers, err := ValidateDrivers(valid)
	require.NoError(t, err)
	assert.Equal(t, 1, drivers[0])
	assert.Equal(t, 18, drivers[9])

	tests := []struct {
		name    string
		drivers []int
	}{
		{"too few", []int{1, 2, 3}},
		{"too many", []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}},
		{"duplicate", []int{1, 11, 16, 55, 44, 63, 4, 81, 14, 1}},
		{"zero driver", []int{0, 11, 16, 55, 44, 63, 4, 81, 14, 18}},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateDrivers(tt.drivers)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidPrediction))
		})
	}
}

func TestPredictionInput_ToPrediction(t *testing.T) {
	userID := uuid.New()
	in := PredictionInput{Drivers: []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}}

	p, err := in.ToPrediction(userID, 1229)
	require.NoError(t, err)
	assert.Equal(t, userID, p.UserID)
	assert.Equal(t, 1229, p.MeetingKey)
	assert.False(t, p.IsScored())

	_, err = in.ToPrediction(userID, 0)
	assert.ErrorIs(t, err, ErrInvalidPrediction)
}

func TestFinishingOrder(t *testing.T) {
	rows := []ResultRow{
		{Position: 3, DriverNumber: 16}, {Position: 1, DriverNumber: 1},
		{Position: 2, DriverNumber: 4}, {Position: 10, DriverNumber: 22},
		{Position: 5, DriverNumber: 44}, {Position: 4, DriverNumber: 81},
		{Position: 6, DriverNumber: 63}, {Position: 8, DriverNumber: 14},
		{Position: 7, DriverNumber: 55}, {Position: 9, DriverNumber: 18},
	}

	order, ok := FinishingOrder(rows)
	require.True(t, ok)
	assert.Equal(t, []int{1, 4, 16, 81, 44, 63, 55, 14, 18, 22}, order)

	_, ok = FinishingOrder(rows[:9])
	assert.False(t, ok, "fewer than ten rows is not a result")
}

func TestMeetingInput_ToMeeting(t *testing.T) {
	flag := "https://example.test/flag.png"
	in := MeetingInput{
		MeetingKey:  1229,
		MeetingName: "Bahrain Grand Prix",
		CountryFlag: &flag,
		DateStart:   "2024-02-29T11:30:00+00:00",
		DateEnd:     "2024-03-02T17:00:00+00:00",
		Year:        2024,
	}
	require.True(t, in.IsChampionshipRound())

	m, err := in.ToMeeting()
	require.NoError(t, err)
	assert.Equal(t, flag, m.CountryFlag)
	assert.Equal(t, "", m.CircuitType)
	assert.Equal(t, time.Date(2024, 3, 2, 17, 0, 0, 0, time.UTC), m.DateEnd)

	preseason := MeetingInput{MeetingName: "Pre-Season Testing"}
	assert.False(t, preseason.IsChampionshipRound())

	bad := in
	bad.DateStart = ""
	_, err = bad.ToMeeting()
	assert.Error(t, err)
}

func TestSessionName_GridSession(t *testing.T) {
	q, ok := SessionRace.GridSession()
	require.True(t, ok)
	assert.Equal(t, SessionQualifying, q)

	q, ok = SessionSprint.GridSession()
	require.True(t, ok)
	assert.Equal(t, SessionSprintQualifying, q)

	_, ok = SessionPractice1.GridSession()
	assert.False(t, ok)

	assert.True(t, SessionSprintQualifying.IsRelevant())
	assert.False(t, SessionPractice2.IsRelevant())
}

func TestUniqueDrivers(t *testing.T) {
	drivers := []Driver{
		{DriverNumber: 44, TeamName: "Mercedes", TeamColour: "27F4D2"},
		{DriverNumber: 1, TeamName: "Red Bull Racing", TeamColour: "3671C6"},
		{DriverNumber: 44, TeamName: "Mercedes", TeamColour: "27F4D2"},
		{DriverNumber: 63, TeamName: "Mercedes", TeamColour: "27F4D2"},
	}

	unique := UniqueDrivers(drivers)
	require.Len(t, unique, 3)
	assert.Equal(t, 1, unique[0].DriverNumber)
	assert.Equal(t, 63, unique[2].DriverNumber)

	teams := TeamsFromDrivers(drivers)
	assert.Equal(t, []Team{
		{Name: "Mercedes", Colour: "27F4D2"},
		{Name: "Red Bull Racing", Colour: "3671C6"},
	}, teams)
}
