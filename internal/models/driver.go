package models

import "sort"

// Driver is a driver entry from the feed's drivers endpoint
type Driver struct {
	DriverNumber  int    `json:"driver_number"`
	BroadcastName string `json:"broadcast_name"`
	FullName      string `json:"full_name"`
	NameAcronym   string `json:"name_acronym"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	TeamName      string `json:"team_name"`
	TeamColour    string `json:"team_colour"`
	HeadshotURL   string `json:"headshot_url,omitempty"`
	CountryCode   string `json:"country_code,omitempty"`
	SessionKey    int    `json:"session_key"`
	MeetingKey    int    `json:"meeting_key"`
}

// Team is a constructor derived from a driver list
type Team struct {
	Name   string `json:"name"`
	Colour string `json:"colour"`
}

// SortDrivers orders drivers by driver number
func SortDrivers(drivers []Driver) {
	sort.SliceStable(drivers, func(i, j int) bool {
		return drivers[i].DriverNumber < drivers[j].DriverNumber
	})
}

// UniqueDrivers keeps the first entry per driver number, sorted by number.
// The feed returns one row per driver per session when queried by meeting.
func UniqueDrivers(drivers []Driver) []Driver {
	seen := make(map[int]struct{}, len(drivers))
	out := make([]Driver, 0, len(drivers))
	for _, d := range drivers {
		if _, ok := seen[d.DriverNumber]; ok {
			continue
		}
		seen[d.DriverNumber] = struct{}{}
		out = append(out, d)
	}
	SortDrivers(out)
	return out
}

// TeamsFromDrivers builds the unique team list, sorted by name
func TeamsFromDrivers(drivers []Driver) []Team {
	colours := make(map[string]string)
	for _, d := range drivers {
		if _, ok := colours[d.TeamName]; !ok {
			colours[d.TeamName] = d.TeamColour
		}
	}

	teams := make([]Team, 0, len(colours))
	for name, colour := range colours {
		teams = append(teams, Team{Name: name, Colour: colour})
	}
	sort.Slice(teams, func(i, j int) bool { return teams[i].Name < teams[j].Name })
	return teams
}
