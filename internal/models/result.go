package models

import "sort"

// ResultRow is one classified finisher from the feed's session_result endpoint
type ResultRow struct {
	Position     int  `json:"position"`
	DriverNumber int  `json:"driver_number"`
	SessionKey   int  `json:"session_key"`
	MeetingKey   int  `json:"meeting_key"`
	DNF          bool `json:"dnf"`
	DNS          bool `json:"dns"`
	DSQ          bool `json:"dsq"`
}

// GridPosition is one row from the feed's starting_grid endpoint
type GridPosition struct {
	Position     int     `json:"position"`
	DriverNumber int     `json:"driver_number"`
	SessionKey   int     `json:"session_key"`
	MeetingKey   int     `json:"meeting_key"`
	LapDuration  float64 `json:"lap_duration,omitempty"`
}

// FinishingOrder returns the top-10 driver numbers by position.
// ok is false until at least ten classified rows exist.
func FinishingOrder(rows []ResultRow) (order []int, ok bool) {
	if len(rows) < PredictedPositions {
		return nil, false
	}

	sorted := make([]ResultRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Position < sorted[j].Position })

	order = make([]int, PredictedPositions)
	for i := 0; i < PredictedPositions; i++ {
		order[i] = sorted[i].DriverNumber
	}
	return order, true
}
