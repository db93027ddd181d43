package resolver

import (
	"sort"
	"time"

	"gridpicks/engine/internal/models"
)

// NextSession picks the race or sprint with the earliest start at or after now.
// Ties go to the lower session key.
func NextSession(sessions []*models.Session, now time.Time) *models.Session {
	var best *models.Session
	for _, s := range sessions {
		if !s.SessionName.IsRaceOrSprint() || s.DateStart.Before(now) {
			continue
		}
		if best == nil ||
			s.DateStart.Before(best.DateStart) ||
			(s.DateStart.Equal(best.DateStart) && s.SessionKey < best.SessionKey) {
			best = s
		}
	}
	return best
}

// LastSession picks the race or sprint with the latest end strictly before now.
// Ties go to the lower session key.
func LastSession(sessions []*models.Session, now time.Time) *models.Session {
	var best *models.Session
	for _, s := range sessions {
		if !s.SessionName.IsRaceOrSprint() || !s.HasFinished(now) {
			continue
		}
		if best == nil ||
			s.DateEnd.After(best.DateEnd) ||
			(s.DateEnd.Equal(best.DateEnd) && s.SessionKey < best.SessionKey) {
			best = s
		}
	}
	return best
}

// LatestRaceOrSprint picks the race or sprint that starts last, regardless of now
func LatestRaceOrSprint(sessions []*models.Session) *models.Session {
	var best *models.Session
	for _, s := range sessions {
		if !s.SessionName.IsRaceOrSprint() {
			continue
		}
		if best == nil ||
			s.DateStart.After(best.DateStart) ||
			(s.DateStart.Equal(best.DateStart) && s.SessionKey < best.SessionKey) {
			best = s
		}
	}
	return best
}

// GridSessionFor returns the qualifying session among one meeting's sessions that sets
// the grid for target, or nil
func GridSessionFor(sessions []*models.Session, target *models.Session) *models.Session {
	want, ok := target.SessionName.GridSession()
	if !ok {
		return nil
	}

	var best *models.Session
	for _, s := range sessions {
		if s.SessionName != want {
			continue
		}
		if best == nil || s.DateStart.Before(best.DateStart) {
			best = s
		}
	}
	return best
}

// PreferredQualifying returns Qualifying if present, otherwise Sprint Qualifying
func PreferredQualifying(sessions []*models.Session) *models.Session {
	var sprint *models.Session
	for _, s := range sessions {
		switch s.SessionName {
		case models.SessionQualifying:
			return s
		case models.SessionSprintQualifying:
			if sprint == nil {
				sprint = s
			}
		}
	}
	return sprint
}

// upcomingMeetings returns meetings not yet over, soonest first
func upcomingMeetings(meetings []*models.Meeting, now time.Time) []*models.Meeting {
	out := make([]*models.Meeting, 0, len(meetings))
	for _, m := range meetings {
		if !m.IsOver(now) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].DateStart.Equal(out[j].DateStart) {
			return out[i].DateStart.Before(out[j].DateStart)
		}
		return out[i].MeetingKey < out[j].MeetingKey
	})
	return out
}

// startedMeetings returns meetings that have begun, most recent first
func startedMeetings(meetings []*models.Meeting, now time.Time) []*models.Meeting {
	out := make([]*models.Meeting, 0, len(meetings))
	for _, m := range meetings {
		if m.DateStart.Before(now) {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].DateStart.Equal(out[j].DateStart) {
			return out[i].DateStart.After(out[j].DateStart)
		}
		return out[i].MeetingKey < out[j].MeetingKey
	})
	return out
}
