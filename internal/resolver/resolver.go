// Package resolver finds the race and sprint sessions that matter right now:
// the next one to predict, the last one with a result, and the season's high-water mark.
package resolver

import (
	"context"
	"fmt"
	"time"

	"gridpicks/engine/internal/calendar"
	"gridpicks/engine/internal/clock"
	"gridpicks/engine/internal/models"

	"github.com/rs/zerolog/log"
)

// Resolver resolves events against a calendar and a clock
type Resolver struct {
	cal   calendar.Calendar
	clock clock.Clock
}

// New creates a resolver
func New(cal calendar.Calendar, c clock.Clock) *Resolver {
	return &Resolver{cal: cal, clock: c}
}

// Now returns the resolver's notion of the current time
func (r *Resolver) Now() time.Time {
	return r.clock.Now()
}

// NextEvent returns the soonest race or sprint that has not started, with its meeting.
// It returns nil when the current season has none left.
func (r *Resolver) NextEvent(ctx context.Context) (*models.NextEvent, error) {
	now := r.clock.Now()
	year := now.Year()

	meetings, err := r.cal.Meetings(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve next event: %w", err)
	}

	for _, meeting := range upcomingMeetings(meetings, now) {
		sessions, err := r.cal.Sessions(ctx, meeting.MeetingKey)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve next event: %w", err)
		}
		if s := NextSession(sessions, now); s != nil {
			return &models.NextEvent{Session: s, Meeting: meeting}, nil
		}
	}

	log.Debug().Int("year", year).Msg("No upcoming race or sprint")
	return nil, nil
}

// LastEvent returns the most recently finished race or sprint, with its meeting.
// The previous season is searched when the current one has none.
func (r *Resolver) LastEvent(ctx context.Context) (*models.NextEvent, error) {
	now := r.clock.Now()

	for _, year := range []int{now.Year(), now.Year() - 1} {
		ev, err := r.lastEventIn(ctx, year, now)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve last event: %w", err)
		}
		if ev != nil {
			return ev, nil
		}
	}
	return nil, nil
}

func (r *Resolver) lastEventIn(ctx context.Context, year int, now time.Time) (*models.NextEvent, error) {
	meetings, err := r.cal.Meetings(ctx, year)
	if err != nil {
		return nil, err
	}

	for _, meeting := range startedMeetings(meetings, now) {
		sessions, err := r.cal.Sessions(ctx, meeting.MeetingKey)
		if err != nil {
			return nil, err
		}
		if s := LastSession(sessions, now); s != nil {
			return &models.NextEvent{Session: s, Meeting: meeting}, nil
		}
	}
	return nil, nil
}

// NextEventOrNone is NextEvent for callers that show nothing rather than fail
func (r *Resolver) NextEventOrNone(ctx context.Context) *models.NextEvent {
	ev, err := r.NextEvent(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Next event unavailable")
		return nil
	}
	return ev
}

// LastEventOrNone is LastEvent for callers that show nothing rather than fail
func (r *Resolver) LastEventOrNone(ctx context.Context) *models.NextEvent {
	ev, err := r.LastEvent(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Last event unavailable")
		return nil
	}
	return ev
}

// HighWaterMark returns the end of the season's last finished race or sprint.
// The zero time means nothing in the season has finished yet.
func (r *Resolver) HighWaterMark(ctx context.Context, year int) (time.Time, error) {
	ev, err := r.lastEventIn(ctx, year, r.clock.Now())
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to resolve high-water mark for %d: %w", year, err)
	}
	if ev == nil {
		return time.Time{}, nil
	}
	return ev.Session.DateEnd, nil
}

// ScoringSession returns the session a prediction is scored against once it has finished,
// or nil. A recorded session key selects that race or sprint; zero falls back to the
// meeting's last finished race or sprint.
func (r *Resolver) ScoringSession(ctx context.Context, meetingKey, sessionKey int) (*models.Session, error) {
	sessions, err := r.cal.Sessions(ctx, meetingKey)
	if err != nil {
		return nil, err
	}

	now := r.clock.Now()
	if sessionKey == 0 {
		return LastSession(sessions, now), nil
	}
	for _, s := range sessions {
		if s.SessionKey == sessionKey && s.SessionName.IsRaceOrSprint() && s.HasFinished(now) {
			return s, nil
		}
	}
	return nil, nil
}

// TargetSession returns the race or sprint a prediction for the meeting would be judged
// against right now: the next one to start, or the last one once all have started.
func (r *Resolver) TargetSession(ctx context.Context, meetingKey int) (*models.Session, error) {
	sessions, err := r.cal.Sessions(ctx, meetingKey)
	if err != nil {
		return nil, err
	}
	if s := NextSession(sessions, r.clock.Now()); s != nil {
		return s, nil
	}
	return LatestRaceOrSprint(sessions), nil
}

// MeetingSessions resolves the session keys a profile shows next to a prediction
func (r *Resolver) MeetingSessions(ctx context.Context, meeting *models.Meeting) (target, qualifying *models.Session, err error) {
	sessions, err := r.cal.Sessions(ctx, meeting.MeetingKey)
	if err != nil {
		return nil, nil, err
	}

	now := r.clock.Now()
	if meeting.IsOver(now) {
		target = LastSession(sessions, now)
	} else {
		target = NextSession(sessions, now)
	}
	return target, PreferredQualifying(sessions), nil
}
