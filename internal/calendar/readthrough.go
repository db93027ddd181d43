package calendar

import (
	"context"
	"fmt"
	"sort"
	"time"

	"gridpicks/engine/internal/cache"
	"gridpicks/engine/internal/models"

	"github.com/rs/zerolog/log"
)

// ReadThrough serves the calendar straight from the feed without touching the mirror.
// Responses are kept in the cache for ttl.
type ReadThrough struct {
	feed  Feed
	cache cache.Cache
	ttl   time.Duration
}

// NewReadThrough creates a feed-only calendar. A nil cache disables caching.
func NewReadThrough(feed Feed, c cache.Cache, ttl time.Duration) *ReadThrough {
	if c == nil {
		c = cache.Nop{}
	}
	return &ReadThrough{feed: feed, cache: c, ttl: ttl}
}

// Meetings implements Calendar
func (r *ReadThrough) Meetings(ctx context.Context, year int) ([]*models.Meeting, error) {
	key := cache.Key("meetings", year)

	var meetings []*models.Meeting
	if r.lookup(ctx, key, &meetings) {
		return meetings, nil
	}

	inputs, err := r.feed.FetchMeetings(ctx, year)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch meetings for %d: %w", year, err)
	}

	meetings = championshipMeetings(inputs)
	sort.SliceStable(meetings, func(i, j int) bool {
		if !meetings[i].DateStart.Equal(meetings[j].DateStart) {
			return meetings[i].DateStart.Before(meetings[j].DateStart)
		}
		return meetings[i].MeetingKey < meetings[j].MeetingKey
	})

	r.store(ctx, key, meetings)
	return meetings, nil
}

// Sessions implements Calendar
func (r *ReadThrough) Sessions(ctx context.Context, meetingKey int) ([]*models.Session, error) {
	key := cache.Key("sessions", meetingKey)

	var sessions []*models.Session
	if r.lookup(ctx, key, &sessions) {
		return sessions, nil
	}

	inputs, err := r.feed.FetchSessions(ctx, meetingKey)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch sessions for meeting %d: %w", meetingKey, err)
	}

	sessions = relevantSessions(inputs)
	sort.SliceStable(sessions, func(i, j int) bool {
		if !sessions[i].DateStart.Equal(sessions[j].DateStart) {
			return sessions[i].DateStart.Before(sessions[j].DateStart)
		}
		return sessions[i].SessionKey < sessions[j].SessionKey
	})

	r.store(ctx, key, sessions)
	return sessions, nil
}

// lookup reports a hit; cache failures count as misses
func (r *ReadThrough) lookup(ctx context.Context, key string, dst any) bool {
	found, err := r.cache.GetJSON(ctx, key, dst)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Calendar cache read failed")
		return false
	}
	return found
}

func (r *ReadThrough) store(ctx context.Context, key string, value any) {
	if err := r.cache.SetJSON(ctx, key, value, r.ttl); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Calendar cache write failed")
	}
}
