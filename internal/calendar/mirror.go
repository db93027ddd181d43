// Package calendar keeps the local meeting and session mirror of the OpenF1 feed in step with
// the feed, and offers a feed-only variant for callers that must not write.
package calendar

import (
	"context"
	"fmt"
	"sync"
	"time"

	"gridpicks/engine/internal/metrics"
	"gridpicks/engine/internal/models"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Calendar is a source of championship meetings and their relevant sessions
type Calendar interface {
	Meetings(ctx context.Context, year int) ([]*models.Meeting, error)
	Sessions(ctx context.Context, meetingKey int) ([]*models.Session, error)
}

// Feed is the part of the OpenF1 client the calendar reads
type Feed interface {
	FetchMeetings(ctx context.Context, year int) ([]models.MeetingInput, error)
	FetchSessions(ctx context.Context, meetingKey int) ([]models.SessionInput, error)
}

// MeetingStore persists meetings
type MeetingStore interface {
	HasSeason(ctx context.Context, year int) (bool, error)
	UpsertMany(ctx context.Context, meetings []*models.Meeting) error
	ListBySeason(ctx context.Context, year int) ([]*models.Meeting, error)
}

// SessionStore persists sessions
type SessionStore interface {
	HasRaceOrSprint(ctx context.Context, meetingKey int) (bool, error)
	UpsertMany(ctx context.Context, sessions []*models.Session) error
	ListByMeeting(ctx context.Context, meetingKey int) ([]*models.Session, error)
	ListQualifying(ctx context.Context, meetingKey int) ([]*models.Session, error)
}

// Mirror copies meetings and sessions from the feed into local storage on demand
type Mirror struct {
	feed     Feed
	meetings MeetingStore
	sessions SessionStore

	// concurrency bounds parallel session syncs in SyncSeason
	concurrency int
	group       singleflight.Group
}

// NewMirror creates a calendar mirror
func NewMirror(feed Feed, meetings MeetingStore, sessions SessionStore) *Mirror {
	return &Mirror{
		feed:        feed,
		meetings:    meetings,
		sessions:    sessions,
		concurrency: 4,
	}
}

// WithConcurrency sets how many meetings SyncSeason syncs at once
func (m *Mirror) WithConcurrency(n int) *Mirror {
	if n > 0 {
		m.concurrency = n
	}
	return m
}

// EnsureMeetingsSynced fetches the season's meetings only if none are stored yet
func (m *Mirror) EnsureMeetingsSynced(ctx context.Context, year int) error {
	ok, err := m.meetings.HasSeason(ctx, year)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	_, err = m.SyncMeetings(ctx, year)
	return err
}

// SyncMeetings fetches the season's championship meetings and upserts them
func (m *Mirror) SyncMeetings(ctx context.Context, year int) (int, error) {
	v, err, _ := m.group.Do(fmt.Sprintf("meetings:%d", year), func() (interface{}, error) {
		start := time.Now()

		inputs, err := m.feed.FetchMeetings(ctx, year)
		if err != nil {
			metrics.RecordSync("meetings", "error", 0, time.Since(start).Seconds())
			return 0, fmt.Errorf("failed to fetch meetings for %d: %w", year, err)
		}

		meetings := championshipMeetings(inputs)
		if err := m.meetings.UpsertMany(ctx, meetings); err != nil {
			metrics.RecordSync("meetings", "error", 0, time.Since(start).Seconds())
			return 0, err
		}

		metrics.RecordSync("meetings", "success", len(meetings), time.Since(start).Seconds())
		log.Info().
			Int("year", year).
			Int("fetched", len(inputs)).
			Int("upserted", len(meetings)).
			Msg("Meetings synced")
		return len(meetings), nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// EnsureSessionsSyncedForMeeting fetches the meeting's sessions only if no race or sprint is stored yet
func (m *Mirror) EnsureSessionsSyncedForMeeting(ctx context.Context, meetingKey int) error {
	ok, err := m.sessions.HasRaceOrSprint(ctx, meetingKey)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	_, err = m.SyncSessionsForMeeting(ctx, meetingKey)
	return err
}

// SyncSessionsForMeeting fetches the meeting's relevant sessions and upserts them
func (m *Mirror) SyncSessionsForMeeting(ctx context.Context, meetingKey int) (int, error) {
	v, err, _ := m.group.Do(fmt.Sprintf("sessions:%d", meetingKey), func() (interface{}, error) {
		start := time.Now()

		inputs, err := m.feed.FetchSessions(ctx, meetingKey)
		if err != nil {
			metrics.RecordSync("sessions", "error", 0, time.Since(start).Seconds())
			return 0, fmt.Errorf("failed to fetch sessions for meeting %d: %w", meetingKey, err)
		}

		sessions := relevantSessions(inputs)
		if err := m.sessions.UpsertMany(ctx, sessions); err != nil {
			metrics.RecordSync("sessions", "error", 0, time.Since(start).Seconds())
			return 0, err
		}

		metrics.RecordSync("sessions", "success", len(sessions), time.Since(start).Seconds())
		log.Debug().
			Int("meeting_key", meetingKey).
			Int("upserted", len(sessions)).
			Msg("Sessions synced")
		return len(sessions), nil
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// SyncSeason refreshes a season's meetings and then the sessions of every meeting
func (m *Mirror) SyncSeason(ctx context.Context, year int) (meetings, sessions int, err error) {
	if _, err := m.SyncMeetings(ctx, year); err != nil {
		return 0, 0, err
	}

	stored, err := m.meetings.ListBySeason(ctx, year)
	if err != nil {
		return 0, 0, err
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.concurrency)

	for _, meeting := range stored {
		key := meeting.MeetingKey
		g.Go(func() error {
			n, err := m.SyncSessionsForMeeting(gctx, key)
			if err != nil {
				return err
			}
			mu.Lock()
			sessions += n
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return len(stored), sessions, err
	}

	log.Info().
		Int("year", year).
		Int("meetings", len(stored)).
		Int("sessions", sessions).
		Msg("Season synced")
	return len(stored), sessions, nil
}

// Meetings implements Calendar over the local mirror
func (m *Mirror) Meetings(ctx context.Context, year int) ([]*models.Meeting, error) {
	if err := m.EnsureMeetingsSynced(ctx, year); err != nil {
		return nil, err
	}
	return m.meetings.ListBySeason(ctx, year)
}

// Sessions implements Calendar over the local mirror
func (m *Mirror) Sessions(ctx context.Context, meetingKey int) ([]*models.Session, error) {
	if err := m.EnsureSessionsSyncedForMeeting(ctx, meetingKey); err != nil {
		return nil, err
	}
	return m.sessions.ListByMeeting(ctx, meetingKey)
}

// QualifyingForMeeting returns the meeting's Qualifying and Sprint Qualifying sessions
func (m *Mirror) QualifyingForMeeting(ctx context.Context, meetingKey int) ([]*models.Session, error) {
	if err := m.EnsureSessionsSyncedForMeeting(ctx, meetingKey); err != nil {
		return nil, err
	}
	return m.sessions.ListQualifying(ctx, meetingKey)
}

func championshipMeetings(inputs []models.MeetingInput) []*models.Meeting {
	meetings := make([]*models.Meeting, 0, len(inputs))
	for i := range inputs {
		in := &inputs[i]
		if !in.IsChampionshipRound() {
			continue
		}
		meeting, err := in.ToMeeting()
		if err != nil {
			log.Warn().Err(err).Int("meeting_key", in.MeetingKey).Msg("Skipping malformed meeting")
			metrics.RecordError("calendar", "malformed_meeting")
			continue
		}
		meetings = append(meetings, meeting)
	}
	return meetings
}

func relevantSessions(inputs []models.SessionInput) []*models.Session {
	sessions := make([]*models.Session, 0, len(inputs))
	for i := range inputs {
		in := &inputs[i]
		if !in.IsRelevant() {
			continue
		}
		session, err := in.ToSession()
		if err != nil {
			log.Warn().Err(err).Int("session_key", in.SessionKey).Msg("Skipping malformed session")
			metrics.RecordError("calendar", "malformed_session")
			continue
		}
		sessions = append(sessions, session)
	}
	return sessions
}
