// Package gate decides whether predictions for a session are currently accepted.
package gate

import (
	"context"
	"errors"
	"time"

	"gridpicks/engine/internal/calendar"
	"gridpicks/engine/internal/clock"
	"gridpicks/engine/internal/metrics"
	"gridpicks/engine/internal/models"
	"gridpicks/engine/internal/resolver"

	"github.com/rs/zerolog/log"
)

// Reason explains a closed gate
type Reason string

const (
	ReasonStarted            Reason = "race has started"
	ReasonQualifyingNotFound Reason = "qualifying session not found"
	ReasonQualifyingPending  Reason = "qualifying not yet happened"
	ReasonGridUnavailable    Reason = "grid data not available"

	// ReasonGridCheckFailed means the feed could not be asked, not that the grid is missing
	ReasonGridCheckFailed Reason = "grid check failed"
)

// Outcome is either Open or Closed with a reason
type Outcome struct {
	Open   bool   `json:"open"`
	Reason Reason `json:"reason,omitempty"`
}

// Opened is the open outcome
func Opened() Outcome { return Outcome{Open: true} }

// Closed is a closed outcome with reason r
func Closed(r Reason) Outcome { return Outcome{Reason: r} }

func (o Outcome) String() string {
	if o.Open {
		return "open"
	}
	return "closed: " + string(o.Reason)
}

// GridFeed reports published starting grids
type GridFeed interface {
	FetchStartingGrid(ctx context.Context, sessionKey int) ([]models.GridPosition, error)
}

// Gate evaluates the availability rules
type Gate struct {
	cal   calendar.Calendar
	grid  GridFeed
	clock clock.Clock
}

// New creates a gate
func New(cal calendar.Calendar, grid GridFeed, c clock.Clock) *Gate {
	return &Gate{cal: cal, grid: grid, clock: c}
}

// evaluation carries state between guards
type evaluation struct {
	session    *models.Session
	meetingKey int
	now        time.Time
	qualifying *models.Session
}

// guard returns a closing reason, or "" to pass to the next guard
type guard func(g *Gate, ctx context.Context, ev *evaluation) (Reason, error)

// guards run in order; the first to close wins
var guards = []guard{
	(*Gate).notStarted,
	(*Gate).qualifyingExists,
	(*Gate).qualifyingFinished,
	(*Gate).gridPublished,
}

// CanMakePrediction decides whether predictions for session are open right now
func (g *Gate) CanMakePrediction(ctx context.Context, session *models.Session, meetingKey int) (Outcome, error) {
	if session == nil {
		return Outcome{}, errors.New("gate: session is required")
	}

	ev := &evaluation{session: session, meetingKey: meetingKey, now: g.clock.Now()}
	for _, check := range guards {
		reason, err := check(g, ctx, ev)
		if err != nil {
			return Outcome{}, err
		}
		if reason != "" {
			metrics.RecordGateOutcome(string(reason))
			log.Debug().
				Int("session_key", session.SessionKey).
				Int("meeting_key", meetingKey).
				Str("reason", string(reason)).
				Msg("Predictions closed")
			return Closed(reason), nil
		}
	}

	metrics.RecordGateOutcome("open")
	return Opened(), nil
}

func (g *Gate) notStarted(_ context.Context, ev *evaluation) (Reason, error) {
	if ev.session.HasStarted(ev.now) {
		return ReasonStarted, nil
	}
	return "", nil
}

func (g *Gate) qualifyingExists(ctx context.Context, ev *evaluation) (Reason, error) {
	sessions, err := g.cal.Sessions(ctx, ev.meetingKey)
	if err != nil {
		return "", err
	}
	ev.qualifying = resolver.GridSessionFor(sessions, ev.session)
	if ev.qualifying == nil {
		return ReasonQualifyingNotFound, nil
	}
	return "", nil
}

func (g *Gate) qualifyingFinished(_ context.Context, ev *evaluation) (Reason, error) {
	if ev.qualifying.DateEnd.After(ev.now) {
		return ReasonQualifyingPending, nil
	}
	return "", nil
}

func (g *Gate) gridPublished(ctx context.Context, ev *evaluation) (Reason, error) {
	grid, err := g.grid.FetchStartingGrid(ctx, ev.qualifying.SessionKey)
	if err != nil {
		log.Warn().Err(err).Int("session_key", ev.qualifying.SessionKey).Msg("Starting grid check failed")
		metrics.RecordError("gate", "grid_fetch")
		return ReasonGridCheckFailed, nil
	}
	if len(grid) == 0 {
		return ReasonGridUnavailable, nil
	}
	return "", nil
}
