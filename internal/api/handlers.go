package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"gridpicks/engine/internal/cache"
	"gridpicks/engine/internal/client"
	"gridpicks/engine/internal/clock"
	"gridpicks/engine/internal/gate"
	"gridpicks/engine/internal/models"
	"gridpicks/engine/internal/predictions"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// statusFor maps an internal error onto an HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, client.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *server) fail(w http.ResponseWriter, r *http.Request, err error, message string) {
	status := statusFor(err)
	zerolog.Ctx(r.Context()).Error().Err(err).Int("status", status).Msg(message)
	writeError(w, r, status, message)
}

// health fails only on the database; a broken cache is reported but still serves
func (s *server) health(w http.ResponseWriter, r *http.Request) {
	if s.Health != nil {
		if err := s.Health(r.Context()); err != nil {
			writeJSON(w, r, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy", "error": err.Error()})
			return
		}
	}

	body := map[string]string{"status": "healthy"}
	if s.CacheHealth != nil {
		body["cache"] = "ok"
		if err := s.CacheHealth(r.Context()); err != nil {
			zerolog.Ctx(r.Context()).Warn().Err(err).Msg("Cache health check failed")
			body["cache"] = "degraded"
		}
	}
	writeJSON(w, r, http.StatusOK, body)
}

type driversResponse struct {
	Drivers []models.Driver `json:"drivers"`
}

// drivers lists the drivers of a session, or of a whole meeting when meeting_key is given
func (s *server) drivers(w http.ResponseWriter, r *http.Request) {
	var (
		key   string
		fetch func(ctx context.Context) ([]models.Driver, error)
	)
	if r.URL.Query().Has("meeting_key") {
		meetingKey, ok := positiveIntParam(r, "meeting_key")
		if !ok {
			writeError(w, r, http.StatusBadRequest, "Invalid meeting_key")
			return
		}
		key = cache.Key("drivers", "meeting", meetingKey)
		fetch = func(ctx context.Context) ([]models.Driver, error) {
			return s.Feed.FetchDriversForMeeting(ctx, meetingKey)
		}
	} else {
		sessionKey, ok := positiveIntParam(r, "session_key")
		if !ok {
			writeError(w, r, http.StatusBadRequest, "Missing or invalid session_key")
			return
		}
		key = cache.Key("drivers", "session", sessionKey)
		fetch = func(ctx context.Context) ([]models.Driver, error) {
			return s.Feed.FetchDriversForSession(ctx, sessionKey)
		}
	}

	drivers, err := s.cachedDrivers(r.Context(), key, fetch)
	if err != nil {
		s.fail(w, r, err, "Could not fetch drivers")
		return
	}
	writeJSON(w, r, http.StatusOK, driversResponse{Drivers: drivers})
}

// teams derives the constructors entered in a meeting from its driver list
func (s *server) teams(w http.ResponseWriter, r *http.Request) {
	meetingKey, ok := positiveIntParam(r, "meeting_key")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "Missing or invalid meeting_key")
		return
	}

	drivers, err := s.cachedDrivers(r.Context(), cache.Key("drivers", "meeting", meetingKey), func(ctx context.Context) ([]models.Driver, error) {
		return s.Feed.FetchDriversForMeeting(ctx, meetingKey)
	})
	if err != nil {
		s.fail(w, r, err, "Could not fetch teams")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string][]models.Team{"teams": models.TeamsFromDrivers(drivers)})
}

func (s *server) cachedDrivers(ctx context.Context, key string, fetch func(ctx context.Context) ([]models.Driver, error)) ([]models.Driver, error) {
	var drivers []models.Driver
	found, err := s.Cache.GetJSON(ctx, key, &drivers)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("Driver cache read failed")
	}
	if found {
		return drivers, nil
	}

	drivers, err = fetch(ctx)
	if err != nil {
		return nil, err
	}
	if len(drivers) == 0 {
		return []models.Driver{}, nil
	}
	if err := s.Cache.SetJSON(ctx, key, drivers, s.DriversTTL); err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("key", key).Msg("Driver cache write failed")
	}
	return drivers, nil
}

type raceResultResponse struct {
	ResultOrder []int           `json:"resultOrder"`
	Drivers     []models.Driver `json:"drivers"`
}

func (s *server) raceResult(w http.ResponseWriter, r *http.Request) {
	sessionKey, ok := positiveIntParam(r, "session_key")
	if !ok {
		writeError(w, r, http.StatusBadRequest, "Missing or invalid session_key")
		return
	}

	var (
		rows    []models.ResultRow
		drivers []models.Driver
	)
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() (err error) {
		rows, err = s.Feed.FetchSessionResult(ctx, sessionKey)
		return err
	})
	g.Go(func() (err error) {
		drivers, err = s.Feed.FetchDriversForSession(ctx, sessionKey)
		return err
	})
	if err := g.Wait(); err != nil {
		s.fail(w, r, err, "Could not fetch race data")
		return
	}

	order, ok := models.FinishingOrder(rows)
	if !ok {
		writeError(w, r, http.StatusNotFound, "Race result not available yet")
		return
	}
	if drivers == nil {
		drivers = []models.Driver{}
	}
	writeJSON(w, r, http.StatusOK, raceResultResponse{ResultOrder: order, Drivers: drivers})
}

func (s *server) publicNextEvent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.Public.NextEventOrNone(r.Context()))
}

func (s *server) publicLastEvent(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, s.Public.LastEventOrNone(r.Context()))
}

type nextEventResponse struct {
	Event        *models.NextEvent `json:"event"`
	Availability *gate.Outcome     `json:"availability"`
}

func (s *server) myNextEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := s.Events.NextEvent(r.Context())
	if err != nil {
		s.fail(w, r, err, "Could not resolve next event")
		return
	}
	if ev == nil {
		writeJSON(w, r, http.StatusOK, nextEventResponse{})
		return
	}

	outcome, err := s.Gate.CanMakePrediction(r.Context(), ev.Session, ev.Meeting.MeetingKey)
	if err != nil {
		s.fail(w, r, err, "Could not check prediction availability")
		return
	}
	writeJSON(w, r, http.StatusOK, nextEventResponse{Event: ev, Availability: &outcome})
}

type predictionView struct {
	MeetingKey int       `json:"meeting_key"`
	SessionKey int       `json:"session_key,omitempty"`
	Drivers    []int     `json:"drivers"`
	Points     *int      `json:"points"`
	UpdatedAt  time.Time `json:"updated_at"`
}

func viewOf(p *models.Prediction) predictionView {
	v := predictionView{
		MeetingKey: p.MeetingKey,
		SessionKey: p.SessionKey,
		Drivers:    append([]int(nil), p.Drivers[:]...),
		UpdatedAt:  p.UpdatedAt,
	}
	if points, ok := p.PointsValue(); ok {
		v.Points = &points
	}
	return v
}

func meetingKeyParam(r *http.Request) (int, bool) {
	key, err := strconv.Atoi(chi.URLParam(r, "meetingKey"))
	if err != nil || key <= 0 {
		return 0, false
	}
	return key, true
}

func (s *server) savePrediction(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	meetingKey, ok := meetingKeyParam(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "Invalid meeting key")
		return
	}

	var input models.PredictionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	p, err := s.Predictions.Save(r.Context(), userID, meetingKey, input.Drivers)

	var closed *predictions.ClosedError
	switch {
	case err == nil:
		writeJSON(w, r, http.StatusOK, viewOf(p))
	case errors.Is(err, models.ErrInvalidPrediction):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.As(err, &closed):
		writeJSON(w, r, http.StatusConflict, errorResponse{Error: "Predictions are closed", Reason: string(closed.Reason)})
	case errors.Is(err, predictions.ErrNoTargetSession):
		writeError(w, r, http.StatusNotFound, "No race or sprint to predict for this meeting")
	default:
		s.fail(w, r, err, "Could not save prediction")
	}
}

func (s *server) getPrediction(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	meetingKey, ok := meetingKeyParam(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "Invalid meeting key")
		return
	}

	p, err := s.Predictions.Get(r.Context(), userID, meetingKey)
	if err != nil {
		s.fail(w, r, err, "Could not load prediction")
		return
	}
	if p == nil {
		writeError(w, r, http.StatusNotFound, "Prediction not found")
		return
	}
	writeJSON(w, r, http.StatusOK, viewOf(p))
}

func (s *server) myPredictions(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	limit, ok := limitParam(r, s.DefaultLimit, s.MaxLimit)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "Invalid limit")
		return
	}

	recent, err := s.Predictions.Recent(r.Context(), userID, limit)
	if err != nil {
		s.fail(w, r, err, "Could not load predictions")
		return
	}
	if recent == nil {
		recent = []*models.PredictionWithMeta{}
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"predictions": recent})
}

func (s *server) mySeasonPoints(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	year, ok := s.yearParam(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "Invalid year")
		return
	}

	points, err := s.Season.GetOrComputeUserSeasonPoints(r.Context(), userID, year)
	if err != nil {
		s.fail(w, r, err, "Could not compute season points")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]int{"year": year, "points": points})
}

// yearParam reads ?year=, defaulting to the current season
func (s *server) yearParam(r *http.Request) (int, bool) {
	if !r.URL.Query().Has("year") {
		return clock.SeasonYear(s.Clock), true
	}
	return positiveIntParam(r, "year")
}

func (s *server) mySeasonPrediction(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	year, ok := s.yearParam(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "Invalid year")
		return
	}

	p, err := s.SeasonPredictions.Get(r.Context(), userID, year)
	if err != nil {
		s.fail(w, r, err, "Could not load season prediction")
		return
	}
	if p == nil {
		writeError(w, r, http.StatusNotFound, "Season prediction not found")
		return
	}
	writeJSON(w, r, http.StatusOK, p)
}

func (s *server) saveSeasonPrediction(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	year, ok := s.yearParam(r)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "Invalid year")
		return
	}

	var input models.SeasonPredictionInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}

	p, err := s.SeasonPredictions.Save(r.Context(), userID, year, &input)

	var closed *predictions.ClosedError
	switch {
	case err == nil:
		writeJSON(w, r, http.StatusOK, p)
	case errors.Is(err, models.ErrInvalidPrediction):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.As(err, &closed):
		writeJSON(w, r, http.StatusConflict, errorResponse{Error: "Season predictions are closed", Reason: string(closed.Reason)})
	default:
		s.fail(w, r, err, "Could not save season prediction")
	}
}

func (s *server) globalLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, ok := limitParam(r, s.DefaultLimit, s.MaxLimit)
	if !ok {
		writeError(w, r, http.StatusBadRequest, "Invalid limit")
		return
	}

	entries, err := s.Leaderboards.Global(r.Context(), limit)
	if err != nil {
		s.fail(w, r, err, "Could not build leaderboard")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"leaderboard": entries})
}

type membersRequest struct {
	UserIDs []uuid.UUID `json:"user_ids"`
}

func (s *server) membersLeaderboard(w http.ResponseWriter, r *http.Request) {
	var req membersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "Invalid request body")
		return
	}
	if len(req.UserIDs) > s.MaxMembers {
		writeError(w, r, http.StatusBadRequest, "Too many members")
		return
	}

	limit, ok := limitParam(r, max(len(req.UserIDs), 1), max(s.MaxMembers, 1))
	if !ok {
		writeError(w, r, http.StatusBadRequest, "Invalid limit")
		return
	}

	entries, err := s.Leaderboards.ForUsers(r.Context(), req.UserIDs, limit)
	if err != nil {
		s.fail(w, r, err, "Could not build leaderboard")
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"leaderboard": entries})
}
