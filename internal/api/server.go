// Package api exposes the prediction engine over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"gridpicks/engine/internal/cache"
	"gridpicks/engine/internal/clock"
	"gridpicks/engine/internal/gate"
	"gridpicks/engine/internal/leaderboard"
	"gridpicks/engine/internal/models"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Feed is the pass-through part of the race data feed
type Feed interface {
	FetchDriversForSession(ctx context.Context, sessionKey int) ([]models.Driver, error)
	FetchDriversForMeeting(ctx context.Context, meetingKey int) ([]models.Driver, error)
	FetchSessionResult(ctx context.Context, sessionKey int) ([]models.ResultRow, error)
}

// PublicEvents resolves events for anonymous callers, degrading to none
type PublicEvents interface {
	NextEventOrNone(ctx context.Context) *models.NextEvent
	LastEventOrNone(ctx context.Context) *models.NextEvent
}

// Events resolves events against the local mirror
type Events interface {
	NextEvent(ctx context.Context) (*models.NextEvent, error)
}

// Gate decides prediction availability
type Gate interface {
	CanMakePrediction(ctx context.Context, session *models.Session, meetingKey int) (gate.Outcome, error)
}

// Predictions saves and reads predictions
type Predictions interface {
	Save(ctx context.Context, userID uuid.UUID, meetingKey int, drivers []int) (*models.Prediction, error)
	Get(ctx context.Context, userID uuid.UUID, meetingKey int) (*models.Prediction, error)
	Recent(ctx context.Context, userID uuid.UUID, limit int) ([]*models.PredictionWithMeta, error)
}

// SeasonPredictions saves and reads season-long picks
type SeasonPredictions interface {
	Save(ctx context.Context, userID uuid.UUID, year int, in *models.SeasonPredictionInput) (*models.SeasonPrediction, error)
	Get(ctx context.Context, userID uuid.UUID, year int) (*models.SeasonPrediction, error)
}

// SeasonPoints serves season totals
type SeasonPoints interface {
	GetOrComputeUserSeasonPoints(ctx context.Context, userID uuid.UUID, year int) (int, error)
}

// Leaderboards ranks users
type Leaderboards interface {
	Global(ctx context.Context, limit int) ([]leaderboard.Entry, error)
	ForUsers(ctx context.Context, userIDs []uuid.UUID, limit int) ([]leaderboard.Entry, error)
}

// Deps are the collaborators the router serves
type Deps struct {
	Feed        Feed
	Cache       cache.Cache
	DriversTTL  time.Duration
	Public      PublicEvents
	Events      Events
	Gate        Gate
	Predictions Predictions
	Season      SeasonPoints
	// SeasonPredictions is optional; its routes are not mounted when nil
	SeasonPredictions SeasonPredictions
	Leaderboards      Leaderboards
	Clock             clock.Clock

	// Health reports whether the service can serve requests
	Health func(ctx context.Context) error
	// CacheHealth reports the cache; nil when none is configured
	CacheHealth func(ctx context.Context) error

	JWTSecret      string
	RequestTimeout time.Duration
	EnableMetrics  bool

	DefaultLimit int
	MaxLimit     int
	MaxMembers   int
}

type server struct {
	Deps
}

// NewRouter builds the HTTP handler
func NewRouter(deps Deps) http.Handler {
	if deps.Cache == nil {
		deps.Cache = cache.Nop{}
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 30 * time.Second
	}
	s := &server{Deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(deps.RequestTimeout))

	r.Get("/health", s.health)
	if deps.EnableMetrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/drivers", s.drivers)
		r.Get("/teams", s.teams)
		r.Get("/race-result", s.raceResult)
		r.Get("/events/next", s.publicNextEvent)
		r.Get("/events/last", s.publicLastEvent)
		r.Get("/leaderboard", s.globalLeaderboard)

		r.Group(func(r chi.Router) {
			r.Use(authenticate(deps.JWTSecret))

			r.Get("/me/next-event", s.myNextEvent)
			r.Get("/me/predictions", s.myPredictions)
			r.Get("/me/season-points", s.mySeasonPoints)
			if deps.SeasonPredictions != nil {
				r.Get("/me/season-prediction", s.mySeasonPrediction)
				r.Put("/me/season-prediction", s.saveSeasonPrediction)
			}
			r.Put("/predictions/{meetingKey}", s.savePrediction)
			r.Get("/predictions/{meetingKey}", s.getPrediction)
			r.Post("/leaderboard/members", s.membersLeaderboard)
		})
	})

	return r
}
