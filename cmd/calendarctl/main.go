// Command calendarctl runs operator tasks against the calendar mirror and season scores.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"gridpicks/engine/internal/calendar"
	"gridpicks/engine/internal/client"
	"gridpicks/engine/internal/clock"
	"gridpicks/engine/internal/config"
	"gridpicks/engine/internal/gate"
	"gridpicks/engine/internal/repository"
	"gridpicks/engine/internal/resolver"
	"gridpicks/engine/internal/scoring"
	"gridpicks/engine/internal/season"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"
)

// env holds the collaborators every subcommand needs
type env struct {
	cfg    *config.Config
	db     *repository.Database
	feed   *client.Client
	mirror *calendar.Mirror
	events *resolver.Resolver
	clock  clock.Clock
}

func open(ctx context.Context) (*env, error) {
	cfg := config.MustLoad()

	db, err := repository.NewDatabase(ctx, repository.Config{
		Host:     cfg.DatabaseHost,
		Port:     strconv.Itoa(cfg.DatabasePort),
		User:     cfg.DatabaseUser,
		Password: cfg.DatabasePassword,
		Database: cfg.DatabaseName,
		SSLMode:  cfg.DatabaseSSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	feed := client.NewClient(cfg.OpenF1BaseURL, client.Options{
		Timeout:    cfg.OpenF1Timeout,
		RateLimit:  cfg.OpenF1RateLimit,
		Burst:      cfg.OpenF1Burst,
		MaxRetries: cfg.OpenF1MaxRetries,
	})

	clk := clock.Real{}
	mirror := calendar.NewMirror(feed, db.Meetings, db.Sessions).WithConcurrency(cfg.ReconcileConcurrency)

	return &env{
		cfg:    cfg,
		db:     db,
		feed:   feed,
		mirror: mirror,
		events: resolver.New(mirror, clk),
		clock:  clk,
	}, nil
}

// withEnv opens the environment around a subcommand action
func withEnv(action func(c *cli.Context, e *env) error) cli.ActionFunc {
	return func(c *cli.Context) error {
		e, err := open(c.Context)
		if err != nil {
			return err
		}
		defer e.db.Close()
		return action(c, e)
	}
}

func yearFlag() *cli.IntFlag {
	return &cli.IntFlag{
		Name:  "year",
		Usage: "championship season (defaults to the current year)",
	}
}

func yearOf(c *cli.Context, clk clock.Clock) int {
	if y := c.Int("year"); y > 0 {
		return y
	}
	return clock.SeasonYear(clk)
}

func main() {
	setupLogger()

	app := &cli.App{
		Name:  "calendarctl",
		Usage: "operate the prediction engine's calendar mirror and season scores",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "database migrations",
				Subcommands: []*cli.Command{
					{
						Name:  "up",
						Usage: "apply pending migrations",
						Action: withEnv(func(c *cli.Context, e *env) error {
							return e.db.Migrate(c.Context)
						}),
					},
					{
						Name:  "status",
						Usage: "print migration status",
						Action: withEnv(func(c *cli.Context, e *env) error {
							return e.db.MigrationStatus(c.Context)
						}),
					},
				},
			},
			{
				Name:  "sync",
				Usage: "refresh a season's meetings and sessions from the feed",
				Flags: []cli.Flag{yearFlag()},
				Action: withEnv(func(c *cli.Context, e *env) error {
					year := yearOf(c, e.clock)
					start := time.Now()

					meetings, sessions, err := e.mirror.SyncSeason(c.Context, year)
					if err != nil {
						return fmt.Errorf("failed to sync season %d: %w", year, err)
					}

					fmt.Printf("Synced season %d: %d meetings, %d sessions in %s\n",
						year, meetings, sessions, time.Since(start).Round(time.Millisecond))
					return nil
				}),
			},
			{
				Name:  "reconcile",
				Usage: "score outstanding predictions and refresh season totals",
				Flags: []cli.Flag{
					yearFlag(),
					&cli.IntFlag{
						Name:  "users",
						Usage: "maximum number of profiles to reconcile",
						Value: 1000,
					},
				},
				Action: withEnv(func(c *cli.Context, e *env) error {
					year := yearOf(c, e.clock)

					profiles, err := e.db.Profiles.ListWithUsername(c.Context, c.Int("users"))
					if err != nil {
						return fmt.Errorf("failed to list profiles: %w", err)
					}
					ids := make([]uuid.UUID, 0, len(profiles))
					for _, p := range profiles {
						ids = append(ids, p.ID)
					}

					results := scoring.NewCachedResults(e.feed, nil, 0)
					scorer := scoring.NewScorer(results, e.db.Predictions)
					seasons := season.NewService(e.db.Predictions, e.db.SeasonScores, e.events, scorer, e.clock).
						WithConcurrency(e.cfg.ReconcileConcurrency)

					totals, err := seasons.GetOrComputeSeasonPointsForUsers(c.Context, ids, year)
					if err != nil {
						return fmt.Errorf("failed to reconcile season %d: %w", year, err)
					}

					fmt.Printf("Reconciled season %d for %d users\n", year, len(totals))
					return nil
				}),
			},
			{
				Name:  "next-event",
				Usage: "print the next race or sprint and whether predictions are open",
				Action: withEnv(func(c *cli.Context, e *env) error {
					ev, err := e.events.NextEvent(c.Context)
					if err != nil {
						return err
					}
					if ev == nil {
						fmt.Println("No upcoming race or sprint")
						return nil
					}

					outcome, err := gate.New(e.mirror, e.feed, e.clock).CanMakePrediction(c.Context, ev.Session, ev.Meeting.MeetingKey)
					if err != nil {
						return err
					}

					enc := json.NewEncoder(os.Stdout)
					enc.SetIndent("", "  ")
					return enc.Encode(map[string]any{"event": ev, "availability": outcome})
				}),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

// setupLogger configures the zerolog logger for console use
func setupLogger() {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stderr,
		TimeFormat: time.RFC3339,
	})

	level := zerolog.InfoLevel
	if lvl := os.Getenv("LOG_LEVEL"); lvl != "" {
		if parsed, err := zerolog.ParseLevel(lvl); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
}
