// Package leaderboard ranks users by season points.
package leaderboard

import (
	"context"
	"sort"

	"gridpicks/engine/internal/clock"
	"gridpicks/engine/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Entry is one leaderboard row
type Entry struct {
	UserID      uuid.UUID `json:"user_id"`
	Username    string    `json:"username"`
	AvatarURL   *string   `json:"avatar_url"`
	TotalPoints int       `json:"total_points"`
	Rank        int       `json:"rank"`
}

// Profiles looks up ranked users
type Profiles interface {
	ListWithUsername(ctx context.Context, limit int) ([]*models.Profile, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Profile, error)
}

// SeasonPoints provides season totals
type SeasonPoints interface {
	GetOrComputeSeasonPointsForUsers(ctx context.Context, userIDs []uuid.UUID, year int) (map[uuid.UUID]int, error)
}

// Aggregator builds leaderboards for the current season
type Aggregator struct {
	profiles       Profiles
	points         SeasonPoints
	clock          clock.Clock
	candidateLimit int
}

// New creates an aggregator. candidateLimit bounds the global candidate set.
func New(profiles Profiles, points SeasonPoints, c clock.Clock, candidateLimit int) *Aggregator {
	return &Aggregator{profiles: profiles, points: points, clock: c, candidateLimit: candidateLimit}
}

// Global ranks every user with a username, up to the candidate limit, and returns the top limit
func (a *Aggregator) Global(ctx context.Context, limit int) ([]Entry, error) {
	profiles, err := a.profiles.ListWithUsername(ctx, a.candidateLimit)
	if err != nil {
		return nil, err
	}
	return a.rank(ctx, profiles, limit)
}

// ForUsers ranks a given member set, such as a pool
func (a *Aggregator) ForUsers(ctx context.Context, userIDs []uuid.UUID, limit int) ([]Entry, error) {
	profiles, err := a.profiles.ListByIDs(ctx, userIDs)
	if err != nil {
		return nil, err
	}
	return a.rank(ctx, profiles, limit)
}

func (a *Aggregator) rank(ctx context.Context, profiles []*models.Profile, limit int) ([]Entry, error) {
	entries := make([]Entry, 0, len(profiles))
	if len(profiles) == 0 {
		return entries, nil
	}

	ids := make([]uuid.UUID, len(profiles))
	for i, p := range profiles {
		ids[i] = p.ID
	}

	year := clock.SeasonYear(a.clock)
	totals, err := a.points.GetOrComputeSeasonPointsForUsers(ctx, ids, year)
	if err != nil {
		return nil, err
	}

	for _, p := range profiles {
		e := Entry{
			UserID:      p.ID,
			Username:    p.DisplayName(),
			TotalPoints: totals[p.ID],
		}
		if p.AvatarURL.Valid {
			avatar := p.AvatarURL.String
			e.AvatarURL = &avatar
		}
		entries = append(entries, e)
	}

	entries = Rank(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	log.Debug().Int("year", year).Int("candidates", len(profiles)).Int("returned", len(entries)).Msg("Leaderboard built")
	return entries, nil
}

// Rank sorts entries by points and assigns dense ranks: equal points share a rank and
// the next distinct total takes the following rank. Equal totals are ordered by username.
func Rank(entries []Entry) []Entry {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].TotalPoints != entries[j].TotalPoints {
			return entries[i].TotalPoints > entries[j].TotalPoints
		}
		if entries[i].Username != entries[j].Username {
			return entries[i].Username < entries[j].Username
		}
		return entries[i].UserID.String() < entries[j].UserID.String()
	})

	rank := 0
	for i := range entries {
		if i == 0 || entries[i].TotalPoints != entries[i-1].TotalPoints {
			rank++
		}
		entries[i].Rank = rank
	}
	return entries
}
