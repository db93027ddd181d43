package scoring

import (
	"context"
	"strconv"
	"time"

	"gridpicks/engine/internal/cache"
	"gridpicks/engine/internal/models"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// CachedResults wraps a ResultFeed. Complete results are cached; incomplete ones are
// fetched again next time. Concurrent fetches of one session share a request.
type CachedResults struct {
	feed  ResultFeed
	cache cache.Cache
	ttl   time.Duration
	group singleflight.Group
}

// NewCachedResults creates a caching result feed. A nil cache only collapses concurrent fetches.
func NewCachedResults(feed ResultFeed, c cache.Cache, ttl time.Duration) *CachedResults {
	if c == nil {
		c = cache.Nop{}
	}
	return &CachedResults{feed: feed, cache: c, ttl: ttl}
}

// FetchSessionResult implements ResultFeed
func (r *CachedResults) FetchSessionResult(ctx context.Context, sessionKey int) ([]models.ResultRow, error) {
	key := cache.Key("result", sessionKey)

	var rows []models.ResultRow
	found, err := r.cache.GetJSON(ctx, key, &rows)
	if err != nil {
		log.Warn().Err(err).Str("key", key).Msg("Result cache read failed")
	}
	if found {
		return rows, nil
	}

	v, err, _ := r.group.Do(strconv.Itoa(sessionKey), func() (interface{}, error) {
		rows, err := r.feed.FetchSessionResult(ctx, sessionKey)
		if err != nil {
			return nil, err
		}
		if len(rows) >= models.PredictedPositions {
			if err := r.cache.SetJSON(ctx, key, rows, r.ttl); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("Result cache write failed")
			}
		}
		return rows, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]models.ResultRow), nil
}
