package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"gridpicks/engine/internal/metrics"
	"gridpicks/engine/internal/models"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ErrUpstreamUnavailable is returned when the feed cannot be reached or answers with a
// non-success status. Callers must not read it as "no data".
var ErrUpstreamUnavailable = errors.New("race data feed unavailable")

// emptyList is what the feed means by 404 on per-session data: nothing published yet.
var emptyList = []byte("[]")

// emptyOnNotFound lists the endpoints whose 404 means "not published yet". A 404 from the
// calendar endpoints is a failure, since sync must not mistake it for an empty season.
var emptyOnNotFound = map[string]bool{
	"starting_grid":  true,
	"session_result": true,
	"drivers":        true,
}

// Options tunes the feed client
type Options struct {
	Timeout    time.Duration
	RateLimit  float64 // requests per second
	Burst      int
	MaxRetries int
	RetryDelay time.Duration
}

// Client is the OpenF1 API client
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	maxRetries int
	retryDelay time.Duration
}

// NewClient creates a new OpenF1 API client
func NewClient(baseURL string, opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 3
	}
	if opts.Burst < 1 {
		opts.Burst = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = time.Second
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		limiter:    rate.NewLimiter(rate.Limit(opts.RateLimit), opts.Burst),
		maxRetries: opts.MaxRetries,
		retryDelay: opts.RetryDelay,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// lte builds a "field<=n" filter in the form the feed expects
func lte(field string, n int) string {
	return url.QueryEscape(field+"<") + "=" + strconv.Itoa(n)
}

// get performs a GET request against the feed with retry logic and rate limiting
func (c *Client) get(ctx context.Context, endpoint string, params url.Values, filters ...string) ([]byte, error) {
	query := params.Encode()
	for _, f := range filters {
		if query != "" {
			query += "&"
		}
		query += f
	}
	reqURL := fmt.Sprintf("%s/%s?%s", c.baseURL, endpoint, query)

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Exponential backoff: 1s, 2s, 4s
			backoff := c.retryDelay * time.Duration(1<<uint(attempt-1))
			log.Info().
				Str("url", reqURL).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Retrying feed request after backoff")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		body, status, err := c.do(ctx, endpoint, reqURL, attempt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			lastErr = fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
			continue
		}

		switch {
		case status == http.StatusOK:
			return body, nil

		case status == http.StatusNotFound && emptyOnNotFound[endpoint]:
			log.Debug().Str("url", reqURL).Msg("Feed returned no results")
			return emptyList, nil

		case status == http.StatusTooManyRequests || status >= http.StatusInternalServerError:
			lastErr = fmt.Errorf("%w: retryable status %d: %s", ErrUpstreamUnavailable, status, truncate(body))
			log.Warn().
				Str("url", reqURL).
				Int("status", status).
				Int("attempt", attempt+1).
				Msg("Received retryable error, will retry")

		default:
			return nil, fmt.Errorf("%w: status %d: %s", ErrUpstreamUnavailable, status, truncate(body))
		}
	}

	return nil, lastErr
}

func (c *Client) do(ctx context.Context, endpoint, reqURL string, attempt int) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "gridpicks-engine/1.0")

	log.Debug().
		Str("url", reqURL).
		Int("attempt", attempt+1).
		Msg("Making feed request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.RecordAPICall(endpoint, "error", time.Since(start).Seconds())
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	metrics.RecordAPICall(endpoint, strconv.Itoa(resp.StatusCode), time.Since(start).Seconds())
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response body: %w", err)
	}

	return body, resp.StatusCode, nil
}

func fetchList[T any](ctx context.Context, c *Client, endpoint string, params url.Values, filters ...string) ([]T, error) {
	body, err := c.get(ctx, endpoint, params, filters...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", endpoint, err)
	}

	var out []T
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("%w: failed to unmarshal %s: %v", ErrUpstreamUnavailable, endpoint, err)
	}
	return out, nil
}

// FetchMeetings fetches every meeting of a season
func (c *Client) FetchMeetings(ctx context.Context, year int) ([]models.MeetingInput, error) {
	return fetchList[models.MeetingInput](ctx, c, "meetings", url.Values{"year": {strconv.Itoa(year)}})
}

// FetchSessions fetches every session of a meeting
func (c *Client) FetchSessions(ctx context.Context, meetingKey int) ([]models.SessionInput, error) {
	return fetchList[models.SessionInput](ctx, c, "sessions", url.Values{"meeting_key": {strconv.Itoa(meetingKey)}})
}

// FetchStartingGrid fetches pole position for a qualifying session.
// An empty slice means the grid has not been published yet.
func (c *Client) FetchStartingGrid(ctx context.Context, sessionKey int) ([]models.GridPosition, error) {
	return fetchList[models.GridPosition](ctx, c, "starting_grid",
		url.Values{"session_key": {strconv.Itoa(sessionKey)}}, lte("position", 1))
}

// FetchSessionResult fetches the top ten classified finishers of a session
func (c *Client) FetchSessionResult(ctx context.Context, sessionKey int) ([]models.ResultRow, error) {
	return fetchList[models.ResultRow](ctx, c, "session_result",
		url.Values{"session_key": {strconv.Itoa(sessionKey)}}, lte("position", models.PredictedPositions))
}

// FetchDriversForSession fetches the drivers entered in a session, sorted by number
func (c *Client) FetchDriversForSession(ctx context.Context, sessionKey int) ([]models.Driver, error) {
	drivers, err := fetchList[models.Driver](ctx, c, "drivers", url.Values{"session_key": {strconv.Itoa(sessionKey)}})
	if err != nil {
		return nil, err
	}
	models.SortDrivers(drivers)
	return drivers, nil
}

// FetchDriversForMeeting fetches one entry per driver across a meeting's sessions
func (c *Client) FetchDriversForMeeting(ctx context.Context, meetingKey int) ([]models.Driver, error) {
	drivers, err := fetchList[models.Driver](ctx, c, "drivers", url.Values{"meeting_key": {strconv.Itoa(meetingKey)}})
	if err != nil {
		return nil, err
	}
	return models.UniqueDrivers(drivers), nil
}

func truncate(body []byte) string {
	const max = 256
	if len(body) > max {
		return string(body[:max]) + "..."
	}
	return string(body)
}
