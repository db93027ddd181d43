package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string, retries int) *Client {
	return NewClient(url, Options{
		Timeout:    2 * time.Second,
		RateLimit:  1000,
		Burst:      100,
		MaxRetries: retries,
		RetryDelay: time.Millisecond,
	})
}

func TestClient_FetchMeetings(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/meetings", r.URL.Path)
		assert.Equal(t, "2024", r.URL.Query().Get("year"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"meeting_key": 1229, "meeting_name": "Bahrain Grand Prix", "year": 2024,
			 "date_start": "2024-02-29T11:30:00+00:00", "date_end": "2024-03-02T17:00:00+00:00",
			 "circuit_image": null},
			{"meeting_key": 1228, "meeting_name": "Pre-Season Testing", "year": 2024,
			 "date_start": "2024-02-21T07:00:00+00:00", "date_end": "2024-02-23T16:00:00+00:00"}
		]`))
	}))
	defer server.Close()

	meetings, err := newTestClient(server.URL, 0).FetchMeetings(context.Background(), 2024)
	require.NoError(t, err)
	require.Len(t, meetings, 2)
	assert.Equal(t, 1229, meetings[0].MeetingKey)
	assert.Nil(t, meetings[0].CircuitImage)
	assert.True(t, meetings[0].IsChampionshipRound())
	assert.False(t, meetings[1].IsChampionshipRound())
}

func TestClient_FetchSessionResult_PositionFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/session_result", r.URL.Path)
		assert.Equal(t, "9472", r.URL.Query().Get("session_key"))
		assert.Equal(t, "10", r.URL.Query().Get("position<"))
		w.Write([]byte(`[{"position": 2, "driver_number": 16}, {"position": 1, "driver_number": 1}]`))
	}))
	defer server.Close()

	rows, err := newTestClient(server.URL, 0).FetchSessionResult(context.Background(), 9472)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 16, rows[0].DriverNumber)
}

func TestClient_FetchStartingGrid_NotFoundIsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("position<"))
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail": "No results found."}`))
	}))
	defer server.Close()

	grid, err := newTestClient(server.URL, 0).FetchStartingGrid(context.Background(), 9471)
	require.NoError(t, err)
	assert.Empty(t, grid)
}

func TestClient_CalendarNotFoundIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"detail": "No results found."}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL, 0)

	_, err := c.FetchMeetings(context.Background(), 2024)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)

	_, err = c.FetchSessions(context.Background(), 1229)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)

	rows, err := c.FetchSessionResult(context.Background(), 9472)
	require.NoError(t, err)
	assert.Empty(t, rows)

	drivers, err := c.FetchDriversForSession(context.Background(), 9472)
	require.NoError(t, err)
	assert.Empty(t, drivers)
}

func TestClient_RetriesRetryableStatus(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[{"session_key": 9472, "session_name": "Race", "meeting_key": 1229}]`))
	}))
	defer server.Close()

	sessions, err := newTestClient(server.URL, 3).FetchSessions(context.Background(), 1229)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_UpstreamUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	_, err := newTestClient(server.URL, 1).FetchMeetings(context.Background(), 2024)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUpstreamUnavailable))

	badRequest := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer badRequest.Close()

	_, err = newTestClient(badRequest.URL, 3).FetchMeetings(context.Background(), 2024)
	assert.ErrorIs(t, err, ErrUpstreamUnavailable)
}

func TestClient_FetchDriversForMeeting_Dedupes(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1229", r.URL.Query().Get("meeting_key"))
		w.Write([]byte(`[
			{"driver_number": 44, "session_key": 1}, {"driver_number": 1, "session_key": 1},
			{"driver_number": 44, "session_key": 2}, {"driver_number": 1, "session_key": 2}
		]`))
	}))
	defer server.Close()

	drivers, err := newTestClient(server.URL, 0).FetchDriversForMeeting(context.Background(), 1229)
	require.NoError(t, err)
	require.Len(t, drivers, 2)
	assert.Equal(t, 1, drivers[0].DriverNumber)
	assert.Equal(t, 44, drivers[1].DriverNumber)
}
