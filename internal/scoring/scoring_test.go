package scoring

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"gridpicks/engine/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var finishing = []int{1, 4, 16, 81, 63, 44, 14, 55, 10, 22}

func TestCalculate(t *testing.T) {
	tests := []struct {
		name      string
		predicted [10]int
		actual    []int
		want      int
	}{
		{"perfect", [10]int{1, 4, 16, 81, 63, 44, 14, 55, 10, 22}, finishing, MaxPoints},
		{"two swapped", [10]int{1, 4, 81, 16, 63, 44, 14, 55, 10, 22}, finishing, 5*8 + 1*2},
		{"all in top ten, none exact", [10]int{4, 16, 81, 63, 44, 14, 55, 10, 22, 1}, finishing, 10},
		{"none in top ten", [10]int{2, 3, 5, 6, 7, 8, 9, 11, 12, 13}, finishing, 0},
		{"mixed", [10]int{1, 2, 16, 3, 5, 6, 7, 8, 9, 4}, finishing, 5 + 5 + 1},
		{"short result", [10]int{1, 4, 16, 81, 63, 44, 14, 55, 10, 22}, finishing[:3], 15},
		{"long result ignored past ten", [10]int{1, 4, 16, 81, 63, 44, 14, 55, 10, 99}, append(append([]int{}, finishing...), 99), 45},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Calculate(tt.predicted, tt.actual))
		})
	}
}

func TestCalculate_SwappedPairExample(t *testing.T) {
	// Result A..J, prediction A,B,D,C then the rest exact
	actual := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	predicted := [10]int{1, 2, 4, 3, 5, 6, 7, 8, 9, 10}

	assert.Equal(t, 5+5+1+1+5*6, Calculate(predicted, actual))
}

type fakeResults struct {
	rows  []models.ResultRow
	err   error
	calls int
}

func (f *fakeResults) FetchSessionResult(context.Context, int) ([]models.ResultRow, error) {
	f.calls++
	return f.rows, f.err
}

// fakeStore keeps the first value written per prediction
type fakeStore struct {
	points map[int64]int
}

func (f *fakeStore) SetPointsIfUnset(_ context.Context, id int64, points int) (int, error) {
	if v, ok := f.points[id]; ok {
		return v, nil
	}
	f.points[id] = points
	return points, nil
}

func resultRows(order []int) []models.ResultRow {
	rows := make([]models.ResultRow, len(order))
	for i, d := range order {
		// reversed so FinishingOrder must sort
		rows[len(order)-1-i] = models.ResultRow{Position: i + 1, DriverNumber: d}
	}
	return rows
}

func TestScorer_ScoresAndStores(t *testing.T) {
	results := &fakeResults{rows: resultRows(finishing)}
	store := &fakeStore{points: map[int64]int{}}
	s := NewScorer(results, store)

	p := &models.Prediction{ID: 7, Drivers: [10]int{1, 4, 16, 81, 63, 44, 14, 55, 10, 22}}
	points, known, err := s.GetPointsForPrediction(context.Background(), p, 9693)
	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, MaxPoints, points)
	assert.Equal(t, MaxPoints, store.points[7])
	assert.True(t, p.IsScored())
}

func TestScorer_UnknownUntilTenResults(t *testing.T) {
	results := &fakeResults{rows: resultRows(finishing[:9])}
	store := &fakeStore{points: map[int64]int{}}
	s := NewScorer(results, store)

	p := &models.Prediction{ID: 7, Drivers: [10]int{1, 4, 16, 81, 63, 44, 14, 55, 10, 22}}
	points, known, err := s.GetPointsForPrediction(context.Background(), p, 9693)
	require.NoError(t, err)
	assert.False(t, known, "Incomplete result is unknown, not zero")
	assert.Equal(t, 0, points)
	assert.Empty(t, store.points)
	assert.False(t, p.IsScored())
}

func TestScorer_StoredPointsAreImmutable(t *testing.T) {
	contradictory := []int{22, 10, 55, 14, 44, 63, 81, 16, 4, 1}
	results := &fakeResults{rows: resultRows(contradictory)}
	store := &fakeStore{points: map[int64]int{}}
	s := NewScorer(results, store)

	p := &models.Prediction{ID: 7, Drivers: [10]int{1, 4, 16, 81, 63, 44, 14, 55, 10, 22}, Points: sql.NullInt32{Int32: 17, Valid: true}}
	points, known, err := s.GetPointsForPrediction(context.Background(), p, 9693)
	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, 17, points)
	assert.Equal(t, 0, results.calls, "Stored points must not trigger a fetch")
}

func TestScorer_ConcurrentWriterWins(t *testing.T) {
	results := &fakeResults{rows: resultRows(finishing)}
	store := &fakeStore{points: map[int64]int{7: 12}}
	s := NewScorer(results, store)

	// Loaded before another request stored 12
	p := &models.Prediction{ID: 7, Drivers: [10]int{1, 4, 16, 81, 63, 44, 14, 55, 10, 22}}
	points, known, err := s.GetPointsForPrediction(context.Background(), p, 9693)
	require.NoError(t, err)
	assert.True(t, known)
	assert.Equal(t, 12, points)
	assert.Equal(t, int32(12), p.Points.Int32)
}

func TestScorer_FetchError(t *testing.T) {
	s := NewScorer(&fakeResults{err: errors.New("503")}, &fakeStore{points: map[int64]int{}})

	_, known, err := s.GetPointsForPrediction(context.Background(), &models.Prediction{ID: 1}, 9693)
	assert.Error(t, err)
	assert.False(t, known)
}

type mapCache map[string][]byte

func (c mapCache) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	raw, ok := c[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (c mapCache) SetJSON(_ context.Context, key string, value any, _ time.Duration) error {
	raw, err := json.Marshal(value)
	c[key] = raw
	return err
}

func TestCachedResults_CachesOnlyCompleteResults(t *testing.T) {
	ctx := context.Background()
	c := mapCache{}

	partial := &fakeResults{rows: resultRows(finishing[:5])}
	r := NewCachedResults(partial, c, time.Hour)
	_, err := r.FetchSessionResult(ctx, 9693)
	require.NoError(t, err)
	_, err = r.FetchSessionResult(ctx, 9693)
	require.NoError(t, err)
	assert.Equal(t, 2, partial.calls)
	assert.Empty(t, c)

	complete := &fakeResults{rows: resultRows(finishing)}
	r = NewCachedResults(complete, c, time.Hour)
	_, err = r.FetchSessionResult(ctx, 9693)
	require.NoError(t, err)
	rows, err := r.FetchSessionResult(ctx, 9693)
	require.NoError(t, err)
	assert.Equal(t, 1, complete.calls)

	order, ok := models.FinishingOrder(rows)
	require.True(t, ok)
	assert.Equal(t, finishing, order)
}
