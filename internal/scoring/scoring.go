// Package scoring awards points for a prediction once an official result exists.
package scoring

import (
	"context"
	"fmt"

	"gridpicks/engine/internal/metrics"
	"gridpicks/engine/internal/models"

	"github.com/rs/zerolog/log"
)

const (
	// ExactPoints is awarded when the predicted driver finished in that exact position
	ExactPoints = 5
	// TopTenPoints is awarded when the predicted driver finished elsewhere in the top ten
	TopTenPoints = 1
	// MaxPoints is a perfect prediction
	MaxPoints = ExactPoints * models.PredictedPositions
)

// Calculate scores predicted against the official finishing order
func Calculate(predicted [models.PredictedPositions]int, actual []int) int {
	n := len(actual)
	if n > models.PredictedPositions {
		n = models.PredictedPositions
	}

	topTen := make(map[int]struct{}, n)
	for _, d := range actual[:n] {
		topTen[d] = struct{}{}
	}

	total := 0
	for i := 0; i < n; i++ {
		if predicted[i] == actual[i] {
			total += ExactPoints
			continue
		}
		if _, ok := topTen[predicted[i]]; ok {
			total += TopTenPoints
		}
	}
	return total
}

// ResultFeed provides official session results
type ResultFeed interface {
	FetchSessionResult(ctx context.Context, sessionKey int) ([]models.ResultRow, error)
}

// PointsStore persists prediction points once
type PointsStore interface {
	SetPointsIfUnset(ctx context.Context, predictionID int64, points int) (int, error)
}

// Scorer scores predictions and caches the points
type Scorer struct {
	results ResultFeed
	store   PointsStore
}

// NewScorer creates a scorer
func NewScorer(results ResultFeed, store PointsStore) *Scorer {
	return &Scorer{results: results, store: store}
}

// GetPointsForPrediction returns the prediction's points. Points already stored are
// returned as-is. Otherwise the result for sessionKey is fetched and, if complete, scored
// and stored. known is false while the result is not complete.
func (s *Scorer) GetPointsForPrediction(ctx context.Context, p *models.Prediction, sessionKey int) (points int, known bool, err error) {
	if v, ok := p.PointsValue(); ok {
		return v, true, nil
	}

	rows, err := s.results.FetchSessionResult(ctx, sessionKey)
	if err != nil {
		return 0, false, fmt.Errorf("failed to fetch result for session %d: %w", sessionKey, err)
	}

	order, ok := models.FinishingOrder(rows)
	if !ok {
		metrics.RecordScoringUnknown()
		log.Debug().Int("session_key", sessionKey).Int("rows", len(rows)).Msg("Result not complete yet")
		return 0, false, nil
	}

	computed := Calculate(p.Drivers, order)
	stored, err := s.store.SetPointsIfUnset(ctx, p.ID, computed)
	if err != nil {
		return 0, false, err
	}

	p.Points.Int32 = int32(stored)
	p.Points.Valid = true

	metrics.RecordPredictionScored()
	log.Debug().
		Int64("prediction_id", p.ID).
		Int("session_key", sessionKey).
		Int("points", stored).
		Msg("Prediction scored")
	return stored, true, nil
}
