package model

import (
	"math"
	"time"
)

// Direction of the predicted close relative to the current price.
type Direction string

const (
	DirectionHigher Direction = "higher"
	DirectionLower  Direction = "lower"
)

// PredictionResult is the output of one live cycle. It is logged or sent and
// then dropped.
type PredictionResult struct {
	Symbol          string
	Quote           Quote
	Value           float64 // predicted close
	Confidence      float64 // 0 ~ 100
	TimeToClose     string  // HH:MM:SS
	ArtifactVersion string
	ProducedAt      time.Time
}

// UnitDiff returns the absolute distance between the predicted close and the
// current price, and whether the prediction sits above or below it.
func (r PredictionResult) UnitDiff() (float64, Direction) {
	diff := r.Value - r.Quote.Price
	if diff < 0 {
		return math.Abs(diff), DirectionLower
	}
	return diff, DirectionHigher
}
