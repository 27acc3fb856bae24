package model

import "time"

// Bar represents a single daily OHLC record of the training dataset.
type Bar struct {
	Date  time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// Quote is a live snapshot returned by a quote source.
type Quote struct {
	Symbol    string
	Price     float64
	Open      float64
	High      float64
	Low       float64
	Timestamp time.Time
}

// FeatureVector holds the scaled model inputs in the fixed order Open, High, Low.
type FeatureVector [3]float64

func (f FeatureVector) Slice() []float64 {
	return []float64{f[0], f[1], f[2]}
}
