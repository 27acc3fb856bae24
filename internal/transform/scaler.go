package transform

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// ErrScalingMismatch is returned when the columns presented to a scaler do not
// match, in count or order, the columns it was fitted on.
var ErrScalingMismatch = errors.New("scaling mismatch")

// Column names of the training frame. The order is part of the model contract.
const (
	ColOpen  = "Open"
	ColHigh  = "High"
	ColLow   = "Low"
	ColClose = "Close"
)

// FrameColumns is the four-column layout every scaler is fitted over.
var FrameColumns = []string{ColOpen, ColHigh, ColLow, ColClose}

// ScalingParameters are per-column standardization statistics. The transform
// for column j is (x - mean[j]) / scale[j]: an affine map of that column only,
// so values in other columns never influence it.
//
// Fields are unexported so a fitted set cannot be edited after the fact.
type ScalingParameters struct {
	columns  []string
	mean     []float64
	scale    []float64
	nSamples int
}

// NewScalingParameters builds a parameter set from already known statistics,
// e.g. when loading a persisted scaler.
func NewScalingParameters(columns []string, mean, scale []float64, nSamples int) (*ScalingParameters, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("%w: no columns", ErrScalingMismatch)
	}
	if len(mean) != len(columns) || len(scale) != len(columns) {
		return nil, fmt.Errorf("%w: %d columns, %d means, %d scales",
			ErrScalingMismatch, len(columns), len(mean), len(scale))
	}
	for i, s := range scale {
		if s == 0 || math.IsNaN(s) || math.IsInf(s, 0) {
			return nil, fmt.Errorf("invalid scale %v for column %q", s, columns[i])
		}
	}
	return &ScalingParameters{
		columns:  slices.Clone(columns),
		mean:     slices.Clone(mean),
		scale:    slices.Clone(scale),
		nSamples: nSamples,
	}, nil
}

// FitScaler computes the mean and population standard deviation of every
// column of frame. A constant column gets scale 1 so it maps to zero instead
// of dividing by zero.
func FitScaler(columns []string, frame [][]float64) (*ScalingParameters, error) {
	if len(frame) == 0 {
		return nil, errors.New("fit scaler: empty frame")
	}
	n := len(columns)
	mean := make([]float64, n)
	for i, row := range frame {
		if len(row) != n {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrScalingMismatch, i, len(row), n)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("fit scaler: row %d column %q is not finite", i, columns[j])
			}
			mean[j] += v
		}
	}
	count := float64(len(frame))
	for j := range mean {
		mean[j] /= count
	}

	scale := make([]float64, n)
	for _, row := range frame {
		for j, v := range row {
			d := v - mean[j]
			scale[j] += d * d
		}
	}
	for j := range scale {
		scale[j] = math.Sqrt(scale[j] / count)
		if scale[j] == 0 {
			scale[j] = 1
		}
	}
	return NewScalingParameters(columns, mean, scale, len(frame))
}

func (p *ScalingParameters) Columns() []string { return slices.Clone(p.columns) }
func (p *ScalingParameters) Mean() []float64   { return slices.Clone(p.mean) }
func (p *ScalingParameters) Scale() []float64  { return slices.Clone(p.scale) }
func (p *ScalingParameters) NSamples() int     { return p.nSamples }

// Check verifies the presented column layout is exactly the fitted one.
func (p *ScalingParameters) Check(columns []string) error {
	if !slices.Equal(p.columns, columns) {
		return fmt.Errorf("%w: fitted on %v, got %v", ErrScalingMismatch, p.columns, columns)
	}
	return nil
}

// Transform scales every row of frame. Rows must follow the fitted column order.
func (p *ScalingParameters) Transform(columns []string, frame [][]float64) ([][]float64, error) {
	return p.apply(columns, frame, func(j int, v float64) float64 {
		return (v - p.mean[j]) / p.scale[j]
	})
}

// InverseTransform maps scaled rows back to raw values.
func (p *ScalingParameters) InverseTransform(columns []string, frame [][]float64) ([][]float64, error) {
	return p.apply(columns, frame, func(j int, v float64) float64 {
		return v*p.scale[j] + p.mean[j]
	})
}

func (p *ScalingParameters) apply(columns []string, frame [][]float64, fn func(j int, v float64) float64) ([][]float64, error) {
	if err := p.Check(columns); err != nil {
		return nil, err
	}
	out := make([][]float64, len(frame))
	for i, row := range frame {
		if len(row) != len(p.columns) {
			return nil, fmt.Errorf("%w: row %d has %d values, want %d", ErrScalingMismatch, i, len(row), len(p.columns))
		}
		scaled := make([]float64, len(row))
		for j, v := range row {
			scaled[j] = fn(j, v)
		}
		out[i] = scaled
	}
	return out, nil
}
