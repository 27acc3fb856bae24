package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FXForecaster/internal/model"
)

func knownParams(t *testing.T) *ScalingParameters {
	t.Helper()
	p, err := NewScalingParameters(FrameColumns,
		[]float64{1.05, 1.06, 1.04, 1.05},
		[]float64{0.01, 0.01, 0.01, 0.01}, 100)
	require.NoError(t, err)
	return p
}

func TestForward_KnownParameters(t *testing.T) {
	tr, err := NewTransformer(knownParams(t))
	require.NoError(t, err)

	fv, err := tr.Forward(model.Quote{Price: 1.0493, Open: 1.0490, High: 1.0500, Low: 1.0480})
	require.NoError(t, err)

	assert.InDelta(t, -0.10, fv[0], 1e-9)
	assert.InDelta(t, -1.00, fv[1], 1e-9)
	assert.InDelta(t, 0.80, fv[2], 1e-9)
}

func TestInverse_KnownParameters(t *testing.T) {
	tr, err := NewTransformer(knownParams(t))
	require.NoError(t, err)

	got, err := tr.Inverse(0.20)
	require.NoError(t, err)
	assert.InDelta(t, 1.052, got, 1e-12)
}

func TestRoundTrip_FittedScaler(t *testing.T) {
	frame := [][]float64{
		{1.0812, 1.0874, 1.0790, 1.0851},
		{1.0851, 1.0902, 1.0833, 1.0889},
		{1.0889, 1.0895, 1.0801, 1.0810},
		{1.0810, 1.0844, 1.0768, 1.0837},
		{1.0837, 1.0921, 1.0829, 1.0915},
	}
	params, err := FitScaler(FrameColumns, frame)
	require.NoError(t, err)
	tr, err := NewTransformer(params)
	require.NoError(t, err)

	for _, row := range frame {
		scaled, err := tr.ScaleRow(row[0], row[1], row[2], row[3])
		require.NoError(t, err)
		back, err := tr.Inverse(scaled[closeIndex])
		require.NoError(t, err)
		assert.InDelta(t, row[3], back, 1e-12)
	}
}

func TestForward_PlaceholderDoesNotAffectFeatures(t *testing.T) {
	tr, err := NewTransformer(knownParams(t))
	require.NoError(t, err)

	a, err := tr.ForwardRow(1.049, 1.05, 1.048, 0)
	require.NoError(t, err)
	b, err := tr.ForwardRow(1.049, 1.05, 1.048, 1.0512)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNewTransformer_ColumnMismatch(t *testing.T) {
	tests := []struct {
		name    string
		columns []string
	}{
		{"reordered", []string{ColHigh, ColOpen, ColLow, ColClose}},
		{"missing close", []string{ColOpen, ColHigh, ColLow}},
		{"extra column", []string{ColOpen, ColHigh, ColLow, ColClose, "Volume"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mean := make([]float64, len(tt.columns))
			scale := make([]float64, len(tt.columns))
			for i := range scale {
				scale[i] = 1
			}
			p, err := NewScalingParameters(tt.columns, mean, scale, 1)
			require.NoError(t, err)

			_, err = NewTransformer(p)
			assert.ErrorIs(t, err, ErrScalingMismatch)
		})
	}
}

func TestNewScalingParameters_LengthMismatch(t *testing.T) {
	_, err := NewScalingParameters(FrameColumns, []float64{1, 2, 3}, []float64{1, 1, 1, 1}, 1)
	assert.ErrorIs(t, err, ErrScalingMismatch)
}

func TestTransform_RowWidthMismatch(t *testing.T) {
	p := knownParams(t)
	_, err := p.Transform(FrameColumns, [][]float64{{1, 2, 3}})
	assert.ErrorIs(t, err, ErrScalingMismatch)
}

func TestFitScaler_ConstantColumn(t *testing.T) {
	p, err := FitScaler(FrameColumns, [][]float64{
		{1, 2, 3, 4},
		{1, 4, 3, 6},
	})
	require.NoError(t, err)

	assert.Equal(t, []float64{1, 3, 3, 5}, p.Mean())
	assert.Equal(t, []float64{1, 1, 1, 1}, p.Scale())
	assert.Equal(t, 2, p.NSamples())
}

func TestScalingParameters_AccessorsReturnCopies(t *testing.T) {
	p := knownParams(t)
	m := p.Mean()
	m[0] = 99
	assert.Equal(t, 1.05, p.Mean()[0])
}
