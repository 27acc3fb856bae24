package transform

import (
	"errors"

	"FXForecaster/internal/model"
)

// placeholder stands in for the unknown Close at inference time, and for the
// unused feature columns when inverting a prediction. Any finite value works
// because each column is scaled independently; zero is the convention.
const placeholder = 0.0

// closeIndex is the position of Close within FrameColumns.
const closeIndex = 3

// Transformer converts raw quotes into the model's scaled feature space and
// scaled predictions back into prices.
type Transformer struct {
	params *ScalingParameters
}

// NewTransformer validates that params were fitted on FrameColumns.
func NewTransformer(params *ScalingParameters) (*Transformer, error) {
	if params == nil {
		return nil, errors.New("transformer: nil scaling parameters")
	}
	if err := params.Check(FrameColumns); err != nil {
		return nil, err
	}
	return &Transformer{params: params}, nil
}

// Forward scales the quote's Open, High and Low. Close is unknown intraday and
// is filled with the placeholder, whose scaled value is discarded.
func (t *Transformer) Forward(q model.Quote) (model.FeatureVector, error) {
	return t.ForwardRow(q.Open, q.High, q.Low, placeholder)
}

// ForwardRow scales a full four-column row and returns the feature part.
func (t *Transformer) ForwardRow(open, high, low, closePrice float64) (model.FeatureVector, error) {
	scaled, err := t.params.Transform(FrameColumns, [][]float64{{open, high, low, closePrice}})
	if err != nil {
		return model.FeatureVector{}, err
	}
	return model.FeatureVector{scaled[0][0], scaled[0][1], scaled[0][2]}, nil
}

// ScaleRow scales a full row including Close.
func (t *Transformer) ScaleRow(open, high, low, closePrice float64) ([]float64, error) {
	scaled, err := t.params.Transform(FrameColumns, [][]float64{{open, high, low, closePrice}})
	if err != nil {
		return nil, err
	}
	return scaled[0], nil
}

// Inverse recovers a raw Close from a scaled one.
func (t *Transformer) Inverse(scaledClose float64) (float64, error) {
	row := []float64{placeholder, placeholder, placeholder, scaledClose}
	raw, err := t.params.InverseTransform(FrameColumns, [][]float64{row})
	if err != nil {
		return 0, err
	}
	return raw[0][closeIndex], nil
}
