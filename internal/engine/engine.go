package engine

import (
	"errors"
	"fmt"

	"FXForecaster/internal/artifact"
	"FXForecaster/internal/model"
	"FXForecaster/internal/transform"
)

// ErrModelUnavailable means there is no usable artifact to serve from. The
// serving process must not start without one.
var ErrModelUnavailable = errors.New("model unavailable")

// Engine runs the regression model of a single artifact.
type Engine struct {
	art         *artifact.Artifact
	transformer *transform.Transformer
}

// New binds an engine to a loaded artifact.
func New(a *artifact.Artifact) (*Engine, error) {
	if a == nil || a.Model == nil || a.Scaler == nil {
		return nil, ErrModelUnavailable
	}
	if n := a.Model.NumFeatures(); n != len(model.FeatureVector{}) {
		return nil, fmt.Errorf("%w: model expects %d features, transformer yields %d",
			transform.ErrScalingMismatch, n, len(model.FeatureVector{}))
	}
	tr, err := transform.NewTransformer(a.Scaler)
	if err != nil {
		return nil, err
	}
	return &Engine{art: a, transformer: tr}, nil
}

// Load resolves the store's current artifact. Every failure, whether the pair
// is missing, corrupt or mismatched, is reported as ErrModelUnavailable.
func Load(s *artifact.Store) (*artifact.Artifact, error) {
	a, err := s.LoadCurrent()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	return a, nil
}

// Predict returns the scaled close for a scaled feature vector.
func (e *Engine) Predict(fv model.FeatureVector) float64 {
	return e.art.Model.Predict(fv.Slice())
}

func (e *Engine) Transformer() *transform.Transformer { return e.transformer }

func (e *Engine) Artifact() *artifact.Artifact { return e.art }
