package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FXForecaster/internal/artifact"
	"FXForecaster/internal/model"
	"FXForecaster/internal/transform"
)

type constModel struct {
	value    float64
	features int
	seen     []float64
}

func (m *constModel) Predict(x []float64) float64 {
	m.seen = append([]float64(nil), x...)
	return m.value
}
func (m *constModel) NumFeatures() int { return m.features }

func knownArtifact(t *testing.T, m artifact.Regressor) *artifact.Artifact {
	t.Helper()
	sc, err := transform.NewScalingParameters(transform.FrameColumns,
		[]float64{1.05, 1.06, 1.04, 1.05}, []float64{0.01, 0.01, 0.01, 0.01}, 10)
	require.NoError(t, err)
	return &artifact.Artifact{Name: "EURUSD_daily", Version: "v1", Model: m, Scaler: sc}
}

func TestEngine_EndToEndScenario(t *testing.T) {
	m := &constModel{value: 0.20, features: 3}
	e, err := New(knownArtifact(t, m))
	require.NoError(t, err)

	fv, err := e.Transformer().Forward(model.Quote{Price: 1.0493, Open: 1.0490, High: 1.0500, Low: 1.0480})
	require.NoError(t, err)

	scaled := e.Predict(fv)
	assert.Equal(t, 0.20, scaled)
	require.Len(t, m.seen, 3)
	assert.InDelta(t, -0.10, m.seen[0], 1e-9)

	value, err := e.Transformer().Inverse(scaled)
	require.NoError(t, err)
	assert.InDelta(t, 1.052, value, 1e-12)
}

func TestNew_ModelUnavailable(t *testing.T) {
	_, err := New(nil)
	assert.ErrorIs(t, err, ErrModelUnavailable)

	a := knownArtifact(t, &constModel{features: 3})
	a.Model = nil
	_, err = New(a)
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestNew_FeatureWidthMismatch(t *testing.T) {
	_, err := New(knownArtifact(t, &constModel{features: 4}))
	assert.ErrorIs(t, err, transform.ErrScalingMismatch)
}

func TestLoad_EmptyStore(t *testing.T) {
	_, err := Load(artifact.NewStore(t.TempDir(), "EURUSD_daily", 0))
	assert.ErrorIs(t, err, ErrModelUnavailable)
}

func TestPredict_Deterministic(t *testing.T) {
	e, err := New(knownArtifact(t, &constModel{value: -0.3, features: 3}))
	require.NoError(t, err)
	fv := model.FeatureVector{0.1, 0.2, 0.3}
	assert.Equal(t, e.Predict(fv), e.Predict(fv))
}
