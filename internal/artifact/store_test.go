package artifact

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FXForecaster/internal/forest"
	"FXForecaster/internal/transform"
)

func testArtifact(t *testing.T, version string, bias float64) *Artifact {
	t.Helper()
	X := [][]float64{{0, 0, 0}, {1, 1, 1}, {2, 2, 2}, {3, 3, 3}}
	y := []float64{bias, bias + 1, bias + 2, bias + 3}
	p := forest.DefaultParams()
	p.NEstimators = 3
	f, err := forest.Fit(X, y, p)
	require.NoError(t, err)

	sc, err := transform.NewScalingParameters(transform.FrameColumns,
		[]float64{1.05, 1.06, 1.04, 1.05 + bias}, []float64{0.01, 0.01, 0.01, 0.01}, 4)
	require.NoError(t, err)

	return &Artifact{
		Name:     "EURUSD_daily",
		Version:  version,
		FittedAt: time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC),
		Model:    f,
		Scaler:   sc,
		Rows:     4,
		DataFrom: time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC),
		DataTo:   time.Date(2026, 9, 30, 0, 0, 0, 0, time.UTC),
	}
}

func TestStore_PublishAndLoad(t *testing.T) {
	s := NewStore(t.TempDir(), "EURUSD_daily", 0)
	a := testArtifact(t, "v1", 0)

	require.NoError(t, s.Publish(a))

	cur, err := s.Current()
	require.NoError(t, err)
	assert.Equal(t, "v1", cur)

	got, err := s.LoadCurrent()
	require.NoError(t, err)
	assert.Equal(t, "v1", got.Version)
	assert.Equal(t, a.Rows, got.Rows)
	assert.True(t, a.DataTo.Equal(got.DataTo))
	assert.Equal(t, a.Scaler.Mean(), got.Scaler.Mean())
	assert.Equal(t, a.Model.Predict([]float64{1.5, 1.5, 1.5}), got.Model.Predict([]float64{1.5, 1.5, 1.5}))
}

func TestStore_NoArtifact(t *testing.T) {
	s := NewStore(t.TempDir(), "EURUSD_daily", 0)
	_, err := s.LoadCurrent()
	assert.ErrorIs(t, err, ErrNoArtifact)
}

func TestStore_FailedPublishKeepsPreviousPair(t *testing.T) {
	s := NewStore(t.TempDir(), "EURUSD_daily", 0)
	require.NoError(t, s.Publish(testArtifact(t, "v1", 0)))
	before := readPair(t, s)

	s.afterWrite = func(file string) error {
		if file == modelFile {
			return errors.New("simulated crash")
		}
		return nil
	}
	err := s.Publish(testArtifact(t, "v2", 5))
	require.Error(t, err)

	cur, err := s.Current()
	require.NoError(t, err)
	assert.Equal(t, "v1", cur)
	assert.Equal(t, before, readPair(t, s))
	_, err = os.Stat(s.VersionDir("v2"))
	assert.True(t, os.IsNotExist(err))

	entries, err := os.ReadDir(filepath.Join(s.base(), versionsDir))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStore_DetectsMismatchedPair(t *testing.T) {
	s := NewStore(t.TempDir(), "EURUSD_daily", 0)
	require.NoError(t, s.Publish(testArtifact(t, "v1", 0)))
	require.NoError(t, s.Publish(testArtifact(t, "v2", 1)))

	// Put v1's scaler next to v2's model.
	data, err := os.ReadFile(filepath.Join(s.VersionDir("v1"), scalerFile))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(s.VersionDir("v2"), scalerFile), data, 0o644))

	_, err = s.LoadCurrent()
	assert.ErrorIs(t, err, ErrPairMismatch)
}

func TestStore_DetectsTamperedFile(t *testing.T) {
	s := NewStore(t.TempDir(), "EURUSD_daily", 0)
	require.NoError(t, s.Publish(testArtifact(t, "v1", 0)))

	path := filepath.Join(s.VersionDir("v1"), scalerFile)
	require.NoError(t, os.WriteFile(path, []byte(`{"version":"v1","columns":["Open","High","Low","Close"],"mean":[0,0,0,0],"scale":[1,1,1,1]}`), 0o644))

	_, err := s.LoadCurrent()
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestStore_PruneKeepsCurrent(t *testing.T) {
	s := NewStore(t.TempDir(), "EURUSD_daily", 2)
	for _, v := range []string{"v1", "v2", "v3", "v4"} {
		require.NoError(t, s.Publish(testArtifact(t, v, 0)))
	}
	require.NoError(t, os.MkdirAll(filepath.Join(s.base(), versionsDir, stagingPref+"stale"), 0o755))

	removed, err := s.Prune()
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, removed)

	entries, err := os.ReadDir(filepath.Join(s.base(), versionsDir))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"v3", "v4"}, names)
}

func TestHolder_Refresh(t *testing.T) {
	s := NewStore(t.TempDir(), "EURUSD_daily", 0)
	h := NewHolder(nil)

	_, err := h.Refresh(s)
	assert.ErrorIs(t, err, ErrNoArtifact)

	require.NoError(t, s.Publish(testArtifact(t, "v1", 0)))
	changed, err := h.Refresh(s)
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, "v1", h.Current().Version)

	changed, err = h.Refresh(s)
	require.NoError(t, err)
	assert.False(t, changed)

	require.NoError(t, s.Publish(testArtifact(t, "v2", 1)))
	require.NoError(t, os.Remove(filepath.Join(s.VersionDir("v2"), modelFile)))
	_, err = h.Refresh(s)
	assert.Error(t, err)
	assert.Equal(t, "v1", h.Current().Version)
}

func TestNewVersion_Sortable(t *testing.T) {
	a := NewVersion(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	b := NewVersion(time.Date(2026, 1, 2, 3, 4, 6, 0, time.UTC))
	assert.Less(t, a, b)
	assert.Contains(t, a, "20260102T030405Z-")
}

func readPair(t *testing.T, s *Store) map[string][]byte {
	t.Helper()
	cur, err := s.Current()
	require.NoError(t, err)
	out := map[string][]byte{}
	for _, f := range []string{modelFile, scalerFile, manifestFile} {
		data, err := os.ReadFile(filepath.Join(s.VersionDir(cur), f))
		require.NoError(t, err)
		out[f] = data
	}
	return out
}
