package retrain

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"FXForecaster/internal/artifact"
	"FXForecaster/internal/dataset"
	"FXForecaster/internal/forest"
	"FXForecaster/internal/history"
	"FXForecaster/internal/metrics"
	"FXForecaster/internal/model"
	"FXForecaster/internal/recorder"
)

// fakeFeed appends n synthetic bars per Update call.
type fakeFeed struct {
	n     int
	err   error
	calls int
}

func (f *fakeFeed) Update(_ context.Context, path, symbol string) (history.Update, error) {
	f.calls++
	if f.err != nil {
		return history.Update{}, f.err
	}
	existing, err := dataset.Load(path)
	if err != nil && !errors.Is(err, dataset.ErrNotExist) {
		return history.Update{}, err
	}
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, len(existing))
	var fresh []model.Bar
	for i := 0; i < f.n; i++ {
		k := float64(len(existing) + i)
		base := 1.05 + 0.001*float64(int(k)%17)
		fresh = append(fresh, model.Bar{
			Date:  start.AddDate(0, 0, i),
			Open:  base,
			High:  base + 0.004,
			Low:   base - 0.004,
			Close: base + 0.001*float64(int(k)%3-1),
		})
	}
	merged, added, _ := dataset.Merge(existing, fresh)
	if err := dataset.Save(path, merged); err != nil {
		return history.Update{}, err
	}
	return history.Update{Symbol: symbol, Added: added, Total: len(merged)}, nil
}

type failingTrainer struct{ err error }

func (t failingTrainer) Fit([][]float64, []float64) (*forest.Forest, error) { return nil, t.err }

// observingTrainer records the orchestrator state while fitting.
type observingTrainer struct {
	o    *Orchestrator
	seen State
	next Trainer
}

func (t *observingTrainer) Fit(X [][]float64, y []float64) (*forest.Forest, error) {
	t.seen = t.o.State()
	return t.next.Fit(X, y)
}

func smallTrainer() *forest.Trainer {
	p := forest.DefaultParams()
	p.NEstimators = 5
	p.MaxDepth = 4
	return &forest.Trainer{Params: p}
}

type fixture struct {
	o     *Orchestrator
	store *artifact.Store
	feed  *fakeFeed
	rec   *memRecorder
}

type memRecorder struct{ runs []recorder.RetrainRun }

func (m *memRecorder) RecordRetrain(r *recorder.RetrainRun) error {
	m.runs = append(m.runs, *r)
	return nil
}
func (m *memRecorder) RecentRetrains(int) ([]recorder.RetrainRun, error) { return m.runs, nil }
func (m *memRecorder) Close() error                                      { return nil }

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	store := artifact.NewStore(filepath.Join(dir, "models"), "EURUSD_daily", 3)
	feed := &fakeFeed{n: 60}
	rec := &memRecorder{}
	o := NewOrchestrator("EURUSD", filepath.Join(dir, "data", "eur_usd_data.csv"), feed, smallTrainer(),
		store, artifact.NewHolder(nil), rec, metrics.New(prometheus.NewRegistry()), zerolog.Nop())
	return &fixture{o: o, store: store, feed: feed, rec: rec}
}

// readPair returns the bytes of every file in the current version.
func readPair(t *testing.T, s *artifact.Store) map[string][]byte {
	t.Helper()
	v, err := s.Current()
	require.NoError(t, err)
	out := map[string][]byte{"CURRENT": []byte(v)}
	for _, name := range []string{"model.json", "scaler.json", "manifest.json"} {
		data, err := os.ReadFile(filepath.Join(s.VersionDir(v), name))
		require.NoError(t, err)
		out[name] = data
	}
	return out
}

func TestRun_PublishesAndSwaps(t *testing.T) {
	fx := newFixture(t)
	assert.Equal(t, Idle, fx.o.State())

	a, err := fx.o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Idle, fx.o.State())
	assert.Equal(t, 60, a.Rows)
	assert.Same(t, a, fx.o.Holder.Current())

	loaded, err := fx.store.LoadCurrent()
	require.NoError(t, err)
	assert.Equal(t, a.Version, loaded.Version)
	x := []float64{0.1, -0.2, 0.3}
	assert.Equal(t, a.Model.Predict(x), loaded.Model.Predict(x))
	assert.Equal(t, a.Scaler.Mean(), loaded.Scaler.Mean())

	require.Len(t, fx.rec.runs, 1)
	assert.Equal(t, "ok", fx.rec.runs[0].Outcome)
	assert.Equal(t, a.Version, fx.rec.runs[0].Version)
	assert.Equal(t, 60, fx.rec.runs[0].Added)
}

func TestRun_FittingFailureKeepsPreviousPair(t *testing.T) {
	fx := newFixture(t)
	prev, err := fx.o.Run(context.Background())
	require.NoError(t, err)
	before := readPair(t, fx.store)

	fx.o.Trainer = failingTrainer{err: errors.New("out of memory")}
	a, err := fx.o.Run(context.Background())
	assert.Nil(t, a)
	require.ErrorIs(t, err, ErrRetrainFailure)
	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, Fitting, f.Stage)
	assert.ErrorContains(t, err, "out of memory")
	assert.Equal(t, Failed, fx.o.State())

	assert.Equal(t, before, readPair(t, fx.store))
	assert.Same(t, prev, fx.o.Holder.Current())

	require.Len(t, fx.rec.runs, 2)
	assert.Equal(t, "failed", fx.rec.runs[1].Outcome)
	assert.Equal(t, "Fitting", fx.rec.runs[1].Stage)
}

func TestRun_FetchFailure(t *testing.T) {
	fx := newFixture(t)
	fx.feed.err = history.ErrUnsupportedSymbol

	_, err := fx.o.Run(context.Background())
	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, Fetching, f.Stage)
	assert.ErrorIs(t, err, history.ErrUnsupportedSymbol)

	_, err = fx.store.Current()
	assert.ErrorIs(t, err, artifact.ErrNoArtifact)
}

func TestRun_TooFewRows(t *testing.T) {
	fx := newFixture(t)
	fx.feed.n = 1

	_, err := fx.o.Run(context.Background())
	var f *Failure
	require.ErrorAs(t, err, &f)
	assert.Equal(t, Transforming, f.Stage)
}

func TestRun_RecoversAfterFailure(t *testing.T) {
	fx := newFixture(t)
	fx.o.Trainer = failingTrainer{err: errors.New("boom")}
	_, err := fx.o.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, Failed, fx.o.State())

	obs := &observingTrainer{o: fx.o, next: smallTrainer()}
	fx.o.Trainer = obs
	a, err := fx.o.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Fitting, obs.seen)
	assert.Equal(t, Idle, fx.o.State())
	assert.Equal(t, 120, a.Rows)
}

func TestRun_Cancelled(t *testing.T) {
	fx := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := fx.o.Run(ctx)
	assert.ErrorIs(t, err, ErrRetrainFailure)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_RejectsConcurrentRun(t *testing.T) {
	fx := newFixture(t)
	fx.o.mu.Lock()
	defer fx.o.mu.Unlock()

	_, err := fx.o.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunning)
}

func TestRun_PrunesOldVersions(t *testing.T) {
	fx := newFixture(t)
	for i := 0; i < 5; i++ {
		_, err := fx.o.Run(context.Background())
		require.NoError(t, err)
	}
	entries, err := os.ReadDir(filepath.Dir(fx.store.VersionDir("x")))
	require.NoError(t, err)
	assert.Len(t, entries, 3)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Saving", Saving.String())
	assert.Equal(t, "State(42)", State(42).String())
}

func TestLastRun(t *testing.T) {
	fx := newFixture(t)
	assert.Nil(t, fx.o.LastRun())
	a, err := fx.o.Run(context.Background())
	require.NoError(t, err)
	require.NotNil(t, fx.o.LastRun())
	assert.Equal(t, a.Version, fx.o.LastRun().Version)
	assert.Equal(t, 60, fx.o.LastRun().Rows)
}
