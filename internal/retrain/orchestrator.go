// Package retrain refreshes the dataset, refits the scaler and the forest,
// and publishes the result as a new artifact pair.
package retrain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"FXForecaster/internal/artifact"
	"FXForecaster/internal/dataset"
	"FXForecaster/internal/forest"
	"FXForecaster/internal/history"
	"FXForecaster/internal/metrics"
	"FXForecaster/internal/recorder"
	"FXForecaster/internal/transform"
)

// State is a stage of the retrain state machine.
type State int32

const (
	Idle State = iota
	Fetching
	Transforming
	Fitting
	Saving
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Fetching:
		return "Fetching"
	case Transforming:
		return "Transforming"
	case Fitting:
		return "Fitting"
	case Saving:
		return "Saving"
	case Failed:
		return "Failed"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

var (
	// ErrRetrainFailure matches every *Failure via errors.Is.
	ErrRetrainFailure = errors.New("retrain failed")
	// ErrRunning is returned when a run is already in progress.
	ErrRunning = errors.New("retrain already running")
)

// minRows is the smallest dataset a forest is fitted on.
const minRows = 2

// Failure reports the stage a retrain aborted in. The previously published
// artifact is untouched.
type Failure struct {
	Stage State
	Err   error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("retrain failed at %s: %v", f.Stage, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

func (f *Failure) Is(target error) bool { return target == ErrRetrainFailure }

// Trainer fits a regressor on scaled (Open, High, Low) against scaled Close.
type Trainer interface {
	Fit(X [][]float64, y []float64) (*forest.Forest, error)
}

// Orchestrator runs retrain cycles for one symbol.
type Orchestrator struct {
	Symbol      string
	DatasetPath string
	Feed        history.Feed
	Trainer     Trainer
	Store       *artifact.Store
	Holder      *artifact.Holder // optional, swapped after a publish
	Recorder    recorder.Recorder
	Metrics     *metrics.Recorder

	log   zerolog.Logger
	now   func() time.Time
	mu    sync.Mutex
	state atomic.Int32
	last  atomic.Pointer[recorder.RetrainRun]
}

// NewOrchestrator creates an orchestrator. Holder and Metrics may be nil;
// a nil Recorder is replaced by a no-op one.
func NewOrchestrator(symbol, datasetPath string, feed history.Feed, trainer Trainer,
	store *artifact.Store, holder *artifact.Holder, rec recorder.Recorder, m *metrics.Recorder, log zerolog.Logger) *Orchestrator {
	if rec == nil {
		rec = recorder.NewNoopRecorder()
	}
	return &Orchestrator{
		Symbol:      symbol,
		DatasetPath: datasetPath,
		Feed:        feed,
		Trainer:     trainer,
		Store:       store,
		Holder:      holder,
		Recorder:    rec,
		Metrics:     m,
		log:         log.With().Str("component", "retrain").Str("symbol", symbol).Logger(),
		now:         time.Now,
	}
}

// State returns the stage the orchestrator is currently in.
func (o *Orchestrator) State() State { return State(o.state.Load()) }

// LastRun returns the most recent finished run, or nil before the first one.
func (o *Orchestrator) LastRun() *recorder.RetrainRun { return o.last.Load() }

func (o *Orchestrator) enter(s State) {
	o.state.Store(int32(s))
	o.log.Debug().Stringer("state", s).Msg("retrain state")
}

// Run performs one full retrain cycle and returns the published artifact.
// Every failure is a *Failure; the artifact pair that was current before the
// call stays current.
func (o *Orchestrator) Run(ctx context.Context) (*artifact.Artifact, error) {
	if !o.mu.TryLock() {
		return nil, ErrRunning
	}
	defer o.mu.Unlock()

	run := &recorder.RetrainRun{StartedAt: o.now().UTC(), Symbol: o.Symbol}
	o.log.Info().Msg("retrain started")

	a, err := o.run(ctx, run)

	run.FinishedAt = o.now().UTC()
	elapsed := run.FinishedAt.Sub(run.StartedAt)
	if err != nil {
		var f *Failure
		if !errors.As(err, &f) {
			f = &Failure{Stage: o.State(), Err: err}
			err = f
		}
		o.enter(Failed)
		run.Stage = f.Stage.String()
		run.Outcome = "failed"
		run.Error = f.Err.Error()
		o.Metrics.Retrain(false, run.Stage, elapsed)
		o.log.Error().Err(f.Err).Stringer("stage", f.Stage).Dur("elapsed", elapsed).Msg("retrain failed, previous artifact stays in service")
	} else {
		o.enter(Idle)
		run.Stage = Saving.String()
		run.Outcome = "ok"
		run.Version = a.Version
		o.Metrics.Retrain(true, "", elapsed)
		o.log.Info().Str("version", a.Version).Int("rows", a.Rows).Dur("elapsed", elapsed).Msg("retrain complete")
	}
	o.last.Store(run)
	if rerr := o.Recorder.RecordRetrain(run); rerr != nil {
		o.log.Error().Err(rerr).Msg("record retrain run")
	}
	return a, err
}

func (o *Orchestrator) run(ctx context.Context, run *recorder.RetrainRun) (*artifact.Artifact, error) {
	fail := func(s State, err error) (*artifact.Artifact, error) {
		return nil, &Failure{Stage: s, Err: err}
	}

	o.enter(Fetching)
	up, err := o.Feed.Update(ctx, o.DatasetPath, o.Symbol)
	if err != nil {
		return fail(Fetching, err)
	}
	run.Added = up.Added
	if up.Gap {
		o.log.Warn().Msg("dataset has a gap before the newly fetched bars")
	}
	if err := ctx.Err(); err != nil {
		return fail(Fetching, err)
	}

	o.enter(Transforming)
	bars, err := dataset.Load(o.DatasetPath)
	if err != nil {
		return fail(Transforming, err)
	}
	if len(bars) < minRows {
		return fail(Transforming, fmt.Errorf("dataset has %d rows, need at least %d", len(bars), minRows))
	}
	run.Rows = len(bars)
	run.DataFrom = bars[0].Date
	run.DataTo = bars[len(bars)-1].Date

	frame := dataset.Frame(bars)
	scaler, err := transform.FitScaler(transform.FrameColumns, frame)
	if err != nil {
		return fail(Transforming, err)
	}
	scaled, err := scaler.Transform(transform.FrameColumns, frame)
	if err != nil {
		return fail(Transforming, err)
	}
	X := make([][]float64, len(scaled))
	y := make([]float64, len(scaled))
	for i, row := range scaled {
		X[i] = row[:3]
		y[i] = row[3]
	}
	if err := ctx.Err(); err != nil {
		return fail(Transforming, err)
	}

	o.enter(Fitting)
	model, err := o.Trainer.Fit(X, y)
	if err != nil {
		return fail(Fitting, err)
	}
	if err := ctx.Err(); err != nil {
		return fail(Fitting, err)
	}

	o.enter(Saving)
	fitted := o.now().UTC()
	a := &artifact.Artifact{
		Name:     o.Store.Name(),
		Version:  artifact.NewVersion(fitted),
		FittedAt: fitted,
		Model:    model,
		Scaler:   scaler,
		Rows:     len(bars),
		DataFrom: run.DataFrom,
		DataTo:   run.DataTo,
	}
	if err := o.Store.Publish(a); err != nil {
		return fail(Saving, err)
	}
	if o.Holder != nil {
		o.Holder.Swap(a)
		o.Metrics.ArtifactSwap()
	}
	if removed, err := o.Store.Prune(); err != nil {
		o.log.Warn().Err(err).Msg("prune old artifact versions")
	} else if len(removed) > 0 {
		o.log.Info().Strs("removed", removed).Msg("pruned old artifact versions")
	}
	return a, nil
}
