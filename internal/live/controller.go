// Package live runs the polling loop that turns live quotes into close-price
// predictions.
package live

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"FXForecaster/internal/artifact"
	"FXForecaster/internal/collector"
	"FXForecaster/internal/confidence"
	"FXForecaster/internal/engine"
	"FXForecaster/internal/metrics"
	"FXForecaster/internal/model"
	"FXForecaster/internal/notifier"
)

// ErrNoData marks a cycle in which every quote fetch attempt failed.
var ErrNoData = errors.New("no quote data this cycle")

// DefaultInterval is the pause between cycles.
const DefaultInterval = 180 * time.Second

// Controller drives one ticker through fetch, predict and emit on a fixed
// interval.
type Controller struct {
	Collector *collector.Collector
	Holder    *artifact.Holder
	Store     *artifact.Store // optional; polled each cycle for a newer pair
	Session   confidence.Session
	Emitter   notifier.Emitter
	Metrics   *metrics.Recorder
	Interval  time.Duration

	log  zerolog.Logger
	now  func() time.Time
	eng  *engine.Engine
	last atomic.Pointer[model.PredictionResult]
}

// NewController creates a controller. A zero interval uses DefaultInterval.
func NewController(col *collector.Collector, holder *artifact.Holder, store *artifact.Store,
	session confidence.Session, emitter notifier.Emitter, m *metrics.Recorder, interval time.Duration, log zerolog.Logger) *Controller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Controller{
		Collector: col,
		Holder:    holder,
		Store:     store,
		Session:   session,
		Emitter:   emitter,
		Metrics:   m,
		Interval:  interval,
		log:       log.With().Str("component", "live").Str("ticker", col.Ticker).Logger(),
		now:       time.Now,
	}
}

// Last returns the most recent prediction, or nil before the first one.
func (c *Controller) Last() *model.PredictionResult { return c.last.Load() }

// Run executes cycles until ctx is cancelled. A failed cycle is logged and
// the loop carries on with the next one.
func (c *Controller) Run(ctx context.Context) error {
	c.log.Info().Dur("interval", c.Interval).Msg("live loop started")
	for {
		if _, err := c.RunCycle(ctx); err != nil && ctx.Err() == nil {
			if errors.Is(err, ErrNoData) {
				c.log.Warn().Msg("no data this cycle")
			} else {
				c.log.Error().Err(err).Msg("cycle failed")
			}
		}

		select {
		case <-ctx.Done():
			c.log.Info().Msg("live loop stopped")
			return nil
		case <-time.After(c.Interval):
		}
	}
}

// RunCycle performs a single fetch, predict and emit pass.
func (c *Controller) RunCycle(ctx context.Context) (*model.PredictionResult, error) {
	c.refresh()

	eng, err := c.currentEngine()
	if err != nil {
		c.Metrics.Cycle("error")
		return nil, err
	}

	res := c.Collector.Collect(ctx)
	failed := res.Attempts
	if res.OK() {
		failed--
	}
	for i := 0; i < failed; i++ {
		c.Metrics.FetchFailure(c.Collector.Source.Name())
	}
	if !res.OK() {
		c.Metrics.Cycle("no_data")
		return nil, fmt.Errorf("%w: %v", ErrNoData, res.Err)
	}
	q := res.Value

	r, err := c.predict(eng, q)
	if err != nil {
		c.Metrics.Cycle("error")
		return nil, err
	}

	c.last.Store(r)
	c.Metrics.Prediction(r.Symbol, q.Price, r.Value, r.Confidence)
	if c.Emitter != nil {
		if err := c.Emitter.Emit(ctx, *r); err != nil {
			c.log.Error().Err(err).Msg("emit prediction")
		}
	}
	c.Metrics.Cycle("ok")
	return r, nil
}

func (c *Controller) predict(eng *engine.Engine, q model.Quote) (*model.PredictionResult, error) {
	tr := eng.Transformer()
	fv, err := tr.Forward(q)
	if err != nil {
		return nil, fmt.Errorf("transform quote: %w", err)
	}
	value, err := tr.Inverse(eng.Predict(fv))
	if err != nil {
		return nil, fmt.Errorf("inverse transform: %w", err)
	}

	now := c.now()
	ttc := c.Session.Countdown(now)
	conf, err := confidence.Estimate(ttc)
	if err != nil {
		return nil, fmt.Errorf("confidence: %w", err)
	}

	return &model.PredictionResult{
		Symbol:          c.Collector.Ticker,
		Quote:           q,
		Value:           value,
		Confidence:      conf,
		TimeToClose:     ttc,
		ArtifactVersion: eng.Artifact().Version,
		ProducedAt:      now.UTC(),
	}, nil
}

// refresh picks up a pair published by a retrain in another process. On
// failure the held artifact keeps serving.
func (c *Controller) refresh() {
	if c.Store == nil {
		return
	}
	swapped, err := c.Holder.Refresh(c.Store)
	if err != nil {
		c.log.Warn().Err(err).Msg("artifact refresh failed, keeping current model")
		return
	}
	if swapped {
		c.Metrics.ArtifactSwap()
		c.log.Info().Stringer("artifact", c.Holder.Current()).Msg("serving new artifact")
	}
}

// currentEngine returns an engine bound to the held artifact, rebuilding it only
// when the artifact changed.
func (c *Controller) currentEngine() (*engine.Engine, error) {
	a := c.Holder.Current()
	if a == nil {
		return nil, engine.ErrModelUnavailable
	}
	if c.eng != nil && c.eng.Artifact() == a {
		return c.eng, nil
	}
	eng, err := engine.New(a)
	if err != nil {
		return nil, err
	}
	c.eng = eng
	return eng, nil
}
