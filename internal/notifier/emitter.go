// Package notifier delivers live predictions and retrain outcomes to the
// console and to Telegram.
package notifier

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"

	"FXForecaster/internal/model"
)

// Emitter receives every prediction the live loop produces.
type Emitter interface {
	Emit(ctx context.Context, r model.PredictionResult) error
}

// ConsoleEmitter prints the report block to a writer and logs the result.
type ConsoleEmitter struct {
	mu  sync.Mutex
	w   io.Writer
	log zerolog.Logger
}

func NewConsoleEmitter(w io.Writer, log zerolog.Logger) *ConsoleEmitter {
	return &ConsoleEmitter{w: w, log: log.With().Str("component", "console").Logger()}
}

func (c *ConsoleEmitter) Emit(_ context.Context, r model.PredictionResult) error {
	diff, dir := r.UnitDiff()
	c.log.Info().
		Str("symbol", r.Symbol).
		Float64("price", r.Quote.Price).
		Float64("predicted_close", r.Value).
		Float64("unit_diff", diff).
		Str("direction", string(dir)).
		Float64("confidence", r.Confidence).
		Str("time_to_close", r.TimeToClose).
		Str("artifact", r.ArtifactVersion).
		Msg("prediction")

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := io.WriteString(c.w, FormatReport(r))
	return err
}

// Multi fans a result out to several emitters. Every emitter is called; the
// errors are joined.
type Multi []Emitter

func (m Multi) Emit(ctx context.Context, r model.PredictionResult) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
