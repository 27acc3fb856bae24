// Package metrics exposes Prometheus metrics for the live loop and retrains.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

const namespace = "fxforecast"

// Recorder holds the application metrics. A nil *Recorder is valid and
// records nothing.
type Recorder struct {
	cyclesTotal       *prometheus.CounterVec
	fetchFailures     *prometheus.CounterVec
	lastPrice         *prometheus.GaugeVec
	lastPrediction    *prometheus.GaugeVec
	lastConfidence    *prometheus.GaugeVec
	retrainsTotal     *prometheus.CounterVec
	retrainDuration   prometheus.Histogram
	lastRetrainUnix   prometheus.Gauge
	artifactSwapTotal prometheus.Counter
}

// New registers all metrics on reg.
func New(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		cyclesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "cycles_total",
			Help:      "Live loop cycles by outcome",
		}, []string{"outcome"}),
		fetchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_failures_total",
			Help:      "Failed fetch attempts by source",
		}, []string{"source"}),
		lastPrice: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "last_price",
			Help:      "Last observed price",
		}, []string{"symbol"}),
		lastPrediction: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "predicted_close",
			Help:      "Last predicted closing price",
		}, []string{"symbol"}),
		lastConfidence: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "live",
			Name:      "confidence_percent",
			Help:      "Confidence attached to the last prediction",
		}, []string{"symbol"}),
		retrainsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "retrain",
			Name:      "runs_total",
			Help:      "Retrain runs by outcome and failing stage",
		}, []string{"outcome", "stage"}),
		retrainDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "retrain",
			Name:      "duration_seconds",
			Help:      "Retrain run duration",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),
		lastRetrainUnix: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "retrain",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful retrain",
		}),
		artifactSwapTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "artifact_swaps_total",
			Help:      "Times the serving artifact was replaced",
		}),
	}
}

// Cycle records the outcome of one live cycle: "ok", "no_data" or "error".
func (r *Recorder) Cycle(outcome string) {
	if r == nil {
		return
	}
	r.cyclesTotal.WithLabelValues(outcome).Inc()
}

func (r *Recorder) FetchFailure(source string) {
	if r == nil {
		return
	}
	r.fetchFailures.WithLabelValues(source).Inc()
}

// Prediction records the latest quote, forecast and confidence for symbol.
func (r *Recorder) Prediction(symbol string, price, predicted, confidence float64) {
	if r == nil {
		return
	}
	r.lastPrice.WithLabelValues(symbol).Set(price)
	r.lastPrediction.WithLabelValues(symbol).Set(predicted)
	r.lastConfidence.WithLabelValues(symbol).Set(confidence)
}

// Retrain records a finished retrain. stage is empty on success.
func (r *Recorder) Retrain(ok bool, stage string, d time.Duration) {
	if r == nil {
		return
	}
	outcome := "ok"
	if !ok {
		outcome = "failed"
	}
	r.retrainsTotal.WithLabelValues(outcome, stage).Inc()
	r.retrainDuration.Observe(d.Seconds())
	if ok {
		r.lastRetrainUnix.SetToCurrentTime()
	}
}

func (r *Recorder) ArtifactSwap() {
	if r == nil {
		return
	}
	r.artifactSwapTotal.Inc()
}

// Serve exposes reg on addr under /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, reg prometheus.Gatherer, log zerolog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("metrics server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
