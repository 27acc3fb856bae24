package collector

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"FXForecaster/internal/model"
	"FXForecaster/internal/retry"
)

// tickerAliases maps accepted command-line tickers to the quote source symbol.
var tickerAliases = map[string]string{
	"EURUSD":   "EURUSD=X",
	"EURUSD=X": "EURUSD=X",
}

// ResolveTicker returns the quote symbol for a user supplied ticker and
// whether it is supported.
func ResolveTicker(arg string) (string, bool) {
	t, ok := tickerAliases[strings.ToUpper(strings.TrimSpace(arg))]
	return t, ok
}

// Collector fetches quotes for one ticker with bounded retries.
type Collector struct {
	Source QuoteSource
	Ticker string
	Policy retry.Policy
	log    zerolog.Logger
}

// NewCollector creates a new Collector.
func NewCollector(source QuoteSource, ticker string, policy retry.Policy, log zerolog.Logger) *Collector {
	return &Collector{
		Source: source,
		Ticker: ticker,
		Policy: policy,
		log:    log.With().Str("component", "collector").Str("source", source.Name()).Logger(),
	}
}

// Collect returns the latest quote. When every attempt fails the result
// carries the last error and the caller treats the cycle as having no data.
func (c *Collector) Collect(ctx context.Context) retry.Result[model.Quote] {
	res := retry.Do(ctx, c.Policy, func(ctx context.Context) (model.Quote, error) {
		return c.Source.GetTickerData(ctx, c.Ticker)
	}, func(attempt int, err error) {
		c.log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", c.Policy.MaxAttempts).Msg("quote fetch failed")
	})
	if !res.OK() {
		c.log.Error().Err(res.Err).Int("attempts", res.Attempts).Msg("all retries failed, no data this cycle")
	}
	return res
}

// MockSource returns controllable fixed quotes for development and testing.
type MockSource struct {
	mu    sync.Mutex
	Quote model.Quote
	Err   error // returned instead of Quote when set
	Calls int
}

func (m *MockSource) Name() string { return "mock" }

func (m *MockSource) GetTickerData(_ context.Context, ticker string) (model.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls++
	if m.Err != nil {
		return model.Quote{}, &FetchError{Source: m.Name(), Op: "fetch " + ticker, Err: m.Err}
	}
	q := m.Quote
	if q.Symbol == "" {
		q.Symbol = ticker
	}
	if q.Timestamp.IsZero() {
		q.Timestamp = time.Now().UTC()
	}
	return q, nil
}

// SetErr changes the error returned by later calls.
func (m *MockSource) SetErr(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Err = err
}

// CallCount returns how many times GetTickerData ran.
func (m *MockSource) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls
}
