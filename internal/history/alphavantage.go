// Package history keeps the local daily-bar dataset up to date from a remote
// FX history provider.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"FXForecaster/internal/collector"
	"FXForecaster/internal/dataset"
	"FXForecaster/internal/model"
	"FXForecaster/internal/retry"
)

// ErrUnsupportedSymbol is returned for symbols the feed has no mapping for.
var ErrUnsupportedSymbol = errors.New("unsupported symbol")

// pairs maps the internal symbol to the provider's from/to currency codes.
var pairs = map[string][2]string{
	"EURUSD": {"EUR", "USD"},
}

// Update is the outcome of one Feed.Update call.
type Update struct {
	Symbol  string
	Full    bool // whole history was requested
	Fetched int
	Added   int
	Total   int
	From    time.Time
	To      time.Time
	Gap     bool // fetched window did not reach back to the last stored bar
}

// Feed appends new daily bars for a symbol to a CSV dataset.
type Feed interface {
	Update(ctx context.Context, datasetPath, symbol string) (Update, error)
}

// AlphaVantage implements Feed with the FX_DAILY endpoint.
type AlphaVantage struct {
	Fetcher collector.PageFetcher
	BaseURL string
	APIKey  string
	Policy  retry.Policy
	log     zerolog.Logger
}

// NewAlphaVantage creates the feed. An empty baseURL uses the public endpoint.
func NewAlphaVantage(fetcher collector.PageFetcher, baseURL, apiKey string, policy retry.Policy, log zerolog.Logger) *AlphaVantage {
	if baseURL == "" {
		baseURL = "https://www.alphavantage.co"
	}
	return &AlphaVantage{
		Fetcher: fetcher,
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		Policy:  policy,
		log:     log.With().Str("component", "history").Str("source", "alphavantage").Logger(),
	}
}

// Update fetches the full history when the dataset does not exist yet, and
// otherwise the compact window, keeping only bars after the last stored date.
func (a *AlphaVantage) Update(ctx context.Context, datasetPath, symbol string) (Update, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	pair, ok := pairs[symbol]
	if !ok {
		return Update{}, fmt.Errorf("%w: %q", ErrUnsupportedSymbol, symbol)
	}

	existing, err := dataset.Load(datasetPath)
	if err != nil && !errors.Is(err, dataset.ErrNotExist) {
		return Update{}, err
	}
	up := Update{Symbol: symbol, Full: len(existing) == 0}

	size := "compact"
	if up.Full {
		size = "full"
	}
	q := url.Values{}
	q.Set("function", "FX_DAILY")
	q.Set("from_symbol", pair[0])
	q.Set("to_symbol", pair[1])
	q.Set("outputsize", size)
	q.Set("apikey", a.APIKey)
	u := a.BaseURL + "/query?" + q.Encode()

	res := retry.Do(ctx, a.Policy, func(ctx context.Context) ([]model.Bar, error) {
		body, err := a.Fetcher.Fetch(ctx, u)
		if err != nil {
			return nil, &collector.FetchError{Source: "alphavantage", Op: "fetch " + symbol, Err: err}
		}
		bars, err := parseFXDaily(body)
		if err != nil {
			return nil, &collector.FetchError{Source: "alphavantage", Op: "parse " + symbol, Err: err}
		}
		return bars, nil
	}, func(attempt int, err error) {
		a.log.Warn().Err(err).Int("attempt", attempt).Int("max_attempts", a.Policy.MaxAttempts).Msg("history fetch failed")
	})
	if !res.OK() {
		return Update{}, res.Err
	}
	fetched := res.Value
	up.Fetched = len(fetched)

	merged, added, overlapped := dataset.Merge(existing, fetched)
	up.Added = added
	up.Gap = !overlapped
	if up.Gap {
		a.log.Warn().
			Time("last_stored", existing[len(existing)-1].Date).
			Time("first_fetched", fetched[0].Date).
			Msg("fetched window does not overlap stored data, bars in between are missing")
	}
	if added > 0 || up.Full {
		if err := dataset.Save(datasetPath, merged); err != nil {
			return Update{}, fmt.Errorf("save dataset: %w", err)
		}
	}

	up.Total = len(merged)
	if len(merged) > 0 {
		up.From = merged[0].Date
		up.To = merged[len(merged)-1].Date
	}
	a.log.Info().
		Str("symbol", symbol).
		Bool("full", up.Full).
		Int("fetched", up.Fetched).
		Int("added", up.Added).
		Int("total", up.Total).
		Msg("dataset updated")
	return up, nil
}

type bar struct {
	Open  string `json:"1. open"`
	High  string `json:"2. high"`
	Low   string `json:"3. low"`
	Close string `json:"4. close"`
}

type fxDaily struct {
	Series      map[string]bar `json:"Time Series FX (Daily)"`
	ErrorMsg    string         `json:"Error Message"`
	Note        string         `json:"Note"`
	Information string         `json:"Information"`
}

func parseFXDaily(body string) ([]model.Bar, error) {
	var doc fxDaily
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	switch {
	case doc.ErrorMsg != "":
		return nil, fmt.Errorf("api error: %s", doc.ErrorMsg)
	case doc.Note != "":
		return nil, fmt.Errorf("rate limited: %s", doc.Note)
	case doc.Information != "":
		return nil, fmt.Errorf("api information: %s", doc.Information)
	case len(doc.Series) == 0:
		return nil, errors.New("empty time series")
	}

	out := make([]model.Bar, 0, len(doc.Series))
	for day, b := range doc.Series {
		d, err := time.Parse("2006-01-02", day)
		if err != nil {
			return nil, fmt.Errorf("parse date %q: %w", day, err)
		}
		var vals [4]float64
		for i, s := range []string{b.Open, b.High, b.Low, b.Close} {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return nil, fmt.Errorf("parse %s value %q: %w", day, s, err)
			}
			vals[i] = v
		}
		out = append(out, model.Bar{Date: d, Open: vals[0], High: vals[1], Low: vals[2], Close: vals[3]})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}
