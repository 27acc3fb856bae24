package collector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"FXForecaster/internal/model"
)

// YahooQuoteSource reads live quotes from the Yahoo Finance chart endpoint.
type YahooQuoteSource struct {
	Fetcher PageFetcher
	BaseURL string
}

// NewYahooQuoteSource creates a quote source on top of fetcher.
func NewYahooQuoteSource(fetcher PageFetcher, baseURL string) *YahooQuoteSource {
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}
	return &YahooQuoteSource{Fetcher: fetcher, BaseURL: strings.TrimRight(baseURL, "/")}
}

func (s *YahooQuoteSource) Name() string { return "yahoo" }

// yahooChart is the subset of the chart API response used for a quote.
type yahooChart struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string   `json:"symbol"`
				RegularMarketPrice *float64 `json:"regularMarketPrice"`
				RegularMarketHigh  *float64 `json:"regularMarketDayHigh"`
				RegularMarketLow   *float64 `json:"regularMarketDayLow"`
				RegularMarketTime  int64    `json:"regularMarketTime"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open []interface{} `json:"open"`
					High []interface{} `json:"high"`
					Low  []interface{} `json:"low"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

func toFloat(v interface{}) float64 {
	if v == nil {
		return 0
	}
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}

// lastNonZero returns the latest usable value of a per-bar series.
func lastNonZero(vals []interface{}) float64 {
	for i := len(vals) - 1; i >= 0; i-- {
		if f := toFloat(vals[i]); f != 0 {
			return f
		}
	}
	return 0
}

// GetTickerData fetches today's price, open, high and low for ticker.
func (s *YahooQuoteSource) GetTickerData(ctx context.Context, ticker string) (model.Quote, error) {
	u := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=1d", s.BaseURL, url.PathEscape(ticker))

	body, err := s.Fetcher.Fetch(ctx, u)
	if err != nil {
		return model.Quote{}, &FetchError{Source: s.Name(), Op: "fetch " + ticker, Err: err}
	}
	q, err := parseChartQuote(body)
	if err != nil {
		return model.Quote{}, &FetchError{Source: s.Name(), Op: "parse " + ticker, Err: err}
	}
	if q.Symbol == "" {
		q.Symbol = ticker
	}
	return q, nil
}

func parseChartQuote(body string) (model.Quote, error) {
	var chart yahooChart
	if err := json.Unmarshal([]byte(body), &chart); err != nil {
		return model.Quote{}, fmt.Errorf("decode: %w", err)
	}
	if chart.Chart.Error != nil {
		return model.Quote{}, fmt.Errorf("api error: %s", chart.Chart.Error.Description)
	}
	if len(chart.Chart.Result) == 0 {
		return model.Quote{}, errors.New("no data returned")
	}
	r := chart.Chart.Result[0]
	if r.Meta.RegularMarketPrice == nil {
		return model.Quote{}, errors.New("missing regularMarketPrice")
	}

	q := model.Quote{
		Symbol:    r.Meta.Symbol,
		Price:     *r.Meta.RegularMarketPrice,
		Timestamp: time.Unix(r.Meta.RegularMarketTime, 0).UTC(),
	}
	if len(r.Indicators.Quote) > 0 {
		bar := r.Indicators.Quote[0]
		q.Open = lastNonZero(bar.Open)
		q.High = lastNonZero(bar.High)
		q.Low = lastNonZero(bar.Low)
	}
	if r.Meta.RegularMarketHigh != nil {
		q.High = *r.Meta.RegularMarketHigh
	}
	if r.Meta.RegularMarketLow != nil {
		q.Low = *r.Meta.RegularMarketLow
	}

	if q.Open == 0 || q.High == 0 || q.Low == 0 {
		return model.Quote{}, fmt.Errorf("incomplete quote: open=%v high=%v low=%v", q.Open, q.High, q.Low)
	}
	return q, nil
}
