package collector

import (
	"context"
	"fmt"

	"FXForecaster/internal/model"
)

// PageFetcher retrieves the body of a URL as text.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// QuoteSource returns a live quote for a ticker. Implementations must be safe
// to call repeatedly; every failure is a *FetchError.
type QuoteSource interface {
	GetTickerData(ctx context.Context, ticker string) (model.Quote, error)
	Name() string
}

// FetchError is a transient failure talking to, or parsing the answer of, a
// remote data source.
type FetchError struct {
	Source string
	Op     string
	Err    error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Source, e.Op, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
