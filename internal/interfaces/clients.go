// Package interfaces defines provider and storage contracts for xMarket
package interfaces

import (
	"context"
	"errors"

	"github.com/loic-marigny/xMarket/internal/models"
)

// ErrNoData signals a definitive "this series/quote does not exist here"
// answer from a provider (proxy 404, empty result array). It is not an
// error condition for the orchestrator; the next provider is tried.
var ErrNoData = errors.New("no data available")

// HistoryProvider fetches daily candles for one symbol.
type HistoryProvider interface {
	// Name identifies the provider in logs and artifact metadata.
	Name() string

	// Supports reports whether this provider covers the given market.
	Supports(market models.Market) bool

	// FetchDaily returns candles covering at least the trailing lookback
	// window, sorted ascending by date. Returns ErrNoData when the series
	// definitively does not exist at this provider.
	FetchDaily(ctx context.Context, symbol string, years int) ([]models.Candle, error)
}

// QuoteProvider fetches a symbol's last traded price.
type QuoteProvider interface {
	// Name identifies the provider in logs and quote metadata.
	Name() string

	// Last returns the most recent price. Returns ErrNoData when the
	// provider has no quote for the symbol.
	Last(ctx context.Context, symbol string) (models.Quote, error)
}

// MarketStatusProvider answers whether an exchange is currently open.
// Implemented by the Finnhub client for the US market.
type MarketStatusProvider interface {
	MarketOpen(ctx context.Context, exchange string) (bool, error)
}

// SummaryProvider fetches extended company summary documents.
// Implemented by the worker client.
type SummaryProvider interface {
	Summary(ctx context.Context, symbol string) (map[string]interface{}, error)
}
