// Package alltick provides a client for the Alltick CN market API.
//
// The upstream contract is unstable: the kline and quote endpoints have
// moved and the payload shape varies, so the client probes a short list of
// candidate URLs and parameter shapes and parses every field through an
// alias table. Overrides for both endpoints are configurable.
package alltick

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/loic-marigny/xMarket/internal/clients"
	"github.com/loic-marigny/xMarket/internal/common"
	"github.com/loic-marigny/xMarket/internal/interfaces"
	"github.com/loic-marigny/xMarket/internal/models"
)

const DefaultTimeout = 25 * time.Second

// defaultHistoryURLs are the kline endpoint candidates, tried in order.
var defaultHistoryURLs = []string{
	"https://api.alltick.co/market/kline",
	"https://api.alltick.co/kline",
}

// defaultQuoteURLs are the quote endpoint candidates, tried in order.
var defaultQuoteURLs = []string{
	"https://api.alltick.co/quote",
	"https://api.alltick.co/market/quote",
	"https://api.alltick.co/price",
}

// Client probes the candidate endpoints with an API key.
type Client struct {
	historyURLs []string
	quoteURLs   []string
	apiKey      string
	httpClient  *http.Client
	logger      *common.Logger
	now         func() time.Time
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithHistoryURL prepends an explicit kline endpoint override.
func WithHistoryURL(u string) ClientOption {
	return func(c *Client) {
		if u != "" {
			c.historyURLs = append([]string{u}, c.historyURLs...)
		}
	}
}

// WithQuoteURL prepends an explicit quote endpoint override.
func WithQuoteURL(u string) ClientOption {
	return func(c *Client) {
		if u != "" {
			c.quoteURLs = append([]string{u}, c.quoteURLs...)
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

// NewClient creates a new Alltick client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		historyURLs: defaultHistoryURLs,
		quoteURLs:   defaultQuoteURLs,
		apiKey:      apiKey,
		httpClient:  &http.Client{Timeout: DefaultTimeout},
		logger:      common.NewSilentLogger(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements interfaces.HistoryProvider.
func (c *Client) Name() string { return "alltick" }

// Supports implements interfaces.HistoryProvider.
func (c *Client) Supports(market models.Market) bool {
	return market == models.MarketCN
}

// getJSON issues one GET and decodes the body as arbitrary JSON.
func (c *Client) getJSON(ctx context.Context, base string, params url.Values) (interface{}, error) {
	reqURL := fmt.Sprintf("%s?%s", base, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", common.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug().Str("url", base).Int("status", resp.StatusCode).Msg("alltick request")

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &clients.APIError{
			Provider:   "alltick",
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   base,
		}
	}

	var payload interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("alltick payload decode: %w", err)
	}
	return payload, nil
}

// extractRows digs the record array out of the payload: the body may be
// the array itself or an object wrapping it under one of several keys.
func extractRows(payload interface{}) []interface{} {
	switch v := payload.(type) {
	case []interface{}:
		return v
	case map[string]interface{}:
		for _, key := range []string{"data", "kline", "values", "result"} {
			if arr, ok := v[key].([]interface{}); ok {
				return arr
			}
		}
	}
	return nil
}

// rowToCandle parses one kline row, which may be a keyed object or a
// positional [ts, open, high, low, close, ...] array.
func rowToCandle(row interface{}) (models.Candle, bool) {
	switch it := row.(type) {
	case map[string]interface{}:
		rawDate, _ := clients.PickField(it, "datetime", "time", "t", "date")
		date, ok := clients.CoerceISODate(rawDate)
		if !ok {
			return models.Candle{}, false
		}
		open, _ := clients.PickField(it, "open", "o")
		high, _ := clients.PickField(it, "high", "h")
		low, _ := clients.PickField(it, "low", "l")
		closeV, _ := clients.PickField(it, "close", "c", "last", "price")
		return models.NewCandle(date, open, high, low, closeV)
	case []interface{}:
		if len(it) < 5 {
			return models.Candle{}, false
		}
		date, ok := clients.CoerceISODate(it[0])
		if !ok {
			return models.Candle{}, false
		}
		return models.NewCandle(date, it[1], it[2], it[3], it[4])
	}
	return models.Candle{}, false
}

// FetchDaily implements interfaces.HistoryProvider.
func (c *Client) FetchDaily(ctx context.Context, symbol string, years int) ([]models.Candle, error) {
	code := models.CNCode(symbol)
	paramShapes := []url.Values{
		{"symbol": {code}, "interval": {"1day"}, "limit": {"5000"}, "apikey": {c.apiKey}},
		{"symbol": {code}, "interval": {"1d"}, "limit": {"5000"}, "apikey": {c.apiKey}},
	}

	var lastErr error
	for _, base := range c.historyURLs {
		for _, params := range paramShapes {
			payload, err := c.getJSON(ctx, base, params)
			if err != nil {
				lastErr = err
				continue
			}
			rows := extractRows(payload)
			if rows == nil {
				continue
			}
			out := make([]models.Candle, 0, len(rows))
			for _, row := range rows {
				if candle, ok := rowToCandle(row); ok {
					out = append(out, candle)
				}
			}
			sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })

			cutoff := clients.CutoffDate(c.now(), years)
			out = clients.TrimBefore(out, func(c models.Candle) string { return c.Date }, cutoff)
			if len(out) == 0 {
				return nil, interfaces.ErrNoData
			}
			return out, nil
		}
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, interfaces.ErrNoData
}

// Last implements interfaces.QuoteProvider, probing the quote endpoint
// candidates for a price/timestamp pair.
func (c *Client) Last(ctx context.Context, symbol string) (models.Quote, error) {
	code := models.CNCode(symbol)
	params := url.Values{"symbol": {code}, "apikey": {c.apiKey}}

	var lastErr error
	for _, base := range c.quoteURLs {
		payload, err := c.getJSON(ctx, base, params)
		if err != nil {
			lastErr = err
			continue
		}

		var src map[string]interface{}
		switch v := payload.(type) {
		case map[string]interface{}:
			src = v
			if nested, ok := v["data"].(map[string]interface{}); ok {
				src = nested
			}
		case []interface{}:
			if len(v) > 0 {
				src, _ = v[len(v)-1].(map[string]interface{})
			}
		}
		if src == nil {
			continue
		}

		rawPrice, _ := clients.PickField(src, "price", "close", "last")
		price, ok := models.SafeFloat(rawPrice)
		if !ok {
			continue
		}
		asOf := c.now().UTC().Format("2006-01-02T15:04:05Z")
		if rawTS, ok := clients.PickField(src, "datetime", "timestamp"); ok {
			if ts, ok := clients.CoerceISODate(rawTS); ok {
				asOf = ts + "T00:00:00Z"
			}
		}
		return models.Quote{Last: price, AsOf: asOf, Interval: "alltick"}, nil
	}
	if lastErr != nil {
		return models.Quote{}, lastErr
	}
	return models.Quote{}, interfaces.ErrNoData
}

var (
	_ interfaces.HistoryProvider = (*Client)(nil)
	_ interfaces.QuoteProvider   = (*Client)(nil)
)
