// Package finnhub provides a client for the Finnhub REST API.
package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"golang.org/x/time/rate"

	"github.com/loic-marigny/xMarket/internal/clients"
	"github.com/loic-marigny/xMarket/internal/common"
	"github.com/loic-marigny/xMarket/internal/interfaces"
	"github.com/loic-marigny/xMarket/internal/models"
)

const (
	DefaultBaseURL   = "https://finnhub.io/api/v1"
	DefaultTimeout   = 20 * time.Second
	DefaultRateLimit = 10 // requests per second
)

// Client implements history, quote and market-status lookups.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
	now        func() time.Time
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewClient creates a new Finnhub client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     common.NewSilentLogger(),
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements interfaces.HistoryProvider.
func (c *Client) Name() string { return "finnhub" }

// Supports implements interfaces.HistoryProvider. The candle and quote
// endpoints are equity products; crypto/FX/commodity/index symbols in the
// ticker list use Yahoo shapes Finnhub does not resolve.
func (c *Client) Supports(market models.Market) bool {
	return market.IsEquity() && market != models.MarketCN
}

// get performs a rate-limited GET request.
func (c *Client) get(ctx context.Context, path string, params url.Values, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("token", c.apiKey)

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", common.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug().Str("path", path).Int("status", resp.StatusCode).Msg("finnhub request")

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &clients.APIError{
			Provider:   "finnhub",
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   path,
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// candleResponse is the /stock/candle payload: parallel arrays plus a
// status field ("ok" or "no_data").
type candleResponse struct {
	Status string    `json:"s"`
	Open   []float64 `json:"o"`
	High   []float64 `json:"h"`
	Low    []float64 `json:"l"`
	Close  []float64 `json:"c"`
	Time   []int64   `json:"t"`
}

// FetchDaily implements interfaces.HistoryProvider.
func (c *Client) FetchDaily(ctx context.Context, symbol string, years int) ([]models.Candle, error) {
	now := c.now().Unix()
	start := now - int64(365*24*3600*years)

	params := url.Values{}
	params.Set("symbol", symbol)
	params.Set("resolution", "D")
	params.Set("from", fmt.Sprintf("%d", start))
	params.Set("to", fmt.Sprintf("%d", now))

	var payload candleResponse
	if err := c.get(ctx, "/stock/candle", params, &payload); err != nil {
		return nil, err
	}
	if payload.Status != "ok" {
		return nil, interfaces.ErrNoData
	}
	if len(payload.Close) == 0 || len(payload.Close) != len(payload.Time) {
		return nil, fmt.Errorf("candle payload invalid for %s: lens c=%d t=%d", symbol, len(payload.Close), len(payload.Time))
	}

	pick := func(arr []float64, i int) interface{} {
		if i >= len(arr) {
			return nil
		}
		return arr[i]
	}

	out := make([]models.Candle, 0, len(payload.Time))
	for i, ts := range payload.Time {
		candle, ok := models.NewCandle(
			clients.EpochToISODate(ts),
			pick(payload.Open, i), pick(payload.High, i), pick(payload.Low, i), pick(payload.Close, i),
		)
		if ok {
			out = append(out, candle)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	if len(out) == 0 {
		return nil, interfaces.ErrNoData
	}
	return out, nil
}

// quoteResponse is the /quote payload.
type quoteResponse struct {
	Current   float64 `json:"c"`
	Timestamp int64   `json:"t"`
}

// Last implements interfaces.QuoteProvider.
func (c *Client) Last(ctx context.Context, symbol string) (models.Quote, error) {
	params := url.Values{}
	params.Set("symbol", symbol)

	var payload quoteResponse
	if err := c.get(ctx, "/quote", params, &payload); err != nil {
		return models.Quote{}, err
	}
	// Finnhub reports unknown symbols as zeroes rather than an error.
	if payload.Current == 0 || payload.Timestamp == 0 {
		return models.Quote{}, interfaces.ErrNoData
	}
	return models.Quote{
		Last:     payload.Current,
		AsOf:     time.Unix(payload.Timestamp, 0).UTC().Format("2006-01-02T15:04:05Z"),
		Interval: "finnhub",
	}, nil
}

// MarketOpen implements interfaces.MarketStatusProvider. The payload shape
// has shifted over time, so several key spellings are accepted.
func (c *Client) MarketOpen(ctx context.Context, exchange string) (bool, error) {
	params := url.Values{}
	params.Set("exchange", exchange)

	var payload map[string]interface{}
	if err := c.get(ctx, "/stock/market-status", params, &payload); err != nil {
		return false, err
	}
	if v, ok := clients.PickField(payload, "isOpen", "is_open", "open"); ok {
		if b, ok := v.(bool); ok {
			return b, nil
		}
	}
	if market, ok := payload["market"].(map[string]interface{}); ok {
		if v, ok := clients.PickField(market, "isOpen", "open"); ok {
			if b, ok := v.(bool); ok {
				return b, nil
			}
		}
	}
	return false, fmt.Errorf("market-status payload missing open flag for %s", exchange)
}

var (
	_ interfaces.HistoryProvider      = (*Client)(nil)
	_ interfaces.QuoteProvider        = (*Client)(nil)
	_ interfaces.MarketStatusProvider = (*Client)(nil)
)
