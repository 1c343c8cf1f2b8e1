// Package alphavantage provides a client for the Alpha Vantage daily
// time-series endpoint, used as a keyed fallback for equities.
package alphavantage

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

const (
	DefaultBaseURL = "https://www.alphavantage.co/query"
	DefaultTimeout = 30 * time.Second
)

// Client requests TIME_SERIES_DAILY_ADJUSTED with outputsize=full and
// trims the archive to the requested lookback. The free tier allows only
// a handful of requests per minute, which the orchestrator's ordering
// already accounts for by trying this provider late.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *common.Logger
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

// NewClient creates a new Alpha Vantage client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     common.NewSilentLogger(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements interfaces.HistoryProvider.
func (c *Client) Name() string { return "alpha" }

// Supports implements interfaces.HistoryProvider.
func (c *Client) Supports(market models.Market) bool {
	return market.IsEquity()
}

// daySeries is one date's entry in the "Time Series (Daily)" object.
// Values are decimal strings; the adjusted close is preferred when present.
type daySeries struct {
	Open          clients.FlexFloat64 `json:"1. open"`
	High          clients.FlexFloat64 `json:"2. high"`
	Low           clients.FlexFloat64 `json:"3. low"`
	Close         clients.FlexFloat64 `json:"4. close"`
	AdjustedClose clients.FlexFloat64 `json:"5. adjusted close"`
}

// nonZero maps the feed's absence markers (missing keys, "N/A", zero
// placeholders) to nil so the normalizer backfills the field instead of
// clamping the day's range down to zero.
func nonZero(f clients.FlexFloat64) interface{} {
	if f == 0 {
		return nil
	}
	return float64(f)
}

// FetchDaily implements interfaces.HistoryProvider.
func (c *Client) FetchDaily(ctx context.Context, symbol string, years int) ([]models.Candle, error) {
	params := url.Values{}
	params.Set("function", "TIME_SERIES_DAILY_ADJUSTED")
	params.Set("symbol", symbol)
	params.Set("outputsize", "full")
	params.Set("apikey", c.apiKey)

	reqURL := fmt.Sprintf("%s?%s", c.baseURL, params.Encode())
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

	c.logger.Debug().Str("symbol", symbol).Int("status", resp.StatusCode).Msg("alphavantage request")

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &clients.APIError{
			Provider:   "alphavantage",
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   "/query",
		}
	}

	var payload struct {
		Series map[string]daySeries `json:"Time Series (Daily)"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("alpha payload decode for %s: %w", symbol, err)
	}
	if payload.Series == nil {
		// Rate-limit notes and error messages come back as 200s with a
		// different top-level key, so a missing series is simply no data.
		return nil, interfaces.ErrNoData
	}

	out := make([]models.Candle, 0, len(payload.Series))
	for date, v := range payload.Series {
		closeValue := nonZero(v.AdjustedClose)
		if closeValue == nil {
			closeValue = nonZero(v.Close)
		}
		candle, ok := models.NewCandle(date, nonZero(v.Open), nonZero(v.High), nonZero(v.Low), closeValue)
		if ok {
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

var _ interfaces.HistoryProvider = (*Client)(nil)
