// Package worker provides a client for the Cloudflare-hosted Yahoo proxy.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/loic-marigny/xMarket/internal/clients"
	"github.com/loic-marigny/xMarket/internal/common"
	"github.com/loic-marigny/xMarket/internal/interfaces"
	"github.com/loic-marigny/xMarket/internal/models"
)

const (
	DefaultTimeout = 20 * time.Second

	// maxAttempts bounds the retry loop for throttled or flaky responses.
	maxAttempts = 3
)

// Client talks to the worker's /history and /summary endpoints.
type Client struct {
	baseURL    string
	token      string
	rangeHint  string
	httpClient *http.Client
	logger     *common.Logger
	sleep      func(time.Duration) // injectable for tests
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithToken sets the X-Worker-Token header value.
func WithToken(token string) ClientOption {
	return func(c *Client) { c.token = token }
}

// WithRange overrides the computed range parameter (1y|2y|5y|10y).
func WithRange(r string) ClientOption {
	return func(c *Client) { c.rangeHint = r }
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

// NewClient creates a new worker client.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     common.NewSilentLogger(),
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements interfaces.HistoryProvider.
func (c *Client) Name() string { return "yahoo_worker" }

// escapeSymbol path-escapes a ticker while keeping the "=" of FX pairs
// literal, which is what the worker's router expects.
func escapeSymbol(symbol string) string {
	return strings.ReplaceAll(url.PathEscape(symbol), "%3D", "=")
}

// Supports implements interfaces.HistoryProvider. The proxy fronts Yahoo
// Finance, which covers every market class the ticker list knows about.
func (c *Client) Supports(models.Market) bool { return true }

// rangeFor maps a lookback in years onto the worker's range values.
func (c *Client) rangeFor(years int) string {
	if c.rangeHint != "" {
		return c.rangeHint
	}
	switch {
	case years <= 1:
		return "1y"
	case years <= 2:
		return "2y"
	case years <= 5:
		return "5y"
	default:
		return "10y"
	}
}

// get issues one authenticated GET, retrying on throttling and transient
// server errors. A 404 is surfaced as ErrNoData.
func (c *Client) get(ctx context.Context, reqURL string) ([]byte, error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", common.UserAgent)
		req.Header.Set("Accept", "application/json")
		if c.token != "" {
			req.Header.Set("X-Worker-Token", c.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("failed to execute request: %w", err)
		}
		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()

		c.logger.Debug().Str("url", reqURL).Int("status", resp.StatusCode).Msg("worker request")

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, interfaces.ErrNoData
		case resp.StatusCode == http.StatusTooManyRequests:
			lastErr = &clients.APIError{Provider: "worker", StatusCode: resp.StatusCode, Message: "rate limited", Endpoint: reqURL}
			c.sleep(time.Duration(attempt) * 5 * time.Second)
			continue
		case resp.StatusCode >= 500:
			lastErr = &clients.APIError{Provider: "worker", StatusCode: resp.StatusCode, Message: string(body), Endpoint: reqURL}
			c.sleep(time.Duration(1500+rand.Intn(1500)) * time.Millisecond)
			continue
		case resp.StatusCode != http.StatusOK:
			return nil, &clients.APIError{Provider: "worker", StatusCode: resp.StatusCode, Message: string(body), Endpoint: reqURL}
		}
		if readErr != nil {
			return nil, fmt.Errorf("failed to read response: %w", readErr)
		}
		return body, nil
	}
	return nil, lastErr
}

// FetchDaily implements interfaces.HistoryProvider via
// GET {base}/history/{symbol}?range=..&interval=1d.
func (c *Client) FetchDaily(ctx context.Context, symbol string, years int) ([]models.Candle, error) {
	reqURL := fmt.Sprintf("%s/history/%s?range=%s&interval=1d",
		c.baseURL, escapeSymbol(symbol), c.rangeFor(years))

	body, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var points []map[string]interface{}
	if err := json.Unmarshal(body, &points); err != nil {
		return nil, fmt.Errorf("worker payload not a JSON array for %s: %w", symbol, err)
	}

	out := make([]models.Candle, 0, len(points))
	for _, point := range points {
		rawDate, _ := clients.PickField(point, "date", "t", "timestamp")
		date, ok := clients.CoerceISODate(rawDate)
		if !ok {
			continue
		}
		open, _ := clients.PickField(point, "open", "o")
		high, _ := clients.PickField(point, "high", "h")
		low, _ := clients.PickField(point, "low", "l")
		closeV, _ := clients.PickField(point, "close", "c")
		if candle, ok := models.NewCandle(date, open, high, low, closeV); ok {
			out = append(out, candle)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	if len(out) == 0 {
		return nil, interfaces.ErrNoData
	}
	return out, nil
}

// Summary implements interfaces.SummaryProvider via GET {base}/summary/{symbol}.
func (c *Client) Summary(ctx context.Context, symbol string) (map[string]interface{}, error) {
	reqURL := fmt.Sprintf("%s/summary/%s", c.baseURL, escapeSymbol(symbol))

	body, err := c.get(ctx, reqURL)
	if err != nil {
		return nil, err
	}

	var doc map[string]interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("summary payload not a JSON object for %s: %w", symbol, err)
	}
	return doc, nil
}

var (
	_ interfaces.HistoryProvider = (*Client)(nil)
	_ interfaces.SummaryProvider = (*Client)(nil)
)
