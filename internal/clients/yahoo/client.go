// Package yahoo provides a client for the public Yahoo Finance chart API.
package yahoo

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

	"golang.org/x/time/rate"

	"github.com/loic-marigny/xMarket/internal/clients"
	"github.com/loic-marigny/xMarket/internal/common"
	"github.com/loic-marigny/xMarket/internal/interfaces"
	"github.com/loic-marigny/xMarket/internal/models"
)

const (
	DefaultTimeout   = 20 * time.Second
	DefaultRateLimit = 2 // requests per second

	// maxAttempts bounds the 429 retry loop per host.
	maxAttempts = 4
)

// defaultHosts are tried in order; Yahoo rate-limits per host.
var defaultHosts = []string{
	"https://query1.finance.yahoo.com",
	"https://query2.finance.yahoo.com",
}

// Client fetches daily candles and last prices from the chart endpoint.
type Client struct {
	hosts      []string
	httpClient *http.Client
	logger     *common.Logger
	limiter    *rate.Limiter
	sleep      func(time.Duration)
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithHosts overrides the query host rotation with base URLs.
func WithHosts(hosts []string) ClientOption {
	return func(c *Client) {
		if len(hosts) > 0 {
			c.hosts = hosts
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

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// NewClient creates a new Yahoo chart client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		hosts:      defaultHosts,
		httpClient: &http.Client{Timeout: DefaultTimeout},
		logger:     common.NewSilentLogger(),
		limiter:    rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements interfaces.HistoryProvider.
func (c *Client) Name() string { return "yahoo" }

// Supports implements interfaces.HistoryProvider.
func (c *Client) Supports(models.Market) bool { return true }

// chartResponse is the v8 chart payload. Quote arrays carry nulls for
// sessions with no trade, hence the pointer elements.
type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open  []*float64 `json:"open"`
					High  []*float64 `json:"high"`
					Low   []*float64 `json:"low"`
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// fetchChart retrieves the raw chart payload for one symbol/range,
// rotating hosts and backing off on throttling.
func (c *Client) fetchChart(ctx context.Context, symbol, rng string) (*chartResponse, error) {
	encoded := strings.ReplaceAll(url.PathEscape(symbol), "%3D", "=")
	var lastErr error
	for _, host := range c.hosts {
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("rate limit wait: %w", err)
			}
			reqURL := fmt.Sprintf("%s/v8/finance/chart/%s?range=%s&interval=1d", strings.TrimRight(host, "/"), encoded, rng)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
			if err != nil {
				return nil, fmt.Errorf("failed to create request: %w", err)
			}
			req.Header.Set("User-Agent", common.UserAgent)

			resp, err := c.httpClient.Do(req)
			if err != nil {
				lastErr = err
				break // try the next host
			}
			body, readErr := io.ReadAll(resp.Body)
			resp.Body.Close()

			c.logger.Debug().Str("symbol", symbol).Str("host", host).Int("attempt", attempt).Int("status", resp.StatusCode).Msg("yahoo chart request")

			if resp.StatusCode == http.StatusTooManyRequests {
				backoff := time.Duration(attempt) * 15 * time.Second
				if backoff > 60*time.Second {
					backoff = 60 * time.Second
				}
				backoff += time.Duration(1000+rand.Intn(2000)) * time.Millisecond
				lastErr = &clients.APIError{Provider: "yahoo", StatusCode: resp.StatusCode, Message: "rate limited", Endpoint: reqURL}
				c.sleep(backoff)
				continue
			}
			if resp.StatusCode >= 500 {
				lastErr = &clients.APIError{Provider: "yahoo", StatusCode: resp.StatusCode, Message: string(body), Endpoint: reqURL}
				c.sleep(time.Duration(3000+rand.Intn(3000)) * time.Millisecond)
				continue
			}
			if resp.StatusCode != http.StatusOK {
				return nil, &clients.APIError{Provider: "yahoo", StatusCode: resp.StatusCode, Message: string(body), Endpoint: reqURL}
			}
			if readErr != nil {
				return nil, fmt.Errorf("failed to read response: %w", readErr)
			}

			var chart chartResponse
			if err := json.Unmarshal(body, &chart); err != nil {
				return nil, fmt.Errorf("yahoo payload decode for %s: %w", symbol, err)
			}
			if chart.Chart.Error != nil {
				return nil, interfaces.ErrNoData
			}
			if len(chart.Chart.Result) == 0 {
				return nil, interfaces.ErrNoData
			}
			return &chart, nil
		}
	}
	if lastErr == nil {
		lastErr = interfaces.ErrNoData
	}
	return nil, lastErr
}

// FetchDaily implements interfaces.HistoryProvider.
func (c *Client) FetchDaily(ctx context.Context, symbol string, years int) ([]models.Candle, error) {
	rng := "1y"
	if years > 1 {
		rng = "2y"
	}
	chart, err := c.fetchChart(ctx, symbol, rng)
	if err != nil {
		return nil, err
	}

	res := chart.Chart.Result[0]
	if len(res.Indicators.Quote) == 0 {
		return nil, interfaces.ErrNoData
	}
	q := res.Indicators.Quote[0]

	pick := func(arr []*float64, i int) interface{} {
		if i >= len(arr) || arr[i] == nil {
			return nil
		}
		return *arr[i]
	}

	out := make([]models.Candle, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		candle, ok := models.NewCandle(
			clients.EpochToISODate(ts),
			pick(q.Open, i), pick(q.High, i), pick(q.Low, i), pick(q.Close, i),
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

// Last implements interfaces.QuoteProvider using a one-month daily chart
// and taking the most recent non-null close.
func (c *Client) Last(ctx context.Context, symbol string) (models.Quote, error) {
	chart, err := c.fetchChart(ctx, symbol, "1mo")
	if err != nil {
		return models.Quote{}, err
	}

	res := chart.Chart.Result[0]
	if len(res.Indicators.Quote) == 0 {
		return models.Quote{}, interfaces.ErrNoData
	}
	closes := res.Indicators.Quote[0].Close
	for i := len(closes) - 1; i >= 0; i-- {
		if closes[i] == nil || i >= len(res.Timestamp) {
			continue
		}
		return models.Quote{
			Last:     *closes[i],
			AsOf:     time.Unix(res.Timestamp[i], 0).UTC().Format("2006-01-02T15:04:05Z"),
			Interval: "yahoo_1d",
		}, nil
	}
	return models.Quote{}, interfaces.ErrNoData
}

var (
	_ interfaces.HistoryProvider = (*Client)(nil)
	_ interfaces.QuoteProvider   = (*Client)(nil)
)
