// Package eastmoney provides a client for Eastmoney's public quote and
// kline endpoints, covering Chinese A-share tickers.
package eastmoney

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
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
	DefaultHistoryBaseURL = "https://push2his.eastmoney.com"
	DefaultQuoteBaseURL   = "https://push2.eastmoney.com"
	DefaultTimeout        = 25 * time.Second
)

// Client fetches daily klines and spot snapshots for A-share codes.
type Client struct {
	historyBaseURL string
	quoteBaseURL   string
	httpClient     *http.Client
	logger         *common.Logger
	now            func() time.Time
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the kline base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.historyBaseURL = strings.TrimRight(baseURL, "/") }
}

// WithQuoteBaseURL sets the spot snapshot base URL.
func WithQuoteBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.quoteBaseURL = strings.TrimRight(baseURL, "/") }
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

// NewClient creates a new Eastmoney client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		historyBaseURL: DefaultHistoryBaseURL,
		quoteBaseURL:   DefaultQuoteBaseURL,
		httpClient:     &http.Client{Timeout: DefaultTimeout},
		logger:         common.NewSilentLogger(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements interfaces.HistoryProvider.
func (c *Client) Name() string { return "eastmoney" }

// Supports implements interfaces.HistoryProvider.
func (c *Client) Supports(market models.Market) bool {
	return market == models.MarketCN
}

// secID maps a bare A-share code to Eastmoney's market-prefixed id:
// Shanghai listings (6xxxxx) live under market 1, everything else under 0.
func secID(code string) string {
	if strings.HasPrefix(code, "6") {
		return "1." + code
	}
	return "0." + code
}

// getJSON issues one GET and decodes the body.
func (c *Client) getJSON(ctx context.Context, reqURL string, result interface{}) error {
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

	c.logger.Debug().Str("url", reqURL).Int("status", resp.StatusCode).Msg("eastmoney request")

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return &clients.APIError{
			Provider:   "eastmoney",
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   reqURL,
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("eastmoney payload decode: %w", err)
	}
	return nil
}

// klineResponse wraps the kline rows, each row a comma-joined string of
// "date,open,close,high,low,volume,...".
type klineResponse struct {
	Data *struct {
		Klines []string `json:"klines"`
	} `json:"data"`
}

// FetchDaily implements interfaces.HistoryProvider.
func (c *Client) FetchDaily(ctx context.Context, symbol string, years int) ([]models.Candle, error) {
	code := models.CNCode(symbol)
	end := c.now().UTC()
	// A week of slack over the lookback keeps the first point ahead of the
	// coverage cutoff across holidays.
	start := end.AddDate(0, 0, -(365*years + 7))

	params := url.Values{}
	params.Set("secid", secID(code))
	params.Set("fields1", "f1,f2,f3")
	params.Set("fields2", "f51,f52,f53,f54,f55")
	params.Set("klt", "101") // daily
	params.Set("fqt", "0")   // unadjusted
	params.Set("beg", start.Format("20060102"))
	params.Set("end", end.Format("20060102"))

	reqURL := fmt.Sprintf("%s/api/qt/stock/kline/get?%s", c.historyBaseURL, params.Encode())

	var payload klineResponse
	if err := c.getJSON(ctx, reqURL, &payload); err != nil {
		return nil, err
	}
	if payload.Data == nil || len(payload.Data.Klines) == 0 {
		return nil, interfaces.ErrNoData
	}

	out := make([]models.Candle, 0, len(payload.Data.Klines))
	for _, line := range payload.Data.Klines {
		// f51=date f52=open f53=close f54=high f55=low
		parts := strings.Split(line, ",")
		if len(parts) < 5 {
			continue
		}
		candle, ok := models.NewCandle(parts[0], parts[1], parts[3], parts[4], parts[2])
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

// spotResponse carries the snapshot fields; f43 is the latest price
// scaled by 100.
type spotResponse struct {
	Data *struct {
		Price *float64 `json:"f43"`
	} `json:"data"`
}

// Last implements interfaces.QuoteProvider: spot snapshot first, latest
// daily close as fallback.
func (c *Client) Last(ctx context.Context, symbol string) (models.Quote, error) {
	code := models.CNCode(symbol)

	params := url.Values{}
	params.Set("secid", secID(code))
	params.Set("fields", "f43")
	reqURL := fmt.Sprintf("%s/api/qt/stock/get?%s", c.quoteBaseURL, params.Encode())

	var payload spotResponse
	err := c.getJSON(ctx, reqURL, &payload)
	if err == nil && payload.Data != nil && payload.Data.Price != nil && *payload.Data.Price > 0 {
		return models.Quote{
			Last:     *payload.Data.Price / 100,
			AsOf:     c.now().UTC().Format("2006-01-02T15:04:05Z"),
			Interval: "eastmoney_spot",
		}, nil
	}

	// Spot unavailable: fall back to the last daily close.
	candles, histErr := c.FetchDaily(ctx, symbol, 1)
	if histErr != nil {
		if err != nil {
			return models.Quote{}, err
		}
		return models.Quote{}, histErr
	}
	last := candles[len(candles)-1]
	return models.Quote{
		Last:     last.Close,
		AsOf:     last.Date + "T00:00:00Z",
		Interval: "eastmoney_daily",
	}, nil
}

var (
	_ interfaces.HistoryProvider = (*Client)(nil)
	_ interfaces.QuoteProvider   = (*Client)(nil)
)
