// Package stooq provides a client for Stooq's free daily CSV endpoint,
// the unauthenticated last-resort fallback for US equities.
package stooq

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/loic-marigny/xMarket/internal/clients"
	"github.com/loic-marigny/xMarket/internal/common"
	"github.com/loic-marigny/xMarket/internal/interfaces"
	"github.com/loic-marigny/xMarket/internal/models"
)

const (
	DefaultBaseURL = "https://stooq.com"
	DefaultTimeout = 20 * time.Second
)

// Client fetches daily history CSVs.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *common.Logger
	now        func() time.Time
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) { c.logger = logger }
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

// NewClient creates a new Stooq client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
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
func (c *Client) Name() string { return "stooq" }

// Supports implements interfaces.HistoryProvider. Stooq's suffix scheme
// only resolves US listings from our ticker universe.
func (c *Client) Supports(market models.Market) bool {
	return market.IsEquity() && market != models.MarketCN
}

// stooqSymbol maps a ticker onto Stooq's naming: bare US tickers gain a
// ".us" suffix; tickers already carrying a non-us exchange suffix are
// not resolvable here.
func stooqSymbol(symbol string) (string, bool) {
	sym := strings.ToLower(symbol)
	if i := strings.LastIndexByte(sym, '.'); i >= 0 {
		if sym[i+1:] != "us" {
			return "", false
		}
		return sym, true
	}
	return sym + ".us", true
}

// FetchDaily implements interfaces.HistoryProvider.
func (c *Client) FetchDaily(ctx context.Context, symbol string, years int) ([]models.Candle, error) {
	mapped, ok := stooqSymbol(symbol)
	if !ok {
		return nil, interfaces.ErrNoData
	}

	reqURL := fmt.Sprintf("%s/q/d/l/?s=%s&i=d", c.baseURL, mapped)
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

	c.logger.Debug().Str("symbol", symbol).Int("status", resp.StatusCode).Msg("stooq request")

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, &clients.APIError{
			Provider:   "stooq",
			StatusCode: resp.StatusCode,
			Message:    string(body),
			Endpoint:   "/q/d/l/",
		}
	}

	reader := csv.NewReader(resp.Body)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("stooq CSV decode for %s: %w", symbol, err)
	}
	if len(records) < 2 {
		// "No data" comes back as a one-line plain-text body.
		return nil, interfaces.ErrNoData
	}

	// Header-driven column lookup; Stooq has shipped both capitalizations.
	col := make(map[string]int)
	for i, name := range records[0] {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	field := func(row []string, name string) interface{} {
		i, ok := col[name]
		if !ok || i >= len(row) || row[i] == "" {
			return nil
		}
		return row[i]
	}

	out := make([]models.Candle, 0, len(records)-1)
	for _, row := range records[1:] {
		date, _ := field(row, "date").(string)
		candle, ok := models.NewCandle(date,
			field(row, "open"), field(row, "high"), field(row, "low"), field(row, "close"))
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
