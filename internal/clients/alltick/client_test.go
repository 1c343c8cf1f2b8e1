package alltick

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loic-marigny/xMarket/internal/interfaces"
	"github.com/loic-marigny/xMarket/internal/models"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewClient("test-key",
		WithHistoryURL(server.URL+"/kline"),
		WithQuoteURL(server.URL+"/quote"),
	)
	// Keep only the test endpoints so a dead candidate never gets probed.
	client.historyURLs = client.historyURLs[:1]
	client.quoteURLs = client.quoteURLs[:1]
	client.now = func() time.Time {
		return time.Date(2024, time.March, 8, 12, 0, 0, 0, time.UTC)
	}
	return client, server
}

func TestFetchDailyKeyedRows(t *testing.T) {
	var gotQuery string
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{"data":[
			{"datetime":"2024-03-05","open":10,"high":12,"low":9,"close":11},
			{"datetime":"2024-03-04","open":9,"high":11,"low":8,"close":10}
		]}`))
	})
	defer server.Close()

	candles, err := client.FetchDaily(context.Background(), "600519.SS", 1)
	require.NoError(t, err)

	// Exchange suffix stripped, key forwarded, rows sorted ascending.
	assert.Contains(t, gotQuery, "symbol=600519")
	assert.Contains(t, gotQuery, "apikey=test-key")
	require.Len(t, candles, 2)
	assert.Equal(t, "2024-03-04", candles[0].Date)
	assert.Equal(t, 11.0, candles[1].Close)
}

func TestFetchDailyPositionalRows(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"kline":[
			[1709510400,10,12,9,11],
			["2024-03-05",11,13,10,12]
		]}`))
	})
	defer server.Close()

	candles, err := client.FetchDaily(context.Background(), "600519.SS", 1)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, "2024-03-04", candles[0].Date)
	assert.Equal(t, "2024-03-05", candles[1].Date)
	assert.Equal(t, 12.0, candles[1].Close)
}

func TestFetchDailyEmptyDataIsNoData(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	})
	defer server.Close()

	_, err := client.FetchDaily(context.Background(), "600519.SS", 1)
	assert.ErrorIs(t, err, interfaces.ErrNoData)
}

func TestFetchDailyTrimsCutoff(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[
			{"datetime":"2020-01-02","open":5,"high":6,"low":4,"close":5},
			{"datetime":"2024-03-05","open":11,"high":13,"low":10,"close":12}
		]}`))
	})
	defer server.Close()

	candles, err := client.FetchDaily(context.Background(), "600519.SS", 1)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, "2024-03-05", candles[0].Date)
}

func TestLastNestedData(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"price":1688.5,"datetime":"2024-03-08"}}`))
	})
	defer server.Close()

	quote, err := client.Last(context.Background(), "600519.SS")
	require.NoError(t, err)
	assert.Equal(t, models.Quote{Last: 1688.5, AsOf: "2024-03-08T00:00:00Z", Interval: "alltick"}, quote)
}

func TestLastFallsBackToClock(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"last":42.5}`))
	})
	defer server.Close()

	quote, err := client.Last(context.Background(), "600519.SS")
	require.NoError(t, err)
	assert.Equal(t, 42.5, quote.Last)
	assert.Equal(t, "2024-03-08T12:00:00Z", quote.AsOf)
}

func TestSupportsCNOnly(t *testing.T) {
	client := NewClient("k")
	assert.True(t, client.Supports(models.MarketCN))
	assert.False(t, client.Supports(models.MarketUS))
	assert.False(t, client.Supports(models.MarketCrypto))
}
