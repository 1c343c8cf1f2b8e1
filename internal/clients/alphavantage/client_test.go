package alphavantage

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
	client := NewClient("test-key", WithBaseURL(server.URL))
	client.now = func() time.Time {
		return time.Date(2024, time.March, 8, 12, 0, 0, 0, time.UTC)
	}
	return client, server
}

func TestFetchDailyPrefersAdjustedClose(t *testing.T) {
	var gotFunction, gotKey string
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		gotFunction = r.URL.Query().Get("function")
		gotKey = r.URL.Query().Get("apikey")
		w.Write([]byte(`{"Time Series (Daily)": {
			"2024-03-05": {"1. open": "11.0", "2. high": "13.0", "3. low": "10.0", "4. close": "12.0", "5. adjusted close": "11.8"},
			"2024-03-04": {"1. open": "10.0", "2. high": "12.0", "3. low": "9.0", "4. close": "11.0"}
		}}`))
	})
	defer server.Close()

	candles, err := client.FetchDaily(context.Background(), "AAPL", 1)
	require.NoError(t, err)

	assert.Equal(t, "TIME_SERIES_DAILY_ADJUSTED", gotFunction)
	assert.Equal(t, "test-key", gotKey)

	require.Len(t, candles, 2)
	assert.Equal(t, "2024-03-04", candles[0].Date)
	assert.Equal(t, 11.0, candles[0].Close, "plain close when no adjusted value")
	assert.Equal(t, 11.8, candles[1].Close, "adjusted close wins when present")
}

func TestFetchDailyMissingFieldsBackfillFromClose(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Time Series (Daily)": {
			"2024-03-04": {"1. open": "N/A", "4. close": "11.0"},
			"2024-03-05": {"2. high": "13.0", "3. low": "N/A", "4. close": "12.0"}
		}}`))
	})
	defer server.Close()

	candles, err := client.FetchDaily(context.Background(), "AAPL", 1)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	// Absent or "N/A" fields must not land as literal zeros, which would
	// stretch the day's range down to zero.
	assert.Equal(t, models.Candle{Date: "2024-03-04", Open: 11, High: 11, Low: 11, Close: 11}, candles[0])
	assert.Equal(t, models.Candle{Date: "2024-03-05", Open: 12, High: 13, Low: 12, Close: 12}, candles[1])
}

func TestFetchDailyRateLimitNoteIsNoData(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		// throttling comes back as a 200 with a Note key
		w.Write([]byte(`{"Note": "Thank you for using Alpha Vantage! Our standard API rate limit is 25 requests per day."}`))
	})
	defer server.Close()

	_, err := client.FetchDaily(context.Background(), "AAPL", 1)
	assert.ErrorIs(t, err, interfaces.ErrNoData)
}

func TestFetchDailyTrimsToLookback(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Time Series (Daily)": {
			"2019-03-05": {"4. close": "5.0"},
			"2024-03-05": {"4. close": "12.0"}
		}}`))
	})
	defer server.Close()

	candles, err := client.FetchDaily(context.Background(), "AAPL", 1)
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, "2024-03-05", candles[0].Date)
}

func TestSupports(t *testing.T) {
	c := NewClient("k")
	assert.True(t, c.Supports(models.MarketUS))
	assert.True(t, c.Supports(models.MarketCN))
	assert.False(t, c.Supports(models.MarketFX))
	assert.False(t, c.Supports(models.MarketCrypto))
}
