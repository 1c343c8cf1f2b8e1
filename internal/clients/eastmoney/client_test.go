package eastmoney

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loic-marigny/xMarket/internal/interfaces"
)

func TestSecID(t *testing.T) {
	assert.Equal(t, "1.600519", secID("600519"))
	assert.Equal(t, "0.000001", secID("000001"))
	assert.Equal(t, "0.300750", secID("300750"))
}

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewClient(WithBaseURL(server.URL), WithQuoteBaseURL(server.URL))
	client.now = func() time.Time {
		return time.Date(2024, time.March, 8, 12, 0, 0, 0, time.UTC)
	}
	return client, server
}

func TestFetchDailyParsesKlines(t *testing.T) {
	var gotSecid string
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/qt/stock/kline/get", r.URL.Path)
		gotSecid = r.URL.Query().Get("secid")
		// f51=date f52=open f53=close f54=high f55=low
		w.Write([]byte(`{"data": {"klines": [
			"2024-03-04,1688.00,1700.50,1710.00,1680.00",
			"2024-03-05,1700.50,1695.00,1705.00,1690.00"
		]}}`))
	})
	defer server.Close()

	candles, err := client.FetchDaily(context.Background(), "600519.SS", 1)
	require.NoError(t, err)

	assert.Equal(t, "1.600519", gotSecid, "exchange suffix is stripped before the secid mapping")
	require.Len(t, candles, 2)
	assert.Equal(t, "2024-03-04", candles[0].Date)
	assert.Equal(t, 1688.00, candles[0].Open)
	assert.Equal(t, 1700.50, candles[0].Close)
	assert.Equal(t, 1710.00, candles[0].High)
	assert.Equal(t, 1680.00, candles[0].Low)
}

func TestFetchDailyNullDataIsNoData(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": null}`))
	})
	defer server.Close()

	_, err := client.FetchDaily(context.Background(), "600519", 1)
	assert.ErrorIs(t, err, interfaces.ErrNoData)
}

func TestLastUsesSpotPrice(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/qt/stock/get", r.URL.Path)
		w.Write([]byte(`{"data": {"f43": 168850}}`))
	})
	defer server.Close()

	q, err := client.Last(context.Background(), "600519.SS")
	require.NoError(t, err)
	assert.Equal(t, 1688.50, q.Last, "f43 comes scaled by 100")
	assert.Equal(t, "eastmoney_spot", q.Interval)
}

func TestLastFallsBackToDailyClose(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/qt/stock/get" {
			w.Write([]byte(`{"data": null}`))
			return
		}
		w.Write([]byte(`{"data": {"klines": ["2024-03-05,1700.50,1695.00,1705.00,1690.00"]}}`))
	})
	defer server.Close()

	q, err := client.Last(context.Background(), "600519")
	require.NoError(t, err)
	assert.Equal(t, 1695.00, q.Last)
	assert.Equal(t, "eastmoney_daily", q.Interval)
	assert.Equal(t, "2024-03-05T00:00:00Z", q.AsOf)
}

func TestLastPropagatesTotalFailure(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": null}`))
	})
	defer server.Close()

	_, err := client.Last(context.Background(), "600519")
	assert.Error(t, err)
}
