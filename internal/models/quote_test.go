package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteBookSetReportsChange(t *testing.T) {
	book := NewQuoteBook()

	assert.True(t, book.Set("AAPL", Quote{Last: 190.5, AsOf: "2024-03-01T20:00:00Z"}))
	assert.False(t, book.Set("AAPL", Quote{Last: 190.5, AsOf: "2024-03-01T20:00:00Z"}))
	assert.True(t, book.Set("AAPL", Quote{Last: 191.0, AsOf: "2024-03-01T20:05:00Z"}))
}

func TestQuoteBookJSONRoundTrip(t *testing.T) {
	book := NewQuoteBook()
	book.Set("AAPL", Quote{Last: 190.5, AsOf: "2024-03-01T20:00:00Z", Interval: "finnhub"})
	book.Set("BTC-USD", Quote{Last: 64000, AsOf: "2024-03-01T20:00:00Z", Interval: "yahoo_1d"})
	book.Meta = &QuoteMeta{GeneratedAt: "2024-03-01T20:01:00Z", RunID: "run-1", Source: "xmarket"}

	data, err := json.Marshal(book)
	require.NoError(t, err)

	// the on-disk form is one flat object with a reserved meta key
	var flat map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &flat))
	assert.Contains(t, flat, "AAPL")
	assert.Contains(t, flat, "meta")

	decoded := NewQuoteBook()
	require.NoError(t, json.Unmarshal(data, decoded))
	q, ok := decoded.Get("AAPL")
	require.True(t, ok)
	assert.Equal(t, 190.5, q.Last)
	require.NotNil(t, decoded.Meta)
	assert.Equal(t, "run-1", decoded.Meta.RunID)
	assert.Equal(t, []string{"AAPL", "BTC-USD"}, decoded.Symbols())
}

func TestQuoteBookUnmarshalToleratesUnknownShapes(t *testing.T) {
	raw := `{"AAPL":{"last":190.5,"as_of":"2024-03-01T20:00:00Z"},"WEIRD":["not","a","quote"],"meta":{"generated_at":"2024-03-01T20:01:00Z"}}`

	book := NewQuoteBook()
	require.NoError(t, json.Unmarshal([]byte(raw), book))

	_, ok := book.Get("AAPL")
	assert.True(t, ok)
	_, ok = book.Get("WEIRD")
	assert.False(t, ok)
	require.NotNil(t, book.Meta)
}

func TestParseMarket(t *testing.T) {
	assert.Equal(t, MarketFX, ParseMarket("forex"))
	assert.Equal(t, MarketCommodity, ParseMarket("COMMODITY"))
	assert.Equal(t, MarketIndex, ParseMarket(" idx "))
	assert.Equal(t, MarketUS, ParseMarket(""))
	assert.Equal(t, MarketUS, ParseMarket("nonsense"))
}

func TestMapSymbolForMarket(t *testing.T) {
	assert.Equal(t, "EURUSD=X", MapSymbolForMarket("EURUSD", MarketFX))
	assert.Equal(t, "EURUSD=X", MapSymbolForMarket("EURUSD=X", MarketFX))
	assert.Equal(t, "AAPL", MapSymbolForMarket("AAPL", MarketUS))
}

func TestIsCN(t *testing.T) {
	assert.True(t, IsCN("600519.SS", MarketUS))
	assert.True(t, IsCN("600519", MarketCN))
	assert.False(t, IsCN("AAPL", MarketUS))
}

func TestMarketDisplayName(t *testing.T) {
	assert.Equal(t, "New York", MarketUS.DisplayName())
	assert.Equal(t, "Forex", MarketFX.DisplayName())
	assert.Equal(t, "Other", Market("").DisplayName())
	assert.Equal(t, "XX", Market("XX").DisplayName())
}
