package models

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeFloat(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		want  float64
		ok    bool
	}{
		{"float64", 187.5, 187.5, true},
		{"int", 42, 42, true},
		{"numeric string", "123.45", 123.45, true},
		{"json number", json.Number("99.9"), 99.9, true},
		{"nil", nil, 0, false},
		{"empty string", "", 0, false},
		{"garbage string", "n/a", 0, false},
		{"nan", math.NaN(), 0, false},
		{"inf", math.Inf(1), 0, false},
		{"bool", true, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := SafeFloat(tt.value)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestNewCandleRejectsMissingClose(t *testing.T) {
	_, ok := NewCandle("2024-03-01", 10.0, 12.0, 9.0, nil)
	assert.False(t, ok)

	_, ok = NewCandle("2024-03-01", 10.0, 12.0, 9.0, "bogus")
	assert.False(t, ok)
}

func TestNewCandleRejectsShortDate(t *testing.T) {
	_, ok := NewCandle("2024-3-1", 10.0, 12.0, 9.0, 11.0)
	assert.False(t, ok)
}

func TestNewCandleTruncatesTimestampDates(t *testing.T) {
	c, ok := NewCandle("2024-03-01T00:00:00Z", nil, nil, nil, 11.0)
	require.True(t, ok)
	assert.Equal(t, "2024-03-01", c.Date)
}

func TestNewCandleBackfillsOpenFromClose(t *testing.T) {
	c, ok := NewCandle("2024-03-01", nil, nil, nil, 11.0)
	require.True(t, ok)
	assert.Equal(t, 11.0, c.Open)
	assert.Equal(t, 11.0, c.High)
	assert.Equal(t, 11.0, c.Low)
	assert.Equal(t, 11.0, c.Close)
}

func TestNewCandleSynthesizesHighLow(t *testing.T) {
	c, ok := NewCandle("2024-03-01", 10.0, nil, nil, 12.0)
	require.True(t, ok)
	assert.Equal(t, 12.0, c.High)
	assert.Equal(t, 10.0, c.Low)
}

func TestNewCandleClampsInconsistentBounds(t *testing.T) {
	// high below the close must be raised, low above the open lowered
	c, ok := NewCandle("2024-03-01", 10.0, 11.0, 10.5, 12.0)
	require.True(t, ok)
	assert.Equal(t, 12.0, c.High)
	assert.Equal(t, 10.0, c.Low)
	assert.LessOrEqual(t, c.Low, math.Min(c.Open, c.Close))
	assert.GreaterOrEqual(t, c.High, math.Max(c.Open, c.Close))
}

func TestNewCandleStringFields(t *testing.T) {
	c, ok := NewCandle("2024-03-01", "10.5", "12.25", "10.0", "11.75")
	require.True(t, ok)
	assert.Equal(t, Candle{Date: "2024-03-01", Open: 10.5, High: 12.25, Low: 10.0, Close: 11.75}, c)
}

func TestNewPricePoint(t *testing.T) {
	p, ok := NewPricePoint("2024-03-01", "42.5")
	require.True(t, ok)
	assert.Equal(t, PricePoint{Date: "2024-03-01", Close: 42.5}, p)

	_, ok = NewPricePoint("2024-03-01", nil)
	assert.False(t, ok)
}
