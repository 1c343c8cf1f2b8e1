package models

import (
	"encoding/json"
	"math"
	"strconv"
)

// PricePoint is one day's closing price.
type PricePoint struct {
	Date  string  `json:"date"`
	Close float64 `json:"close"`
}

// Candle is one day's OHLC record. Invariants maintained by NewCandle:
// Low <= min(Open, Close) and High >= max(Open, Close).
type Candle struct {
	Date  string  `json:"date"`
	Open  float64 `json:"open"`
	High  float64 `json:"high"`
	Low   float64 `json:"low"`
	Close float64 `json:"close"`
}

// Point reduces a candle to its close-only form.
func (c Candle) Point() PricePoint {
	return PricePoint{Date: c.Date, Close: c.Close}
}

// SafeFloat parses an arbitrary JSON-ish value into a finite float.
// Returns false for nil, non-numeric strings, NaN and infinities.
func SafeFloat(value interface{}) (float64, bool) {
	var f float64
	switch v := value.(type) {
	case nil:
		return 0, false
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// NewCandle builds a well-formed candle from possibly partial provider
// fields. A record without a usable close is rejected. Missing open falls
// back to close; missing high/low are synthesized from open/close so no
// false volatility is fabricated.
func NewCandle(date string, open, high, low, close interface{}) (Candle, bool) {
	if len(date) < 10 {
		return Candle{}, false
	}
	closeF, ok := SafeFloat(close)
	if !ok {
		return Candle{}, false
	}
	openF, ok := SafeFloat(open)
	if !ok {
		openF = closeF
	}
	highF, ok := SafeFloat(high)
	if !ok {
		highF = math.Max(openF, closeF)
	}
	lowF, ok := SafeFloat(low)
	if !ok {
		lowF = math.Min(openF, closeF)
	}
	highF = math.Max(highF, math.Max(openF, closeF))
	lowF = math.Min(lowF, math.Min(openF, closeF))
	if lowF > highF {
		lowF, highF = highF, lowF
	}
	return Candle{Date: date[:10], Open: openF, High: highF, Low: lowF, Close: closeF}, true
}

// NewPricePoint builds a close-only record, rejecting unusable closes.
func NewPricePoint(date string, close interface{}) (PricePoint, bool) {
	if len(date) < 10 {
		return PricePoint{}, false
	}
	closeF, ok := SafeFloat(close)
	if !ok {
		return PricePoint{}, false
	}
	return PricePoint{Date: date[:10], Close: closeF}, true
}
