// Package models defines the core data types shared across the pipelines.
package models

import "strings"

// Market identifies the venue class a ticker trades on.
type Market string

const (
	MarketUS        Market = "US"
	MarketCN        Market = "CN"
	MarketEU        Market = "EU"
	MarketJP        Market = "JP"
	MarketSA        Market = "SA"
	MarketCrypto    Market = "CRYPTO"
	MarketFX        Market = "FX"
	MarketCommodity Market = "COM"
	MarketIndex     Market = "IDX"
)

// ParseMarket normalizes a raw market code from the ticker list.
// Unknown or empty codes default to US, matching the ticker list's
// historical convention.
func ParseMarket(raw string) Market {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "CN":
		return MarketCN
	case "EU":
		return MarketEU
	case "JP":
		return MarketJP
	case "SA":
		return MarketSA
	case "CRYPTO":
		return MarketCrypto
	case "FX", "FOREX":
		return MarketFX
	case "COM", "COMMODITY":
		return MarketCommodity
	case "IDX", "INDEX":
		return MarketIndex
	default:
		return MarketUS
	}
}

// IsEquity reports whether the market carries listed company equities.
// Tokened equity providers (Finnhub, Alpha Vantage, Stooq) are skipped
// for the non-equity classes.
func (m Market) IsEquity() bool {
	switch m {
	case MarketCrypto, MarketFX, MarketCommodity, MarketIndex:
		return false
	}
	return true
}

// DisplayName returns the human-readable venue name used by the
// database loaders.
func (m Market) DisplayName() string {
	switch m {
	case MarketUS:
		return "New York"
	case MarketCN:
		return "Shanghai"
	case MarketEU:
		return "Euronext"
	case MarketJP:
		return "Tokyo"
	case MarketSA:
		return "Saudi Arabia"
	case MarketCrypto:
		return "Crypto"
	case MarketFX:
		return "Forex"
	case MarketCommodity:
		return "Commodities"
	case MarketIndex:
		return "Indices"
	}
	if m == "" {
		return "Other"
	}
	return string(m)
}

// Ticker is one entry of the read-only ticker list.
type Ticker struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Sector string `json:"sector"`
	Market Market `json:"market"`
}

// MapSymbolForMarket applies provider-facing symbol remapping.
// FX pairs need Yahoo's "=X" suffix.
func MapSymbolForMarket(symbol string, market Market) string {
	if market == MarketFX && !strings.HasSuffix(symbol, "=X") {
		return symbol + "=X"
	}
	return symbol
}

// CNCode strips the exchange suffix from a CN symbol (600519.SS -> 600519).
func CNCode(symbol string) string {
	if i := strings.IndexByte(symbol, '.'); i >= 0 {
		return symbol[:i]
	}
	return symbol
}

// IsCN reports whether a ticker belongs to the Chinese A-share pipeline,
// either by market flag or by the Shanghai exchange suffix.
func IsCN(symbol string, market Market) bool {
	return market == MarketCN || strings.HasSuffix(symbol, ".SS")
}
