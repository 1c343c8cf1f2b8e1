package models

import (
	"encoding/json"
	"sort"
)

// Quote is one symbol's last known price.
// Interval records which provider path produced the value
// (e.g. "finnhub", "yahoo_1d", "eastmoney_spot").
type Quote struct {
	Last     float64 `json:"last"`
	AsOf     string  `json:"as_of"`
	Interval string  `json:"interval,omitempty"`
}

// QuoteMeta describes one snapshot run.
type QuoteMeta struct {
	GeneratedAt string `json:"generated_at"`
	RunID       string `json:"run_id,omitempty"`
	Source      string `json:"source,omitempty"`
	Note        string `json:"note,omitempty"`
}

// QuoteBook is the persisted symbol -> Quote mapping. On disk it is a
// single JSON object whose keys are symbols, plus one reserved "meta" key.
type QuoteBook struct {
	Quotes map[string]Quote
	Meta   *QuoteMeta
}

// NewQuoteBook returns an empty book.
func NewQuoteBook() *QuoteBook {
	return &QuoteBook{Quotes: make(map[string]Quote)}
}

// Get returns the quote for a symbol, if present.
func (b *QuoteBook) Get(symbol string) (Quote, bool) {
	q, ok := b.Quotes[symbol]
	return q, ok
}

// Set stores a quote and reports whether the stored value changed.
func (b *QuoteBook) Set(symbol string, q Quote) bool {
	if b.Quotes == nil {
		b.Quotes = make(map[string]Quote)
	}
	prev, had := b.Quotes[symbol]
	b.Quotes[symbol] = q
	return !had || prev != q
}

// MarshalJSON flattens the book into one object with the meta entry inline.
func (b *QuoteBook) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(b.Quotes)+1)
	for sym, q := range b.Quotes {
		data, err := json.Marshal(q)
		if err != nil {
			return nil, err
		}
		out[sym] = data
	}
	if b.Meta != nil {
		data, err := json.Marshal(b.Meta)
		if err != nil {
			return nil, err
		}
		out["meta"] = data
	}
	return json.Marshal(out)
}

// UnmarshalJSON splits the reserved meta key back out of the mapping.
func (b *QuoteBook) UnmarshalJSON(data []byte) error {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	b.Quotes = make(map[string]Quote, len(raw))
	b.Meta = nil
	for key, msg := range raw {
		if key == "meta" {
			var meta QuoteMeta
			if err := json.Unmarshal(msg, &meta); err == nil {
				b.Meta = &meta
			}
			continue
		}
		var q Quote
		if err := json.Unmarshal(msg, &q); err != nil {
			continue // tolerate unknown entries rather than failing the load
		}
		b.Quotes[key] = q
	}
	return nil
}

// Symbols returns the book's symbols in sorted order.
func (b *QuoteBook) Symbols() []string {
	syms := make([]string, 0, len(b.Quotes))
	for s := range b.Quotes {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	return syms
}
