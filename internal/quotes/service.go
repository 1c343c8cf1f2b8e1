package quotes

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/loic-marigny/xMarket/internal/common"
	"github.com/loic-marigny/xMarket/internal/interfaces"
	"github.com/loic-marigny/xMarket/internal/models"
	"github.com/loic-marigny/xMarket/internal/storage"
)

// fetchDelay spaces quote requests so a full pass stays polite.
const fetchDelay = 250 * time.Millisecond

// Summary aggregates one snapshot run.
type Summary struct {
	Fetched      int
	Carried      int
	ClosedMarket int
	Failed       int
	Changed      bool
	Written      bool
}

// Service produces the quote snapshot. Each market has its own provider
// chain; symbols whose market is closed, and symbols whose fetch fails,
// keep their previous quote.
type Service struct {
	logger *common.Logger
	store  *storage.FileStore
	hours  *Hours

	chains   map[models.Market][]interfaces.QuoteProvider
	fallback []interfaces.QuoteProvider

	now   func() time.Time
	sleep func(time.Duration)
}

// NewService creates a quote service. chains maps markets to their
// provider order; markets without an entry use the fallback chain.
func NewService(logger *common.Logger, store *storage.FileStore, hours *Hours, chains map[models.Market][]interfaces.QuoteProvider, fallback []interfaces.QuoteProvider) *Service {
	return &Service{
		logger:   logger,
		store:    store,
		hours:    hours,
		chains:   chains,
		fallback: fallback,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

func (s *Service) chainFor(market models.Market) []interfaces.QuoteProvider {
	if chain, ok := s.chains[market]; ok {
		return chain
	}
	return s.fallback
}

// providerSymbol maps the stored symbol to the provider's notation.
// Yahoo wants FX pairs as EURUSD=X; the CN providers take the bare code
// themselves, so the stored symbol passes through.
func providerSymbol(provider interfaces.QuoteProvider, t models.Ticker) string {
	if provider.Name() == "yahoo" {
		return models.MapSymbolForMarket(t.Symbol, t.Market)
	}
	return t.Symbol
}

// fetchLast walks the market's chain and returns the first quote.
func (s *Service) fetchLast(ctx context.Context, t models.Ticker) (models.Quote, bool) {
	for _, provider := range s.chainFor(t.Market) {
		q, err := provider.Last(ctx, providerSymbol(provider, t))
		if err != nil {
			s.logger.Debug().Err(err).Str("symbol", t.Symbol).Str("provider", provider.Name()).Msg("quote fetch failed")
			continue
		}
		return q, true
	}
	return models.Quote{}, false
}

// Snapshot refreshes the quote book for every tracked ticker and writes
// it to the data and public paths when anything changed. It fails only
// when nothing could be fetched and no previous book exists, so a bad
// run never destroys the served file.
func (s *Service) Snapshot(ctx context.Context) (*Summary, error) {
	tickers, err := s.store.LoadTickers()
	if err != nil {
		return nil, err
	}

	book := s.store.ReadQuoteBook()
	hadPrevious := s.store.HasQuoteBook()
	summary := &Summary{}

	for i, t := range tickers {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		if !s.hours.Open(ctx, t.Market) {
			summary.ClosedMarket++
			s.logger.Debug().Str("symbol", t.Symbol).Str("market", string(t.Market)).Msg("market closed, carrying previous quote")
			continue
		}

		q, ok := s.fetchLast(ctx, t)
		if !ok {
			if _, had := book.Get(t.Symbol); had {
				summary.Carried++
				s.logger.Warn().Str("symbol", t.Symbol).Msg("fetch failed, carrying previous quote")
			} else {
				summary.Failed++
				s.logger.Warn().Str("symbol", t.Symbol).Msg("fetch failed, no previous quote")
			}
		} else {
			summary.Fetched++
			if book.Set(t.Symbol, q) {
				summary.Changed = true
			}
		}

		if i < len(tickers)-1 {
			s.sleep(fetchDelay)
		}
	}

	if summary.Fetched == 0 && !hadPrevious {
		return summary, fmt.Errorf("no quotes fetched and no previous snapshot to fall back on")
	}

	if summary.Changed || !hadPrevious {
		book.Meta = &models.QuoteMeta{
			GeneratedAt: s.now().UTC().Format(time.RFC3339),
			RunID:       uuid.NewString(),
			Source:      "xmarket",
			Note:        fmt.Sprintf("fetched=%d carried=%d closed=%d", summary.Fetched, summary.Carried, summary.ClosedMarket),
		}
		if err := s.store.WriteQuoteBook(book); err != nil {
			return summary, err
		}
		summary.Written = true
	}

	s.logger.Info().
		Int("fetched", summary.Fetched).
		Int("carried", summary.Carried).
		Int("closed", summary.ClosedMarket).
		Int("failed", summary.Failed).
		Bool("written", summary.Written).
		Msg("quote snapshot finished")
	return summary, nil
}
