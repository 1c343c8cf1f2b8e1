// Package index builds the companies index and keeps company profiles
// enriched from the worker's summary endpoint.
package index

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/loic-marigny/xMarket/internal/common"
	"github.com/loic-marigny/xMarket/internal/interfaces"
	"github.com/loic-marigny/xMarket/internal/models"
	"github.com/loic-marigny/xMarket/internal/storage"
)

// profileDelay spaces summary fetches during a profile update pass.
const profileDelay = 500 * time.Millisecond

// Service maintains companies/index.json and the per-company profiles.
type Service struct {
	logger    *common.Logger
	store     *storage.FileStore
	summaries interfaces.SummaryProvider

	sleep func(time.Duration)
}

// NewService creates an index service. summaries may be nil when only
// Build is used.
func NewService(logger *common.Logger, store *storage.FileStore, summaries interfaces.SummaryProvider) *Service {
	return &Service{
		logger:    logger,
		store:     store,
		summaries: summaries,
		sleep:     time.Sleep,
	}
}

// Build regenerates companies/index.json from the ticker list. Symbols
// are uppercased; a profile stub is created for new companies but an
// existing profile is never overwritten. The logo path is set when the
// asset exists on disk and otherwise preserved from the previous index,
// so logos added by hand survive a rebuild.
func (s *Service) Build() (int, error) {
	tickers, err := s.store.LoadTickers()
	if err != nil {
		return 0, err
	}
	previous := s.store.ReadIndex()

	entries := make([]models.IndexEntry, 0, len(tickers))
	for _, t := range tickers {
		sym := strings.ToUpper(t.Symbol)

		if !s.store.HasProfile(sym) {
			stub := models.Profile{
				"symbol": sym,
				"name":   t.Name,
				"sector": t.Sector,
			}
			if err := s.store.WriteProfile(sym, stub); err != nil {
				return 0, err
			}
			s.logger.Debug().Str("symbol", sym).Msg("profile stub created")
		}

		var logo *string
		if s.store.HasLogo(sym) {
			path := fmt.Sprintf("companies/%s/logo.svg", sym)
			logo = &path
		} else if prev, ok := previous[sym]; ok {
			logo = prev.Logo
		}

		market := t.Market
		entries = append(entries, models.IndexEntry{
			Symbol:  sym,
			Name:    t.Name,
			Sector:  t.Sector,
			Profile: fmt.Sprintf("companies/%s/profile.json", sym),
			Logo:    logo,
			History: fmt.Sprintf("history/%s.json", sym),
			Market:  &market,
		})
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Symbol < entries[j].Symbol })
	if err := s.store.WriteIndex(entries); err != nil {
		return 0, err
	}
	s.logger.Info().Int("entries", len(entries)).Msg("companies index built")
	return len(entries), nil
}

// UpdateProfiles fetches the worker summary for each ticker and merges
// the allowlisted fields into the stored profile. Fetch failures skip
// the symbol; the pass continues.
func (s *Service) UpdateProfiles(ctx context.Context) (int, error) {
	if s.summaries == nil {
		return 0, fmt.Errorf("no summary provider configured")
	}
	tickers, err := s.store.LoadTickers()
	if err != nil {
		return 0, err
	}

	updated := 0
	for i, t := range tickers {
		if err := ctx.Err(); err != nil {
			return updated, err
		}
		sym := strings.ToUpper(t.Symbol)

		summary, err := s.summaries.Summary(ctx, models.MapSymbolForMarket(t.Symbol, t.Market))
		if err != nil {
			s.logger.Warn().Err(err).Str("symbol", sym).Msg("summary fetch failed")
		} else if merged := mergeSummary(s.store.ReadProfile(sym), sym, t, summary); merged != nil {
			if err := s.store.WriteProfile(sym, merged); err != nil {
				return updated, err
			}
			updated++
			s.logger.Debug().Str("symbol", sym).Msg("profile updated")
		}

		if i < len(tickers)-1 {
			s.sleep(profileDelay)
		}
	}

	s.logger.Info().Int("updated", updated).Int("total", len(tickers)).Msg("profile update finished")
	return updated, nil
}

// mergeSummary folds the allowlisted summary fields into a profile,
// keeping the identity triplet current. Returns nil when the summary
// carries none of the allowlisted fields.
func mergeSummary(profile models.Profile, symbol string, t models.Ticker, summary map[string]interface{}) models.Profile {
	if profile == nil {
		profile = models.Profile{}
	}
	found := false
	for _, field := range models.SummaryFields {
		if v, ok := summary[field]; ok && v != nil {
			profile[field] = v
			found = true
		}
	}
	if !found {
		return nil
	}
	profile["symbol"] = symbol
	if t.Name != "" {
		profile["name"] = t.Name
	}
	if t.Sector != "" {
		profile["sector"] = t.Sector
	}
	return profile
}
