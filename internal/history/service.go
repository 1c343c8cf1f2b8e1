package history

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/loic-marigny/xMarket/internal/clients"
	"github.com/loic-marigny/xMarket/internal/common"
	"github.com/loic-marigny/xMarket/internal/interfaces"
	"github.com/loic-marigny/xMarket/internal/models"
	"github.com/loic-marigny/xMarket/internal/storage"
)

// Variant selects which artifact family a run maintains.
type Variant string

const (
	// VariantClose maintains close-only series under history/.
	VariantClose Variant = "close"
	// VariantOHLC maintains full candles under history_ohlc/.
	VariantOHLC Variant = "ohlc"
)

// Dir returns the artifact directory for the variant.
func (v Variant) Dir() string {
	if v == VariantOHLC {
		return storage.DirHistoryOHLC
	}
	return storage.DirHistory
}

// Status is the terminal state of one symbol in a run.
type Status string

const (
	StatusWritten           Status = "written"
	StatusSkippedSufficient Status = "skipped_sufficient"
	StatusKeptExisting      Status = "kept_existing"
	StatusSkippedNoData     Status = "skipped_no_data"
)

// Result records the outcome for a single symbol.
type Result struct {
	Symbol string
	Status Status
	Source string
	Points int
}

// Summary aggregates a run's outcomes.
type Summary struct {
	Written           int
	SkippedSufficient int
	KeptExisting      int
	SkippedNoData     int
	Results           []Result
}

// Options narrows a run to a subset of the ticker list.
type Options struct {
	// Symbols restricts the run to these symbols when non-empty.
	Symbols []string
	// Limit truncates the list after filtering; 0 means no limit.
	Limit int
	// BatchIndex selects one slice of BatchSize symbols; negative
	// disables slicing.
	BatchIndex int
	// BatchSize overrides the configured batch size when positive.
	BatchSize int
}

// Service runs the daily backfill: for each ticker it checks coverage of
// the existing artifact, walks the provider chain until one returns
// data, merges by date and rewrites the artifact.
type Service struct {
	logger    *common.Logger
	config    *common.Config
	store     *storage.FileStore
	providers []interfaces.HistoryProvider

	now   func() time.Time
	sleep func(time.Duration)
}

// NewService creates a history service. Providers are tried in the given
// order, filtered per symbol by what each one supports.
func NewService(logger *common.Logger, config *common.Config, store *storage.FileStore, providers []interfaces.HistoryProvider) *Service {
	return &Service{
		logger:    logger,
		config:    config,
		store:     store,
		providers: providers,
		now:       time.Now,
		sleep:     time.Sleep,
	}
}

// OrderProviders arranges the default fallback chain. The worker proxy
// leads when workerPriority is set, otherwise direct Yahoo goes first.
func OrderProviders(workerPriority bool, worker, yahoo interfaces.HistoryProvider, rest ...interfaces.HistoryProvider) []interfaces.HistoryProvider {
	var lead []interfaces.HistoryProvider
	if workerPriority {
		lead = []interfaces.HistoryProvider{worker, yahoo}
	} else {
		lead = []interfaces.HistoryProvider{yahoo, worker}
	}
	ordered := make([]interfaces.HistoryProvider, 0, 2+len(rest))
	for _, p := range append(lead, rest...) {
		if p != nil {
			ordered = append(ordered, p)
		}
	}
	return ordered
}

// selectTickers applies Options to the full ticker list.
func (s *Service) selectTickers(tickers []models.Ticker, opts Options) []models.Ticker {
	selected := tickers
	if len(opts.Symbols) > 0 {
		want := make(map[string]bool, len(opts.Symbols))
		for _, sym := range opts.Symbols {
			want[strings.ToUpper(strings.TrimSpace(sym))] = true
		}
		filtered := make([]models.Ticker, 0, len(want))
		for _, t := range selected {
			if want[strings.ToUpper(t.Symbol)] {
				filtered = append(filtered, t)
			}
		}
		selected = filtered
	}
	if opts.Limit > 0 && len(selected) > opts.Limit {
		selected = selected[:opts.Limit]
	}
	if opts.BatchIndex >= 0 {
		size := opts.BatchSize
		if size <= 0 {
			size = s.config.History.BatchSize
		}
		start := opts.BatchIndex * size
		if start >= len(selected) {
			return nil
		}
		end := start + size
		if end > len(selected) {
			end = len(selected)
		}
		selected = selected[start:end]
	}
	return selected
}

// effectiveMarket folds symbol-level Shanghai listings into the CN
// market so provider eligibility matches the venue, not just the tag.
func effectiveMarket(t models.Ticker) models.Market {
	if models.IsCN(t.Symbol, t.Market) {
		return models.MarketCN
	}
	return t.Market
}

// symbolFor maps the stored symbol to the form a provider expects.
// Yahoo-backed providers take the Yahoo notation (FX pairs get =X).
func symbolFor(provider interfaces.HistoryProvider, t models.Ticker) string {
	switch provider.Name() {
	case "yahoo_worker", "yahoo":
		return models.MapSymbolForMarket(t.Symbol, t.Market)
	default:
		return t.Symbol
	}
}

// fetch walks the provider chain for one ticker and returns the first
// non-empty series with the provider name that produced it.
func (s *Service) fetch(ctx context.Context, t models.Ticker) ([]models.Candle, string) {
	market := effectiveMarket(t)
	for _, provider := range s.providers {
		if !provider.Supports(market) {
			continue
		}
		candles, err := provider.FetchDaily(ctx, symbolFor(provider, t), s.config.History.MinYears)
		if err != nil {
			if errors.Is(err, interfaces.ErrNoData) {
				s.logger.Debug().Str("symbol", t.Symbol).Str("provider", provider.Name()).Msg("no data")
			} else {
				s.logger.Warn().Err(err).Str("symbol", t.Symbol).Str("provider", provider.Name()).Msg("provider failed")
			}
			continue
		}
		if len(candles) == 0 {
			continue
		}
		return candles, provider.Name()
	}
	return nil, ""
}

// Run executes the backfill over the ticker list for one variant.
func (s *Service) Run(ctx context.Context, variant Variant, opts Options) (*Summary, error) {
	tickers, err := s.store.LoadTickers()
	if err != nil {
		return nil, err
	}
	selected := s.selectTickers(tickers, opts)

	now := s.now()
	minFromDate := clients.CutoffDate(now, s.config.History.MinYears)
	dir := variant.Dir()

	s.logger.Info().
		Int("symbols", len(selected)).
		Str("variant", string(variant)).
		Str("min_from", minFromDate).
		Msg("history run started")

	summary := &Summary{}
	for i, t := range selected {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		result := s.processSymbol(ctx, dir, variant, t, minFromDate, now)
		summary.Results = append(summary.Results, result)
		switch result.Status {
		case StatusWritten:
			summary.Written++
			s.logger.Info().Str("symbol", t.Symbol).Str("source", result.Source).Int("points", result.Points).Msg("written")
		case StatusSkippedSufficient:
			summary.SkippedSufficient++
			s.logger.Debug().Str("symbol", t.Symbol).Msg("coverage sufficient")
		case StatusKeptExisting:
			summary.KeptExisting++
			s.logger.Warn().Str("symbol", t.Symbol).Msg("no new data, keeping existing")
		case StatusSkippedNoData:
			summary.SkippedNoData++
			s.logger.Warn().Str("symbol", t.Symbol).Msg("no data from any provider")
		}

		// Politeness pause between fetches; skips don't hit the network.
		if result.Status != StatusSkippedSufficient && i < len(selected)-1 {
			s.sleep(s.config.History.GetSymbolDelay())
		}
	}

	s.logger.Info().
		Int("written", summary.Written).
		Int("sufficient", summary.SkippedSufficient).
		Int("kept", summary.KeptExisting).
		Int("no_data", summary.SkippedNoData).
		Msg("history run finished")
	return summary, nil
}

// processSymbol runs the coverage check, fetch and merge for one ticker.
func (s *Service) processSymbol(ctx context.Context, dir string, variant Variant, t models.Ticker, minFromDate string, now time.Time) Result {
	if variant == VariantOHLC {
		existing := s.store.ReadCandles(dir, t.Symbol)
		if n := len(existing); n > 0 {
			first, last := SeriesBounds(existing, candleDate)
			if CoverageOK(n, first, last, minFromDate, now) {
				return Result{Symbol: t.Symbol, Status: StatusSkippedSufficient, Points: n}
			}
		}
		fresh, source := s.fetch(ctx, t)
		if len(fresh) == 0 {
			if s.store.HasSeries(dir, t.Symbol) {
				return Result{Symbol: t.Symbol, Status: StatusKeptExisting, Points: len(existing)}
			}
			return Result{Symbol: t.Symbol, Status: StatusSkippedNoData}
		}
		merged := MergeCandles(existing, fresh)
		if err := s.store.WriteSeries(dir, t.Symbol, merged); err != nil {
			s.logger.Error().Err(err).Str("symbol", t.Symbol).Msg("write failed")
			return Result{Symbol: t.Symbol, Status: StatusSkippedNoData}
		}
		return Result{Symbol: t.Symbol, Status: StatusWritten, Source: source, Points: len(merged)}
	}

	existing := s.store.ReadPoints(dir, t.Symbol)
	if n := len(existing); n > 0 {
		first, last := SeriesBounds(existing, pointDate)
		if CoverageOK(n, first, last, minFromDate, now) {
			return Result{Symbol: t.Symbol, Status: StatusSkippedSufficient, Points: n}
		}
	}
	candles, source := s.fetch(ctx, t)
	if len(candles) == 0 {
		if s.store.HasSeries(dir, t.Symbol) {
			return Result{Symbol: t.Symbol, Status: StatusKeptExisting, Points: len(existing)}
		}
		return Result{Symbol: t.Symbol, Status: StatusSkippedNoData}
	}
	fresh := make([]models.PricePoint, 0, len(candles))
	for _, c := range candles {
		fresh = append(fresh, c.Point())
	}
	merged := MergePoints(existing, fresh)
	if err := s.store.WriteSeries(dir, t.Symbol, merged); err != nil {
		s.logger.Error().Err(err).Str("symbol", t.Symbol).Msg("write failed")
		return Result{Symbol: t.Symbol, Status: StatusSkippedNoData}
	}
	return Result{Symbol: t.Symbol, Status: StatusWritten, Source: source, Points: len(merged)}
}

// Check audits coverage of existing artifacts against the ticker list
// and returns the symbols that fail, sorted by ticker order. A missing
// artifact counts as failing.
func (s *Service) Check(variant Variant) ([]string, error) {
	tickers, err := s.store.LoadTickers()
	if err != nil {
		return nil, err
	}
	now := s.now()
	minFromDate := clients.CutoffDate(now, s.config.History.MinYears)
	dir := variant.Dir()

	var failing []string
	for _, t := range tickers {
		ok := false
		if variant == VariantOHLC {
			series := s.store.ReadCandles(dir, t.Symbol)
			if n := len(series); n > 0 {
				first, last := SeriesBounds(series, candleDate)
				ok = CoverageOK(n, first, last, minFromDate, now)
			}
		} else {
			series := s.store.ReadPoints(dir, t.Symbol)
			if n := len(series); n > 0 {
				first, last := SeriesBounds(series, pointDate)
				ok = CoverageOK(n, first, last, minFromDate, now)
			}
		}
		if !ok {
			failing = append(failing, t.Symbol)
		}
	}
	return failing, nil
}
