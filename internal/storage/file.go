// Package storage persists the pipeline artifacts: per-symbol history
// JSON files, the quote book, company profiles and the companies index.
package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/loic-marigny/xMarket/internal/common"
	"github.com/loic-marigny/xMarket/internal/models"
)

// Artifact directories under the public path.
const (
	DirHistory     = "history"      // close-only series
	DirHistoryOHLC = "history_ohlc" // full candles
	DirCompanies   = "companies"
)

// QuotesFile is the quote book filename, present in both the data and
// public paths.
const QuotesFile = "quotes.json"

// TickersFile is the read-only ticker list under the data path.
const TickersFile = "tickers.json"

// FileStore provides file-based JSON storage with atomic whole-file writes.
type FileStore struct {
	dataPath   string
	publicPath string
	logger     *common.Logger
}

// NewFileStore creates a FileStore and ensures the artifact directories exist.
func NewFileStore(logger *common.Logger, config *common.StorageConfig) (*FileStore, error) {
	fs := &FileStore{
		dataPath:   config.DataPath,
		publicPath: config.PublicPath,
		logger:     logger,
	}

	dirs := []string{
		fs.dataPath,
		filepath.Join(fs.publicPath, DirHistory),
		filepath.Join(fs.publicPath, DirHistoryOHLC),
		filepath.Join(fs.publicPath, DirCompanies),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	logger.Debug().Str("data", fs.dataPath).Str("public", fs.publicPath).Msg("FileStore opened")
	return fs, nil
}

// sanitizeKey makes a key safe for use as a filename. Replaces /, \, :
// with _ and collapses ".." to "_" to prevent path traversal. Single dots
// stay (common in tickers like 600519.SS).
func sanitizeKey(key string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "..", "_")
	return r.Replace(key)
}

// seriesPath returns the artifact path for a symbol in a history directory.
func (fs *FileStore) seriesPath(dir, symbol string) string {
	return filepath.Join(fs.publicPath, dir, sanitizeKey(symbol)+".json")
}

// writeJSONFile marshals data to indented JSON and writes it atomically:
// temp file in the target directory, then rename.
func writeJSONFile(path string, data interface{}) error {
	jsonData, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	jsonData = append(jsonData, '\n')

	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err := tmpFile.Write(jsonData); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// readJSONFile reads and unmarshals a JSON file.
func readJSONFile(path string, dest interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return fmt.Errorf("%s is empty", path)
	}
	return json.Unmarshal(data, dest)
}

// --- Ticker list ---

// LoadTickers reads the read-only ticker list. Entries without a symbol
// are skipped; market codes are normalized.
func (fs *FileStore) LoadTickers() ([]models.Ticker, error) {
	path := filepath.Join(fs.dataPath, TickersFile)

	var raw []struct {
		Symbol string `json:"symbol"`
		Name   string `json:"name"`
		Sector string `json:"sector"`
		Market string `json:"market"`
	}
	if err := readJSONFile(path, &raw); err != nil {
		return nil, fmt.Errorf("failed to load ticker list: %w", err)
	}

	out := make([]models.Ticker, 0, len(raw))
	for _, it := range raw {
		sym := strings.TrimSpace(it.Symbol)
		if sym == "" {
			continue
		}
		out = append(out, models.Ticker{
			Symbol: sym,
			Name:   strings.TrimSpace(it.Name),
			Sector: strings.TrimSpace(it.Sector),
			Market: models.ParseMarket(it.Market),
		})
	}
	return out, nil
}

// --- History series ---

// ReadCandles loads an existing OHLC series; a missing or corrupt
// artifact reads as empty, matching the refetch-and-merge recovery path.
func (fs *FileStore) ReadCandles(dir, symbol string) []models.Candle {
	var series []models.Candle
	if err := readJSONFile(fs.seriesPath(dir, symbol), &series); err != nil {
		return nil
	}
	return series
}

// ReadPoints loads an existing close-only series; a missing or corrupt
// artifact reads as empty.
func (fs *FileStore) ReadPoints(dir, symbol string) []models.PricePoint {
	var series []models.PricePoint
	if err := readJSONFile(fs.seriesPath(dir, symbol), &series); err != nil {
		return nil
	}
	return series
}

// HasSeries reports whether an artifact exists for the symbol.
func (fs *FileStore) HasSeries(dir, symbol string) bool {
	_, err := os.Stat(fs.seriesPath(dir, symbol))
	return err == nil
}

// WriteSeries rewrites a symbol's artifact wholesale.
func (fs *FileStore) WriteSeries(dir, symbol string, series interface{}) error {
	if err := writeJSONFile(fs.seriesPath(dir, symbol), series); err != nil {
		return fmt.Errorf("failed to write series for %s: %w", symbol, err)
	}
	fs.logger.Debug().Str("symbol", symbol).Str("dir", dir).Msg("series written")
	return nil
}

// ListSeries returns the symbols that have an artifact in a directory.
func (fs *FileStore) ListSeries(dir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(fs.publicPath, dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read directory %s: %w", dir, err)
	}
	var symbols []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasSuffix(name, ".json") && !strings.HasPrefix(name, ".tmp-") {
			symbols = append(symbols, strings.TrimSuffix(name, ".json"))
		}
	}
	return symbols, nil
}

// SeriesPath exposes the artifact path for a symbol, used by the database
// loaders to report file provenance.
func (fs *FileStore) SeriesPath(dir, symbol string) string {
	return fs.seriesPath(dir, symbol)
}

// --- Quote book ---

// ReadQuoteBook loads the previous quote book, preferring the working
// copy under the data path and falling back to the published one.
// Returns an empty book when neither exists.
func (fs *FileStore) ReadQuoteBook() *models.QuoteBook {
	for _, path := range []string{
		filepath.Join(fs.dataPath, QuotesFile),
		filepath.Join(fs.publicPath, QuotesFile),
	} {
		book := models.NewQuoteBook()
		if err := readJSONFile(path, book); err == nil {
			return book
		}
	}
	return models.NewQuoteBook()
}

// HasQuoteBook reports whether any previous quote file exists.
func (fs *FileStore) HasQuoteBook() bool {
	for _, path := range []string{
		filepath.Join(fs.dataPath, QuotesFile),
		filepath.Join(fs.publicPath, QuotesFile),
	} {
		if _, err := os.Stat(path); err == nil {
			return true
		}
	}
	return false
}

// WriteQuoteBook writes the book to both the data and public copies.
func (fs *FileStore) WriteQuoteBook(book *models.QuoteBook) error {
	for _, path := range []string{
		filepath.Join(fs.dataPath, QuotesFile),
		filepath.Join(fs.publicPath, QuotesFile),
	} {
		if err := writeJSONFile(path, book); err != nil {
			return fmt.Errorf("failed to write quotes: %w", err)
		}
	}
	fs.logger.Debug().Int("symbols", len(book.Quotes)).Msg("quote book written")
	return nil
}

// --- Companies ---

// companyDir returns the per-company folder, creating it if needed.
func (fs *FileStore) companyDir(symbol string) (string, error) {
	dir := filepath.Join(fs.publicPath, DirCompanies, sanitizeKey(symbol))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create company dir for %s: %w", symbol, err)
	}
	return dir, nil
}

// ReadProfile loads a company profile; missing or corrupt files read as
// an empty profile.
func (fs *FileStore) ReadProfile(symbol string) models.Profile {
	profile := models.Profile{}
	path := filepath.Join(fs.publicPath, DirCompanies, sanitizeKey(symbol), "profile.json")
	if err := readJSONFile(path, &profile); err != nil {
		return models.Profile{}
	}
	return profile
}

// HasProfile reports whether a profile exists for the symbol.
func (fs *FileStore) HasProfile(symbol string) bool {
	path := filepath.Join(fs.publicPath, DirCompanies, sanitizeKey(symbol), "profile.json")
	_, err := os.Stat(path)
	return err == nil
}

// WriteProfile persists a company profile.
func (fs *FileStore) WriteProfile(symbol string, profile models.Profile) error {
	dir, err := fs.companyDir(symbol)
	if err != nil {
		return err
	}
	if err := writeJSONFile(filepath.Join(dir, "profile.json"), profile); err != nil {
		return fmt.Errorf("failed to write profile for %s: %w", symbol, err)
	}
	return nil
}

// HasLogo reports whether a company logo asset is present.
func (fs *FileStore) HasLogo(symbol string) bool {
	path := filepath.Join(fs.publicPath, DirCompanies, sanitizeKey(symbol), "logo.svg")
	_, err := os.Stat(path)
	return err == nil
}

// ReadIndex loads the existing companies index keyed by symbol; missing
// or corrupt files read as empty.
func (fs *FileStore) ReadIndex() map[string]models.IndexEntry {
	var entries []models.IndexEntry
	path := filepath.Join(fs.publicPath, DirCompanies, "index.json")
	if err := readJSONFile(path, &entries); err != nil {
		return map[string]models.IndexEntry{}
	}
	out := make(map[string]models.IndexEntry, len(entries))
	for _, e := range entries {
		sym := strings.ToUpper(e.Symbol)
		if sym != "" {
			out[sym] = e
		}
	}
	return out
}

// WriteIndex persists the companies index.
func (fs *FileStore) WriteIndex(entries []models.IndexEntry) error {
	path := filepath.Join(fs.publicPath, DirCompanies, "index.json")
	if err := writeJSONFile(path, entries); err != nil {
		return fmt.Errorf("failed to write companies index: %w", err)
	}
	fs.logger.Debug().Int("entries", len(entries)).Msg("companies index written")
	return nil
}
