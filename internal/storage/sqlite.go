package storage

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/loic-marigny/xMarket/internal/common"
	"github.com/loic-marigny/xMarket/internal/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS stock_market_history (
	symbol       TEXT NOT NULL,
	record_date  TEXT,
	record_value REAL,
	UNIQUE(symbol, record_date)
);

CREATE TABLE IF NOT EXISTS stock_market_companies (
	symbol      TEXT PRIMARY KEY,
	name        TEXT,
	sector      TEXT,
	market_code TEXT,
	market      TEXT,
	profile     TEXT,
	logo        TEXT,
	history     TEXT
);
`

// SQLiteLoader mirrors the published JSON artifacts into a local SQLite
// database for ad-hoc querying.
type SQLiteLoader struct {
	db     *sql.DB
	logger *common.Logger
}

// NewSQLiteLoader opens (or creates) the database and ensures the schema.
func NewSQLiteLoader(logger *common.Logger, path string) (*SQLiteLoader, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create sqlite schema: %w", err)
	}
	logger.Debug().Str("path", path).Msg("sqlite database opened")
	return &SQLiteLoader{db: db, logger: logger}, nil
}

// Close releases the database handle.
func (l *SQLiteLoader) Close() error {
	return l.db.Close()
}

// LoadHistory upserts every close-only series into stock_market_history,
// keyed by (symbol, record_date). A series that reads as empty leaves a
// single null-marker row so the gap is visible in the database.
func (l *SQLiteLoader) LoadHistory(store *FileStore) (int, error) {
	symbols, err := store.ListSeries(DirHistory)
	if err != nil {
		return 0, err
	}

	tx, err := l.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsert, err := tx.Prepare(`INSERT INTO stock_market_history (symbol, record_date, record_value)
		VALUES (?, ?, ?)
		ON CONFLICT(symbol, record_date) DO UPDATE SET record_value = excluded.record_value`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer upsert.Close()

	// NULL dates never conflict under the unique key, so marker rows from
	// earlier runs must be cleared explicitly before writing the symbol.
	clearMarker, err := tx.Prepare(`DELETE FROM stock_market_history WHERE symbol = ? AND record_date IS NULL`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare marker cleanup: %w", err)
	}
	defer clearMarker.Close()

	rows := 0
	for _, symbol := range symbols {
		if _, err := clearMarker.Exec(symbol); err != nil {
			return rows, fmt.Errorf("failed to clear marker for %s: %w", symbol, err)
		}
		points := store.ReadPoints(DirHistory, symbol)
		if len(points) == 0 {
			if _, err := upsert.Exec(symbol, nil, nil); err != nil {
				return rows, fmt.Errorf("failed to insert marker for %s: %w", symbol, err)
			}
			l.logger.Warn().Str("symbol", symbol).Msg("empty or invalid series, marker row inserted")
			rows++
			continue
		}
		for _, p := range points {
			if _, err := upsert.Exec(symbol, p.Date, p.Close); err != nil {
				return rows, fmt.Errorf("failed to insert %s %s: %w", symbol, p.Date, err)
			}
			rows++
		}
	}

	if err := tx.Commit(); err != nil {
		return rows, fmt.Errorf("failed to commit: %w", err)
	}
	l.logger.Info().Int("symbols", len(symbols)).Int("rows", rows).Msg("history loaded into sqlite")
	return rows, nil
}

// LoadCompanies upserts the companies index into stock_market_companies.
func (l *SQLiteLoader) LoadCompanies(store *FileStore) (int, error) {
	entries := store.ReadIndex()
	if len(entries) == 0 {
		return 0, fmt.Errorf("companies index is empty or missing")
	}

	tx, err := l.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsert, err := tx.Prepare(`INSERT INTO stock_market_companies
		(symbol, name, sector, market_code, market, profile, logo, history)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			name = excluded.name,
			sector = excluded.sector,
			market_code = excluded.market_code,
			market = excluded.market,
			profile = excluded.profile,
			logo = excluded.logo,
			history = excluded.history`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer upsert.Close()

	count := 0
	for _, e := range entries {
		marketCode, marketName := marketColumns(e.Market)
		if _, err := upsert.Exec(e.Symbol, e.Name, e.Sector, marketCode, marketName, e.Profile, e.Logo, e.History); err != nil {
			return count, fmt.Errorf("failed to insert company %s: %w", e.Symbol, err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return count, fmt.Errorf("failed to commit: %w", err)
	}
	l.logger.Info().Int("companies", count).Msg("companies loaded into sqlite")
	return count, nil
}

// marketColumns resolves the (code, display name) pair for an index
// entry, tolerating entries written before markets were tagged.
func marketColumns(m *models.Market) (string, string) {
	if m == nil {
		return "", "Other"
	}
	return string(*m), m.DisplayName()
}
