package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/loic-marigny/xMarket/internal/common"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS stock_market_history (
	symbol       TEXT NOT NULL,
	record_date  TEXT,
	record_value DOUBLE PRECISION,
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

// PostgresLoader mirrors the published JSON artifacts into Postgres.
// History rows are sent in multi-row batches to keep round trips down.
type PostgresLoader struct {
	db        *sql.DB
	logger    *common.Logger
	batchSize int
}

// NewPostgresLoader connects with the given DSN and ensures the schema.
func NewPostgresLoader(logger *common.Logger, dsn string, batchSize int) (*PostgresLoader, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create postgres schema: %w", err)
	}
	if batchSize <= 0 {
		batchSize = 1000
	}
	logger.Debug().Int("batch_size", batchSize).Msg("postgres connection opened")
	return &PostgresLoader{db: db, logger: logger, batchSize: batchSize}, nil
}

// Close releases the connection pool.
func (l *PostgresLoader) Close() error {
	return l.db.Close()
}

// historyRow is one pending insert.
type historyRow struct {
	symbol string
	date   *string
	value  *float64
}

// flushHistory sends one multi-row upsert.
func (l *PostgresLoader) flushHistory(tx *sql.Tx, rows []historyRow) error {
	if len(rows) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO stock_market_history (symbol, record_date, record_value) VALUES `)
	args := make([]interface{}, 0, len(rows)*3)
	for i, r := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		fmt.Fprintf(&sb, "($%d, $%d, $%d)", i*3+1, i*3+2, i*3+3)
		args = append(args, r.symbol, r.date, r.value)
	}
	sb.WriteString(` ON CONFLICT (symbol, record_date) DO UPDATE SET record_value = EXCLUDED.record_value`)

	if _, err := tx.Exec(sb.String(), args...); err != nil {
		return fmt.Errorf("failed to upsert history batch: %w", err)
	}
	return nil
}

// LoadHistory upserts every close-only series into stock_market_history.
// A series that reads as empty leaves a single null-marker row.
func (l *PostgresLoader) LoadHistory(store *FileStore) (int, error) {
	symbols, err := store.ListSeries(DirHistory)
	if err != nil {
		return 0, err
	}

	tx, err := l.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// NULL dates never conflict under the unique key, so marker rows from
	// earlier runs are cleared up front for every symbol in the load set.
	if _, err := tx.Exec(`DELETE FROM stock_market_history WHERE record_date IS NULL AND symbol = ANY($1)`, pq.Array(symbols)); err != nil {
		return 0, fmt.Errorf("failed to clear marker rows: %w", err)
	}

	total := 0
	pending := make([]historyRow, 0, l.batchSize)
	flush := func() error {
		if err := l.flushHistory(tx, pending); err != nil {
			return err
		}
		total += len(pending)
		pending = pending[:0]
		return nil
	}

	for _, symbol := range symbols {
		points := store.ReadPoints(DirHistory, symbol)
		if len(points) == 0 {
			pending = append(pending, historyRow{symbol: symbol})
			l.logger.Warn().Str("symbol", symbol).Msg("empty or invalid series, marker row inserted")
		} else {
			for _, p := range points {
				date, value := p.Date, p.Close
				pending = append(pending, historyRow{symbol: symbol, date: &date, value: &value})
				if len(pending) >= l.batchSize {
					if err := flush(); err != nil {
						return total, err
					}
				}
			}
		}
		if len(pending) >= l.batchSize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := flush(); err != nil {
		return total, err
	}

	if err := tx.Commit(); err != nil {
		return total, fmt.Errorf("failed to commit: %w", err)
	}
	l.logger.Info().Int("symbols", len(symbols)).Int("rows", total).Msg("history loaded into postgres")
	return total, nil
}

// LoadCompanies upserts the companies index into stock_market_companies.
func (l *PostgresLoader) LoadCompanies(store *FileStore) (int, error) {
	entries := store.ReadIndex()
	if len(entries) == 0 {
		return 0, fmt.Errorf("companies index is empty or missing")
	}

	tx, err := l.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO stock_market_companies
		(symbol, name, sector, market_code, market, profile, logo, history)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol) DO UPDATE SET
			name = EXCLUDED.name,
			sector = EXCLUDED.sector,
			market_code = EXCLUDED.market_code,
			market = EXCLUDED.market,
			profile = EXCLUDED.profile,
			logo = EXCLUDED.logo,
			history = EXCLUDED.history`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare upsert: %w", err)
	}
	defer stmt.Close()

	count := 0
	for _, e := range entries {
		marketCode, marketName := marketColumns(e.Market)
		if _, err := stmt.Exec(e.Symbol, e.Name, e.Sector, marketCode, marketName, e.Profile, e.Logo, e.History); err != nil {
			return count, fmt.Errorf("failed to insert company %s: %w", e.Symbol, err)
		}
		count++
	}

	if err := tx.Commit(); err != nil {
		return count, fmt.Errorf("failed to commit: %w", err)
	}
	l.logger.Info().Int("companies", count).Msg("companies loaded into postgres")
	return count, nil
}
