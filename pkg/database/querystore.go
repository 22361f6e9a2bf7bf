// QueryStore executes compiler-emitted SQL text directly over
// database/sql — never through gorm's query builder — so the only
// path from a DSL query to a database round trip is the one the
// compiler (and its parameterization) controls.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dewei/screenradar/pkg/config"
	"github.com/dewei/screenradar/pkg/model"
)

type QueryStore struct {
	db *sql.DB
}

func NewQueryStore(cfg *config.Config) (*QueryStore, error) {
	dbCfg := cfg.Database.TimescaleDB
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dbCfg.Host, dbCfg.Port, dbCfg.User, dbCfg.Password, dbCfg.DBName, dbCfg.SSLMode,
	)
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		return nil, fmt.Errorf("database: open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("database: ping: %w", err)
	}
	return &QueryStore{db: db}, nil
}

func (q *QueryStore) Close() error { return q.db.Close() }

// Row is one result row as a column-name-keyed map — the screener
// result shape returned over HTTP.
type Row map[string]interface{}

// Run executes a compiled SQL statement and its positional params,
// returning every matching row. The caller is responsible for having
// run the statement through pkg/validator and pkg/compiler first;
// Run performs no validation of its own.
func (q *QueryStore) Run(ctx context.Context, sqlText string, params []interface{}) ([]Row, error) {
	rows, err := q.db.QueryContext(ctx, sqlText, params...)
	if err != nil {
		return nil, fmt.Errorf("database: query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("database: columns: %w", err)
	}

	var out []Row
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("database: scan: %w", err)
		}
		row := make(Row, len(cols))
		for i, c := range cols {
			row[c] = vals[i]
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("database: row iteration: %w", err)
	}
	return out, nil
}

// Exists runs sqlText and reports whether it returned at least one
// row — used by the custom_dsl alert kind, which narrows a compiled
// screener query down to a single ticker and only cares about match
// or no match.
func (q *QueryStore) Exists(ctx context.Context, sqlText string, params []interface{}) (bool, error) {
	rows, err := q.Run(ctx, sqlText, params)
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// InsertQuote appends one price_history row. The collector is the
// only writer; it always has a fresh observation, so this is a plain
// insert rather than an upsert.
func (q *QueryStore) InsertQuote(ctx context.Context, quote *model.StockQuote) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO price_history (ticker, open, high, low, close, volume, date)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, quote.Symbol, quote.Open, quote.High, quote.Low, quote.Price, quote.Volume, quote.Timestamp)
	if err != nil {
		return fmt.Errorf("database: insert quote: %w", err)
	}
	return nil
}

// InsertFundamentals appends one fundamentals_quarterly row.
func (q *QueryStore) InsertFundamentals(ctx context.Context, f *model.Fundamentals) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO fundamentals_quarterly
			(symbol, quarter_end, pe_ratio, pb_ratio, roe, roa, net_income, revenue, eps,
			 debt_to_equity, current_ratio, dividend_yield)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, f.Symbol, f.QuarterEnd, f.PERatio, f.PBRatio, f.ROE, f.ROA, f.NetIncome, f.Revenue,
		f.EPS, f.DebtToEquity, f.CurrentRatio, f.DividendYield)
	if err != nil {
		return fmt.Errorf("database: insert fundamentals: %w", err)
	}
	return nil
}

// InsertAnalystEstimate appends one analyst_estimates row.
func (q *QueryStore) InsertAnalystEstimate(ctx context.Context, e *model.AnalystEstimate) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO analyst_estimates (ticker, estimate_date, price_target_low, price_target_avg, price_target_high)
		VALUES ($1, $2, $3, $4, $5)
	`, e.Ticker, e.EstimateDate, e.PriceTargetLow, e.PriceTargetAvg, e.PriceTargetHigh)
	if err != nil {
		return fmt.Errorf("database: insert analyst estimate: %w", err)
	}
	return nil
}

// LatestQuote returns the most recent price_history row for a ticker,
// used by the price_threshold and price_change alert kinds.
func (q *QueryStore) LatestQuote(ctx context.Context, symbol string) (*model.StockQuote, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT ticker, open, high, low, close, volume, date
		FROM price_history
		WHERE ticker = $1
		ORDER BY date DESC
		LIMIT 1
	`, symbol)

	var quote model.StockQuote
	if err := row.Scan(&quote.Symbol, &quote.Open, &quote.High, &quote.Low, &quote.Price, &quote.Volume, &quote.Timestamp); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("database: no quote for %s", symbol)
		}
		return nil, fmt.Errorf("database: latest quote: %w", err)
	}
	return &quote, nil
}
