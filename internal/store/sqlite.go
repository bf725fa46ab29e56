package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS markets (
    id         TEXT PRIMARY KEY,
    creator    TEXT     NOT NULL,
    question   TEXT     NOT NULL,
    categories TEXT     NOT NULL DEFAULT '[]',
    yes_pool   TEXT     NOT NULL,
    no_pool    TEXT     NOT NULL,
    volume     TEXT     NOT NULL DEFAULT '0',
    resolved   INTEGER  NOT NULL DEFAULT 0,
    outcome    INTEGER,
    end_time   DATETIME NOT NULL,
    created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
    id         TEXT PRIMARY KEY,
    account_id TEXT     NOT NULL,
    market_id  TEXT     NOT NULL,
    side       TEXT     NOT NULL,
    type       TEXT     NOT NULL,
    shares     TEXT     NOT NULL,
    price      TEXT     NOT NULL,
    cost       TEXT     NOT NULL,
    timestamp  DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_markets_created ON markets(created_at DESC);
CREATE INDEX IF NOT EXISTS idx_trades_market   ON trades(market_id, timestamp);
CREATE INDEX IF NOT EXISTS idx_trades_account  ON trades(account_id, timestamp);
`

// SQLiteStore implements Store on a local SQLite file (pure Go, no CGo)
// for single-node deployments. Monetary values are stored as TEXT so
// decimal precision survives the round trip.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at the given path and
// applies the schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// SQLite is single-writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateMarket(ctx context.Context, m *model.Market) error {
	cats, err := json.Marshal(m.Categories)
	if err != nil {
		return fmt.Errorf("encode categories: %w", err)
	}
	var outcome *int
	if m.Outcome != nil {
		v := 0
		if *m.Outcome {
			v = 1
		}
		outcome = &v
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO markets (id, creator, question, categories, yes_pool, no_pool, volume, resolved, outcome, end_time, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.Creator, m.Question, string(cats),
		m.YesPool.String(), m.NoPool.String(), m.Volume.String(),
		boolToInt(m.Resolved), outcome, m.EndTime.UTC(), m.CreatedAt.UTC(),
	)
	return err
}

func (s *SQLiteStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, creator, question, categories, yes_pool, no_pool, volume,
		        resolved, outcome, end_time, created_at
		 FROM markets WHERE id = ?`, id)

	m, err := scanSQLiteMarket(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("market %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get market %s: %w", id, err)
	}
	return m, nil
}

func (s *SQLiteStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, creator, question, categories, yes_pool, no_pool, volume,
		        resolved, outcome, end_time, created_at
		 FROM markets ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		m, err := scanSQLiteMarket(rows.Scan)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	return markets, rows.Err()
}

func (s *SQLiteStore) UpdateMarketPools(ctx context.Context, id string, yesPool, noPool, volume decimal.Decimal) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE markets SET yes_pool = ?, no_pool = ?, volume = ?
		 WHERE id = ? AND resolved = 0`,
		yesPool.String(), noPool.String(), volume.String(), id,
	)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func (s *SQLiteStore) ResolveMarket(ctx context.Context, id string, outcome bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE markets SET resolved = 1, outcome = ?
		 WHERE id = ? AND resolved = 0`,
		boolToInt(outcome), id,
	)
	if err != nil {
		return err
	}
	return requireRow(res, id)
}

func (s *SQLiteStore) InsertTradeRecord(ctx context.Context, r *model.TradeRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO trades (id, account_id, market_id, side, type, shares, price, cost, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.AccountID, r.MarketID, string(r.Side), string(r.Type),
		r.Shares.String(), r.Price.String(), r.Cost.String(),
		r.Timestamp.UTC(),
	)
	return err
}

func (s *SQLiteStore) GetTradesByMarket(ctx context.Context, marketID string, limit int) ([]model.TradeRecord, error) {
	q := `SELECT id, account_id, market_id, side, type, shares, price, cost, timestamp
	      FROM trades WHERE market_id = ? ORDER BY timestamp`
	args := []interface{}{marketID}
	if limit > 0 {
		q = `SELECT * FROM (
		        SELECT id, account_id, market_id, side, type, shares, price, cost, timestamp
		        FROM trades WHERE market_id = ?
		        ORDER BY timestamp DESC LIMIT ?
		     ) ORDER BY timestamp`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSQLiteTrades(rows)
}

func (s *SQLiteStore) GetTradesByAccount(ctx context.Context, accountID string) ([]model.TradeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, account_id, market_id, side, type, shares, price, cost, timestamp
		 FROM trades WHERE account_id = ? ORDER BY timestamp`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanSQLiteTrades(rows)
}

func (s *SQLiteStore) ListAccounts(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT account_id FROM trades ORDER BY account_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		accounts = append(accounts, id)
	}
	return accounts, rows.Err()
}

func scanSQLiteMarket(scan func(dest ...interface{}) error) (*model.Market, error) {
	var m model.Market
	var cats, yesPool, noPool, volume string
	var resolved int
	var outcome sql.NullInt64
	var endTime, createdAt time.Time

	if err := scan(&m.ID, &m.Creator, &m.Question, &cats,
		&yesPool, &noPool, &volume,
		&resolved, &outcome, &endTime, &createdAt); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(cats), &m.Categories); err != nil {
		return nil, fmt.Errorf("decode categories: %w", err)
	}
	var err error
	if m.YesPool, err = decimal.NewFromString(yesPool); err != nil {
		return nil, fmt.Errorf("parse yes_pool: %w", err)
	}
	if m.NoPool, err = decimal.NewFromString(noPool); err != nil {
		return nil, fmt.Errorf("parse no_pool: %w", err)
	}
	if m.Volume, err = decimal.NewFromString(volume); err != nil {
		return nil, fmt.Errorf("parse volume: %w", err)
	}
	m.Resolved = resolved == 1
	if outcome.Valid {
		v := outcome.Int64 == 1
		m.Outcome = &v
	}
	m.EndTime = endTime.UTC()
	m.CreatedAt = createdAt.UTC()

	return &m, nil
}

func scanSQLiteTrades(rows *sql.Rows) ([]model.TradeRecord, error) {
	var records []model.TradeRecord
	for rows.Next() {
		var r model.TradeRecord
		var side, typ, sharesS, priceS, costS string
		var ts time.Time

		if err := rows.Scan(&r.ID, &r.AccountID, &r.MarketID, &side, &typ,
			&sharesS, &priceS, &costS, &ts); err != nil {
			return nil, err
		}

		r.Side = model.Side(side)
		r.Type = model.TradeType(typ)
		var err error
		if r.Shares, err = decimal.NewFromString(sharesS); err != nil {
			return nil, fmt.Errorf("parse shares: %w", err)
		}
		if r.Price, err = decimal.NewFromString(priceS); err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		if r.Cost, err = decimal.NewFromString(costS); err != nil {
			return nil, fmt.Errorf("parse cost: %w", err)
		}
		r.Timestamp = ts.UTC()

		records = append(records, r)
	}
	return records, rows.Err()
}

func requireRow(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("market %s: %w", id, ErrNotFound)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
