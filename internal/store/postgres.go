package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/AhmedAmer72/chronos-markets1-sub000/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const marketColumns = `id, creator, question, categories,
	        yes_pool::TEXT, no_pool::TEXT, volume::TEXT,
	        resolved, outcome, end_time, created_at`

func (s *PostgresStore) CreateMarket(ctx context.Context, m *model.Market) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO markets (id, creator, question, categories, yes_pool, no_pool, volume, resolved, outcome, end_time, created_at)
		 VALUES ($1, $2, $3, $4, $5::NUMERIC, $6::NUMERIC, $7::NUMERIC, $8, $9, $10, $11)`,
		m.ID, m.Creator, m.Question, m.Categories,
		m.YesPool.String(), m.NoPool.String(), m.Volume.String(),
		m.Resolved, m.Outcome, m.EndTime, m.CreatedAt,
	)
	return err
}

func (s *PostgresStore) GetMarket(ctx context.Context, id string) (*model.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketColumns+` FROM markets WHERE id = $1`, id)

	m, err := scanMarket(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("market %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("get market %s: %w", id, err)
	}
	return m, nil
}

func (s *PostgresStore) ListMarkets(ctx context.Context) ([]model.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketColumns+` FROM markets ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var markets []model.Market
	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, err
		}
		markets = append(markets, *m)
	}
	return markets, rows.Err()
}

func (s *PostgresStore) UpdateMarketPools(ctx context.Context, id string, yesPool, noPool, volume decimal.Decimal) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets
		 SET yes_pool = $2::NUMERIC, no_pool = $3::NUMERIC, volume = $4::NUMERIC
		 WHERE id = $1 AND NOT resolved`,
		id, yesPool.String(), noPool.String(), volume.String(),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update pools for %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) ResolveMarket(ctx context.Context, id string, outcome bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE markets SET resolved = TRUE, outcome = $2
		 WHERE id = $1 AND NOT resolved`,
		id, outcome,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("resolve market %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) InsertTradeRecord(ctx context.Context, r *model.TradeRecord) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO trades (id, account_id, market_id, side, type, shares, price, cost, timestamp)
		 VALUES ($1, $2, $3, $4, $5, $6::NUMERIC, $7::NUMERIC, $8::NUMERIC, $9)`,
		r.ID, r.AccountID, r.MarketID, r.Side, r.Type,
		r.Shares.String(), r.Price.String(), r.Cost.String(),
		r.Timestamp,
	)
	return err
}

func (s *PostgresStore) GetTradesByMarket(ctx context.Context, marketID string, limit int) ([]model.TradeRecord, error) {
	q := `SELECT id, account_id, market_id, side, type,
	             shares::TEXT, price::TEXT, cost::TEXT, timestamp
	      FROM trades WHERE market_id = $1 ORDER BY timestamp`
	args := []interface{}{marketID}
	if limit > 0 {
		// Keep chronological order while returning only the newest rows.
		q = `SELECT * FROM (
		        SELECT id, account_id, market_id, side, type,
		               shares::TEXT, price::TEXT, cost::TEXT, timestamp
		        FROM trades WHERE market_id = $1
		        ORDER BY timestamp DESC LIMIT $2
		     ) t ORDER BY timestamp`
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTradeRecords(rows)
}

func (s *PostgresStore) GetTradesByAccount(ctx context.Context, accountID string) ([]model.TradeRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, account_id, market_id, side, type,
		        shares::TEXT, price::TEXT, cost::TEXT, timestamp
		 FROM trades WHERE account_id = $1 ORDER BY timestamp`, accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTradeRecords(rows)
}

func (s *PostgresStore) ListAccounts(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
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

type pgxRow interface {
	Scan(dest ...interface{}) error
}

func scanMarket(row pgxRow) (*model.Market, error) {
	var m model.Market
	var yesPool, noPool, volume string

	if err := row.Scan(&m.ID, &m.Creator, &m.Question, &m.Categories,
		&yesPool, &noPool, &volume,
		&m.Resolved, &m.Outcome, &m.EndTime, &m.CreatedAt); err != nil {
		return nil, err
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

	return &m, nil
}

type pgxRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanTradeRecords(rows pgxRows) ([]model.TradeRecord, error) {
	var records []model.TradeRecord
	for rows.Next() {
		var r model.TradeRecord
		var sharesS, priceS, costS string

		if err := rows.Scan(&r.ID, &r.AccountID, &r.MarketID, &r.Side, &r.Type,
			&sharesS, &priceS, &costS, &r.Timestamp); err != nil {
			return nil, err
		}

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

		records = append(records, r)
	}
	return records, rows.Err()
}
