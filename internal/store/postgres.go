package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/quantumnexus/journal-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// All monetary values are stored as NUMERIC for exact decimal precision.
//
// Expected schema:
//
//	trades(external_id TEXT PRIMARY KEY, symbol TEXT, direction TEXT,
//	       volume NUMERIC, open_time TIMESTAMPTZ, close_time TIMESTAMPTZ NULL,
//	       open_price NUMERIC, close_price NUMERIC, profit NUMERIC,
//	       commission NUMERIC, swap NUMERIC, status TEXT, revision BIGINT)
//	  with indexes on close_time (period/calendar range queries) and symbol
//	  (concentration computation).
//	account_history(timestamp TIMESTAMPTZ PRIMARY KEY, balance NUMERIC,
//	       equity NUMERIC, margin_used NUMERIC, margin_free NUMERIC)
//	sync_meta(id INT PRIMARY KEY CHECK (id = 1), version BIGINT)
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const tradeColumns = `external_id, symbol, direction,
	volume::TEXT, open_time, close_time,
	open_price::TEXT, close_price::TEXT,
	profit::TEXT, commission::TEXT, swap::TEXT,
	status, revision`

func (s *PostgresStore) UpsertTrade(ctx context.Context, t *model.Trade) error {
	var closeTime *time.Time
	if !t.CloseTime.IsZero() {
		closeTime = &t.CloseTime
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO trades (external_id, symbol, direction, volume, open_time, close_time,
		                     open_price, close_price, profit, commission, swap, status, revision)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5, $6, $7::NUMERIC, $8::NUMERIC,
		         $9::NUMERIC, $10::NUMERIC, $11::NUMERIC, $12, $13)
		 ON CONFLICT (external_id) DO UPDATE SET
		     symbol = EXCLUDED.symbol,
		     direction = EXCLUDED.direction,
		     volume = EXCLUDED.volume,
		     open_time = EXCLUDED.open_time,
		     close_time = EXCLUDED.close_time,
		     open_price = EXCLUDED.open_price,
		     close_price = EXCLUDED.close_price,
		     profit = EXCLUDED.profit,
		     commission = EXCLUDED.commission,
		     swap = EXCLUDED.swap,
		     status = EXCLUDED.status,
		     revision = EXCLUDED.revision`,
		t.ExternalID, t.Symbol, t.Direction,
		t.Volume.String(), t.OpenTime, closeTime,
		t.OpenPrice.String(), t.ClosePrice.String(),
		t.Profit.String(), t.Commission.String(), t.Swap.String(),
		t.Status, t.Revision,
	)
	return err
}

func (s *PostgresStore) GetTradeByExternalID(ctx context.Context, externalID string) (*model.Trade, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+tradeColumns+` FROM trades WHERE external_id = $1`, externalID)

	t, err := scanTrade(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get trade %s: %w", externalID, err)
	}
	return t, nil
}

func (s *PostgresStore) QueryPeriod(ctx context.Context, from, to time.Time) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeColumns+`
		 FROM trades
		 WHERE status = 'closed' AND close_time >= $1 AND close_time < $2
		 ORDER BY close_time, open_time`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

func (s *PostgresStore) QueryOpen(ctx context.Context) ([]model.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeColumns+`
		 FROM trades
		 WHERE status = 'open'
		 ORDER BY open_time`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanTrades(rows)
}

func (s *PostgresStore) CountTrades(ctx context.Context) (int, int, error) {
	var total, open int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE status = 'open') FROM trades`).
		Scan(&total, &open)
	return total, open, err
}

func (s *PostgresStore) AppendSnapshot(ctx context.Context, snap *model.AccountSnapshot) error {
	// Append-only with monotonic timestamps: out-of-order readings are dropped.
	_, err := s.pool.Exec(ctx,
		`INSERT INTO account_history (timestamp, balance, equity, margin_used, margin_free)
		 SELECT $1, $2::NUMERIC, $3::NUMERIC, $4::NUMERIC, $5::NUMERIC
		 WHERE NOT EXISTS (SELECT 1 FROM account_history WHERE timestamp >= $1)`,
		snap.Timestamp,
		snap.Balance.String(), snap.Equity.String(),
		snap.MarginUsed.String(), snap.MarginFree.String(),
	)
	return err
}

func (s *PostgresStore) LatestSnapshot(ctx context.Context) (*model.AccountSnapshot, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT timestamp, balance::TEXT, equity::TEXT, margin_used::TEXT, margin_free::TEXT
		 FROM account_history ORDER BY timestamp DESC LIMIT 1`)

	snap, err := scanSnapshot(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("latest snapshot: %w", err)
	}
	return snap, nil
}

func (s *PostgresStore) SnapshotRange(ctx context.Context, from, to time.Time) ([]model.AccountSnapshot, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT timestamp, balance::TEXT, equity::TEXT, margin_used::TEXT, margin_free::TEXT
		 FROM account_history
		 WHERE timestamp >= $1 AND timestamp < $2
		 ORDER BY timestamp`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []model.AccountSnapshot
	for rows.Next() {
		snap, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snaps = append(snaps, *snap)
	}
	return snaps, rows.Err()
}

func (s *PostgresStore) Version(ctx context.Context) (int64, error) {
	var v int64
	err := s.pool.QueryRow(ctx, `SELECT version FROM sync_meta WHERE id = 1`).Scan(&v)
	if err == pgx.ErrNoRows {
		return 0, nil
	}
	return v, err
}

func (s *PostgresStore) BumpVersion(ctx context.Context) (int64, error) {
	var v int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO sync_meta (id, version) VALUES (1, 1)
		 ON CONFLICT (id) DO UPDATE SET version = sync_meta.version + 1
		 RETURNING version`).Scan(&v)
	return v, err
}

// --- row scanning helpers ---

type pgxRow interface {
	Scan(dest ...interface{}) error
}

func scanTrade(row pgxRow) (*model.Trade, error) {
	var t model.Trade
	var volume, openPrice, closePrice, profit, commission, swap string
	var closeTime *time.Time

	err := row.Scan(&t.ExternalID, &t.Symbol, &t.Direction,
		&volume, &t.OpenTime, &closeTime,
		&openPrice, &closePrice,
		&profit, &commission, &swap,
		&t.Status, &t.Revision)
	if err != nil {
		return nil, err
	}

	if closeTime != nil {
		t.CloseTime = *closeTime
	}
	t.Volume, _ = decimal.NewFromString(volume)
	t.OpenPrice, _ = decimal.NewFromString(openPrice)
	t.ClosePrice, _ = decimal.NewFromString(closePrice)
	t.Profit, _ = decimal.NewFromString(profit)
	t.Commission, _ = decimal.NewFromString(commission)
	t.Swap, _ = decimal.NewFromString(swap)

	return &t, nil
}

func scanTrades(rows pgx.Rows) ([]model.Trade, error) {
	var trades []model.Trade
	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, err
		}
		trades = append(trades, *t)
	}
	return trades, rows.Err()
}

func scanSnapshot(row pgxRow) (*model.AccountSnapshot, error) {
	var snap model.AccountSnapshot
	var balance, equity, marginUsed, marginFree string

	if err := row.Scan(&snap.Timestamp, &balance, &equity, &marginUsed, &marginFree); err != nil {
		return nil, err
	}

	snap.Balance, _ = decimal.NewFromString(balance)
	snap.Equity, _ = decimal.NewFromString(equity)
	snap.MarginUsed, _ = decimal.NewFromString(marginUsed)
	snap.MarginFree, _ = decimal.NewFromString(marginFree)

	return &snap, nil
}
