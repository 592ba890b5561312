// Package store defines the persistence interface for the trade ledger and
// account snapshots. Implementations include PostgreSQL (source of truth)
// and in-memory (for testing and demo runs); a Redis cache layer holds
// computed analytics keyed by reconciliation version.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/quantumnexus/journal-engine/internal/model"
)

// ErrNotFound is returned by point lookups when no record matches.
var ErrNotFound = errors.New("store: not found")

// Store is the persistence interface. All mutation goes through the
// reconciler's upsert path; readers observe only fully applied records.
//
// The store carries a reconciliation version: a counter bumped once per
// batch that changed state. Analytics caching keys on it, so any completed
// reconciliation invalidates previously cached periods.
type Store interface {
	// UpsertTrade inserts or replaces a trade by external ID. Each call is
	// atomic; a cancelled batch leaves no partial record behind.
	UpsertTrade(ctx context.Context, t *model.Trade) error

	// GetTradeByExternalID returns the trade with the given terminal ticket,
	// or ErrNotFound.
	GetTradeByExternalID(ctx context.Context, externalID string) (*model.Trade, error)

	// QueryPeriod returns closed trades with close time in [from, to),
	// ordered by close time then open time.
	QueryPeriod(ctx context.Context, from, to time.Time) ([]model.Trade, error)

	// QueryOpen returns open trades ordered by open time.
	QueryOpen(ctx context.Context) ([]model.Trade, error)

	// CountTrades returns the total number of trades and how many are open.
	CountTrades(ctx context.Context) (total, open int, err error)

	// AppendSnapshot appends an account snapshot. Snapshots are append-only
	// and must be monotonically ordered; a snapshot not strictly newer than
	// the latest stored one is silently dropped.
	AppendSnapshot(ctx context.Context, s *model.AccountSnapshot) error

	// LatestSnapshot returns the most recent account snapshot, or ErrNotFound.
	LatestSnapshot(ctx context.Context) (*model.AccountSnapshot, error)

	// SnapshotRange returns snapshots with timestamp in [from, to) in
	// ascending order.
	SnapshotRange(ctx context.Context, from, to time.Time) ([]model.AccountSnapshot, error)

	// Version returns the current reconciliation version.
	Version(ctx context.Context) (int64, error)

	// BumpVersion increments and returns the reconciliation version. Called
	// by the reconciler after a batch that inserted or updated anything.
	BumpVersion(ctx context.Context) (int64, error)
}
