// Package source adapts the external trading terminal (or a deterministic
// synthetic generator when it is unreachable) into a stream of raw trade
// events for reconciliation.
package source

import (
	"context"
	"errors"
	"time"

	"github.com/quantumnexus/journal-engine/internal/model"
)

var (
	// ErrUnavailable means the terminal could not be reached (including
	// timeouts). The caller falls back to the synthetic generator.
	ErrUnavailable = errors.New("source: terminal unavailable")

	// ErrAuthRejected means the terminal rejected the configured
	// credentials. Non-fatal; the engine stays in fallback until the
	// configuration is fixed.
	ErrAuthRejected = errors.New("source: credentials rejected")

	// ErrPartial means only a subset of the requested window was retrieved.
	// The returned events are valid and must be applied; the returned
	// cursor covers only the retrieved subset so the gap is retried on the
	// next cycle.
	ErrPartial = errors.New("source: partial window retrieved")
)

// Credentials identify a terminal account.
type Credentials struct {
	Account  int64
	Password string
	Server   string
}

// Cursor marks sync progress through the source's event stream. Seq counts
// fetches and feeds the revision counter for re-reported open positions.
type Cursor struct {
	Time time.Time `json:"time"`
	Seq  int64     `json:"seq"`
}

// Source yields raw trade events from a terminal or generator. Events carry
// the same fields as a stored trade plus the source's revision counter.
type Source interface {
	// Connect establishes the terminal session. Returns ErrAuthRejected or
	// ErrUnavailable on failure. Safe to call repeatedly.
	Connect(ctx context.Context, creds Credentials) error

	// FetchSince returns events covering the trailing windowDays, along
	// with the advanced cursor. May return events together with ErrPartial.
	FetchSince(ctx context.Context, cur Cursor, windowDays int) ([]model.Trade, Cursor, error)

	// AccountInfo returns the current balance/equity/margin reading.
	AccountInfo(ctx context.Context) (*model.AccountSnapshot, error)

	// Disconnect tears down the session.
	Disconnect() error

	// Mode identifies the variant: "live" or "synthetic".
	Mode() string
}
