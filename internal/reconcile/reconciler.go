// Package reconcile merges raw trade events into the trade store
// idempotently. Revision gating makes replays and stale duplicates no-ops,
// so reconciling the same batch twice leaves the store byte-identical.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/quantumnexus/journal-engine/internal/model"
	"github.com/quantumnexus/journal-engine/internal/store"
)

// EventError records one malformed or unappliable event. Failures are
// counted and skipped; they never abort the batch.
type EventError struct {
	ExternalID string `json:"external_id"`
	Reason     string `json:"reason"`
}

func (e EventError) Error() string {
	return fmt.Sprintf("event %s: %s", e.ExternalID, e.Reason)
}

// Result summarizes one reconciliation batch.
type Result struct {
	Inserted int          `json:"inserted"`
	Updated  int          `json:"updated"`
	Closed   int          `json:"closed"` // open→closed transitions within Updated
	Skipped  int          `json:"skipped"`
	Failed   int          `json:"failed"`
	Errors   []EventError `json:"errors,omitempty"`
}

// Changed reports whether the batch modified store state.
func (r Result) Changed() bool { return r.Inserted+r.Updated > 0 }

// Reconciler applies event batches to a Store. It is the only component
// that mutates trade state.
type Reconciler struct {
	store store.Store
}

// New creates a reconciler over the given store.
func New(st store.Store) *Reconciler {
	return &Reconciler{store: st}
}

// Reconcile applies events in ascending event-time order so a mid-batch
// reader always observes a causally consistent prefix. Each apply is one
// atomic upsert; cancelling the context between events leaves the store in
// the state of the last completed apply.
func (r *Reconciler) Reconcile(ctx context.Context, events []model.Trade) (Result, error) {
	var res Result

	sorted := make([]model.Trade, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].EventTime().Before(sorted[j].EventTime())
	})

	for i := range sorted {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		ev := sorted[i]
		if reason := validate(ev); reason != "" {
			res.Failed++
			res.Errors = append(res.Errors, EventError{ExternalID: ev.ExternalID, Reason: reason})
			slog.Warn("reconcile: event skipped", "external_id", ev.ExternalID, "reason", reason)
			continue
		}

		cur, err := r.store.GetTradeByExternalID(ctx, ev.ExternalID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			if err := r.store.UpsertTrade(ctx, &ev); err != nil {
				return res, fmt.Errorf("insert trade %s: %w", ev.ExternalID, err)
			}
			res.Inserted++

		case err != nil:
			return res, fmt.Errorf("lookup trade %s: %w", ev.ExternalID, err)

		case ev.Revision > cur.Revision:
			// Strictly newer revision wins. A locally closed trade is never
			// overwritten by older or equally-revisioned incoming data.
			if err := r.store.UpsertTrade(ctx, &ev); err != nil {
				return res, fmt.Errorf("update trade %s: %w", ev.ExternalID, err)
			}
			res.Updated++
			if cur.Status == model.StatusOpen && ev.Status == model.StatusClosed {
				res.Closed++
			}

		default:
			res.Skipped++ // duplicate or stale, idempotent no-op
		}
	}

	if res.Changed() {
		if _, err := r.store.BumpVersion(ctx); err != nil {
			return res, fmt.Errorf("bump version: %w", err)
		}
	}
	return res, nil
}

func validate(ev model.Trade) string {
	switch {
	case ev.ExternalID == "":
		return "missing external id"
	case ev.Symbol == "":
		return "missing symbol"
	case ev.Direction != model.DirectionBuy && ev.Direction != model.DirectionSell:
		return fmt.Sprintf("invalid direction %q", ev.Direction)
	case ev.Status != model.StatusOpen && ev.Status != model.StatusClosed && ev.Status != model.StatusCancelled:
		return fmt.Sprintf("invalid status %q", ev.Status)
	case ev.Revision < 1:
		return fmt.Sprintf("invalid revision %d", ev.Revision)
	case ev.OpenTime.IsZero():
		return "missing open time"
	case ev.Status == model.StatusClosed && ev.CloseTime.IsZero():
		return "closed trade without close time"
	case !ev.Volume.IsPositive():
		return "non-positive volume"
	}
	return ""
}
