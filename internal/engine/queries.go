package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantumnexus/journal-engine/internal/analytics"
	"github.com/quantumnexus/journal-engine/internal/model"
)

// Reporting periods accepted by the stats and trades queries.
const (
	PeriodDaily       = "daily"
	PeriodWeekly      = "weekly"
	PeriodMonthly     = "monthly"
	PeriodThreeMonths = "3months"
	PeriodSixMonths   = "6months"
	PeriodOneYear     = "1year"
	PeriodAll         = "all"
)

// PeriodRange resolves a named period to [from, to) bounds ending at now.
// The "all" period starts at the zero time.
func PeriodRange(period string, now time.Time) (time.Time, time.Time, error) {
	to := now.Add(time.Minute)
	switch period {
	case PeriodDaily:
		return now.AddDate(0, 0, -1), to, nil
	case PeriodWeekly:
		return now.AddDate(0, 0, -7), to, nil
	case PeriodMonthly:
		return now.AddDate(0, 0, -30), to, nil
	case PeriodThreeMonths:
		return now.AddDate(0, 0, -90), to, nil
	case PeriodSixMonths:
		return now.AddDate(0, 0, -180), to, nil
	case PeriodOneYear:
		return now.AddDate(0, 0, -365), to, nil
	case PeriodAll:
		return time.Time{}, to, nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unknown period %q", period)
	}
}

// Stats computes the analytics snapshot for a named period. Results are
// cached keyed by reconciliation version and period bounds, so a cache hit
// is only possible while the underlying data has not changed.
func (e *Engine) Stats(ctx context.Context, period string) (*model.AnalyticsPeriod, error) {
	from, to, err := PeriodRange(period, e.now())
	if err != nil {
		return nil, err
	}

	version, err := e.store.Version(ctx)
	if err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}

	if e.cache != nil {
		if stats, ok := e.cache.Get(ctx, version, from, to); ok {
			return stats, nil
		}
	}

	trades, err := e.store.QueryPeriod(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("query trades: %w", err)
	}
	equity, err := e.store.SnapshotRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}

	stats := analytics.Compute(period, from, to, trades, equity, e.acfg)

	if e.cache != nil {
		e.cache.Put(ctx, version, from, to, &stats)
	}
	return &stats, nil
}

// EquityCurve returns account snapshots over the trailing window. When no
// snapshots exist yet the curve is reconstructed from cumulative closed
// trade profits, so the endpoint is never empty once trades are stored.
func (e *Engine) EquityCurve(ctx context.Context, days int) ([]model.AccountSnapshot, error) {
	if days <= 0 {
		days = e.cfg.Sync.HistoryDays
	}
	now := e.now()
	from := now.AddDate(0, 0, -days)

	snaps, err := e.store.SnapshotRange(ctx, from, now.Add(time.Minute))
	if err != nil {
		return nil, err
	}
	if len(snaps) >= 2 {
		return snaps, nil
	}

	trades, err := e.store.QueryPeriod(ctx, from, now.Add(time.Minute))
	if err != nil {
		return nil, err
	}
	return curveFromTrades(trades, snaps), nil
}

// curveFromTrades builds a synthetic equity curve from closed trades. If a
// single real snapshot exists its balance anchors the curve endpoint.
func curveFromTrades(trades []model.Trade, snaps []model.AccountSnapshot) []model.AccountSnapshot {
	if len(trades) == 0 {
		return snaps
	}

	sorted := make([]model.Trade, len(trades))
	copy(sorted, trades)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CloseTime.Before(sorted[j].CloseTime)
	})

	total := decimal.Zero
	for _, t := range sorted {
		total = total.Add(t.NetProfit())
	}

	// Anchor so the last point matches the known balance when one exists;
	// otherwise the curve is relative and ends at the net profit.
	base := decimal.Zero
	if len(snaps) == 1 {
		base = snaps[0].Balance.Sub(total)
	}

	out := make([]model.AccountSnapshot, 0, len(sorted))
	running := base
	for _, t := range sorted {
		running = running.Add(t.NetProfit())
		out = append(out, model.AccountSnapshot{
			Timestamp: t.CloseTime,
			Balance:   running,
			Equity:    running,
		})
	}
	return out
}

// Calendar returns the per-day P&L grid for one month in the reporting
// timezone.
func (e *Engine) Calendar(ctx context.Context, year int, month time.Month) (model.CalendarMonth, error) {
	if month < time.January || month > time.December {
		return model.CalendarMonth{}, fmt.Errorf("invalid month %d", month)
	}
	loc := e.acfg.Location
	from := time.Date(year, month, 1, 0, 0, 0, 0, loc)
	to := from.AddDate(0, 1, 0)

	trades, err := e.store.QueryPeriod(ctx, from, to)
	if err != nil {
		return model.CalendarMonth{}, err
	}
	return analytics.Calendar(year, month, trades, loc), nil
}

// TradeFilter narrows the trade listing.
type TradeFilter struct {
	Period string // named period; empty means all
	Symbol string
	Status string // "open", "closed", or empty for closed
}

// Trades lists stored trades matching the filter, newest first.
func (e *Engine) Trades(ctx context.Context, f TradeFilter) ([]model.Trade, error) {
	if f.Status == model.StatusOpen {
		open, err := e.store.QueryOpen(ctx)
		if err != nil {
			return nil, err
		}
		return filterSymbol(open, f.Symbol), nil
	}

	period := f.Period
	if period == "" {
		period = PeriodAll
	}
	from, to, err := PeriodRange(period, e.now())
	if err != nil {
		return nil, err
	}

	trades, err := e.store.QueryPeriod(ctx, from, to)
	if err != nil {
		return nil, err
	}
	trades = filterSymbol(trades, f.Symbol)

	// Store order is oldest first; listings read newest first.
	for i, j := 0, len(trades)-1; i < j; i, j = i+1, j-1 {
		trades[i], trades[j] = trades[j], trades[i]
	}
	return trades, nil
}

func filterSymbol(trades []model.Trade, symbol string) []model.Trade {
	if symbol == "" {
		return trades
	}
	out := trades[:0]
	for _, t := range trades {
		if t.Symbol == symbol {
			out = append(out, t)
		}
	}
	return out
}
