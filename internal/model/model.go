// Package model defines the core domain types shared across the journal engine.
// All monetary values use shopspring/decimal, never float64 for money.
// Ratios and scores (win rate, drawdown, Sharpe, risk score) are float64.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade statuses as reported by the trading terminal.
const (
	StatusOpen      = "open"
	StatusClosed    = "closed"
	StatusCancelled = "cancelled"
)

// Trade directions.
const (
	DirectionBuy  = "buy"
	DirectionSell = "sell"
)

// Trade is one open or closed position, normalized from the terminal's
// deal/position records. ExternalID is the terminal's ticket and is unique
// within the store; Revision is the terminal's monotonically increasing
// version of the record, used to detect stale duplicates during
// reconciliation. Profit on an open trade is a mark-to-market estimate
// recomputed on each sync.
type Trade struct {
	ExternalID string          `json:"external_id" db:"external_id"`
	Symbol     string          `json:"symbol" db:"symbol"`
	Direction  string          `json:"direction" db:"direction"` // "buy" or "sell"
	Volume     decimal.Decimal `json:"volume" db:"volume"`
	OpenTime   time.Time       `json:"open_time" db:"open_time"`
	CloseTime  time.Time       `json:"close_time,omitempty" db:"close_time"` // zero while open
	OpenPrice  decimal.Decimal `json:"open_price" db:"open_price"`
	ClosePrice decimal.Decimal `json:"close_price" db:"close_price"`
	Profit     decimal.Decimal `json:"profit" db:"profit"` // signed, account currency
	Commission decimal.Decimal `json:"commission" db:"commission"`
	Swap       decimal.Decimal `json:"swap" db:"swap"`
	Status     string          `json:"status" db:"status"`
	Revision   int64           `json:"revision" db:"revision"`
}

// EventTime is the causal ordering timestamp of a trade event: close time
// for closed trades, open time otherwise.
func (t Trade) EventTime() time.Time {
	if !t.CloseTime.IsZero() {
		return t.CloseTime
	}
	return t.OpenTime
}

// NetProfit is profit after commission and swap (both signed as reported).
func (t Trade) NetProfit() decimal.Decimal {
	return t.Profit.Add(t.Commission).Add(t.Swap)
}

// AccountSnapshot is a point-in-time balance/equity/margin reading.
// Snapshots are append-only and ordered by timestamp; the equity curve is
// built from them without replaying trades.
type AccountSnapshot struct {
	Timestamp  time.Time       `json:"timestamp" db:"timestamp"`
	Balance    decimal.Decimal `json:"balance" db:"balance"`
	Equity     decimal.Decimal `json:"equity" db:"equity"`
	MarginUsed decimal.Decimal `json:"margin_used" db:"margin_used"`
	MarginFree decimal.Decimal `json:"margin_free" db:"margin_free"`
}

// AnalyticsPeriod is the derived statistics set for one time window.
// It is never persisted directly; it may be cached keyed by the store's
// reconciliation version plus the period bounds.
//
// Nil pointer fields mean "undefined" rather than zero: ProfitFactor is nil
// when gross loss is zero with gross profit positive (infinite), SharpeRatio
// is nil with fewer than two return observations, RecoveryFactor is nil
// when there was no drawdown to recover from.
type AnalyticsPeriod struct {
	Period      string    `json:"period"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`

	TradeCount     int `json:"trade_count"`
	WinCount       int `json:"win_count"`
	LossCount      int `json:"loss_count"`
	BreakEvenCount int `json:"break_even_count"`

	NetProfit   decimal.Decimal `json:"net_profit"`
	GrossProfit decimal.Decimal `json:"gross_profit"`
	GrossLoss   decimal.Decimal `json:"gross_loss"` // magnitude, >= 0
	AvgWin      decimal.Decimal `json:"avg_win"`
	AvgLoss     decimal.Decimal `json:"avg_loss"` // magnitude, >= 0
	AvgTrade    decimal.Decimal `json:"avg_trade"`
	LargestWin  decimal.Decimal `json:"largest_win"`
	LargestLoss decimal.Decimal `json:"largest_loss"`
	TotalVolume decimal.Decimal `json:"total_volume"`

	WinRate       float64  `json:"win_rate"` // fraction in [0,1]
	ProfitFactor  *float64 `json:"profit_factor"`
	Expectancy    float64  `json:"expectancy"`
	AvgRiskReward float64  `json:"avg_risk_reward"`
	SharpeRatio   *float64 `json:"sharpe_ratio"`

	MaxDrawdown     float64  `json:"max_drawdown"`     // fraction of peak equity
	CurrentDrawdown float64  `json:"current_drawdown"` // fraction of peak equity
	RecoveryFactor  *float64 `json:"recovery_factor"`

	RiskScore     float64 `json:"risk_score"` // composite, 0..100
	KellyFraction float64 `json:"kelly_fraction"`

	ConsecutiveWins   int `json:"consecutive_wins"`
	ConsecutiveLosses int `json:"consecutive_losses"`

	SymbolsTraded int    `json:"symbols_traded"`
	BestSymbol    string `json:"best_symbol,omitempty"`
	WorstSymbol   string `json:"worst_symbol,omitempty"`
}

// CalendarCell aggregates closed-trade P&L for one calendar day in the
// reporting timezone. Days without trades are present with zero values so
// calendar rendering never has gaps.
type CalendarCell struct {
	Date      string          `json:"date"` // YYYY-MM-DD
	PnL       decimal.Decimal `json:"pnl"`
	Trades    int             `json:"trades"`
	Wins      int             `json:"wins"`
	Losses    int             `json:"losses"`
	BreakEven int             `json:"break_even"`
	WinRate   float64         `json:"win_rate"`
}

// CalendarMonth is one month of daily cells plus a monthly summary.
type CalendarMonth struct {
	Year           int             `json:"year"`
	Month          int             `json:"month"`
	Cells          []CalendarCell  `json:"cells"` // one per day of the month
	TotalPnL       decimal.Decimal `json:"total_pnl"`
	TotalTrades    int             `json:"total_trades"`
	ProfitableDays int             `json:"profitable_days"`
	LosingDays     int             `json:"losing_days"`
	FlatDays       int             `json:"flat_days"`
}

// SyncStatus describes the outcome of the most recent synchronization cycle.
type SyncStatus struct {
	LastSync      time.Time `json:"last_sync,omitempty"`
	InFlight      bool      `json:"in_flight"`
	Source        string    `json:"source"` // "live" or "synthetic"
	TradesTotal   int       `json:"trades_total"`
	OpenPositions int       `json:"open_positions"`
	LastInserted  int       `json:"last_inserted"`
	LastUpdated   int       `json:"last_updated"`
	LastClosed    int       `json:"last_closed"`
	LastSkipped   int       `json:"last_skipped"`
	LastFailed    int       `json:"last_failed"`
	LastError     string    `json:"last_error,omitempty"`
}
