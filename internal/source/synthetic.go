package source

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantumnexus/journal-engine/internal/model"
)

var syntheticSymbols = []string{"EURUSD", "GBPUSD", "USDJPY", "XAUUSD", "US30", "BTCUSD"}

const (
	syntheticClosedTrades = 125
	syntheticOpenTrades   = 8
	syntheticBaseBalance  = 10000.0
)

// Synthetic deterministically generates a plausible trade history seeded
// from the current date, so repeated demo runs within the same day produce
// identical data. Roughly two thirds of the closed trades are winners;
// open positions are re-reported with a bumped revision and re-marked
// profit on every fetch, mimicking a live terminal.
type Synthetic struct {
	now func() time.Time
}

// NewSynthetic creates a generator. now may be nil for the wall clock.
func NewSynthetic(now func() time.Time) *Synthetic {
	if now == nil {
		now = time.Now
	}
	return &Synthetic{now: now}
}

func (s *Synthetic) Connect(_ context.Context, _ Credentials) error { return nil }
func (s *Synthetic) Disconnect() error                              { return nil }
func (s *Synthetic) Mode() string                                   { return "synthetic" }

// daySeed hashes the UTC date so the stream resets at midnight.
func (s *Synthetic) daySeed() int64 {
	h := fnv.New64a()
	h.Write([]byte(s.now().UTC().Format("20060102")))
	return int64(h.Sum64())
}

func (s *Synthetic) FetchSince(_ context.Context, cur Cursor, windowDays int) ([]model.Trade, Cursor, error) {
	now := s.now().UTC()
	windowStart := now.AddDate(0, 0, -windowDays)

	closed, _ := s.closedHistory(now)

	var events []model.Trade
	for _, t := range closed {
		if t.CloseTime.Before(windowStart) {
			continue
		}
		events = append(events, t)
	}

	// Open positions carry a revision tied to the fetch sequence so each
	// re-report supersedes the previous mark-to-market estimate.
	events = append(events, s.openPositions(now, cur.Seq+1)...)

	return events, Cursor{Time: now, Seq: cur.Seq + 1}, nil
}

// AccountInfo derives balance from the cumulative closed profit and equity
// from balance plus floating P&L, so trades, snapshots and stats stay
// internally consistent.
func (s *Synthetic) AccountInfo(_ context.Context) (*model.AccountSnapshot, error) {
	now := s.now().UTC()
	_, balance := s.closedHistory(now)

	floating := decimal.Zero
	for _, t := range s.openPositions(now, 1) {
		floating = floating.Add(t.Profit)
	}

	equity := balance.Add(floating)
	marginUsed := balance.Mul(decimal.NewFromFloat(0.12)).Round(2)

	return &model.AccountSnapshot{
		Timestamp:  now,
		Balance:    balance.Round(2),
		Equity:     equity.Round(2),
		MarginUsed: marginUsed,
		MarginFree: equity.Sub(marginUsed).Round(2),
	}, nil
}

// closedHistory generates the day's closed trades and the resulting balance.
func (s *Synthetic) closedHistory(now time.Time) ([]model.Trade, decimal.Decimal) {
	rng := rand.New(rand.NewSource(s.daySeed()))
	baseTime := now.AddDate(0, 0, -60)
	balance := decimal.NewFromFloat(syntheticBaseBalance)

	trades := make([]model.Trade, 0, syntheticClosedTrades)
	for i := 0; i < syntheticClosedTrades; i++ {
		var profit float64
		if i%3 != 0 { // ~66% win rate
			profit = 50 + rng.Float64()*250
		} else {
			profit = -150 + rng.Float64()*120
		}

		direction := model.DirectionBuy
		if i%2 != 0 {
			direction = model.DirectionSell
		}

		openTime := baseTime.Add(time.Duration(i) * 12 * time.Hour)
		closeTime := openTime.Add(time.Duration(2+rng.Intn(70)) * time.Hour)
		openPrice := 1.0 + rng.Float64()*0.5

		p := decimal.NewFromFloat(profit).Round(2)
		balance = balance.Add(p)

		trades = append(trades, model.Trade{
			ExternalID: fmt.Sprintf("%d", 500000+i),
			Symbol:     syntheticSymbols[i%len(syntheticSymbols)],
			Direction:  direction,
			Volume:     decimal.NewFromFloat(0.01 + rng.Float64()*0.99).Round(3),
			OpenTime:   openTime,
			CloseTime:  closeTime,
			OpenPrice:  decimal.NewFromFloat(openPrice).Round(5),
			ClosePrice: decimal.NewFromFloat(openPrice + (rng.Float64()-0.5)*0.02).Round(5),
			Profit:     p,
			Commission: decimal.NewFromFloat(-(2 + rng.Float64()*6)).Round(2),
			Swap:       decimal.NewFromFloat((rng.Float64() - 0.5) * 6).Round(2),
			Status:     model.StatusClosed,
			Revision:   1,
		})
	}
	return trades, balance
}

// openPositions generates the current open positions. The floating profit
// is re-rolled per fetch sequence; everything else stays fixed for the day.
func (s *Synthetic) openPositions(now time.Time, seq int64) []model.Trade {
	rng := rand.New(rand.NewSource(s.daySeed() ^ (seq << 17)))
	day := rand.New(rand.NewSource(s.daySeed() + 1))

	trades := make([]model.Trade, 0, syntheticOpenTrades)
	for i := 0; i < syntheticOpenTrades; i++ {
		direction := model.DirectionBuy
		if i%2 != 0 {
			direction = model.DirectionSell
		}
		openPrice := 1.0 + day.Float64()*0.5

		trades = append(trades, model.Trade{
			ExternalID: fmt.Sprintf("%d", 600000+i),
			Symbol:     syntheticSymbols[i%len(syntheticSymbols)],
			Direction:  direction,
			Volume:     decimal.NewFromFloat(0.1 + day.Float64()*0.4).Round(2),
			OpenTime:   now.Add(-time.Duration(1+day.Intn(47)) * time.Hour),
			OpenPrice:  decimal.NewFromFloat(openPrice).Round(5),
			ClosePrice: decimal.Zero,
			Profit:     decimal.NewFromFloat(-50 + rng.Float64()*150).Round(2), // mark-to-market
			Commission: decimal.Zero,
			Swap:       decimal.Zero,
			Status:     model.StatusOpen,
			Revision:   seq,
		})
	}
	return trades
}
