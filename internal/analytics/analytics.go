// Package analytics computes performance and risk statistics over a
// snapshot of the trade ledger. Every function is pure and deterministic
// given the same trades, equity curve and configuration, so results are
// safe to recompute on every sync tick and to cache keyed by
// reconciliation version.
//
// Undefined values are explicit nils, never NaN, Inf or a crash.
package analytics

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantumnexus/journal-engine/internal/config"
	"github.com/quantumnexus/journal-engine/internal/model"
)

// tradingDaysPerYear annualizes Sharpe over daily equity returns.
const tradingDaysPerYear = 252

// Config holds the computation settings. Risk weights and bounds come from
// configuration so the risk score is reproducible from explicit inputs.
type Config struct {
	Location     *time.Location
	RiskFreeRate float64 // annual
	Risk         config.RiskWeights
}

// Compute derives the full statistics set for one period. trades must be
// the closed trades of the period ordered by close time; equity the account
// snapshots of the same period in ascending order. When no snapshots exist
// (fresh demo runs), the equity curve is reconstructed from cumulative
// trade profits.
func Compute(period string, from, to time.Time, trades []model.Trade, equity []model.AccountSnapshot, cfg Config) model.AnalyticsPeriod {
	stats := model.AnalyticsPeriod{
		Period:      period,
		PeriodStart: from,
		PeriodEnd:   to,
		NetProfit:   decimal.Zero,
		GrossProfit: decimal.Zero,
		GrossLoss:   decimal.Zero,
		AvgWin:      decimal.Zero,
		AvgLoss:     decimal.Zero,
		AvgTrade:    decimal.Zero,
		LargestWin:  decimal.Zero,
		LargestLoss: decimal.Zero,
		TotalVolume: decimal.Zero,
	}

	symbolProfit := make(map[string]decimal.Decimal)

	for _, t := range trades {
		p := t.Profit
		stats.TradeCount++
		stats.NetProfit = stats.NetProfit.Add(p)
		stats.TotalVolume = stats.TotalVolume.Add(t.Volume)
		symbolProfit[t.Symbol] = symbolProfit[t.Symbol].Add(p)

		switch {
		case p.IsPositive():
			stats.WinCount++
			stats.GrossProfit = stats.GrossProfit.Add(p)
			if p.GreaterThan(stats.LargestWin) {
				stats.LargestWin = p
			}
		case p.IsNegative():
			stats.LossCount++
			stats.GrossLoss = stats.GrossLoss.Add(p.Abs())
			if p.Abs().GreaterThan(stats.LargestLoss.Abs()) {
				stats.LargestLoss = p
			}
		default:
			stats.BreakEvenCount++
		}
	}

	if stats.WinCount > 0 {
		stats.AvgWin = stats.GrossProfit.DivRound(decimal.NewFromInt(int64(stats.WinCount)), 2)
	}
	if stats.LossCount > 0 {
		stats.AvgLoss = stats.GrossLoss.DivRound(decimal.NewFromInt(int64(stats.LossCount)), 2)
	}
	if stats.TradeCount > 0 {
		stats.AvgTrade = stats.NetProfit.DivRound(decimal.NewFromInt(int64(stats.TradeCount)), 2)
	}

	stats.WinRate = WinRate(stats.WinCount, stats.TradeCount)
	stats.ProfitFactor = ProfitFactor(stats.GrossProfit, stats.GrossLoss)
	stats.Expectancy = Expectancy(stats.WinRate, stats.AvgWin, stats.AvgLoss)
	stats.KellyFraction = Kelly(stats.WinRate, stats.AvgWin, stats.AvgLoss)
	stats.ConsecutiveWins, stats.ConsecutiveLosses = Streaks(trades)

	avgLossF, _ := stats.AvgLoss.Float64()
	if avgLossF != 0 {
		avgWinF, _ := stats.AvgWin.Float64()
		stats.AvgRiskReward = avgWinF / avgLossF
	}

	curve := equityCurve(trades, equity)
	stats.CurrentDrawdown, stats.MaxDrawdown = Drawdown(curve)
	stats.SharpeRatio = Sharpe(curve, cfg.RiskFreeRate)
	stats.RecoveryFactor = RecoveryFactor(stats.NetProfit, stats.MaxDrawdown, curve)

	stats.SymbolsTraded = len(symbolProfit)
	stats.BestSymbol, stats.WorstSymbol = extremeSymbols(symbolProfit)

	stats.RiskScore = RiskScore(stats.MaxDrawdown, Concentration(trades), stats.ConsecutiveLosses, cfg.Risk)

	return stats
}

// WinRate is win_count/trade_count, 0 for an empty trade set.
func WinRate(wins, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(wins) / float64(total)
}

// ProfitFactor is gross_profit/|gross_loss|. Nil means undefined/infinite:
// profits with zero losses. Both zero reports a plain 0.
func ProfitFactor(grossProfit, grossLoss decimal.Decimal) *float64 {
	if grossLoss.IsZero() {
		if grossProfit.IsPositive() {
			return nil
		}
		zero := 0.0
		return &zero
	}
	pf, _ := grossProfit.Div(grossLoss).Float64()
	return &pf
}

// Expectancy is (win_rate × avg_win) − (loss_rate × avg_loss), with avgLoss
// given as a magnitude.
func Expectancy(winRate float64, avgWin, avgLoss decimal.Decimal) float64 {
	w, _ := avgWin.Float64()
	l, _ := avgLoss.Float64()
	return winRate*w - (1-winRate)*l
}

// Kelly is the optimal capital fraction f* = W − (1−W)/(avg_win/avg_loss),
// clamped to [0,1]. A zero average loss yields the win rate itself.
func Kelly(winRate float64, avgWin, avgLoss decimal.Decimal) float64 {
	l, _ := avgLoss.Float64()
	var f float64
	if l == 0 {
		f = winRate
	} else {
		w, _ := avgWin.Float64()
		if w == 0 {
			return 0
		}
		f = winRate - (1-winRate)/(w/l)
	}
	return clamp(f, 0, 1)
}

// Streaks returns the longest consecutive win and loss runs, in close-time
// order.
func Streaks(trades []model.Trade) (maxWins, maxLosses int) {
	var wins, losses int
	for _, t := range trades {
		switch {
		case t.Profit.IsPositive():
			wins++
			losses = 0
		case t.Profit.IsNegative():
			losses++
			wins = 0
		default:
			wins, losses = 0, 0
		}
		if wins > maxWins {
			maxWins = wins
		}
		if losses > maxLosses {
			maxLosses = losses
		}
	}
	return maxWins, maxLosses
}

// Drawdown tracks the running peak over the equity curve and returns the
// current and maximum peak-relative declines as fractions. Both are 0 when
// equity never declines.
func Drawdown(curve []float64) (current, max float64) {
	if len(curve) == 0 {
		return 0, 0
	}
	peak := curve[0]
	for _, v := range curve {
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - v) / peak
		current = dd
		if dd > max {
			max = dd
		}
	}
	return current, max
}

// Sharpe computes the annualized Sharpe ratio over per-step returns of the
// equity curve using sample standard deviation. Nil when fewer than two
// return observations exist or the returns have no variance.
func Sharpe(curve []float64, riskFreeRate float64) *float64 {
	var returns []float64
	for i := 1; i < len(curve); i++ {
		if curve[i-1] == 0 {
			continue
		}
		returns = append(returns, (curve[i]-curve[i-1])/curve[i-1])
	}
	if len(returns) < 2 {
		return nil
	}

	daily := riskFreeRate / tradingDaysPerYear
	var sum float64
	for _, r := range returns {
		sum += r - daily
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		d := (r - daily) - mean
		variance += d * d
	}
	variance /= float64(len(returns) - 1) // sample stddev

	if variance == 0 {
		return nil
	}
	sharpe := mean / math.Sqrt(variance) * math.Sqrt(tradingDaysPerYear)
	return &sharpe
}

// RecoveryFactor is net profit over the maximum absolute drawdown. Nil when
// there was no drawdown to recover from.
func RecoveryFactor(netProfit decimal.Decimal, maxDrawdown float64, curve []float64) *float64 {
	if maxDrawdown == 0 || len(curve) == 0 {
		return nil
	}
	peak := curve[0]
	var maxAbs float64
	for _, v := range curve {
		if v > peak {
			peak = v
		}
		if dd := peak - v; dd > maxAbs {
			maxAbs = dd
		}
	}
	if maxAbs == 0 {
		return nil
	}
	np, _ := netProfit.Float64()
	rf := np / maxAbs
	return &rf
}

// Concentration is the share of trades in the most-traded symbol, in [0,1].
func Concentration(trades []model.Trade) float64 {
	if len(trades) == 0 {
		return 0
	}
	counts := make(map[string]int)
	max := 0
	for _, t := range trades {
		counts[t.Symbol]++
		if counts[t.Symbol] > max {
			max = counts[t.Symbol]
		}
	}
	return float64(max) / float64(len(trades))
}

// equityCurve prefers real account snapshots; with fewer than two it falls
// back to the cumulative profit curve anchored at the last known balance.
func equityCurve(trades []model.Trade, equity []model.AccountSnapshot) []float64 {
	if len(equity) >= 2 {
		curve := make([]float64, len(equity))
		for i, s := range equity {
			curve[i], _ = s.Equity.Float64()
		}
		return curve
	}

	base := decimal.Zero
	if len(equity) == 1 {
		base = equity[0].Balance.Sub(sumProfits(trades))
	}

	curve := make([]float64, 0, len(trades)+1)
	running := base
	f, _ := running.Float64()
	curve = append(curve, f)
	for _, t := range trades {
		running = running.Add(t.Profit)
		f, _ := running.Float64()
		curve = append(curve, f)
	}
	return curve
}

func sumProfits(trades []model.Trade) decimal.Decimal {
	sum := decimal.Zero
	for _, t := range trades {
		sum = sum.Add(t.Profit)
	}
	return sum
}

func extremeSymbols(profits map[string]decimal.Decimal) (best, worst string) {
	for sym, p := range profits {
		if best == "" || p.GreaterThan(profits[best]) {
			best = sym
		}
		if worst == "" || p.LessThan(profits[worst]) {
			worst = sym
		}
	}
	return best, worst
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
