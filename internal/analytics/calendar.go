package analytics

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantumnexus/journal-engine/internal/model"
)

// Calendar groups the month's closed trades by close date in the reporting
// timezone. Every day of the month gets a cell, zero-valued when no trades
// closed that day, so rendering never has gaps; the cells always sum to the
// month's total P&L.
func Calendar(year int, month time.Month, trades []model.Trade, loc *time.Location) model.CalendarMonth {
	daysInMonth := time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()

	cal := model.CalendarMonth{
		Year:     year,
		Month:    int(month),
		Cells:    make([]model.CalendarCell, daysInMonth),
		TotalPnL: decimal.Zero,
	}

	for d := 0; d < daysInMonth; d++ {
		cal.Cells[d] = model.CalendarCell{
			Date: time.Date(year, month, d+1, 0, 0, 0, 0, loc).Format("2006-01-02"),
			PnL:  decimal.Zero,
		}
	}

	for _, t := range trades {
		local := t.CloseTime.In(loc)
		if local.Year() != year || local.Month() != month {
			continue
		}
		cell := &cal.Cells[local.Day()-1]
		cell.PnL = cell.PnL.Add(t.Profit)
		cell.Trades++
		switch {
		case t.Profit.IsPositive():
			cell.Wins++
		case t.Profit.IsNegative():
			cell.Losses++
		default:
			cell.BreakEven++
		}

		cal.TotalPnL = cal.TotalPnL.Add(t.Profit)
		cal.TotalTrades++
	}

	for i := range cal.Cells {
		cell := &cal.Cells[i]
		cell.WinRate = WinRate(cell.Wins, cell.Trades)
		switch {
		case cell.PnL.IsPositive():
			cal.ProfitableDays++
		case cell.PnL.IsNegative():
			cal.LosingDays++
		case cell.Trades > 0:
			cal.FlatDays++
		}
	}

	return cal
}
