package pnl

import (
	"sort"

	"investment-tracker/models"

	"github.com/shopspring/decimal"
)

// SummarizeClosedTrades builds the realized report from CLOSED records, newest sale first.
// Records of any other status are ignored.
func SummarizeClosedTrades(positions []models.Position) models.ClosedTradesSummary {
	trades := make([]models.ClosedTrade, 0)
	for _, p := range positions {
		if p.IsClosed() {
			trades = append(trades, models.NewClosedTrade(p))
		}
	}

	sort.SliceStable(trades, func(i, j int) bool {
		return trades[i].SellDate.After(trades[j].SellDate)
	})

	return models.ClosedTradesSummary{
		Trades:     trades,
		Statistics: ClosedTradeStatistics(trades),
	}
}

// ClosedTradeStatistics computes the summary figures; every figure is zero with no trades
func ClosedTradeStatistics(trades []models.ClosedTrade) models.ClosedTradesStatistics {
	stats := models.ClosedTradesStatistics{
		TotalTrades:           len(trades),
		WinRate:               decimal.Zero,
		TotalProfitLoss:       decimal.Zero,
		AverageProfitLossRate: decimal.Zero,
		MaxProfit:             decimal.Zero,
		MaxLoss:               decimal.Zero,
		AverageHoldingDays:    decimal.Zero,
	}
	if len(trades) == 0 {
		return stats
	}

	sumRate := decimal.Zero
	var sumDays int64
	stats.MaxProfit = trades[0].ProfitLoss
	stats.MaxLoss = trades[0].ProfitLoss

	for _, t := range trades {
		switch t.ProfitLoss.Sign() {
		case 1:
			stats.ProfitableTrades++
		case -1:
			stats.LossTrades++
		}
		stats.TotalProfitLoss = stats.TotalProfitLoss.Add(t.ProfitLoss)
		sumRate = sumRate.Add(t.ProfitLossRate)
		sumDays += t.HoldingDays

		if t.ProfitLoss.GreaterThan(stats.MaxProfit) {
			stats.MaxProfit = t.ProfitLoss
		}
		if t.ProfitLoss.LessThan(stats.MaxLoss) {
			stats.MaxLoss = t.ProfitLoss
		}
	}

	n := decimal.NewFromInt(int64(len(trades)))
	stats.WinRate = decimal.NewFromInt(int64(stats.ProfitableTrades)).Div(n)
	stats.AverageProfitLossRate = sumRate.Div(n)
	stats.AverageHoldingDays = decimal.NewFromInt(sumDays).Div(n)
	return stats
}
