package pnl

import (
	"investment-tracker/models"

	"github.com/shopspring/decimal"
)

// Stats aggregates the OPEN lots of code
func Stats(code string, positions []models.Position) models.PositionStats {
	stats := models.PositionStats{
		Code:         models.NormalizeCode(code),
		TotalCost:    decimal.Zero,
		AvgCostPrice: decimal.Zero,
	}
	for _, p := range positions {
		if !p.IsOpen() || p.Code != stats.Code {
			continue
		}
		stats.RecordCount++
		stats.TotalQuantity += p.Quantity
		stats.TotalCost = stats.TotalCost.Add(p.CostBasis())
	}
	if stats.TotalQuantity > 0 {
		stats.AvgCostPrice = stats.TotalCost.Div(decimal.NewFromInt(stats.TotalQuantity))
	}
	return stats
}

// Summarize totals the cost of the OPEN lots of one portfolio without quotes
func Summarize(portfolio string, positions []models.Position) models.PortfolioSummary {
	summary := models.PortfolioSummary{
		Portfolio: portfolio,
		TotalCost: decimal.Zero,
		Positions: make([]models.Position, 0),
	}
	for _, p := range positions {
		if !p.IsOpen() || p.Portfolio != portfolio {
			continue
		}
		summary.Positions = append(summary.Positions, p)
		summary.TotalCost = summary.TotalCost.Add(p.CostBasis())
	}
	summary.Count = len(summary.Positions)
	return summary
}
