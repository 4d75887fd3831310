// Package pnl computes profit and loss rollups from position records and quotes.
// Everything here is pure: no storage, no network.
package pnl

import (
	"investment-tracker/models"

	"github.com/shopspring/decimal"
)

var (
	buyInFactor   = decimal.RequireFromString("0.9")
	saleOutFactor = decimal.RequireFromString("1.1")
)

// OpenCodes returns the distinct codes of the OPEN positions in first-seen order
func OpenCodes(positions []models.Position) []string {
	seen := make(map[string]bool)
	var codes []string
	for _, p := range positions {
		if !p.IsOpen() || seen[p.Code] {
			continue
		}
		seen[p.Code] = true
		codes = append(codes, p.Code)
	}
	return codes
}

// MissingQuotes returns the codes in codes that have no quote, preserving order
func MissingQuotes(codes []string, quotes map[string]models.Quote) []string {
	var missing []string
	for _, code := range codes {
		if _, ok := quotes[code]; !ok {
			missing = append(missing, code)
		}
	}
	return missing
}

type instrumentGroup struct {
	code      string
	positions []models.Position
}

type portfolioGroup struct {
	name        string
	instruments []*instrumentGroup
	byCode      map[string]*instrumentGroup
}

// Aggregate rolls OPEN positions up into instruments and portfolios at the given quotes.
// Portfolios, instruments and lots keep the order they are first seen in positions.
// If any OPEN code has no quote the whole view fails with a QuoteUnavailable error naming every such code.
func Aggregate(positions []models.Position, quotes map[string]models.Quote, sizing FullPositions) ([]models.PortfolioProfitLoss, error) {
	if missing := MissingQuotes(OpenCodes(positions), quotes); len(missing) > 0 {
		return nil, models.NewQuoteUnavailableError(missing, nil)
	}

	var groups []*portfolioGroup
	byName := make(map[string]*portfolioGroup)
	for _, p := range positions {
		if !p.IsOpen() {
			continue
		}
		g, ok := byName[p.Portfolio]
		if !ok {
			g = &portfolioGroup{name: p.Portfolio, byCode: make(map[string]*instrumentGroup)}
			byName[p.Portfolio] = g
			groups = append(groups, g)
		}
		ig, ok := g.byCode[p.Code]
		if !ok {
			ig = &instrumentGroup{code: p.Code}
			g.byCode[p.Code] = ig
			g.instruments = append(g.instruments, ig)
		}
		ig.positions = append(ig.positions, p)
	}

	result := make([]models.PortfolioProfitLoss, 0, len(groups))
	for _, g := range groups {
		ppl := models.PortfolioProfitLoss{
			Portfolio:          g.name,
			FullPosition:       sizing.ForPortfolio(g.name),
			TargetProfitLosses: make([]models.TargetProfitLoss, 0, len(g.instruments)),
			SumPositionCost:    decimal.Zero,
			SumCurrentValue:    decimal.Zero,
			SumProfitLosses:    decimal.Zero,
		}
		for _, ig := range g.instruments {
			target := aggregateInstrument(ig, quotes[ig.code], sizing.ForInstrument(g.name, ig.code))
			ppl.TargetProfitLosses = append(ppl.TargetProfitLosses, target)
			ppl.SumPositionCost = ppl.SumPositionCost.Add(target.PositionCost)
			ppl.SumCurrentValue = ppl.SumCurrentValue.Add(target.CurrentValue)
			ppl.SumProfitLosses = ppl.SumProfitLosses.Add(target.TargetProfitLoss)
		}
		ppl.SumProfitLossesRate = models.Rate(ppl.SumProfitLosses, ppl.SumPositionCost)
		result = append(result, ppl)
	}

	return result, nil
}

func aggregateInstrument(ig *instrumentGroup, quote models.Quote, fullPosition decimal.Decimal) models.TargetProfitLoss {
	price := quote.Price
	target := models.TargetProfitLoss{
		Code:                 ig.code,
		Name:                 quote.Name,
		RealPrice:            price,
		PositionProfitLosses: make([]models.PositionProfitLoss, 0, len(ig.positions)),
		FullPosition:         fullPosition,
		PositionCost:         decimal.Zero,
		CurrentValue:         decimal.Zero,
		TargetProfitLoss:     decimal.Zero,
	}
	if target.Name == "" {
		target.Name = ig.positions[0].Name
	}

	latest := ig.positions[0]
	for _, p := range ig.positions {
		ppl := PositionAt(p, price)
		target.PositionProfitLosses = append(target.PositionProfitLosses, ppl)
		target.TotalQuantity += p.Quantity
		target.PositionCost = target.PositionCost.Add(ppl.PositionCost)
		target.CurrentValue = target.CurrentValue.Add(ppl.CurrentValue)
		target.TargetProfitLoss = target.TargetProfitLoss.Add(ppl.ProfitLoss)

		// equal dates go to the lot scanned last
		if !p.BuyDate.Before(latest.BuyDate) {
			latest = p
		}
	}

	target.CostPositionRate = models.Rate(target.PositionCost, fullPosition)
	target.CurrentPositionRate = models.Rate(target.CurrentValue, fullPosition)
	target.TargetProfitLossRate = models.Rate(target.TargetProfitLoss, target.PositionCost)
	target.RecommendedBuyInPoint = latest.BuyPrice.Mul(buyInFactor)
	target.RecommendedSaleOutPoint = latest.BuyPrice.Mul(saleOutFactor)
	return target
}

// PositionAt values one lot at price
func PositionAt(p models.Position, price decimal.Decimal) models.PositionProfitLoss {
	cost := p.CostBasis()
	pl := p.ProfitLossAt(price)
	return models.PositionProfitLoss{
		ID:             p.ID,
		Code:           p.Code,
		Name:           p.Name,
		BuyDate:        p.BuyDate,
		BuyPrice:       p.BuyPrice,
		Quantity:       p.Quantity,
		RealPrice:      price,
		PositionCost:   cost,
		CurrentValue:   price.Mul(decimal.NewFromInt(p.Quantity)),
		ProfitLoss:     pl,
		ProfitLossRate: models.Rate(pl, cost),
		Status:         p.Status,
		Portfolio:      p.Portfolio,
	}
}
