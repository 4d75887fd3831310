package pnl

import (
	"investment-tracker/models"

	"github.com/shopspring/decimal"
)

// DefaultFullPosition is the capital treated as a 100% position when nothing is configured
var DefaultFullPosition = decimal.NewFromInt(50000)

// FullPositions resolves the full-position amount for a portfolio or one of its instruments.
// An instrument override wins over a portfolio override, which wins over Default.
type FullPositions struct {
	Default     decimal.Decimal
	Portfolios  map[string]decimal.Decimal
	Instruments map[string]decimal.Decimal
}

// NewFullPositions builds sizing from configured float amounts
func NewFullPositions(def float64, portfolios, instruments map[string]float64) FullPositions {
	fp := FullPositions{
		Default:     decimal.NewFromFloat(def),
		Portfolios:  make(map[string]decimal.Decimal, len(portfolios)),
		Instruments: make(map[string]decimal.Decimal, len(instruments)),
	}
	for name, amount := range portfolios {
		fp.Portfolios[name] = decimal.NewFromFloat(amount)
	}
	for code, amount := range instruments {
		fp.Instruments[models.NormalizeCode(code)] = decimal.NewFromFloat(amount)
	}
	return fp
}

// ForPortfolio returns the full position of a portfolio
func (f FullPositions) ForPortfolio(portfolio string) decimal.Decimal {
	if v, ok := f.Portfolios[portfolio]; ok && v.IsPositive() {
		return v
	}
	if f.Default.IsPositive() {
		return f.Default
	}
	return DefaultFullPosition
}

// ForInstrument returns the full position of one instrument inside a portfolio
func (f FullPositions) ForInstrument(portfolio, code string) decimal.Decimal {
	if v, ok := f.Instruments[models.NormalizeCode(code)]; ok && v.IsPositive() {
		return v
	}
	return f.ForPortfolio(portfolio)
}
