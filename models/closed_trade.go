package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ClosedTrade is the realized view of one CLOSED record.
type ClosedTrade struct {
	ID             uuid.UUID       `json:"id"`
	ParentID       *uuid.UUID      `json:"parent_id,omitempty"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	BuyDate        Date            `json:"buy_date"`
	BuyPrice       decimal.Decimal `json:"buy_price"`
	SellDate       Date            `json:"sell_date"`
	SellPrice      decimal.Decimal `json:"sell_price"`
	Quantity       int64           `json:"quantity"`
	ProfitLoss     decimal.Decimal `json:"profit_loss"`
	ProfitLossRate decimal.Decimal `json:"profit_loss_rate"`
	Portfolio      string          `json:"portfolio"`
	HoldingDays    int64           `json:"holding_days"`
}

// NewClosedTrade derives a ClosedTrade from a CLOSED record using only that record.
func NewClosedTrade(p Position) ClosedTrade {
	t := ClosedTrade{
		ID:        p.ID,
		ParentID:  p.ParentID,
		Code:      p.Code,
		Name:      p.Name,
		BuyDate:   p.BuyDate,
		BuyPrice:  p.BuyPrice,
		Quantity:  p.Quantity,
		Portfolio: p.Portfolio,
	}
	if p.SellPrice != nil {
		t.SellPrice = *p.SellPrice
	}
	if p.SellDate != nil {
		t.SellDate = *p.SellDate
		t.HoldingDays = p.BuyDate.DaysUntil(*p.SellDate)
	}
	t.ProfitLoss, _ = p.RealizedProfitLoss()
	t.ProfitLossRate = Rate(t.ProfitLoss, p.CostBasis())
	return t
}

// ClosedTradesStatistics summarizes every realized trade.
type ClosedTradesStatistics struct {
	TotalTrades           int             `json:"total_trades"`
	ProfitableTrades      int             `json:"profitable_trades"`
	LossTrades            int             `json:"loss_trades"`
	WinRate               decimal.Decimal `json:"win_rate"`
	TotalProfitLoss       decimal.Decimal `json:"total_profit_loss"`
	AverageProfitLossRate decimal.Decimal `json:"average_profit_loss_rate"`
	MaxProfit             decimal.Decimal `json:"max_profit"`
	MaxLoss               decimal.Decimal `json:"max_loss"`
	AverageHoldingDays    decimal.Decimal `json:"average_holding_days"`
}

// ClosedTradesSummary is the closed-trade report.
type ClosedTradesSummary struct {
	Trades     []ClosedTrade          `json:"trades"`
	Statistics ClosedTradesStatistics `json:"statistics"`
}
