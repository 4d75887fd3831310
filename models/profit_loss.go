package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PositionProfitLoss is the unrealized result of one OPEN lot at a quote.
type PositionProfitLoss struct {
	ID             uuid.UUID       `json:"id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	BuyDate        Date            `json:"buy_date"`
	BuyPrice       decimal.Decimal `json:"buy_price"`
	Quantity       int64           `json:"quantity"`
	RealPrice      decimal.Decimal `json:"real_price"`
	PositionCost   decimal.Decimal `json:"position_cost"`
	CurrentValue   decimal.Decimal `json:"current_value"`
	ProfitLoss     decimal.Decimal `json:"profit_loss"`
	ProfitLossRate decimal.Decimal `json:"profit_loss_rate"`
	Status         PositionStatus  `json:"status"`
	Portfolio      string          `json:"portfolio"`
}

// TargetProfitLoss rolls up the OPEN lots of one instrument inside one portfolio.
type TargetProfitLoss struct {
	Code                    string               `json:"code"`
	Name                    string               `json:"name"`
	RealPrice               decimal.Decimal      `json:"real_price"`
	PositionProfitLosses    []PositionProfitLoss `json:"position_profit_losses"`
	TotalQuantity           int64                `json:"total_quantity"`
	PositionCost            decimal.Decimal      `json:"position_cost"`
	CurrentValue            decimal.Decimal      `json:"current_value"`
	FullPosition            decimal.Decimal      `json:"full_position"`
	CostPositionRate        decimal.Decimal      `json:"cost_position_rate"`
	CurrentPositionRate     decimal.Decimal      `json:"current_position_rate"`
	TargetProfitLoss        decimal.Decimal      `json:"target_profit_loss"`
	TargetProfitLossRate    decimal.Decimal      `json:"target_profit_loss_rate"`
	RecommendedBuyInPoint   decimal.Decimal      `json:"recommended_buy_in_point"`
	RecommendedSaleOutPoint decimal.Decimal      `json:"recommended_sale_out_point"`
}

// PortfolioProfitLoss rolls up every instrument of one portfolio.
type PortfolioProfitLoss struct {
	Portfolio           string             `json:"portfolio"`
	FullPosition        decimal.Decimal    `json:"full_position"`
	TargetProfitLosses  []TargetProfitLoss `json:"target_profit_losses"`
	SumPositionCost     decimal.Decimal    `json:"sum_position_cost"`
	SumCurrentValue     decimal.Decimal    `json:"sum_current_value"`
	SumProfitLosses     decimal.Decimal    `json:"sum_profit_losses"`
	SumProfitLossesRate decimal.Decimal    `json:"sum_profit_losses_rate"`
}

// ProfitLossSnapshot is a view computed at a point in time.
type ProfitLossSnapshot struct {
	Portfolios []PortfolioProfitLoss `json:"portfolios"`
	Mock       bool                  `json:"mock"`
	ComputedAt time.Time             `json:"computed_at"`
}

// PortfolioSummary is the cost-only summary of a portfolio, computed without quotes.
type PortfolioSummary struct {
	Portfolio string          `json:"portfolio"`
	TotalCost decimal.Decimal `json:"total_cost"`
	Count     int             `json:"count"`
	Positions []Position      `json:"positions"`
}

// PositionStats aggregates the OPEN lots of one code.
type PositionStats struct {
	Code          string          `json:"code"`
	RecordCount   int             `json:"record_count"`
	TotalQuantity int64           `json:"total_quantity"`
	TotalCost     decimal.Decimal `json:"total_cost"`
	AvgCostPrice  decimal.Decimal `json:"avg_cost_price"`
}
