package main

import (
	"strings"
	"testing"
	"time"

	"investment-tracker/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestMoneyAndPercent(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{money(d("1600")), "1,600"},
		{money(d("1234567.891")), "1,234,567.89"},
		{money(d("-50")), "-50"},
		{percent(d("0.03125")), "3.13%"},
		{percent(d("-0.5")), "-50.00%"},
		{quantity(12000), "12,000"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("expected %q, got %q", tt.want, tt.got)
		}
	}
}

func TestPositionsMarkdown(t *testing.T) {
	id := uuid.MustParse("0b7e7d2c-3c1f-4a4e-9a53-7f7c2b8e7a11")
	md := positionsMarkdown("Open positions", []models.Position{{
		ID:        id,
		Code:      "sh600519",
		Name:      "Moutai",
		BuyPrice:  d("1688.5"),
		BuyDate:   models.MustParseDate("2024-01-15"),
		Quantity:  100,
		Status:    models.PositionStatusOpen,
		Portfolio: "core",
	}})

	for _, want := range []string{
		"# Open positions",
		"| ID | Portfolio | Code |",
		"| " + id.String() + " | core | sh600519 | Moutai | 2024-01-15 | 1688.5 | 100 | 168,850 | OPEN |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("expected %q in:\n%s", want, md)
		}
	}

	if empty := positionsMarkdown("Open positions", nil); !strings.Contains(empty, "_No positions._") {
		t.Errorf("expected empty marker, got:\n%s", empty)
	}
}

func TestProfitLossMarkdown(t *testing.T) {
	portfolios := []models.PortfolioProfitLoss{{
		Portfolio:           "core",
		FullPosition:        d("50000"),
		SumPositionCost:     d("1600"),
		SumCurrentValue:     d("1650"),
		SumProfitLosses:     d("50"),
		SumProfitLossesRate: d("0.03125"),
		TargetProfitLosses: []models.TargetProfitLoss{{
			Code:                    "x",
			Name:                    "X Corp",
			RealPrice:               d("11"),
			TotalQuantity:           150,
			PositionCost:            d("1600"),
			CurrentValue:            d("1650"),
			TargetProfitLoss:        d("50"),
			TargetProfitLossRate:    d("0.03125"),
			CurrentPositionRate:     d("0.033"),
			RecommendedBuyInPoint:   d("10.8"),
			RecommendedSaleOutPoint: d("13.2"),
		}},
	}}

	md := profitLossMarkdown(portfolios, true, time.Now())
	for _, want := range []string{
		"mock quotes",
		"## core",
		"P&L **50** (3.13%)",
		"| x | X Corp | 150 | 1,600 | 11 | 1,650 | 50 | 3.13% | 3.30% | 10.80 | 13.20 |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("expected %q in:\n%s", want, md)
		}
	}

	if empty := profitLossMarkdown(nil, false, time.Now()); !strings.Contains(empty, "live quotes") || !strings.Contains(empty, "_No open positions._") {
		t.Errorf("unexpected empty view:\n%s", empty)
	}
}

func TestClosedTradesMarkdown(t *testing.T) {
	summary := models.ClosedTradesSummary{
		Trades: []models.ClosedTrade{{
			Code:           "x",
			Name:           "x",
			Portfolio:      "core",
			BuyDate:        models.MustParseDate("2024-01-01"),
			SellDate:       models.MustParseDate("2024-01-31"),
			BuyPrice:       d("10"),
			SellPrice:      d("30"),
			Quantity:       10,
			ProfitLoss:     d("200"),
			ProfitLossRate: d("2"),
			HoldingDays:    30,
		}},
		Statistics: models.ClosedTradesStatistics{
			TotalTrades:        1,
			ProfitableTrades:   1,
			WinRate:            d("1"),
			TotalProfitLoss:    d("200"),
			AverageHoldingDays: d("30"),
		},
	}

	md := closedTradesMarkdown(summary)
	for _, want := range []string{
		"1 trades, 1 profitable, 0 losing, win rate 100.00%",
		"average holding 30.0 days",
		"| core | x | x | 2024-01-01 | 2024-01-31 | 10 | 30 | 10 | 200 | 200.00% | 30 |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("expected %q in:\n%s", want, md)
		}
	}
}

func TestPortfolioSummariesMarkdown(t *testing.T) {
	md := portfolioSummariesMarkdown([]models.PortfolioSummary{
		{Portfolio: "growth", Count: 2, TotalCost: d("1010")},
	})
	if !strings.Contains(md, "| growth | 2 | 1,010 |") {
		t.Errorf("unexpected summaries:\n%s", md)
	}
}
