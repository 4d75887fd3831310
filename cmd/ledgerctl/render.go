package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"investment-tracker/models"

	"github.com/charmbracelet/glamour"
	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

var plainOutput bool

// printMarkdown renders md for the terminal, or prints it raw with -plain
func printMarkdown(md string) {
	if plainOutput {
		fmt.Print(md)
		return
	}
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(160))
	if err == nil {
		var out string
		if out, err = r.Render(md); err == nil {
			fmt.Print(out)
			return
		}
	}
	fmt.Fprintf(os.Stderr, "warning: cannot render markdown: %v\n", err)
	fmt.Print(md)
}

func money(d decimal.Decimal) string {
	return humanize.CommafWithDigits(d.Round(2).InexactFloat64(), 2)
}

func percent(rate decimal.Decimal) string {
	return rate.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}

func quantity(q int64) string {
	return humanize.Comma(q)
}

func row(cells ...string) string {
	return "| " + strings.Join(cells, " | ") + " |\n"
}

func header(b *strings.Builder, cells ...string) {
	b.WriteString(row(cells...))
	sep := make([]string, len(cells))
	for i := range sep {
		sep[i] = "---"
	}
	b.WriteString(row(sep...))
}

func positionsMarkdown(title string, positions []models.Position) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	if len(positions) == 0 {
		b.WriteString("_No positions._\n")
		return b.String()
	}
	header(&b, "ID", "Portfolio", "Code", "Name", "Buy date", "Buy price", "Quantity", "Cost", "Status")
	for _, p := range positions {
		b.WriteString(row(
			p.ID.String(), p.Portfolio, p.Code, p.Name, p.BuyDate.String(),
			p.BuyPrice.String(), quantity(p.Quantity), money(p.CostBasis()), string(p.Status),
		))
	}
	return b.String()
}

func profitLossMarkdown(portfolios []models.PortfolioProfitLoss, mock bool, computedAt time.Time) string {
	var b strings.Builder
	b.WriteString("# Profit and loss\n\n")
	source := "live quotes"
	if mock {
		source = "mock quotes"
	}
	fmt.Fprintf(&b, "Valued at %s, %s.\n\n", source, humanize.Time(computedAt))
	if len(portfolios) == 0 {
		b.WriteString("_No open positions._\n")
		return b.String()
	}

	for _, p := range portfolios {
		fmt.Fprintf(&b, "## %s\n\n", p.Portfolio)
		fmt.Fprintf(&b, "Cost **%s**, value **%s**, P&L **%s** (%s) of a full position of %s.\n\n",
			money(p.SumPositionCost), money(p.SumCurrentValue), money(p.SumProfitLosses),
			percent(p.SumProfitLossesRate), money(p.FullPosition))

		header(&b, "Code", "Name", "Quantity", "Cost", "Price", "Value", "P&L", "Rate", "Position", "Buy in", "Sell out")
		for _, t := range p.TargetProfitLosses {
			b.WriteString(row(
				t.Code, t.Name, quantity(t.TotalQuantity), money(t.PositionCost), t.RealPrice.String(),
				money(t.CurrentValue), money(t.TargetProfitLoss), percent(t.TargetProfitLossRate),
				percent(t.CurrentPositionRate), t.RecommendedBuyInPoint.StringFixed(2), t.RecommendedSaleOutPoint.StringFixed(2),
			))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func closedTradesMarkdown(summary models.ClosedTradesSummary) string {
	var b strings.Builder
	s := summary.Statistics
	b.WriteString("# Closed trades\n\n")
	fmt.Fprintf(&b, "%d trades, %d profitable, %d losing, win rate %s.\n\n",
		s.TotalTrades, s.ProfitableTrades, s.LossTrades, percent(s.WinRate))
	fmt.Fprintf(&b, "Total P&L **%s**, average rate %s, best %s, worst %s, average holding %s days.\n\n",
		money(s.TotalProfitLoss), percent(s.AverageProfitLossRate), money(s.MaxProfit), money(s.MaxLoss),
		s.AverageHoldingDays.StringFixed(1))
	if len(summary.Trades) == 0 {
		return b.String()
	}

	header(&b, "Portfolio", "Code", "Name", "Buy date", "Sell date", "Buy price", "Sell price", "Quantity", "P&L", "Rate", "Days")
	for _, t := range summary.Trades {
		b.WriteString(row(
			t.Portfolio, t.Code, t.Name, t.BuyDate.String(), t.SellDate.String(),
			t.BuyPrice.String(), t.SellPrice.String(), quantity(t.Quantity),
			money(t.ProfitLoss), percent(t.ProfitLossRate), humanize.Comma(t.HoldingDays),
		))
	}
	return b.String()
}

func portfolioSummariesMarkdown(summaries []models.PortfolioSummary) string {
	var b strings.Builder
	b.WriteString("# Portfolios\n\n")
	if len(summaries) == 0 {
		b.WriteString("_No open positions._\n")
		return b.String()
	}
	header(&b, "Portfolio", "Open lots", "Total cost")
	for _, s := range summaries {
		b.WriteString(row(s.Portfolio, humanize.Comma(int64(s.Count)), money(s.TotalCost)))
	}
	return b.String()
}
