package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"investment-tracker/config"
	"investment-tracker/internal/app"
	"investment-tracker/models"

	"github.com/google/subcommands"
	"github.com/shopspring/decimal"
)

// Register the subcommands.
func Register(c *subcommands.Commander) {
	c.Register(&buyCmd{}, "ledger")
	c.Register(&closeCmd{}, "ledger")
	c.Register(&reduceCmd{}, "ledger")
	c.Register(&deleteCmd{}, "ledger")
	c.Register(&resetCmd{}, "ledger")

	c.Register(&positionsCmd{}, "reports")
	c.Register(&pnlCmd{}, "reports")
	c.Register(&closedCmd{}, "reports")
	c.Register(&portfoliosCmd{}, "reports")
	c.Register(&quoteCmd{}, "reports")
}

// as a CLI application it opens the ledger once per invocation
func openApp(ctx context.Context) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return app.Bootstrap(ctx, cfg)
}

// run opens the ledger, runs fn and maps its error to an exit status
func run(ctx context.Context, fn func(*app.App) error) subcommands.ExitStatus {
	a, err := openApp(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening ledger: %v\n", err)
		return subcommands.ExitFailure
	}
	defer a.Shutdown(ctx)

	if err := fn(a); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if models.KindOf(err) == models.KindValidation {
			return subcommands.ExitUsageError
		}
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parsePrice(name, s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, models.NewValidationError("invalid %s %q", name, s)
	}
	return d, nil
}

// buyCmd holds the flags for the 'buy' subcommand.
type buyCmd struct {
	code      string
	name      string
	price     string
	date      string
	quantity  int64
	portfolio string
}

func (*buyCmd) Name() string     { return "buy" }
func (*buyCmd) Synopsis() string { return "record a new lot" }
func (*buyCmd) Usage() string {
	return `ledgerctl buy -c <code> -p <price> -q <quantity> [-d <date>] [-n <name>] [-portfolio <name>]

  Records an OPEN lot. The date defaults to today.
`
}

func (c *buyCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.code, "c", "", "Instrument code, e.g. sh600519")
	f.StringVar(&c.name, "n", "", "Display name; defaults to the code")
	f.StringVar(&c.price, "p", "", "Buy price per unit")
	f.StringVar(&c.date, "d", models.Today().String(), "Buy date (YYYY-MM-DD)")
	f.Int64Var(&c.quantity, "q", 0, "Quantity")
	f.StringVar(&c.portfolio, "portfolio", "", "Portfolio; defaults to DEFAULT_PORTFOLIO")
}

func (c *buyCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	price, err := parsePrice("price", c.price)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}
	date, err := models.ParseDate(c.date)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing date: %v\n", err)
		return subcommands.ExitUsageError
	}

	return run(ctx, func(a *app.App) error {
		pos, err := a.Buy(models.CreatePositionRequest{
			Code:      c.code,
			Name:      c.name,
			BuyPrice:  price,
			BuyDate:   date,
			Quantity:  c.quantity,
			Portfolio: c.portfolio,
		})
		if err != nil {
			return err
		}
		printMarkdown(positionsMarkdown("Bought", []models.Position{*pos}))
		return nil
	})
}

// closeCmd holds the flags for the 'close' subcommand.
type closeCmd struct {
	price string
	date  string
}

func (*closeCmd) Name() string     { return "close" }
func (*closeCmd) Synopsis() string { return "sell a whole lot" }
func (*closeCmd) Usage() string {
	return `ledgerctl close -p <price> [-d <date>] <id>
`
}

func (c *closeCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.price, "p", "", "Sell price per unit")
	f.StringVar(&c.date, "d", models.Today().String(), "Sell date (YYYY-MM-DD)")
}

func (c *closeCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "close takes exactly one position id")
		return subcommands.ExitUsageError
	}
	price, err := parsePrice("price", c.price)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	return run(ctx, func(a *app.App) error {
		pos, err := a.ClosePosition(f.Arg(0), price, c.date)
		if err != nil {
			return err
		}
		printMarkdown(closedTradesMarkdownFor(*pos))
		return nil
	})
}

// reduceCmd holds the flags for the 'reduce' subcommand.
type reduceCmd struct {
	price    string
	date     string
	quantity int64
}

func (*reduceCmd) Name() string     { return "reduce" }
func (*reduceCmd) Synopsis() string { return "sell part of a lot" }
func (*reduceCmd) Usage() string {
	return `ledgerctl reduce -q <quantity> -p <price> [-d <date>] <id>

  Sells part of an OPEN lot. The sold part becomes a new CLOSED record.
`
}

func (c *reduceCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.price, "p", "", "Sell price per unit")
	f.StringVar(&c.date, "d", models.Today().String(), "Sell date (YYYY-MM-DD)")
	f.Int64Var(&c.quantity, "q", 0, "Quantity to sell")
}

func (c *reduceCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "reduce takes exactly one position id")
		return subcommands.ExitUsageError
	}
	price, err := parsePrice("price", c.price)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitUsageError
	}

	return run(ctx, func(a *app.App) error {
		result, err := a.ReducePosition(f.Arg(0), c.quantity, price, c.date)
		if err != nil {
			return err
		}
		printMarkdown(positionsMarkdown("Remaining", []models.Position{result.Remaining}))
		printMarkdown(closedTradesMarkdownFor(result.Closed))
		return nil
	})
}

func closedTradesMarkdownFor(p models.Position) string {
	trade := models.NewClosedTrade(p)
	return closedTradesMarkdown(models.ClosedTradesSummary{
		Trades: []models.ClosedTrade{trade},
		Statistics: models.ClosedTradesStatistics{
			TotalTrades:     1,
			TotalProfitLoss: trade.ProfitLoss,
		},
	})
}

// deleteCmd holds the flags for the 'delete' subcommand.
type deleteCmd struct{}

func (*deleteCmd) Name() string             { return "delete" }
func (*deleteCmd) Synopsis() string         { return "remove a record permanently" }
func (*deleteCmd) Usage() string            { return "ledgerctl delete <id>...\n" }
func (*deleteCmd) SetFlags(_ *flag.FlagSet) {}

func (*deleteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "delete takes at least one position id")
		return subcommands.ExitUsageError
	}
	return run(ctx, func(a *app.App) error {
		for _, id := range f.Args() {
			if err := a.DeletePosition(id); err != nil {
				return err
			}
			fmt.Printf("deleted %s\n", id)
		}
		return nil
	})
}

// resetCmd holds the flags for the 'reset' subcommand.
type resetCmd struct {
	yes bool
}

func (*resetCmd) Name() string     { return "reset" }
func (*resetCmd) Synopsis() string { return "remove every record" }
func (*resetCmd) Usage() string    { return "ledgerctl reset -yes\n" }

func (c *resetCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.yes, "yes", false, "Confirm removing every record")
}

func (c *resetCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if !c.yes {
		fmt.Fprintln(os.Stderr, "reset removes every record; pass -yes to confirm")
		return subcommands.ExitUsageError
	}
	return run(ctx, func(a *app.App) error {
		if err := a.ResetDatabase(); err != nil {
			return err
		}
		fmt.Println("ledger reset")
		return nil
	})
}

// positionsCmd holds the flags for the 'positions' subcommand.
type positionsCmd struct {
	code      string
	portfolio string
	json      bool
}

func (*positionsCmd) Name() string     { return "positions" }
func (*positionsCmd) Synopsis() string { return "list lots" }
func (*positionsCmd) Usage() string {
	return `ledgerctl positions [-c <code>] [-portfolio <name>] [-json]

  Lists OPEN lots. With -c, lists every record of the code, OPEN and CLOSED.
`
}

func (c *positionsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.code, "c", "", "Show every record of this code")
	f.StringVar(&c.portfolio, "portfolio", "", "Only OPEN lots of this portfolio")
	f.BoolVar(&c.json, "json", false, "Print JSON")
}

func (c *positionsCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app.App) error {
		var (
			positions []models.Position
			title     = "Open positions"
			err       error
		)
		switch {
		case c.code != "":
			title = "Records of " + models.NormalizeCode(c.code)
			positions, err = a.GetPositionRecords(c.code)
		case c.portfolio != "":
			title = "Open positions in " + c.portfolio
			positions, err = a.GetPortfolioPositions(c.portfolio)
		default:
			positions, err = a.GetPositions()
		}
		if err != nil {
			return err
		}
		if c.json {
			return printJSON(positions)
		}
		printMarkdown(positionsMarkdown(title, positions))
		return nil
	})
}

// pnlCmd holds the flags for the 'pnl' subcommand.
type pnlCmd struct {
	mock bool
	json bool
}

func (*pnlCmd) Name() string     { return "pnl" }
func (*pnlCmd) Synopsis() string { return "unrealized profit and loss at current quotes" }
func (*pnlCmd) Usage() string {
	return `ledgerctl pnl [-mock] [-json]
`
}

func (c *pnlCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.mock, "mock", false, "Value at mock quotes")
	f.BoolVar(&c.json, "json", false, "Print JSON")
}

func (c *pnlCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app.App) error {
		snapshot, err := a.ComputeProfitLoss(ctx, c.mock)
		if err != nil {
			return err
		}
		if c.json {
			return printJSON(snapshot.Portfolios)
		}
		printMarkdown(profitLossMarkdown(snapshot.Portfolios, snapshot.Mock, snapshot.ComputedAt))
		return nil
	})
}

// closedCmd holds the flags for the 'closed' subcommand.
type closedCmd struct {
	json bool
}

func (*closedCmd) Name() string     { return "closed" }
func (*closedCmd) Synopsis() string { return "realized trades and statistics" }
func (*closedCmd) Usage() string    { return "ledgerctl closed [-json]\n" }

func (c *closedCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.json, "json", false, "Print JSON")
}

func (c *closedCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app.App) error {
		summary, err := a.GetClosedTradesSummary()
		if err != nil {
			return err
		}
		if c.json {
			return printJSON(summary)
		}
		printMarkdown(closedTradesMarkdown(*summary))
		return nil
	})
}

// portfoliosCmd holds the flags for the 'portfolios' subcommand.
type portfoliosCmd struct {
	json bool
}

func (*portfoliosCmd) Name() string     { return "portfolios" }
func (*portfoliosCmd) Synopsis() string { return "portfolios with their cost" }
func (*portfoliosCmd) Usage() string    { return "ledgerctl portfolios [-json]\n" }

func (c *portfoliosCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.json, "json", false, "Print JSON")
}

func (c *portfoliosCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return run(ctx, func(a *app.App) error {
		summaries, err := a.GetAllPortfolioSummaries()
		if err != nil {
			return err
		}
		if c.json {
			return printJSON(summaries)
		}
		printMarkdown(portfolioSummariesMarkdown(summaries))
		return nil
	})
}

// quoteCmd holds the flags for the 'quote' subcommand.
type quoteCmd struct{}

func (*quoteCmd) Name() string             { return "quote" }
func (*quoteCmd) Synopsis() string         { return "look up the name and price of codes" }
func (*quoteCmd) Usage() string            { return "ledgerctl quote <code>...\n" }
func (*quoteCmd) SetFlags(_ *flag.FlagSet) {}

func (*quoteCmd) Execute(ctx context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		fmt.Fprintln(os.Stderr, "quote takes at least one code")
		return subcommands.ExitUsageError
	}
	return run(ctx, func(a *app.App) error {
		for _, code := range f.Args() {
			name, err := a.FetchStockName(code)
			if err != nil {
				return err
			}
			price := "unavailable"
			if name.Price != nil {
				price = name.Price.String()
			}
			fmt.Printf("%s\t%s\t%s\n", name.Code, name.Name, price)
		}
		return nil
	})
}
