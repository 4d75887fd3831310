package app

import (
	"context"
	"sync/atomic"
	"time"

	"investment-tracker/config"
	"investment-tracker/ledger"
	"investment-tracker/models"
	"investment-tracker/observability"
	"investment-tracker/pnl"
	"investment-tracker/repository"
	"investment-tracker/services"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RepositoryInterface defines the repository operations needed by App
type RepositoryInterface interface {
	repository.PositionStore
	Close()
	Health(ctx context.Context) error
}

// App is the command surface bound to the desktop frontend and served over HTTP
type App struct {
	ctx     context.Context
	cfg     *config.Config
	repo    RepositoryInterface
	engine  *ledger.Engine
	live    services.QuoteProvider
	mock    services.QuoteProvider
	sizing  pnl.FullPositions
	metrics *observability.Metrics
	latest  atomic.Pointer[models.ProfitLossSnapshot]
	closers []func()
}

// New creates a new App. A nil live provider falls back to the mock provider.
func New(cfg *config.Config, repo RepositoryInterface, live services.QuoteProvider) *App {
	mock := services.NewMockQuoteProvider()
	if live == nil {
		live = mock
	}

	a := &App{
		ctx:     context.Background(),
		cfg:     cfg,
		repo:    repo,
		live:    live,
		mock:    mock,
		sizing:  pnl.NewFullPositions(cfg.Ledger.FullPosition, cfg.Ledger.PortfolioFullPositions, cfg.Ledger.InstrumentFullPositions),
		metrics: observability.GetMetrics(),
	}
	if repo != nil {
		a.engine = ledger.NewEngine(repo, cfg.Ledger.DefaultPortfolio)
	}
	return a
}

// Startup is called when the app starts
func (a *App) Startup(ctx context.Context) {
	a.ctx = ctx
}

// Shutdown is called when the app is closing
func (a *App) Shutdown(ctx context.Context) {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	if a.repo != nil {
		a.repo.Close()
	}
}

// OnShutdown registers fn to run when the app shuts down
func (a *App) OnShutdown(fn func()) {
	a.closers = append(a.closers, fn)
}

// Repo returns the repository interface for API handlers
func (a *App) Repo() RepositoryInterface {
	return a.repo
}

// Config returns the configuration the app was built with
func (a *App) Config() *config.Config {
	return a.cfg
}

// Buy records a new OPEN lot
func (a *App) Buy(req models.CreatePositionRequest) (*models.Position, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	return a.engine.Buy(a.ctx, req)
}

// GetPositions returns every OPEN lot
func (a *App) GetPositions() ([]models.Position, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	return a.repo.GetOpen(a.ctx)
}

// GetPositionRecords returns every record of a code, OPEN and CLOSED
func (a *App) GetPositionRecords(code string) ([]models.Position, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	return a.repo.GetByCode(a.ctx, models.NormalizeCode(code))
}

// ClosePosition sells a whole lot
func (a *App) ClosePosition(id string, sellPrice decimal.Decimal, sellDate string) (*models.Position, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	posID, err := ParseUUID(id)
	if err != nil {
		return nil, err
	}
	date, err := parseDate(sellDate)
	if err != nil {
		return nil, err
	}
	return a.engine.Close(a.ctx, posID, sellPrice, date)
}

// ReducePosition sells part of a lot
func (a *App) ReducePosition(id string, quantity int64, sellPrice decimal.Decimal, sellDate string) (*ledger.ReduceResult, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	posID, err := ParseUUID(id)
	if err != nil {
		return nil, err
	}
	date, err := parseDate(sellDate)
	if err != nil {
		return nil, err
	}
	return a.engine.Reduce(a.ctx, posID, quantity, sellPrice, date)
}

// DeletePosition removes a record permanently
func (a *App) DeletePosition(id string) error {
	if err := a.ready(); err != nil {
		return err
	}
	posID, err := ParseUUID(id)
	if err != nil {
		return err
	}
	return a.engine.Delete(a.ctx, posID)
}

// GetPortfolioProfitLossView values every OPEN lot at current quotes, or at mock quotes when useMock is set
func (a *App) GetPortfolioProfitLossView(useMock bool) ([]models.PortfolioProfitLoss, error) {
	snapshot, err := a.ComputeProfitLoss(a.ctx, useMock)
	if err != nil {
		return nil, err
	}
	return snapshot.Portfolios, nil
}

// ComputeProfitLoss reads the OPEN lots, resolves their quotes under the configured timeout and aggregates.
// No lock is held while quotes are resolved.
func (a *App) ComputeProfitLoss(ctx context.Context, useMock bool) (snapshot *models.ProfitLossSnapshot, err error) {
	if err := a.ready(); err != nil {
		return nil, err
	}

	provider := a.live
	if useMock {
		provider = a.mock
	}
	timer := a.metrics.NewTimer()
	defer func() { timer.ObserveProfitLossView(provider.Name(), err) }()

	positions, err := a.repo.GetOpen(ctx)
	if err != nil {
		return nil, err
	}

	quotes := map[string]models.Quote{}
	if codes := pnl.OpenCodes(positions); len(codes) > 0 {
		quotes, err = a.resolveQuotes(ctx, provider, codes)
		if err != nil {
			return nil, err
		}
	}

	portfolios, err := pnl.Aggregate(positions, quotes, a.sizing)
	if err != nil {
		observability.WithContext(ctx).Warn("profit/loss view failed", "provider", provider.Name(), "error", err)
		return nil, err
	}

	return &models.ProfitLossSnapshot{
		Portfolios: portfolios,
		Mock:       useMock,
		ComputedAt: time.Now().UTC(),
	}, nil
}

// RefreshProfitLoss computes a snapshot and keeps it as the latest
func (a *App) RefreshProfitLoss(ctx context.Context, useMock bool) (*models.ProfitLossSnapshot, error) {
	snapshot, err := a.ComputeProfitLoss(ctx, useMock)
	if err != nil {
		return nil, err
	}
	a.latest.Store(snapshot)
	return snapshot, nil
}

// GetLatestProfitLoss returns the last refreshed snapshot, or nil before the first refresh
func (a *App) GetLatestProfitLoss() *models.ProfitLossSnapshot {
	return a.latest.Load()
}

// GetClosedTradesSummary returns every realized trade with summary statistics
func (a *App) GetClosedTradesSummary() (*models.ClosedTradesSummary, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	positions, err := a.repo.GetAll(a.ctx)
	if err != nil {
		return nil, err
	}
	summary := pnl.SummarizeClosedTrades(positions)
	return &summary, nil
}

// GetPortfolios returns the portfolios holding OPEN lots
func (a *App) GetPortfolios() ([]string, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	return a.repo.DistinctPortfolios(a.ctx)
}

// ResetDatabase removes every record
func (a *App) ResetDatabase() error {
	if err := a.ready(); err != nil {
		return err
	}
	if err := a.engine.Reset(a.ctx); err != nil {
		return err
	}
	a.latest.Store(nil)
	return nil
}

// GetCodesInPosition returns the codes with OPEN lots
func (a *App) GetCodesInPosition() ([]string, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	return a.repo.DistinctCodes(a.ctx)
}

// GetPositionStats aggregates the OPEN lots of a code
func (a *App) GetPositionStats(code string) (*models.PositionStats, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	code = models.NormalizeCode(code)
	positions, err := a.repo.GetByCode(a.ctx, code)
	if err != nil {
		return nil, err
	}
	stats := pnl.Stats(code, positions)
	return &stats, nil
}

// GetPortfolioPositions returns the OPEN lots of a portfolio ordered by code, newest buy first
func (a *App) GetPortfolioPositions(portfolio string) ([]models.Position, error) {
	if err := a.ready(); err != nil {
		return nil, err
	}
	return a.repo.GetByPortfolio(a.ctx, portfolio, true)
}

// GetPortfolioSummary totals the cost of a portfolio's OPEN lots
func (a *App) GetPortfolioSummary(portfolio string) (*models.PortfolioSummary, error) {
	positions, err := a.GetPortfolioPositions(portfolio)
	if err != nil {
		return nil, err
	}
	summary := pnl.Summarize(portfolio, positions)
	return &summary, nil
}

// GetAllPortfolioSummaries summarizes every portfolio holding OPEN lots
func (a *App) GetAllPortfolioSummaries() ([]models.PortfolioSummary, error) {
	portfolios, err := a.GetPortfolios()
	if err != nil {
		return nil, err
	}
	positions, err := a.repo.GetOpen(a.ctx)
	if err != nil {
		return nil, err
	}

	summaries := make([]models.PortfolioSummary, 0, len(portfolios))
	for _, p := range portfolios {
		summaries = append(summaries, pnl.Summarize(p, positions))
	}
	return summaries, nil
}

// FetchStockName looks up the name and price of one code from the live provider.
// Price is nil when the provider has no quote for it.
func (a *App) FetchStockName(code string) (*models.StockName, error) {
	code = models.NormalizeCode(code)
	if code == "" {
		return nil, models.NewValidationError("code is required")
	}

	quotes, err := a.resolveQuotes(a.ctx, a.live, []string{code})
	if err != nil {
		return nil, err
	}

	result := &models.StockName{Code: code, Name: code}
	if q, ok := quotes[code]; ok {
		price := q.Price
		result.Price = &price
		if q.Name != "" {
			result.Name = q.Name
		}
	}
	return result, nil
}

func (a *App) resolveQuotes(ctx context.Context, provider services.QuoteProvider, codes []string) (map[string]models.Quote, error) {
	timeout := time.Duration(a.cfg.Quotes.TimeoutSeconds) * time.Second
	qctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	quotes, err := provider.Quotes(qctx, codes)
	if err != nil {
		observability.WithContext(ctx).Warn("quote lookup failed", "provider", provider.Name(), "codes", len(codes), "error", err)
		return nil, models.NewQuoteUnavailableError(codes, err)
	}
	return quotes, nil
}

func (a *App) ready() error {
	if a.repo == nil || a.engine == nil {
		return models.NewStorageError("database not initialized", nil)
	}
	return nil
}

// ParseUUID parses a position id
func ParseUUID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, models.NewValidationError("invalid position id %q", id)
	}
	return parsed, nil
}

func parseDate(s string) (models.Date, error) {
	if s == "" {
		return models.Date{}, nil
	}
	d, err := models.ParseDate(s)
	if err != nil {
		return models.Date{}, models.NewValidationError("invalid date %q, expected YYYY-MM-DD", s)
	}
	return d, nil
}
