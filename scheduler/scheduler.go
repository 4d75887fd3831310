package scheduler

import (
	"context"
	"fmt"
	"time"

	"investment-tracker/config"
	"investment-tracker/models"
	"investment-tracker/observability"

	"github.com/robfig/cron/v3"
)

// CleanSchedule is when expired quote cache rows are purged
const CleanSchedule = "@hourly"

// ProfitLossSource computes and keeps the latest P&L snapshot
type ProfitLossSource interface {
	RefreshProfitLoss(ctx context.Context, useMock bool) (*models.ProfitLossSnapshot, error)
}

// QuoteCacheCleaner purges expired cached quotes
type QuoteCacheCleaner interface {
	CleanExpiredQuotes(ctx context.Context) (int64, error)
}

// Runner runs periodic jobs against a base context
type Runner struct {
	cron    *cron.Cron
	baseCtx context.Context
}

// New creates a Runner on the standard five-field cron syntax.
// A job still running when its next tick fires is skipped.
func New(baseCtx context.Context) *Runner {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	logger := cronLogger{}
	return &Runner{
		cron: cron.New(
			cron.WithLogger(logger),
			cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
		),
		baseCtx: baseCtx,
	}
}

// Add registers job on spec
func (r *Runner) Add(spec string, job func(context.Context)) (cron.EntryID, error) {
	return r.cron.AddFunc(spec, func() {
		job(r.baseCtx)
	})
}

// Start runs the scheduler in its own goroutine
func (r *Runner) Start() {
	observability.Info("scheduler started", "jobs", len(r.cron.Entries()))
	r.cron.Start()
}

// Stop waits for running jobs to finish
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
	observability.Info("scheduler stopped")
}

// Refresher recomputes the P&L view on a schedule and publishes per-portfolio gauges
type Refresher struct {
	source  ProfitLossSource
	useMock bool
	timeout time.Duration
	metrics *observability.Metrics
}

// NewRefresher creates a Refresher; timeout bounds one run, zero means unbounded
func NewRefresher(source ProfitLossSource, useMock bool, timeout time.Duration) *Refresher {
	return &Refresher{
		source:  source,
		useMock: useMock,
		timeout: timeout,
		metrics: observability.GetMetrics(),
	}
}

// RunOnce computes one snapshot and updates the gauges
func (f *Refresher) RunOnce(ctx context.Context) error {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	snapshot, err := f.source.RefreshProfitLoss(ctx, f.useMock)
	f.metrics.RecordRefreshRun(observability.StatusOf(err))
	if err != nil {
		return fmt.Errorf("profit/loss refresh failed: %w", err)
	}

	f.metrics.ResetPortfolioGauges()
	for _, p := range snapshot.Portfolios {
		open := 0
		for _, t := range p.TargetProfitLosses {
			open += len(t.PositionProfitLosses)
		}
		f.metrics.SetPortfolioGauges(p.Portfolio, p.SumPositionCost.InexactFloat64(), p.SumProfitLosses.InexactFloat64(), open)
	}

	observability.Debug("profit/loss refreshed", "portfolios", len(snapshot.Portfolios), "mock", snapshot.Mock)
	return nil
}

// Run is the cron job form of RunOnce
func (f *Refresher) Run(ctx context.Context) {
	if err := f.RunOnce(ctx); err != nil {
		observability.WithError(err).Warn("scheduled refresh failed")
	}
}

// CleanJob returns a cron job purging expired quotes from cleaner
func CleanJob(cleaner QuoteCacheCleaner) func(context.Context) {
	return func(ctx context.Context) {
		n, err := cleaner.CleanExpiredQuotes(ctx)
		if err != nil {
			observability.WithError(err).Warn("quote cache cleanup failed")
			return
		}
		if n > 0 {
			observability.Debug("quote cache cleaned", "removed", n)
		}
	}
}

// cronLogger routes cron's own logging to slog
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	observability.Debug("cron: "+msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	observability.WithError(err).Error("cron: "+msg, keysAndValues...)
}

// FromConfig builds the runner for cfg.Refresh; it returns nil when refresh is disabled.
// cleaner may be nil; it is only scheduled for the database quote cache.
func FromConfig(ctx context.Context, cfg *config.Config, source ProfitLossSource, cleaner QuoteCacheCleaner) (*Runner, error) {
	if !cfg.Refresh.Enabled {
		return nil, nil
	}

	r := New(ctx)
	timeout := 2 * time.Duration(cfg.Quotes.TimeoutSeconds) * time.Second
	refresher := NewRefresher(source, cfg.Refresh.UseMock, timeout)
	if _, err := r.Add(cfg.Refresh.Schedule, refresher.Run); err != nil {
		return nil, fmt.Errorf("invalid REFRESH_SCHEDULE %q: %w", cfg.Refresh.Schedule, err)
	}

	if cleaner != nil && cfg.Quotes.CacheBackend == config.CacheDB {
		if _, err := r.Add(CleanSchedule, CleanJob(cleaner)); err != nil {
			return nil, err
		}
	}
	return r, nil
}
