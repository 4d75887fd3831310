package app

import (
	"context"
	"fmt"
	"time"

	"investment-tracker/config"
	"investment-tracker/observability"
	"investment-tracker/repository"
	"investment-tracker/scheduler"
	"investment-tracker/services"
)

// Bootstrap opens the repository, builds the quote provider chain and returns a ready App.
// The returned App owns every resource it opened; call Shutdown to release them.
func Bootstrap(ctx context.Context, cfg *config.Config) (*App, error) {
	repo, err := services.Retry(ctx, services.DefaultRetryConfig, "open database", func(ctx context.Context) (*repository.Repository, error) {
		return repository.NewRepository(ctx, cfg.DSN())
	})
	if err != nil {
		return nil, err
	}

	provider, closeProvider, err := NewQuoteProvider(ctx, cfg, repo)
	if err != nil {
		repo.Close()
		return nil, err
	}

	a := New(cfg, repo, provider)
	if closeProvider != nil {
		a.OnShutdown(closeProvider)
	}

	observability.Info("ledger ready",
		"database", repo.Dialect(),
		"quote_provider", provider.Name(),
		"quote_cache", cfg.Quotes.CacheBackend)
	return a, nil
}

// StartScheduler starts the configured refresh and cache cleanup jobs.
// The jobs stop when the App shuts down; it is a no-op when refresh is disabled.
func (a *App) StartScheduler(ctx context.Context) error {
	cleaner, _ := a.repo.(scheduler.QuoteCacheCleaner)
	runner, err := scheduler.FromConfig(ctx, a.cfg, a, cleaner)
	if err != nil {
		return err
	}
	if runner != nil {
		runner.Start()
		a.OnShutdown(runner.Stop)
	}
	return nil
}

// NewQuoteProvider builds the configured live provider, wrapped in the configured cache.
// The returned func releases the cache connection, if any.
func NewQuoteProvider(ctx context.Context, cfg *config.Config, sqlCache repository.QuoteCache) (services.QuoteProvider, func(), error) {
	timeout := time.Duration(cfg.Quotes.TimeoutSeconds) * time.Second

	var provider services.QuoteProvider
	switch cfg.Quotes.Provider {
	case config.QuoteProviderMock:
		provider = services.NewMockQuoteProvider()
	case config.QuoteProviderAlpaca:
		provider = services.NewAlpacaQuoteProvider(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.Feed, timeout, nil)
	case config.QuoteProviderTencent:
		provider = services.NewTencentQuoteProvider(cfg.Quotes.TencentBaseURL, timeout, cfg.Quotes.RequestsPerSecond, nil)
	default:
		return nil, nil, fmt.Errorf("unknown quote provider %q", cfg.Quotes.Provider)
	}

	ttl := time.Duration(cfg.Quotes.CacheTTLSeconds) * time.Second
	switch cfg.Quotes.CacheBackend {
	case config.CacheNone, "":
		return provider, nil, nil
	case config.CacheDB:
		if sqlCache == nil {
			return nil, nil, fmt.Errorf("QUOTE_CACHE=db requires a database")
		}
		return services.NewCachedQuoteProvider(provider, sqlCache, ttl, config.CacheDB), nil, nil
	case config.CacheRedis:
		redisCache, err := repository.NewRedisQuoteCache(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect quote cache: %w", err)
		}
		closeCache := func() {
			if err := redisCache.Close(); err != nil {
				observability.WithError(err).Warn("failed to close quote cache")
			}
		}
		return services.NewCachedQuoteProvider(provider, redisCache, ttl, config.CacheRedis), closeCache, nil
	default:
		return nil, nil, fmt.Errorf("unknown quote cache %q", cfg.Quotes.CacheBackend)
	}
}
