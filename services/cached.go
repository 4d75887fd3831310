package services

import (
	"context"
	"time"

	"investment-tracker/models"
	"investment-tracker/observability"
	"investment-tracker/repository"
)

// CachedQuoteProvider serves quotes from a cache and fetches the misses from the next provider.
// Entries written by a different source count as misses and are evicted.
type CachedQuoteProvider struct {
	next    QuoteProvider
	cache   repository.QuoteCache
	ttl     time.Duration
	backend string
	metrics *observability.Metrics
}

// NewCachedQuoteProvider wraps next with cache; backend labels the cache in metrics
func NewCachedQuoteProvider(next QuoteProvider, cache repository.QuoteCache, ttl time.Duration, backend string) *CachedQuoteProvider {
	return &CachedQuoteProvider{
		next:    next,
		cache:   cache,
		ttl:     ttl,
		backend: backend,
		metrics: observability.GetMetrics(),
	}
}

func (p *CachedQuoteProvider) Name() string { return p.next.Name() }

func (p *CachedQuoteProvider) Quotes(ctx context.Context, codes []string) (map[string]models.Quote, error) {
	quotes := make(map[string]models.Quote, len(codes))
	var misses []string
	source := p.next.Name()

	for _, code := range codes {
		q, err := p.cache.GetQuote(ctx, code)
		if err != nil {
			// a broken cache degrades to a pass-through
			observability.WithCode(code).Warn("quote cache read failed", "backend", p.backend, "error", err)
		}
		if q != nil && q.Source != source {
			observability.WithCode(code).Debug("evicting quote from another source", "cached", q.Source, "source", source)
			if err := p.cache.InvalidateQuote(ctx, code); err != nil {
				observability.WithCode(code).Warn("quote cache invalidate failed", "backend", p.backend, "error", err)
			}
			q = nil
		}
		if q != nil {
			p.metrics.RecordQuoteCacheHit(p.backend)
			q.Code = code
			quotes[code] = *q
			continue
		}
		p.metrics.RecordQuoteCacheMiss(p.backend)
		misses = append(misses, code)
	}

	if len(misses) == 0 {
		return quotes, nil
	}

	fetched, err := p.next.Quotes(ctx, misses)
	if err != nil {
		return nil, err
	}
	for code, q := range fetched {
		quotes[code] = q
		if err := p.cache.SetQuote(ctx, q, p.ttl); err != nil {
			observability.WithCode(code).Warn("quote cache write failed", "backend", p.backend, "error", err)
		}
	}
	return quotes, nil
}
