package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"investment-tracker/models"
	"investment-tracker/observability"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
)

// alpacaDataClient is the subset of the market data client the provider uses
type alpacaDataClient interface {
	GetLatestTrades(symbols []string, req marketdata.GetLatestTradeRequest) (map[string]marketdata.Trade, error)
}

// AlpacaQuoteProvider prices US equities from the latest Alpaca trade
type AlpacaQuoteProvider struct {
	dataClient alpacaDataClient
	feed       string
	breakers   *BreakerRegistry
	metrics    *observability.Metrics
}

// NewAlpacaQuoteProvider creates a provider; feed is "iex" or "sip" (empty uses the account default).
// Each HTTP attempt is capped at timeout and the client does not retry.
func NewAlpacaQuoteProvider(apiKey, apiSecret, feed string, timeout time.Duration, breakers *BreakerRegistry) *AlpacaQuoteProvider {
	dataClient := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:     apiKey,
		APISecret:  apiSecret,
		HTTPClient: &http.Client{Timeout: timeout},
		RetryLimit: 1,
	})
	return newAlpacaQuoteProvider(dataClient, feed, breakers)
}

func newAlpacaQuoteProvider(dataClient alpacaDataClient, feed string, breakers *BreakerRegistry) *AlpacaQuoteProvider {
	if breakers == nil {
		breakers = GetGlobalRegistry()
	}
	return &AlpacaQuoteProvider{
		dataClient: dataClient,
		feed:       feed,
		breakers:   breakers,
		metrics:    observability.GetMetrics(),
	}
}

func (p *AlpacaQuoteProvider) Name() string { return BreakerAlpaca }

// Quotes returns the last trade price per code; codes are matched case-insensitively
func (p *AlpacaQuoteProvider) Quotes(ctx context.Context, codes []string) (map[string]models.Quote, error) {
	if len(codes) == 0 {
		return map[string]models.Quote{}, nil
	}

	symbols := make([]string, 0, len(codes))
	bySymbol := make(map[string][]string, len(codes))
	for _, code := range codes {
		symbol := strings.ToUpper(strings.TrimSpace(code))
		if _, seen := bySymbol[symbol]; !seen {
			symbols = append(symbols, symbol)
		}
		bySymbol[symbol] = append(bySymbol[symbol], code)
	}

	return p.breakers.Guard(ctx, BreakerAlpaca, func(ctx context.Context) (map[string]models.Quote, error) {
		p.metrics.RecordExternalAPIRequest(BreakerAlpaca, "latest_trades")
		timer := p.metrics.NewTimer()
		trades, err := p.latestTrades(ctx, symbols)
		timer.ObserveExternalAPI(BreakerAlpaca, "latest_trades")
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			p.metrics.RecordExternalAPIError(BreakerAlpaca, "latest_trades", "timeout")
			return nil, err
		}
		if err != nil {
			p.metrics.RecordExternalAPIError(BreakerAlpaca, "latest_trades", "request")
			return nil, fmt.Errorf("failed to get latest trades: %w", err)
		}
		return tradesToQuotes(trades, bySymbol), nil
	})
}

type tradesResult struct {
	trades map[string]marketdata.Trade
	err    error
}

// latestTrades bounds the context-free client call by ctx.
// An abandoned call finishes in the background and its result is dropped.
func (p *AlpacaQuoteProvider) latestTrades(ctx context.Context, symbols []string) (map[string]marketdata.Trade, error) {
	done := make(chan tradesResult, 1)
	go func() {
		trades, err := p.dataClient.GetLatestTrades(symbols, marketdata.GetLatestTradeRequest{Feed: marketdata.Feed(p.feed)})
		done <- tradesResult{trades: trades, err: err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		return res.trades, res.err
	}
}

// tradesToQuotes fans each symbol's trade out to every code that requested it
func tradesToQuotes(trades map[string]marketdata.Trade, bySymbol map[string][]string) map[string]models.Quote {
	quotes := make(map[string]models.Quote, len(trades))
	for symbol, trade := range trades {
		if trade.Price <= 0 {
			continue
		}
		for _, code := range bySymbol[strings.ToUpper(symbol)] {
			quotes[code] = models.Quote{
				Code:      code,
				Name:      symbol,
				Price:     decimal.NewFromFloat(trade.Price),
				Source:    BreakerAlpaca,
				Timestamp: trade.Timestamp,
			}
		}
	}
	return quotes
}
