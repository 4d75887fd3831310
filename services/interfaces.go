package services

import (
	"context"

	"investment-tracker/models"
)

// QuoteProvider resolves current prices for instrument codes.
// Codes it cannot price are omitted from the result; an error means the whole lookup failed.
type QuoteProvider interface {
	Name() string
	Quotes(ctx context.Context, codes []string) (map[string]models.Quote, error)
}

// Compile-time interface verification
var (
	_ QuoteProvider = (*TencentQuoteProvider)(nil)
	_ QuoteProvider = (*AlpacaQuoteProvider)(nil)
	_ QuoteProvider = (*MockQuoteProvider)(nil)
	_ QuoteProvider = (*CachedQuoteProvider)(nil)
)
