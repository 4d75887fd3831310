package services

import (
	"context"
	"time"

	"investment-tracker/models"

	"github.com/shopspring/decimal"
)

// MockQuoteProvider returns deterministic prices for development and tests:
// 10 + 0.5 per character of the code.
type MockQuoteProvider struct{}

func NewMockQuoteProvider() *MockQuoteProvider {
	return &MockQuoteProvider{}
}

func (p *MockQuoteProvider) Name() string { return "mock" }

func (p *MockQuoteProvider) Quotes(ctx context.Context, codes []string) (map[string]models.Quote, error) {
	now := time.Now().UTC()
	quotes := make(map[string]models.Quote, len(codes))
	for _, code := range codes {
		quotes[code] = models.Quote{
			Code:      code,
			Name:      "Mock " + code,
			Price:     MockPrice(code),
			Source:    p.Name(),
			Timestamp: now,
		}
	}
	return quotes, nil
}

// MockPrice is the simulated price for a code
func MockPrice(code string) decimal.Decimal {
	return decimal.NewFromInt(10).Add(decimal.NewFromFloat(0.5).Mul(decimal.NewFromInt(int64(len(code)))))
}
