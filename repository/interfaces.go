package repository

import (
	"context"
	"time"

	"investment-tracker/models"

	"github.com/google/uuid"
)

// PositionStore is the durable, keyed collection of position records.
// Every method is transactional on its own; Atomic groups several calls.
type PositionStore interface {
	// Writes
	Create(ctx context.Context, req models.CreatePositionRequest) (*models.Position, error)
	Insert(ctx context.Context, pos *models.Position) error
	Update(ctx context.Context, id uuid.UUID, mutate func(*models.Position) error) (*models.Position, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Reset(ctx context.Context) error
	Atomic(ctx context.Context, fn func(PositionStore) error) error

	// Reads
	Get(ctx context.Context, id uuid.UUID) (*models.Position, error)
	GetAll(ctx context.Context) ([]models.Position, error)
	GetOpen(ctx context.Context) ([]models.Position, error)
	GetByCode(ctx context.Context, code string) ([]models.Position, error)
	GetByPortfolio(ctx context.Context, portfolio string, openOnly bool) ([]models.Position, error)
	DistinctPortfolios(ctx context.Context) ([]string, error)
	DistinctCodes(ctx context.Context) ([]string, error)
	Count(ctx context.Context) (int, error)
}

// QuoteCache stores recently resolved quotes with a TTL. A miss is (nil, nil).
type QuoteCache interface {
	GetQuote(ctx context.Context, code string) (*models.Quote, error)
	SetQuote(ctx context.Context, quote models.Quote, ttl time.Duration) error
	InvalidateQuote(ctx context.Context, code string) error
}

// RepositoryInterface is the full surface of the SQL repository
type RepositoryInterface interface {
	PositionStore
	QuoteCache

	// Health and lifecycle
	Close()
	Health(ctx context.Context) error
	CleanExpiredQuotes(ctx context.Context) (int64, error)
}

// Compile-time interface verification
var (
	_ RepositoryInterface = (*Repository)(nil)
	_ QuoteCache          = (*RedisQuoteCache)(nil)
)
