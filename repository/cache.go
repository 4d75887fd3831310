package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"investment-tracker/models"

	"github.com/shopspring/decimal"
)

const quoteCacheTable = "quote_cache"

type cachedQuoteRow struct {
	Code      string          `db:"code"`
	Name      string          `db:"name"`
	Price     decimal.Decimal `db:"price"`
	Source    string          `db:"source"`
	QuotedAt  int64           `db:"quoted_at"`
	ExpiresAt int64           `db:"expires_at"`
}

// GetQuote retrieves an unexpired cached quote for a code
func (r *Repository) GetQuote(ctx context.Context, code string) (*models.Quote, error) {
	var row cachedQuoteRow

	// expiry is compared in unix milliseconds so both backends agree regardless of zone
	start := time.Now()
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`
		SELECT code, name, price, source, quoted_at, expires_at FROM quote_cache
		WHERE code = ? AND expires_at > ?
	`), models.NormalizeCode(code), time.Now().UnixMilli())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err := r.observe("select", quoteCacheTable, start, err); err != nil {
		return nil, err
	}

	return &models.Quote{
		Code:      row.Code,
		Name:      row.Name,
		Price:     row.Price,
		Source:    row.Source,
		Timestamp: time.UnixMilli(row.QuotedAt).UTC(),
	}, nil
}

// SetQuote stores a quote in the cache with a TTL
func (r *Repository) SetQuote(ctx context.Context, quote models.Quote, ttl time.Duration) error {
	quotedAt := quote.Timestamp
	if quotedAt.IsZero() {
		quotedAt = time.Now()
	}

	start := time.Now()
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO quote_cache (code, name, price, source, quoted_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (code)
		DO UPDATE SET name = excluded.name, price = excluded.price, source = excluded.source,
			quoted_at = excluded.quoted_at, expires_at = excluded.expires_at
	`), models.NormalizeCode(quote.Code), quote.Name, quote.Price, quote.Source,
		quotedAt.UnixMilli(), time.Now().Add(ttl).UnixMilli())

	return r.observe("upsert", quoteCacheTable, start, err)
}

// InvalidateQuote removes the cached quote for a code
func (r *Repository) InvalidateQuote(ctx context.Context, code string) error {
	start := time.Now()
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM quote_cache WHERE code = ?`), models.NormalizeCode(code))
	return r.observe("delete", quoteCacheTable, start, err)
}

// CleanExpiredQuotes removes all expired cache entries
func (r *Repository) CleanExpiredQuotes(ctx context.Context) (int64, error) {
	start := time.Now()
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM quote_cache WHERE expires_at <= ?`), time.Now().UnixMilli())
	if err := r.observe("delete", quoteCacheTable, start, err); err != nil {
		return 0, err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, models.NewStorageError("failed to clean expired quotes", err)
	}
	return n, nil
}
