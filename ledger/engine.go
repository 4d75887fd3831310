// Package ledger applies buy, close, reduce and delete operations to the position store.
package ledger

import (
	"context"
	"sync"
	"time"

	"investment-tracker/models"
	"investment-tracker/observability"
	"investment-tracker/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ReduceResult holds both halves of a partial sale
type ReduceResult struct {
	Remaining models.Position `json:"remaining"`
	Closed    models.Position `json:"closed"`
}

// Engine serializes ledger mutations. Each mutation runs in one store transaction.
type Engine struct {
	mu               sync.Mutex
	store            repository.PositionStore
	defaultPortfolio string
	metrics          *observability.Metrics
}

// NewEngine creates an engine over store. Buys without a portfolio go to defaultPortfolio.
func NewEngine(store repository.PositionStore, defaultPortfolio string) *Engine {
	if defaultPortfolio == "" {
		defaultPortfolio = models.DefaultPortfolio
	}
	return &Engine{
		store:            store,
		defaultPortfolio: defaultPortfolio,
		metrics:          observability.GetMetrics(),
	}
}

// Buy records a new OPEN lot
func (e *Engine) Buy(ctx context.Context, req models.CreatePositionRequest) (pos *models.Position, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	timer := e.metrics.NewTimer()
	defer func() { timer.ObserveLedger("buy", err) }()

	req.Normalize(e.defaultPortfolio)
	if err := req.Validate(); err != nil {
		return nil, err
	}

	pos, err = e.store.Create(ctx, req)
	if err != nil {
		observability.WithCode(req.Code).Error("buy failed", "error", err)
		return nil, err
	}

	observability.WithPosition(pos.ID.String()).Info("position bought",
		"code", pos.Code,
		"quantity", pos.Quantity,
		"buy_price", pos.BuyPrice.String(),
		"portfolio", pos.Portfolio)
	return pos, nil
}

// Close sells the whole lot at sellPrice on sellDate
func (e *Engine) Close(ctx context.Context, id uuid.UUID, sellPrice decimal.Decimal, sellDate models.Date) (pos *models.Position, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	timer := e.metrics.NewTimer()
	defer func() { timer.ObserveLedger("close", err) }()

	if err := validateSale(sellPrice, sellDate); err != nil {
		return nil, err
	}

	pos, err = e.store.Update(ctx, id, func(p *models.Position) error {
		if err := checkSellable(p, sellDate); err != nil {
			return err
		}
		p.MarkClosed(sellPrice, sellDate)
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.WithPosition(id.String()).Info("position closed",
		"code", pos.Code,
		"quantity", pos.Quantity,
		"sell_price", sellPrice.String(),
		"profit_loss", pos.ProfitLoss.String())
	return pos, nil
}

// Reduce sells quantity units of an OPEN lot. The lot keeps its id with the
// remaining quantity; the sold units become a new CLOSED record whose parent is the lot.
func (e *Engine) Reduce(ctx context.Context, id uuid.UUID, quantity int64, sellPrice decimal.Decimal, sellDate models.Date) (res *ReduceResult, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	timer := e.metrics.NewTimer()
	defer func() { timer.ObserveLedger("reduce", err) }()

	if quantity <= 0 {
		return nil, models.NewValidationError("reduce quantity must be positive, got %d", quantity)
	}
	if err := validateSale(sellPrice, sellDate); err != nil {
		return nil, err
	}

	var result ReduceResult
	err = e.store.Atomic(ctx, func(tx repository.PositionStore) error {
		var slice models.Position
		remaining, err := tx.Update(ctx, id, func(p *models.Position) error {
			if err := checkSellable(p, sellDate); err != nil {
				return err
			}
			if quantity >= p.Quantity {
				return models.NewValidationError(
					"reduce quantity %d must be less than held quantity %d, close the position instead",
					quantity, p.Quantity)
			}
			slice = *p
			p.Quantity -= quantity
			return nil
		})
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		parent := id
		slice.ID = uuid.New()
		slice.ParentID = &parent
		slice.Quantity = quantity
		slice.CreatedAt = now
		slice.MarkClosed(sellPrice, sellDate)

		if err := tx.Insert(ctx, &slice); err != nil {
			return err
		}

		result = ReduceResult{Remaining: *remaining, Closed: slice}
		return nil
	})
	if err != nil {
		return nil, err
	}

	observability.WithPosition(id.String()).Info("position reduced",
		"code", result.Remaining.Code,
		"sold", quantity,
		"remaining", result.Remaining.Quantity,
		"closed_id", result.Closed.ID.String(),
		"profit_loss", result.Closed.ProfitLoss.String())
	return &result, nil
}

// Delete removes a record permanently
func (e *Engine) Delete(ctx context.Context, id uuid.UUID) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	timer := e.metrics.NewTimer()
	defer func() { timer.ObserveLedger("delete", err) }()

	if err := e.store.Delete(ctx, id); err != nil {
		return err
	}

	observability.WithPosition(id.String()).Info("position deleted")
	return nil
}

// Reset removes every record
func (e *Engine) Reset(ctx context.Context) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	timer := e.metrics.NewTimer()
	defer func() { timer.ObserveLedger("reset", err) }()

	if err := e.store.Reset(ctx); err != nil {
		return err
	}

	observability.Warn("ledger reset")
	return nil
}

func validateSale(sellPrice decimal.Decimal, sellDate models.Date) error {
	if !sellPrice.IsPositive() {
		return models.NewValidationError("sell price must be positive, got %s", sellPrice)
	}
	if sellDate.IsZero() {
		return models.NewValidationError("sell date is required")
	}
	return nil
}

func checkSellable(p *models.Position, sellDate models.Date) error {
	if !p.IsOpen() {
		return models.NewInvalidStateError(p.ID.String(), "position %s is %s", p.ID, p.Status)
	}
	if sellDate.Before(p.BuyDate) {
		return models.NewValidationError("sell date %s is before buy date %s", sellDate, p.BuyDate)
	}
	return nil
}
