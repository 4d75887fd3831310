package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"investment-tracker/models"

	"github.com/google/uuid"
)

const positionColumns = `id, code, name, buy_price, buy_date, quantity, status, portfolio,
	sell_price, sell_date, profit_loss, profit_loss_rate, holding_days, parent_id,
	created_at, updated_at`

const positionsTable = "positions"

// Create validates a buy request and stores it as a new OPEN lot
func (r *Repository) Create(ctx context.Context, req models.CreatePositionRequest) (*models.Position, error) {
	req.Normalize(models.DefaultPortfolio)
	if err := req.Validate(); err != nil {
		return nil, err
	}

	pos := models.NewPosition(req)
	if err := r.Insert(ctx, pos); err != nil {
		return nil, err
	}
	return pos, nil
}

// Insert stores a fully formed record
func (r *Repository) Insert(ctx context.Context, pos *models.Position) error {
	if err := pos.Validate(); err != nil {
		return err
	}

	start := time.Now()
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO positions (`+positionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), pos.ID, pos.Code, pos.Name, pos.BuyPrice, pos.BuyDate, pos.Quantity, pos.Status, pos.Portfolio,
		pos.SellPrice, pos.SellDate, pos.ProfitLoss, pos.ProfitLossRate, pos.HoldingDays, pos.ParentID,
		pos.CreatedAt, pos.UpdatedAt)

	return r.observe("insert", positionsTable, start, err)
}

// Get returns a single position by ID
func (r *Repository) Get(ctx context.Context, id uuid.UUID) (*models.Position, error) {
	var p models.Position

	start := time.Now()
	err := r.db.GetContext(ctx, &p, r.db.Rebind(`
		SELECT `+positionColumns+` FROM positions WHERE id = ?
	`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, models.NewNotFoundError(id.String())
	}
	if err := r.observe("select", positionsTable, start, err); err != nil {
		return nil, err
	}

	return &p, nil
}

// GetAll returns every record regardless of status
func (r *Repository) GetAll(ctx context.Context) ([]models.Position, error) {
	return r.selectPositions(ctx, `
		SELECT `+positionColumns+` FROM positions
		ORDER BY buy_date DESC, created_at, id
	`)
}

// GetOpen returns every OPEN lot
func (r *Repository) GetOpen(ctx context.Context) ([]models.Position, error) {
	return r.selectPositions(ctx, `
		SELECT `+positionColumns+` FROM positions
		WHERE status = ?
		ORDER BY buy_date DESC, created_at, id
	`, models.PositionStatusOpen)
}

// GetByCode returns every record of one instrument, open and closed
func (r *Repository) GetByCode(ctx context.Context, code string) ([]models.Position, error) {
	return r.selectPositions(ctx, `
		SELECT `+positionColumns+` FROM positions
		WHERE code = ?
		ORDER BY buy_date DESC, created_at, id
	`, models.NormalizeCode(code))
}

// GetByPortfolio returns the records of one portfolio ordered by code, newest buy first
func (r *Repository) GetByPortfolio(ctx context.Context, portfolio string, openOnly bool) ([]models.Position, error) {
	if openOnly {
		return r.selectPositions(ctx, `
			SELECT `+positionColumns+` FROM positions
			WHERE portfolio = ? AND status = ?
			ORDER BY code, buy_date DESC, created_at
		`, portfolio, models.PositionStatusOpen)
	}
	return r.selectPositions(ctx, `
		SELECT `+positionColumns+` FROM positions
		WHERE portfolio = ?
		ORDER BY code, buy_date DESC, created_at
	`, portfolio)
}

func (r *Repository) selectPositions(ctx context.Context, query string, args ...any) ([]models.Position, error) {
	positions := []models.Position{}

	start := time.Now()
	err := r.db.SelectContext(ctx, &positions, r.db.Rebind(query), args...)
	if err := r.observe("select", positionsTable, start, err); err != nil {
		return nil, err
	}

	return positions, nil
}

// Update applies mutate to the stored record and writes it back in one transaction.
// Code, buy price, buy date and portfolio are immutable.
func (r *Repository) Update(ctx context.Context, id uuid.UUID, mutate func(*models.Position) error) (*models.Position, error) {
	var updated *models.Position

	err := r.inTx(ctx, func(tx *Repository) error {
		pos, err := tx.Get(ctx, id)
		if err != nil {
			return err
		}

		before := *pos
		if err := mutate(pos); err != nil {
			return err
		}
		if pos.ID != before.ID || pos.Code != before.Code || !pos.BuyPrice.Equal(before.BuyPrice) ||
			pos.BuyDate != before.BuyDate || pos.Portfolio != before.Portfolio {
			return models.NewValidationError("code, buy price, buy date and portfolio of %s cannot change", id)
		}
		pos.UpdatedAt = time.Now().UTC()
		if err := pos.Validate(); err != nil {
			return err
		}

		start := time.Now()
		_, err = tx.db.ExecContext(ctx, tx.db.Rebind(`
			UPDATE positions SET
				name = ?, quantity = ?, status = ?,
				sell_price = ?, sell_date = ?, profit_loss = ?, profit_loss_rate = ?,
				holding_days = ?, parent_id = ?, updated_at = ?
			WHERE id = ?
		`), pos.Name, pos.Quantity, pos.Status,
			pos.SellPrice, pos.SellDate, pos.ProfitLoss, pos.ProfitLossRate,
			pos.HoldingDays, pos.ParentID, pos.UpdatedAt, pos.ID)
		if err := tx.observe("update", positionsTable, start, err); err != nil {
			return err
		}

		updated = pos
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// Delete removes a record
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM positions WHERE id = ?`), id)
	if err := r.observe("delete", positionsTable, start, err); err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return models.NewStorageError("failed to delete positions", err)
	}
	if n == 0 {
		return models.NewNotFoundError(id.String())
	}
	return nil
}

// Reset removes every record
func (r *Repository) Reset(ctx context.Context) error {
	start := time.Now()
	_, err := r.db.ExecContext(ctx, `DELETE FROM positions`)
	return r.observe("delete", positionsTable, start, err)
}

// Atomic runs fn against a store bound to one transaction; any error rolls everything back
func (r *Repository) Atomic(ctx context.Context, fn func(PositionStore) error) error {
	return r.inTx(ctx, func(tx *Repository) error {
		return fn(tx)
	})
}

// DistinctPortfolios returns the portfolios holding at least one OPEN lot
func (r *Repository) DistinctPortfolios(ctx context.Context) ([]string, error) {
	return r.selectStrings(ctx, `
		SELECT DISTINCT portfolio FROM positions
		WHERE status = ? AND portfolio <> ''
		ORDER BY portfolio
	`, models.PositionStatusOpen)
}

// DistinctCodes returns the codes with at least one OPEN lot
func (r *Repository) DistinctCodes(ctx context.Context) ([]string, error) {
	return r.selectStrings(ctx, `
		SELECT DISTINCT code FROM positions
		WHERE status = ?
		ORDER BY code
	`, models.PositionStatusOpen)
}

func (r *Repository) selectStrings(ctx context.Context, query string, args ...any) ([]string, error) {
	values := []string{}

	start := time.Now()
	err := r.db.SelectContext(ctx, &values, r.db.Rebind(query), args...)
	if err := r.observe("select", positionsTable, start, err); err != nil {
		return nil, err
	}

	return values, nil
}

// Count returns the number of records of any status
func (r *Repository) Count(ctx context.Context) (int, error) {
	var n int

	start := time.Now()
	err := r.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM positions`)
	if err := r.observe("count", positionsTable, start, err); err != nil {
		return 0, err
	}

	return n, nil
}
