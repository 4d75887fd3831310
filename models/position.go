package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DefaultPortfolio is used when a buy names no portfolio.
const DefaultPortfolio = "default"

// Position is a single buy lot. A CLOSED record keeps the quantity it was sold with.
type Position struct {
	ID        uuid.UUID       `json:"id" db:"id"`
	Code      string          `json:"code" db:"code"`
	Name      string          `json:"name" db:"name"`
	BuyPrice  decimal.Decimal `json:"buy_price" db:"buy_price"`
	BuyDate   Date            `json:"buy_date" db:"buy_date"`
	Quantity  int64           `json:"quantity" db:"quantity"`
	Status    PositionStatus  `json:"status" db:"status"`
	Portfolio string          `json:"portfolio" db:"portfolio"`

	SellPrice      *decimal.Decimal `json:"sell_price,omitempty" db:"sell_price"`
	SellDate       *Date            `json:"sell_date,omitempty" db:"sell_date"`
	ProfitLoss     *decimal.Decimal `json:"profit_loss,omitempty" db:"profit_loss"`
	ProfitLossRate *decimal.Decimal `json:"profit_loss_rate,omitempty" db:"profit_loss_rate"`
	HoldingDays    *int64           `json:"holding_days,omitempty" db:"holding_days"`
	ParentID       *uuid.UUID       `json:"parent_id,omitempty" db:"parent_id"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "OPEN"
	PositionStatusClosed PositionStatus = "CLOSED"
)

// CreatePositionRequest carries the fields of a buy.
type CreatePositionRequest struct {
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	BuyPrice  decimal.Decimal `json:"buy_price"`
	BuyDate   Date            `json:"buy_date"`
	Quantity  int64           `json:"quantity"`
	Portfolio string          `json:"portfolio"`
}

// Normalize trims fields, lower-cases the code and fills name and portfolio defaults.
func (r *CreatePositionRequest) Normalize(defaultPortfolio string) {
	r.Code = NormalizeCode(r.Code)
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		r.Name = r.Code
	}
	r.Portfolio = strings.TrimSpace(r.Portfolio)
	if r.Portfolio == "" {
		r.Portfolio = defaultPortfolio
	}
	if r.Portfolio == "" {
		r.Portfolio = DefaultPortfolio
	}
}

// Validate checks the request; it must be called after Normalize.
func (r *CreatePositionRequest) Validate() error {
	if r.Code == "" {
		return NewValidationError("code is required")
	}
	if !r.BuyPrice.IsPositive() {
		return NewValidationError("buy price must be positive, got %s", r.BuyPrice)
	}
	if r.Quantity <= 0 {
		return NewValidationError("quantity must be positive, got %d", r.Quantity)
	}
	if r.BuyDate.IsZero() {
		return NewValidationError("buy date is required")
	}
	return nil
}

// NewPosition builds an OPEN lot with a fresh id from a validated request.
func NewPosition(r CreatePositionRequest) *Position {
	now := time.Now().UTC()
	return &Position{
		ID:        uuid.New(),
		Code:      r.Code,
		Name:      r.Name,
		BuyPrice:  r.BuyPrice,
		BuyDate:   r.BuyDate,
		Quantity:  r.Quantity,
		Status:    PositionStatusOpen,
		Portfolio: r.Portfolio,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NormalizeCode canonicalizes an instrument code.
func NormalizeCode(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

func (p *Position) IsOpen() bool { return p.Status == PositionStatusOpen }

func (p *Position) IsClosed() bool { return p.Status == PositionStatusClosed }

// CostBasis is buy price times quantity.
func (p *Position) CostBasis() decimal.Decimal {
	return p.BuyPrice.Mul(decimal.NewFromInt(p.Quantity))
}

// ProfitLossAt is (price - buy price) * quantity.
func (p *Position) ProfitLossAt(price decimal.Decimal) decimal.Decimal {
	return price.Sub(p.BuyPrice).Mul(decimal.NewFromInt(p.Quantity))
}

// Validate checks record-level invariants before a write.
func (p *Position) Validate() error {
	if p.Code == "" {
		return NewValidationError("code is required")
	}
	if !p.BuyPrice.IsPositive() {
		return NewValidationError("buy price must be positive, got %s", p.BuyPrice)
	}
	if p.Quantity <= 0 {
		return NewValidationError("quantity must be positive, got %d", p.Quantity)
	}
	switch p.Status {
	case PositionStatusOpen:
	case PositionStatusClosed:
		if p.SellPrice == nil || p.SellDate == nil {
			return NewValidationError("closed position %s has no sell price or date", p.ID)
		}
	default:
		return NewValidationError("unknown status %q", p.Status)
	}
	return nil
}

// MarkClosed records a sale of the whole record at sellPrice on sellDate.
func (p *Position) MarkClosed(sellPrice decimal.Decimal, sellDate Date) {
	pl := p.ProfitLossAt(sellPrice)
	rate := Rate(pl, p.CostBasis())
	days := p.BuyDate.DaysUntil(sellDate)

	p.Status = PositionStatusClosed
	p.SellPrice = &sellPrice
	p.SellDate = &sellDate
	p.ProfitLoss = &pl
	p.ProfitLossRate = &rate
	p.HoldingDays = &days
	p.UpdatedAt = time.Now().UTC()
}

// RealizedProfitLoss recomputes the realized P&L from the record's own fields.
func (p *Position) RealizedProfitLoss() (decimal.Decimal, bool) {
	if !p.IsClosed() || p.SellPrice == nil {
		return decimal.Zero, false
	}
	return p.ProfitLossAt(*p.SellPrice), true
}

// Rate divides profit/loss by cost, returning zero for a zero cost.
func Rate(pl, cost decimal.Decimal) decimal.Decimal {
	if cost.IsZero() {
		return decimal.Zero
	}
	return pl.Div(cost)
}
