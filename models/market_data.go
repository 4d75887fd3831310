package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the current price of one instrument.
type Quote struct {
	Code      string          `json:"code"`
	Name      string          `json:"name,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
}

// StockName is the result of a single-code lookup used to prefill a buy form.
// Price is nil when no quote could be resolved.
type StockName struct {
	Code  string           `json:"code"`
	Name  string           `json:"name"`
	Price *decimal.Decimal `json:"price"`
}
