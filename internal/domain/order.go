package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Order struct {
	ID        string          `json:"id"`
	Lines     []CartLine      `json:"lines"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"created_at"`
}

// OrderRequest is the immutable cart snapshot submitted at checkout.
type OrderRequest struct {
	UserID         string
	Lines          []CartLine
	Total          decimal.Decimal
	IdempotencyKey string
}
