package http

import (
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

// Amounts leave the API as fixed two-decimal strings tagged with the configured currency.
func formatMoney(d decimal.Decimal) string {
	return d.StringFixed(2)
}

type ItemDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Price       string `json:"price"`
	Currency    string `json:"currency"`
	Image       string `json:"image,omitempty"`
	Description string `json:"description,omitempty"`
}

type CartLineDTO struct {
	Item     ItemDTO `json:"item"`
	Quantity int     `json:"quantity"`
	Subtotal string  `json:"subtotal"`
}

type CartResponseDTO struct {
	Lines    []CartLineDTO `json:"lines"`
	Total    string        `json:"total"`
	Units    int           `json:"units"`
	Version  uint64        `json:"version"`
	Currency string        `json:"currency"`
}

type OrderResponseDTO struct {
	ID        string        `json:"id"`
	Lines     []CartLineDTO `json:"lines"`
	Total     string        `json:"total"`
	Currency  string        `json:"currency"`
	CreatedAt string        `json:"created_at,omitempty"`
}

type LoginRequestDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type AddItemRequestDTO struct {
	ItemID string `json:"itemId"`
}

type UpdateQuantityRequestDTO struct {
	Quantity *int `json:"quantity"`
}

type CheckoutResponseDTO struct {
	OrderID string `json:"orderId"`
}

func convertItem(it domain.Item, currency string) ItemDTO {
	return ItemDTO{
		ID:          it.ID,
		Name:        it.Name,
		Price:       formatMoney(it.Price),
		Currency:    currency,
		Image:       it.Image,
		Description: it.Description,
	}
}

func convertLines(lines []domain.CartLine, currency string) []CartLineDTO {
	dtos := make([]CartLineDTO, 0, len(lines))
	for _, l := range lines {
		dtos = append(dtos, CartLineDTO{
			Item:     convertItem(l.Item, currency),
			Quantity: l.Quantity,
			Subtotal: formatMoney(l.Subtotal()),
		})
	}
	return dtos
}

func convertCart(c domain.Cart, version uint64, currency string) CartResponseDTO {
	return CartResponseDTO{
		Lines:    convertLines(c.Lines, currency),
		Total:    formatMoney(c.Total()),
		Units:    c.Units(),
		Version:  version,
		Currency: currency,
	}
}

func convertOrder(o domain.Order, currency string) OrderResponseDTO {
	dto := OrderResponseDTO{
		ID:       o.ID,
		Lines:    convertLines(o.Lines, currency),
		Total:    formatMoney(o.Total),
		Currency: currency,
	}
	if !o.CreatedAt.IsZero() {
		dto.CreatedAt = o.CreatedAt.UTC().Format(time.RFC3339)
	}
	return dto
}

func convertOrders(orders []domain.Order, currency string) []OrderResponseDTO {
	dtos := make([]OrderResponseDTO, 0, len(orders))
	for _, o := range orders {
		dtos = append(dtos, convertOrder(o, currency))
	}
	return dtos
}
