package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

type OrderClient struct{ c *Client }

func NewOrderClient(c *Client) *OrderClient { return &OrderClient{c: c} }

type orderLineDTO struct {
	ItemID   string      `json:"itemId"`
	Name     string      `json:"name"`
	Image    string      `json:"image,omitempty"`
	Price    json.Number `json:"price"`
	Quantity int         `json:"quantity"`
}

type placeOrderRequestDTO struct {
	UserID string         `json:"userId"`
	Lines  []orderLineDTO `json:"lines"`
	Total  json.Number    `json:"total"`
}

type placeOrderResponseDTO struct {
	Status  *bool  `json:"status,omitempty"`
	OrderID string `json:"orderId"`
	Message string `json:"message,omitempty"`
}

type orderDTO struct {
	ID        string          `json:"id"`
	Lines     []orderLineDTO  `json:"lines"`
	Total     decimal.Decimal `json:"total"`
	CreatedAt time.Time       `json:"createdAt"`
}

func toLineDTOs(lines []domain.CartLine) []orderLineDTO {
	out := make([]orderLineDTO, len(lines))
	for i, l := range lines {
		out[i] = orderLineDTO{
			ItemID:   l.Item.ID,
			Name:     l.Item.Name,
			Image:    l.Item.Image,
			Price:    json.Number(l.Item.Price.String()),
			Quantity: l.Quantity,
		}
	}
	return out
}

func (d orderDTO) toDomain() (domain.Order, error) {
	lines := make([]domain.CartLine, len(d.Lines))
	for i, l := range d.Lines {
		price, err := decimal.NewFromString(l.Price.String())
		if err != nil {
			return domain.Order{}, fmt.Errorf("order %s line %s: invalid price %q: %w", d.ID, l.ItemID, l.Price, err)
		}
		lines[i] = domain.CartLine{
			Item:     domain.Item{ID: l.ItemID, Name: l.Name, Image: l.Image, Price: price},
			Quantity: l.Quantity,
		}
	}
	return domain.Order{ID: d.ID, Lines: lines, Total: d.Total, CreatedAt: d.CreatedAt}, nil
}

// PlaceOrder submits a cart snapshot and returns the id the order service assigned.
func (oc *OrderClient) PlaceOrder(ctx context.Context, token string, req domain.OrderRequest) (string, error) {
	headers := bearer(token)
	if req.IdempotencyKey != "" {
		headers.Set(HeaderIdempotencyKey, req.IdempotencyKey)
	}

	var resp placeOrderResponseDTO
	err := oc.c.doJSON(ctx, http.MethodPost, "/orders", placeOrderRequestDTO{
		UserID: req.UserID,
		Lines:  toLineDTOs(req.Lines),
		Total:  json.Number(req.Total.String()),
	}, &resp, headers, domain.ErrCheckout)
	if err != nil {
		return "", err
	}

	if (resp.Status != nil && !*resp.Status) || resp.OrderID == "" {
		msg := resp.Message
		if msg == "" {
			msg = "failed to place order"
		}
		return "", &domain.ServiceError{Kind: domain.ErrCheckout, Service: oc.c.Name, Status: http.StatusOK, Message: msg}
	}
	return resp.OrderID, nil
}
