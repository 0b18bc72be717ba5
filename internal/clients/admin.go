package clients

import (
	"context"
	"net/http"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

type AdminClient struct{ c *Client }

func NewAdminClient(c *Client) *AdminClient { return &AdminClient{c: c} }

// ListOrders returns every order known to the backend; the token must belong to an admin.
func (ac *AdminClient) ListOrders(ctx context.Context, token string) ([]domain.Order, error) {
	var resp struct {
		Orders []orderDTO `json:"orders"`
	}
	if err := ac.c.doJSON(ctx, http.MethodGet, "/admin/orders", nil, &resp, bearer(token), nil); err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(resp.Orders))
	for _, o := range resp.Orders {
		order, err := o.toDomain()
		if err != nil {
			return nil, &domain.ServiceError{Kind: domain.ErrNetwork, Service: ac.c.Name, Message: err.Error()}
		}
		orders = append(orders, order)
	}
	return orders, nil
}
