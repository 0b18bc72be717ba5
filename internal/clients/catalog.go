package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

type CatalogClient struct{ c *Client }

func NewCatalogClient(c *Client) *CatalogClient { return &CatalogClient{c: c} }

// ListItems fetches the purchasable items. The backend answers either with a bare
// array or with the array wrapped in {"items": [...]}.
func (cc *CatalogClient) ListItems(ctx context.Context) ([]domain.Item, error) {
	var raw json.RawMessage
	if err := cc.c.doJSON(ctx, http.MethodGet, "/items", nil, &raw, nil, nil); err != nil {
		return nil, err
	}

	var items []domain.Item
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
		var wrapped struct {
			Items []domain.Item `json:"items"`
		}
		if err := json.Unmarshal(trimmed, &wrapped); err != nil {
			return nil, &domain.ServiceError{Kind: domain.ErrNetwork, Service: cc.c.Name, Message: "invalid catalog: " + err.Error()}
		}
		items = wrapped.Items
	} else if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, &domain.ServiceError{Kind: domain.ErrNetwork, Service: cc.c.Name, Message: "invalid catalog: " + err.Error()}
	}

	out := items[:0]
	for _, it := range items {
		if it.ID == "" || it.Price.IsNegative() {
			cc.c.log.WithField("item_id", it.ID).Warn("skipping malformed catalog item")
			continue
		}
		out = append(out, it)
	}
	return out, nil
}
