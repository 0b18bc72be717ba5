package http

import (
	"context"
	"net/http"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

// Catalog is the read side of the item catalog.
type Catalog interface {
	List(ctx context.Context) ([]domain.Item, error)
	Get(ctx context.Context, id string) (domain.Item, error)
}

type CatalogHandler struct {
	catalog  Catalog
	currency string
}

func NewCatalogHandler(catalog Catalog, currency string) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, currency: currency}
}

// GET /api/v1/items
func (h *CatalogHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.catalog.List(r.Context())
	if err != nil {
		handleDomainError(w, err)
		return
	}

	dtos := make([]ItemDTO, 0, len(items))
	for _, it := range items {
		dtos = append(dtos, convertItem(it, h.currency))
	}
	respondJSON(w, http.StatusOK, dtos)
}
