package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/fjod/go_cart/storefront/internal/store"
	"github.com/go-chi/chi/v5"
)

type CartHandler struct {
	catalog  Catalog
	currency string
}

func NewCartHandler(catalog Catalog, currency string) *CartHandler {
	return &CartHandler{catalog: catalog, currency: currency}
}

func (h *CartHandler) respondCart(w http.ResponseWriter, st *store.Store) {
	cart, version := st.Snapshot()
	respondJSON(w, http.StatusOK, convertCart(cart, version, h.currency))
}

// GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	st, ok := sessionStore(w, r)
	if !ok {
		return
	}
	h.respondCart(w, st)
}

// POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	st, ok := sessionStore(w, r)
	if !ok {
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	req.ItemID = strings.TrimSpace(req.ItemID)
	if req.ItemID == "" {
		respondError(w, http.StatusBadRequest, "invalid_item_id", "itemId is required")
		return
	}

	// the cart only accepts items the catalog knows, at the catalog's price
	item, err := h.catalog.Get(r.Context(), req.ItemID)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	st.AddToCart(r.Context(), item)
	h.respondCart(w, st)
}

// PUT /api/v1/cart/items/{itemID}
func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	st, ok := sessionStore(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity == nil {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity is required")
		return
	}

	st.SetQuantity(r.Context(), chi.URLParam(r, "itemID"), *req.Quantity)
	h.respondCart(w, st)
}

// DELETE /api/v1/cart/items/{itemID}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	st, ok := sessionStore(w, r)
	if !ok {
		return
	}
	st.RemoveFromCart(r.Context(), chi.URLParam(r, "itemID"))
	h.respondCart(w, st)
}

// DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	st, ok := sessionStore(w, r)
	if !ok {
		return
	}
	st.ClearCart(r.Context())
	h.respondCart(w, st)
}
