package http

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/fjod/go_cart/storefront/internal/clients"
	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"
)

const qrSize = 256

type ReceiptFetcher interface {
	Receipt(ctx context.Context, token, orderID string) (clients.Receipt, error)
}

type AdminLister interface {
	ListOrders(ctx context.Context, token string) ([]domain.Order, error)
}

type OrdersHandler struct {
	receipts ReceiptFetcher
	admin    AdminLister
	currency string
}

func NewOrdersHandler(receipts ReceiptFetcher, admin AdminLister, currency string) *OrdersHandler {
	return &OrdersHandler{
		receipts: receipts,
		admin:    admin,
		currency: currency,
	}
}

// GET /api/v1/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	st, ok := sessionStore(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, convertOrders(st.Orders(), h.currency))
}

// GET /api/v1/orders/{orderID}/qr
func (h *OrdersHandler) OrderQR(w http.ResponseWriter, r *http.Request) {
	st, ok := sessionStore(w, r)
	if !ok {
		return
	}

	order, err := st.Order(chi.URLParam(r, "orderID"))
	if err != nil {
		handleDomainError(w, err)
		return
	}

	png, err := qrcode.Encode(order.ID, qrcode.Medium, qrSize)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "internal_error", "failed to render QR code")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Header().Set("Cache-Control", "private, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// GET /api/v1/orders/{orderID}/receipt
func (h *OrdersHandler) Receipt(w http.ResponseWriter, r *http.Request) {
	st, ok := sessionStore(w, r)
	if !ok {
		return
	}
	if !st.Session().Authenticated {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "login required")
		return
	}

	orderID := chi.URLParam(r, "orderID")
	receipt, err := h.receipts.Receipt(r.Context(), st.Token(), orderID)
	if err != nil {
		handleDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", receipt.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "invoice-"+orderID+".pdf"))
	w.Header().Set("Content-Length", strconv.Itoa(len(receipt.Body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(receipt.Body)
}

// GET /api/v1/admin/orders
func (h *OrdersHandler) AdminOrders(w http.ResponseWriter, r *http.Request) {
	st, ok := sessionStore(w, r)
	if !ok {
		return
	}
	session := st.Session()
	if !session.Authenticated {
		respondError(w, http.StatusUnauthorized, "unauthenticated", "login required")
		return
	}
	if !session.IsAdmin() {
		respondError(w, http.StatusForbidden, "permission_denied", "admin role required")
		return
	}

	orders, err := h.admin.ListOrders(r.Context(), st.Token())
	if err != nil {
		handleDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, convertOrders(orders, h.currency))
}
