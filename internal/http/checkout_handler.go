package http

import (
	"net/http"
)

type CheckoutHandler struct{}

func NewCheckoutHandler() *CheckoutHandler {
	return &CheckoutHandler{}
}

// POST /api/v1/checkout
func (h *CheckoutHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	st, ok := sessionStore(w, r)
	if !ok {
		return
	}

	orderID, err := st.Checkout(r.Context())
	if err != nil {
		handleDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, CheckoutResponseDTO{OrderID: orderID})
}
