package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/sirupsen/logrus"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logrus.WithError(err).Error("failed to encode response")
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// handleDomainError converts the error kinds to HTTP status codes.
func handleDomainError(w http.ResponseWriter, err error) {
	var httpStatus int
	var code string

	switch {
	case errors.Is(err, domain.ErrAuth):
		httpStatus = http.StatusUnauthorized
		code = "unauthenticated"
	case errors.Is(err, domain.ErrEmptyCart):
		httpStatus = http.StatusConflict
		code = "empty_cart"
	case errors.Is(err, domain.ErrCheckout):
		httpStatus = http.StatusUnprocessableEntity
		code = "checkout_rejected"
	case errors.Is(err, domain.ErrNotFound):
		httpStatus = http.StatusNotFound
		code = "not_found"
	case errors.Is(err, domain.ErrNetwork):
		httpStatus = http.StatusServiceUnavailable
		code = "service_unavailable"
	default:
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	respondJSON(w, httpStatus, ErrorResponse{
		Error:   domain.Reason(err),
		Code:    code,
		Details: detailsOf(err),
	})
}

func detailsOf(err error) string {
	var se *domain.ServiceError
	if errors.As(err, &se) {
		return se.Service
	}
	return ""
}
