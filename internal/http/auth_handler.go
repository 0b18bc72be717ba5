package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

type AuthHandler struct{}

func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

// POST /api/v1/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	st, ok := sessionStore(w, r)
	if !ok {
		return
	}

	var req LoginRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || req.Password == "" {
		respondError(w, http.StatusBadRequest, "invalid_credentials", "email and password are required")
		return
	}

	session, err := st.Login(r.Context(), domain.Credentials{
		Email:    req.Email,
		Password: req.Password,
		Role:     domain.ParseRole(req.Role),
	})
	if err != nil {
		handleDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, session)
}

// POST /api/v1/logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	st, ok := sessionStore(w, r)
	if !ok {
		return
	}
	st.Logout(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/session
func (h *AuthHandler) Session(w http.ResponseWriter, r *http.Request) {
	st, ok := sessionStore(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, st.Session())
}
