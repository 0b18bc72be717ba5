package clients

import (
	"context"
	"net/http"

	"github.com/fjod/go_cart/storefront/internal/domain"
)

type AuthClient struct{ c *Client }

func NewAuthClient(c *Client) *AuthClient { return &AuthClient{c: c} }

type loginRequestDTO struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type identityDTO struct {
	Success     *bool  `json:"success,omitempty"`
	Message     string `json:"message,omitempty"`
	Token       string `json:"token"`
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

type verifyRequestDTO struct {
	Token string `json:"token"`
}

func (ac *AuthClient) Login(ctx context.Context, creds domain.Credentials) (domain.Identity, error) {
	var resp identityDTO
	err := ac.c.doJSON(ctx, http.MethodPost, "/login", loginRequestDTO{
		Email:    creds.Email,
		Password: creds.Password,
		Role:     string(creds.Role),
	}, &resp, nil, domain.ErrAuth)
	if err != nil {
		return domain.Identity{}, err
	}
	if rejected(resp) || resp.Token == "" {
		return domain.Identity{}, ac.rejection(resp.Message, "login failed")
	}

	// a reply without a role is a customer; the requested role is not trusted
	return domain.Identity{
		Token:       resp.Token,
		UserID:      resp.UserID,
		DisplayName: resp.DisplayName,
		Role:        domain.ParseRole(resp.Role),
	}, nil
}

// Verify checks a persisted token and returns the identity it belongs to.
func (ac *AuthClient) Verify(ctx context.Context, token string) (domain.Identity, error) {
	var resp identityDTO
	err := ac.c.doJSON(ctx, http.MethodPost, "/auth/verify", verifyRequestDTO{Token: token}, &resp, bearer(token), domain.ErrAuth)
	if err != nil {
		return domain.Identity{}, err
	}
	if rejected(resp) || resp.UserID == "" {
		return domain.Identity{}, ac.rejection(resp.Message, "token rejected")
	}
	return domain.Identity{
		Token:       token,
		UserID:      resp.UserID,
		DisplayName: resp.DisplayName,
		Role:        domain.Role(resp.Role),
	}, nil
}

func rejected(resp identityDTO) bool {
	return resp.Success != nil && !*resp.Success
}

func (ac *AuthClient) rejection(msg, fallback string) error {
	if msg == "" {
		msg = fallback
	}
	return &domain.ServiceError{Kind: domain.ErrAuth, Service: ac.c.Name, Status: http.StatusOK, Message: msg}
}
