package domain

type Role string

const (
	RoleCustomer Role = "customer"
	RoleAdmin    Role = "admin"
)

// ParseRole maps the login form's user type onto a Role, defaulting to customer.
func ParseRole(s string) Role {
	if Role(s) == RoleAdmin {
		return RoleAdmin
	}
	return RoleCustomer
}

type Session struct {
	Authenticated bool   `json:"authenticated"`
	DisplayName   string `json:"display_name"`
	UserID        string `json:"user_id,omitempty"`
	Role          Role   `json:"role,omitempty"`
}

func (s Session) IsAdmin() bool {
	return s.Authenticated && s.Role == RoleAdmin
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     Role   `json:"role"`
}

// Identity is what the auth service hands back for a valid login or token.
type Identity struct {
	Token       string
	UserID      string
	DisplayName string
	Role        Role
}
