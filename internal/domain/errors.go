package domain

import (
	"errors"
	"fmt"
)

var (
	ErrAuth      = errors.New("authentication failed")
	ErrNetwork   = errors.New("service unavailable")
	ErrEmptyCart = errors.New("cart is empty, nothing to checkout")
	ErrCheckout  = errors.New("checkout rejected")
	ErrNotFound  = errors.New("not found")
)

// ServiceError is a failure reported by (or while reaching) an upstream service.
// It unwraps to one of the sentinel kinds above.
type ServiceError struct {
	Kind    error
	Service string
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	switch {
	case e.Message != "" && e.Status != 0:
		return fmt.Sprintf("%s: %v (status %d): %s", e.Service, e.Kind, e.Status, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s: %v: %s", e.Service, e.Kind, e.Message)
	case e.Status != 0:
		return fmt.Sprintf("%s: %v (status %d)", e.Service, e.Kind, e.Status)
	default:
		return fmt.Sprintf("%s: %v", e.Service, e.Kind)
	}
}

func (e *ServiceError) Unwrap() error { return e.Kind }

// Reason returns the human-readable message for err, preferring the upstream one.
func Reason(err error) string {
	var se *ServiceError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

// IsKnown reports whether err already carries one of the error kinds.
func IsKnown(err error) bool {
	for _, kind := range []error{ErrAuth, ErrNetwork, ErrEmptyCart, ErrCheckout, ErrNotFound} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
