package store

import (
	"errors"
	"fmt"
)

var (
	// ErrProductNotFound indicates no product matched the given SKU.
	ErrProductNotFound = errors.New("product not found")
	// ErrItemNotFound indicates no active cart line matched.
	ErrItemNotFound = errors.New("item not found in cart")
	// ErrCartEmpty indicates checkout was attempted with no active cart lines.
	ErrCartEmpty = errors.New("cart is empty")
	// ErrSessionNotFound indicates the given cart session does not exist.
	ErrSessionNotFound = errors.New("cart session not found")
	// ErrSessionInactive indicates the cart session is expired or deactivated.
	ErrSessionInactive = errors.New("cart session is no longer active")
)

// InsufficientStockError reports a request exceeding available stock. It
// carries the available quantity so replies can inform the user precisely.
type InsufficientStockError struct {
	SKU       string
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock. Only %d available", e.Available)
}
