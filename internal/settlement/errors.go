package settlement

import (
	"errors"
	"fmt"
)

var (
	// ErrEmptyCart is returned when a settlement carries no lines.
	ErrEmptyCart = errors.New("settlement: cart is empty")
	// ErrInvalidLine is returned for a line with a non-positive quantity or price snapshot below zero.
	ErrInvalidLine = errors.New("settlement: invalid cart line")
	// ErrZeroTotal is returned when a non-return sale totals nothing.
	ErrZeroTotal = errors.New("settlement: sale total is zero")
	// ErrNotFound is returned when the referenced receipt, product, or customer does not exist.
	ErrNotFound = errors.New("settlement: not found")
)

// InsufficientStockError names the offending product so the cashier can fix
// the specific cart line.
type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Available   int64
	Requested   int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: available %d, requested %d",
		e.ProductName, e.Available, e.Requested)
}
