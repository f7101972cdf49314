package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

// Valid reports whether s is a known order status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusCancelled:
		return true
	}
	return false
}

// Sentinel errors for order operations.
var (
	// ErrNotFound is returned when the requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrMalformedItems is returned when a requested item collection is not
	// a well-formed sequence. No mutation happens in that case.
	ErrMalformedItems = errors.New("malformed order items")
	// ErrInvalidStatus is returned for an unknown order status.
	ErrInvalidStatus = errors.New("invalid order status")
)

// InvalidItemError describes a single malformed item in a sync request.
type InvalidItemError struct {
	Index  int
	Reason string
}

func (e *InvalidItemError) Error() string {
	return fmt.Sprintf("item %d: %s", e.Index, e.Reason)
}

// LineItem is one product position on an order. Subtotal is derived as
// unit price * quantity by the storage layer and only changes when the
// quantity does.
type LineItem struct {
	ID        string
	OrderID   string
	ProductID string
	Quantity  int
	Subtotal  decimal.Decimal
}

// Order aggregates line items and applied discounts for one customer.
type Order struct {
	ID         string
	CustomerID string
	Status     Status
	Items      []LineItem
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Subtotal returns the sum of line item subtotals.
func (o *Order) Subtotal() decimal.Decimal {
	sum := decimal.Zero
	for _, it := range o.Items {
		sum = sum.Add(it.Subtotal)
	}
	return sum
}

// ProductIDs returns the product references of all line items, in order.
func (o *Order) ProductIDs() []string {
	ids := make([]string, len(o.Items))
	for i, it := range o.Items {
		ids[i] = it.ProductID
	}
	return ids
}

// ItemRequest is one requested line item in a create or update call.
// ID is set when the request targets an existing persisted item.
type ItemRequest struct {
	ID        string `json:"id,omitempty"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// ValidateItems checks that the requested item collection is a well-formed
// sequence. A nil collection or any malformed entry rejects the whole
// request; callers must not mutate anything on error.
func ValidateItems(items []ItemRequest) error {
	if items == nil {
		return ErrMalformedItems
	}
	for i, it := range items {
		if it.ProductID == "" {
			return &InvalidItemError{Index: i, Reason: "product reference required"}
		}
		if it.Quantity <= 0 {
			return &InvalidItemError{Index: i, Reason: "quantity must be positive"}
		}
	}
	return nil
}

// Repository defines persistence operations for orders. Item mutations in
// Create and Update run in the same transaction as the order row itself.
type Repository interface {
	Create(ctx context.Context, o *Order, items []ItemRequest) error
	Get(ctx context.Context, id string) (*Order, error)
	List(ctx context.Context, status *Status) ([]Order, error)
	Update(ctx context.Context, o *Order, items []ItemRequest) error
	Delete(ctx context.Context, id string) error
}
