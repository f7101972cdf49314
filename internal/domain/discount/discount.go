// Package discount implements coupon discount computation and the
// transactional lifecycle of discount records: creation decrements the
// coupon's remaining quantity, removal releases it back.
package discount

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Discount is one successful application of a coupon to an order, carrying
// the monetary amount computed at application time.
type Discount struct {
	ID        string
	OrderID   string
	CouponID  string
	Amount    decimal.Decimal
	CreatedAt time.Time
}

// Eligibility rejections. These are expected outcomes with user-facing
// reasons, not system faults; IsEligibilityErr distinguishes them from
// persistence failures.
var (
	// ErrNotEligible is returned when the coupon's scope does not match the
	// order (wrong customer, no qualifying products).
	ErrNotEligible = errors.New("coupon cannot be applied to this order")
	// ErrNotYetValid is returned before the coupon's validity window opens.
	ErrNotYetValid = errors.New("coupon is not valid yet")
	// ErrExpired is returned after the coupon's validity window closes.
	ErrExpired = errors.New("coupon has expired")
	// ErrExhausted is returned when the coupon has no redemptions left.
	ErrExhausted = errors.New("coupon has no remaining uses")
	// ErrAlreadyApplied is returned when a non-recursive coupon already
	// produced a discount on the order.
	ErrAlreadyApplied = errors.New("coupon already applied to this order")
)

// ErrNotFound is returned when the requested discount does not exist.
var ErrNotFound = errors.New("discount not found")

// IsEligibilityErr reports whether err is an expected coupon rejection
// rather than a fault.
func IsEligibilityErr(err error) bool {
	for _, e := range []error{ErrNotEligible, ErrNotYetValid, ErrExpired, ErrExhausted, ErrAlreadyApplied} {
		if errors.Is(err, e) {
			return true
		}
	}
	return false
}
