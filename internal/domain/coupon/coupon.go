package coupon

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercent applies a percentage of the affected subtotal.
	DiscountPercent DiscountType = "percent"
	// DiscountCurrency applies a fixed monetary amount: per unit for
	// product-scoped coupons, once for order-level coupons.
	DiscountCurrency DiscountType = "currency"
	// DiscountFull waives the affected subtotal entirely.
	DiscountFull DiscountType = "full"
)

// ErrNotFound is returned when a coupon code or id does not exist.
var ErrNotFound = errors.New("coupon not found")

// Coupon is a redeemable discount voucher. Quantity is the remaining number
// of redemptions; it is decremented on each successful application and must
// never go negative.
type Coupon struct {
	ID         string
	Code       string
	Type       DiscountType
	Discount   decimal.Decimal
	Quantity   int
	ValidFrom  *time.Time
	ValidUntil *time.Time
	Recursive  bool
	Scope      Scope
}

// WithinWindow reports whether the coupon is valid at the given instant.
// A nil bound is open-ended.
func (c *Coupon) WithinWindow(now time.Time) bool {
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return false
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return false
	}
	return true
}

// HasStock reports whether the coupon still has redemptions left.
func (c *Coupon) HasStock() bool {
	return c.Quantity > 0
}

// NormalizeCode canonicalizes a coupon code for storage and lookup.
// Codes are matched case-insensitively.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// Repository provides lookup and mutation of coupons and their
// restriction sets.
type Repository interface {
	FindByCode(ctx context.Context, code string) (*Coupon, error)
	FindByID(ctx context.Context, id string) (*Coupon, error)
	Restrictions(ctx context.Context, couponID string) (Restrictions, error)
	Create(ctx context.Context, c *Coupon, r Restrictions) error
	Update(ctx context.Context, c *Coupon, r Restrictions) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, codeFilter string) ([]Coupon, error)
}
