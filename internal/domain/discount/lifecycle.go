package discount

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"

	"github.com/shopcore/backoffice/internal/domain/coupon"
	"github.com/shopcore/backoffice/internal/domain/order"
)

// Store opens transaction scopes over the records the discount lifecycle
// touches. Implementations back it with a transactional database.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
}

// Tx is one transaction scope. Rollback after Commit must be a no-op so
// callers can unconditionally defer it.
type Tx interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// LockOrder loads the order with its line items and holds a row lock on
	// it until the transaction ends, serializing concurrent discount
	// applications on the same order.
	LockOrder(ctx context.Context, orderID string) (*order.Order, error)
	CouponByCode(ctx context.Context, code string) (*coupon.Coupon, error)
	CouponRestrictions(ctx context.Context, couponID string) (coupon.Restrictions, error)
	DiscountCount(ctx context.Context, orderID string) (int, error)
	InsertDiscount(ctx context.Context, d *Discount) error
	DiscountByID(ctx context.Context, id string) (*Discount, error)
	DeleteDiscount(ctx context.Context, id string) error

	// DecrementCouponQuantity atomically consumes one redemption. It must
	// return ErrExhausted instead of letting the quantity go negative.
	DecrementCouponQuantity(ctx context.Context, couponID string) error
	// IncrementCouponQuantity releases one redemption back.
	IncrementCouponQuantity(ctx context.Context, couponID string) error
}

// Lifecycle coordinates discount creation and removal. Every operation runs
// in exactly one transaction: either the discount row and the coupon
// quantity change together, or neither does.
type Lifecycle struct {
	store Store
	now   func() time.Time
}

// NewLifecycle creates a Lifecycle over the given store.
func NewLifecycle(store Store) *Lifecycle {
	return &Lifecycle{store: store, now: time.Now}
}

// Apply attempts to apply the coupon identified by code to the order.
// On success it returns the created Discount with its computed amount.
// Rejections (scope mismatch, window, exhausted stock, duplicate
// non-recursive application) satisfy IsEligibilityErr; everything else is a
// fault. Any failure rolls back the whole attempt.
func (l *Lifecycle) Apply(ctx context.Context, orderID, code string) (*Discount, error) {
	tx, err := l.store.Begin(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	o, err := tx.LockOrder(ctx, orderID)
	if err != nil {
		return nil, errors.Wrap(err, "lock order")
	}

	c, err := tx.CouponByCode(ctx, coupon.NormalizeCode(code))
	if err != nil {
		return nil, errors.Wrap(err, "find coupon")
	}

	now := l.now()
	if c.ValidFrom != nil && now.Before(*c.ValidFrom) {
		return nil, ErrNotYetValid
	}
	if c.ValidUntil != nil && now.After(*c.ValidUntil) {
		return nil, ErrExpired
	}
	if !c.HasStock() {
		return nil, ErrExhausted
	}

	// At most one discount per order unless the coupon is recursive. The
	// row lock on the order makes this check-then-insert atomic.
	count, err := tx.DiscountCount(ctx, o.ID)
	if err != nil {
		return nil, errors.Wrap(err, "count discounts")
	}
	if count > 0 && !c.Recursive {
		return nil, ErrAlreadyApplied
	}

	r, err := tx.CouponRestrictions(ctx, c.ID)
	if err != nil {
		return nil, errors.Wrap(err, "load restrictions")
	}
	if !coupon.Eligible(r, o.CustomerID, o.ProductIDs()) {
		return nil, ErrNotEligible
	}

	d := &Discount{
		ID:        uuid.New().String(),
		OrderID:   o.ID,
		CouponID:  c.ID,
		Amount:    ComputeAmount(c, r, o),
		CreatedAt: now,
	}
	if err := tx.InsertDiscount(ctx, d); err != nil {
		return nil, errors.Wrap(err, "insert discount")
	}

	if err := tx.DecrementCouponQuantity(ctx, c.ID); err != nil {
		return nil, errors.Wrap(err, "decrement coupon quantity")
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, errors.Wrap(err, "commit")
	}
	return d, nil
}

// Remove deletes the discount and releases one redemption back to its
// coupon, in one transaction. The discount amount is not recomputed; the
// quantity increment is a plain compensating action.
func (l *Lifecycle) Remove(ctx context.Context, discountID string) error {
	tx, err := l.store.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	d, err := tx.DiscountByID(ctx, discountID)
	if err != nil {
		return errors.Wrap(err, "find discount")
	}

	if err := tx.DeleteDiscount(ctx, d.ID); err != nil {
		return errors.Wrap(err, "delete discount")
	}

	if err := tx.IncrementCouponQuantity(ctx, d.CouponID); err != nil {
		return errors.Wrap(err, "increment coupon quantity")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "commit")
	}
	return nil
}
