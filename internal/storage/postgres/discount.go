package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopcore/backoffice/internal/domain/coupon"
	"github.com/shopcore/backoffice/internal/domain/discount"
	"github.com/shopcore/backoffice/internal/domain/order"
)

const (
	// FOR UPDATE serializes concurrent discount applications on the same
	// order: the second transaction blocks until the first commits, then
	// sees its discount row in the count.
	lockOrderSQL = `SELECT id, customer_id, status, created_at, updated_at
		FROM orders WHERE id = $1 FOR UPDATE`

	countDiscountsSQL = `SELECT COUNT(*) FROM discounts WHERE order_id = $1`

	insertDiscountSQL = `INSERT INTO discounts (id, order_id, coupon_id, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)`

	getDiscountSQL = `SELECT id, order_id, coupon_id, amount, created_at
		FROM discounts WHERE id = $1`

	deleteDiscountSQL = `DELETE FROM discounts WHERE id = $1`

	listDiscountsByOrderSQL = `SELECT id, order_id, coupon_id, amount, created_at
		FROM discounts WHERE order_id = $1 ORDER BY created_at`

	// The quantity guard lives in the statement itself: a concurrent
	// redemption that would drive quantity negative simply matches no rows.
	decrementCouponSQL = `UPDATE coupons SET quantity = quantity - 1
		WHERE id = $1 AND quantity > 0`

	incrementCouponSQL = `UPDATE coupons SET quantity = quantity + 1 WHERE id = $1`
)

var _ discount.Store = (*DiscountStore)(nil)

// DiscountStore implements discount.Store backed by PostgreSQL.
type DiscountStore struct {
	pool *pgxpool.Pool
}

// NewDiscountStore returns a DiscountStore that uses the given pool.
func NewDiscountStore(pool *pgxpool.Pool) *DiscountStore {
	return &DiscountStore{pool: pool}
}

// Begin opens a transaction scope for one discount operation.
func (s *DiscountStore) Begin(ctx context.Context) (discount.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin discount tx: %w", err)
	}
	return &discountTx{tx: tx}, nil
}

// ListByOrder returns the discounts applied to an order, oldest first.
func (s *DiscountStore) ListByOrder(ctx context.Context, orderID string) ([]discount.Discount, error) {
	rows, err := s.pool.Query(ctx, listDiscountsByOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("listing discounts for order %q: %w", orderID, err)
	}
	return pgx.CollectRows(rows, scanDiscount)
}

type discountTx struct {
	tx pgx.Tx
}

func (t *discountTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *discountTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

func (t *discountTx) LockOrder(ctx context.Context, orderID string) (*order.Order, error) {
	rows, err := t.tx.Query(ctx, lockOrderSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("locking order %q: %w", orderID, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("locking order %q: %w", orderID, err)
	}

	o.Items, err = loadItems(ctx, t.tx, o.ID)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (t *discountTx) CouponByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return findCoupon(ctx, t.tx, getCouponByCodeSQL, code)
}

func (t *discountTx) CouponRestrictions(ctx context.Context, couponID string) (coupon.Restrictions, error) {
	return loadRestrictions(ctx, t.tx, couponID)
}

func (t *discountTx) DiscountCount(ctx context.Context, orderID string) (int, error) {
	var n int
	if err := t.tx.QueryRow(ctx, countDiscountsSQL, orderID).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting discounts for order %q: %w", orderID, err)
	}
	return n, nil
}

func (t *discountTx) InsertDiscount(ctx context.Context, d *discount.Discount) error {
	_, err := t.tx.Exec(ctx, insertDiscountSQL, d.ID, d.OrderID, d.CouponID, d.Amount, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting discount %q: %w", d.ID, err)
	}
	return nil
}

func (t *discountTx) DiscountByID(ctx context.Context, id string) (*discount.Discount, error) {
	rows, err := t.tx.Query(ctx, getDiscountSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting discount %q: %w", id, err)
	}

	d, err := pgx.CollectExactlyOneRow(rows, scanDiscount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, discount.ErrNotFound
		}
		return nil, fmt.Errorf("getting discount %q: %w", id, err)
	}
	return &d, nil
}

func (t *discountTx) DeleteDiscount(ctx context.Context, id string) error {
	tag, err := t.tx.Exec(ctx, deleteDiscountSQL, id)
	if err != nil {
		return fmt.Errorf("deleting discount %q: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrNotFound
	}
	return nil
}

func (t *discountTx) DecrementCouponQuantity(ctx context.Context, couponID string) error {
	tag, err := t.tx.Exec(ctx, decrementCouponSQL, couponID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23514" {
			return discount.ErrExhausted
		}
		return fmt.Errorf("decrementing coupon %q: %w", couponID, err)
	}
	if tag.RowsAffected() == 0 {
		return discount.ErrExhausted
	}
	return nil
}

func (t *discountTx) IncrementCouponQuantity(ctx context.Context, couponID string) error {
	tag, err := t.tx.Exec(ctx, incrementCouponSQL, couponID)
	if err != nil {
		return fmt.Errorf("incrementing coupon %q: %w", couponID, err)
	}
	if tag.RowsAffected() == 0 {
		return coupon.ErrNotFound
	}
	return nil
}

func scanDiscount(row pgx.CollectableRow) (discount.Discount, error) {
	var d discount.Discount
	err := row.Scan(&d.ID, &d.OrderID, &d.CouponID, &d.Amount, &d.CreatedAt)
	return d, err
}
