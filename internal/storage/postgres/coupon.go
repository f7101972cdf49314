package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopcore/backoffice/internal/domain/coupon"
)

const (
	couponColumns = `id, code, type, discount, quantity, valid_from, valid_until, recursive, can_use_for`

	getCouponByCodeSQL = `SELECT ` + couponColumns + ` FROM coupons WHERE UPPER(code) = UPPER($1)`
	getCouponByIDSQL   = `SELECT ` + couponColumns + ` FROM coupons WHERE id = $1`
	listCouponsSQL     = `SELECT ` + couponColumns + ` FROM coupons ORDER BY code`
	filterCouponsSQL   = `SELECT ` + couponColumns + ` FROM coupons WHERE code ILIKE $1 ORDER BY code`

	insertCouponSQL = `INSERT INTO coupons
		(id, code, type, discount, quantity, valid_from, valid_until, recursive, can_use_for)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	updateCouponSQL = `UPDATE coupons
		SET code = $2, type = $3, discount = $4, quantity = $5,
			valid_from = $6, valid_until = $7, recursive = $8, can_use_for = $9
		WHERE id = $1`

	deleteCouponSQL          = `DELETE FROM coupons WHERE id = $1`
	deleteCouponDiscountsSQL = `DELETE FROM discounts WHERE coupon_id = $1`

	couponProductsSQL  = `SELECT product_id FROM coupon_products WHERE coupon_id = $1 ORDER BY product_id`
	couponCustomersSQL = `SELECT customer_id FROM coupon_customers WHERE coupon_id = $1 ORDER BY customer_id`

	insertCouponProductSQL  = `INSERT INTO coupon_products (coupon_id, product_id) VALUES ($1, $2)`
	insertCouponCustomerSQL = `INSERT INTO coupon_customers (coupon_id, customer_id) VALUES ($1, $2)`
	deleteCouponProductsSQL = `DELETE FROM coupon_products WHERE coupon_id = $1`
	deleteCouponCustomerSQL = `DELETE FROM coupon_customers WHERE coupon_id = $1`
)

var _ coupon.Repository = (*CouponRepository)(nil)

// CouponRepository implements coupon.Repository backed by PostgreSQL.
type CouponRepository struct {
	pool *pgxpool.Pool
}

// NewCouponRepository returns a CouponRepository that uses the given pool.
func NewCouponRepository(pool *pgxpool.Pool) *CouponRepository {
	return &CouponRepository{pool: pool}
}

// FindByCode looks up a coupon by its code, case-insensitively.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return findCoupon(ctx, r.pool, getCouponByCodeSQL, code)
}

// FindByID looks up a coupon by its identifier.
func (r *CouponRepository) FindByID(ctx context.Context, id string) (*coupon.Coupon, error) {
	return findCoupon(ctx, r.pool, getCouponByIDSQL, id)
}

// Restrictions loads the coupon's product and customer restriction sets.
func (r *CouponRepository) Restrictions(ctx context.Context, couponID string) (coupon.Restrictions, error) {
	return loadRestrictions(ctx, r.pool, couponID)
}

// Create persists the coupon and its restriction sets in one transaction.
// The code is stored normalized and the scope marker is derived from the
// restriction sets, never taken from input.
func (r *CouponRepository) Create(ctx context.Context, c *coupon.Coupon, restr coupon.Restrictions) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.Code = coupon.NormalizeCode(c.Code)
	c.Scope = restr.Scope()

	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, insertCouponSQL,
			c.ID, c.Code, c.Type, c.Discount, c.Quantity,
			c.ValidFrom, c.ValidUntil, c.Recursive, c.Scope.String(),
		)
		if err != nil {
			return fmt.Errorf("creating coupon %q: %w", c.Code, err)
		}
		return writeRestrictions(ctx, tx, c.ID, restr)
	})
}

// Update overwrites the coupon and replaces its restriction sets in one
// transaction, re-deriving the scope marker.
func (r *CouponRepository) Update(ctx context.Context, c *coupon.Coupon, restr coupon.Restrictions) error {
	c.Code = coupon.NormalizeCode(c.Code)
	c.Scope = restr.Scope()

	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, updateCouponSQL,
			c.ID, c.Code, c.Type, c.Discount, c.Quantity,
			c.ValidFrom, c.ValidUntil, c.Recursive, c.Scope.String(),
		)
		if err != nil {
			return fmt.Errorf("updating coupon %q: %w", c.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return coupon.ErrNotFound
		}

		if _, err := tx.Exec(ctx, deleteCouponProductsSQL, c.ID); err != nil {
			return fmt.Errorf("clearing coupon products: %w", err)
		}
		if _, err := tx.Exec(ctx, deleteCouponCustomerSQL, c.ID); err != nil {
			return fmt.Errorf("clearing coupon customers: %w", err)
		}
		return writeRestrictions(ctx, tx, c.ID, restr)
	})
}

// Delete detaches the coupon's associations and discounts, then removes the
// coupon itself.
func (r *CouponRepository) Delete(ctx context.Context, id string) error {
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, deleteCouponProductsSQL, id); err != nil {
			return fmt.Errorf("clearing coupon products: %w", err)
		}
		if _, err := tx.Exec(ctx, deleteCouponCustomerSQL, id); err != nil {
			return fmt.Errorf("clearing coupon customers: %w", err)
		}
		if _, err := tx.Exec(ctx, deleteCouponDiscountsSQL, id); err != nil {
			return fmt.Errorf("clearing coupon discounts: %w", err)
		}
		tag, err := tx.Exec(ctx, deleteCouponSQL, id)
		if err != nil {
			return fmt.Errorf("deleting coupon %q: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return coupon.ErrNotFound
		}
		return nil
	})
}

// List returns coupons ordered by code, optionally filtered by a substring
// of the code.
func (r *CouponRepository) List(ctx context.Context, codeFilter string) ([]coupon.Coupon, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if codeFilter != "" {
		rows, err = r.pool.Query(ctx, filterCouponsSQL, "%"+codeFilter+"%")
	} else {
		rows, err = r.pool.Query(ctx, listCouponsSQL)
	}
	if err != nil {
		return nil, fmt.Errorf("listing coupons: %w", err)
	}
	return pgx.CollectRows(rows, scanCoupon)
}

func findCoupon(ctx context.Context, db DB, sql, arg string) (*coupon.Coupon, error) {
	rows, err := db.Query(ctx, sql, arg)
	if err != nil {
		return nil, fmt.Errorf("finding coupon: %w", err)
	}

	c, err := pgx.CollectExactlyOneRow(rows, scanCoupon)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, coupon.ErrNotFound
		}
		return nil, fmt.Errorf("finding coupon: %w", err)
	}
	return &c, nil
}

func loadRestrictions(ctx context.Context, db DB, couponID string) (coupon.Restrictions, error) {
	var restr coupon.Restrictions

	rows, err := db.Query(ctx, couponProductsSQL, couponID)
	if err != nil {
		return restr, fmt.Errorf("loading coupon products: %w", err)
	}
	restr.Products, err = pgx.CollectRows(rows, scanID)
	if err != nil {
		return restr, fmt.Errorf("loading coupon products: %w", err)
	}

	rows, err = db.Query(ctx, couponCustomersSQL, couponID)
	if err != nil {
		return restr, fmt.Errorf("loading coupon customers: %w", err)
	}
	restr.Customers, err = pgx.CollectRows(rows, scanID)
	if err != nil {
		return restr, fmt.Errorf("loading coupon customers: %w", err)
	}

	return restr, nil
}

func writeRestrictions(ctx context.Context, tx pgx.Tx, couponID string, restr coupon.Restrictions) error {
	for _, pid := range restr.Products {
		if _, err := tx.Exec(ctx, insertCouponProductSQL, couponID, pid); err != nil {
			return fmt.Errorf("attaching product %q: %w", pid, err)
		}
	}
	for _, cid := range restr.Customers {
		if _, err := tx.Exec(ctx, insertCouponCustomerSQL, couponID, cid); err != nil {
			return fmt.Errorf("attaching customer %q: %w", cid, err)
		}
	}
	return nil
}

func scanCoupon(row pgx.CollectableRow) (coupon.Coupon, error) {
	var (
		c      coupon.Coupon
		marker string
	)
	err := row.Scan(
		&c.ID, &c.Code, &c.Type, &c.Discount, &c.Quantity,
		&c.ValidFrom, &c.ValidUntil, &c.Recursive, &marker,
	)
	if err != nil {
		return c, err
	}
	c.Scope, err = coupon.ScopeFromMarker(marker)
	return c, err
}

func scanID(row pgx.CollectableRow) (string, error) {
	var id string
	err := row.Scan(&id)
	return id, err
}
