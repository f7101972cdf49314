package postgres

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shopcore/backoffice/internal/domain/order"
	"github.com/shopcore/backoffice/internal/domain/product"
)

const (
	insertOrderSQL = `INSERT INTO orders (id, customer_id, status)
		VALUES ($1, $2, $3) RETURNING created_at, updated_at`

	getOrderSQL = `SELECT id, customer_id, status, created_at, updated_at
		FROM orders WHERE id = $1`

	listOrdersSQL = `SELECT id, customer_id, status, created_at, updated_at
		FROM orders ORDER BY created_at DESC`

	listOrdersByStatusSQL = `SELECT id, customer_id, status, created_at, updated_at
		FROM orders WHERE status = $1 ORDER BY created_at DESC`

	updateOrderSQL = `UPDATE orders SET customer_id = $2, status = $3, updated_at = now()
		WHERE id = $1`

	deleteOrderSQL          = `DELETE FROM orders WHERE id = $1`
	deleteOrderItemsSQL     = `DELETE FROM order_items WHERE order_id = $1`
	deleteOrderDiscountsSQL = `DELETE FROM discounts WHERE order_id = $1`

	orderItemsSQL = `SELECT id, order_id, product_id, quantity, subtotal
		FROM order_items WHERE order_id = $1 ORDER BY id`

	// Subtotal is derived from the catalog price at write time; inserting
	// an unknown product matches zero rows.
	insertItemSQL = `INSERT INTO order_items (id, order_id, product_id, quantity, subtotal)
		SELECT $1, $2, $3, $4, price * $4 FROM products WHERE id = $3`

	updateItemSQL = `UPDATE order_items
		SET product_id = $2, quantity = $3,
			subtotal = (SELECT price FROM products WHERE id = $2) * $3
		WHERE id = $1`

	deleteItemsSQL = `DELETE FROM order_items WHERE id = ANY($1)`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// Create persists a new order and inserts all requested items in one
// transaction.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order, items []order.ItemRequest) error {
	if err := order.ValidateItems(items); err != nil {
		return err
	}
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	if o.Status == "" {
		o.Status = order.StatusPending
	}

	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, insertOrderSQL, o.ID, o.CustomerID, o.Status).
			Scan(&o.CreatedAt, &o.UpdatedAt)
		if err != nil {
			return fmt.Errorf("creating order %q: %w", o.ID, err)
		}
		return r.SyncItems(ctx, tx, o, items)
	})
}

// Update overwrites the order row and reconciles its line items against the
// requested collection, all in one transaction.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order, items []order.ItemRequest) error {
	if err := order.ValidateItems(items); err != nil {
		return err
	}

	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, updateOrderSQL, o.ID, o.CustomerID, o.Status)
		if err != nil {
			return fmt.Errorf("updating order %q: %w", o.ID, err)
		}
		if tag.RowsAffected() == 0 {
			return order.ErrNotFound
		}
		return r.SyncItems(ctx, tx, o, items)
	})
}

// SyncItems reconciles the order's persisted line items with the requested
// collection on the given transaction: matched ids are updated in place,
// missing ids are deleted, new entries are inserted. Afterward o.Items
// reflects the persisted state.
func (r *OrderRepository) SyncItems(ctx context.Context, tx DB, o *order.Order, items []order.ItemRequest) error {
	persisted, err := loadItems(ctx, tx, o.ID)
	if err != nil {
		return err
	}

	plan, err := order.BuildSyncPlan(persisted, items)
	if err != nil {
		return err
	}

	if len(plan.Delete) > 0 {
		if _, err := tx.Exec(ctx, deleteItemsSQL, plan.Delete); err != nil {
			return fmt.Errorf("deleting order items: %w", err)
		}
	}

	for _, req := range plan.Update {
		if _, err := tx.Exec(ctx, updateItemSQL, req.ID, req.ProductID, req.Quantity); err != nil {
			return mapItemError(err, req.ProductID)
		}
	}

	for _, req := range plan.Insert {
		id := req.ID
		if id == "" {
			id = uuid.New().String()
		}
		tag, err := tx.Exec(ctx, insertItemSQL, id, o.ID, req.ProductID, req.Quantity)
		if err != nil {
			return mapItemError(err, req.ProductID)
		}
		if tag.RowsAffected() == 0 {
			return errors.Wrapf(product.ErrNotFound, "product %q", req.ProductID)
		}
	}

	o.Items, err = loadItems(ctx, tx, o.ID)
	return err
}

// Get returns the order with its line items.
func (r *OrderRepository) Get(ctx context.Context, id string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", id, err)
	}

	o.Items, err = loadItems(ctx, r.pool, o.ID)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// List returns orders newest first, optionally filtered by status. Line
// items are not loaded.
func (r *OrderRepository) List(ctx context.Context, status *order.Status) ([]order.Order, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if status != nil {
		rows, err = r.pool.Query(ctx, listOrdersByStatusSQL, *status)
	} else {
		rows, err = r.pool.Query(ctx, listOrdersSQL)
	}
	if err != nil {
		return nil, fmt.Errorf("listing orders: %w", err)
	}
	return pgx.CollectRows(rows, scanOrder)
}

// Delete removes the order together with its line items and discounts.
func (r *OrderRepository) Delete(ctx context.Context, id string) error {
	return inTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, deleteOrderDiscountsSQL, id); err != nil {
			return fmt.Errorf("deleting order discounts: %w", err)
		}
		if _, err := tx.Exec(ctx, deleteOrderItemsSQL, id); err != nil {
			return fmt.Errorf("deleting order items: %w", err)
		}
		tag, err := tx.Exec(ctx, deleteOrderSQL, id)
		if err != nil {
			return fmt.Errorf("deleting order %q: %w", id, err)
		}
		if tag.RowsAffected() == 0 {
			return order.ErrNotFound
		}
		return nil
	})
}

func loadItems(ctx context.Context, db DB, orderID string) ([]order.LineItem, error) {
	rows, err := db.Query(ctx, orderItemsSQL, orderID)
	if err != nil {
		return nil, fmt.Errorf("loading items for order %q: %w", orderID, err)
	}
	return pgx.CollectRows(rows, scanLineItem)
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(&o.ID, &o.CustomerID, &o.Status, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func scanLineItem(row pgx.CollectableRow) (order.LineItem, error) {
	var it order.LineItem
	err := row.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.Subtotal)
	return it, err
}

// mapItemError converts constraint violations on item writes into the
// domain product-not-found error.
func mapItemError(err error, productID string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		// 23503: product_id FK violation; 23502: NULL subtotal from a
		// missing catalog row in the update subquery.
		if pgErr.Code == "23503" || pgErr.Code == "23502" {
			return errors.Wrapf(product.ErrNotFound, "product %q", productID)
		}
	}
	return fmt.Errorf("writing order item: %w", err)
}
