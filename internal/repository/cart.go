package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/altmarket/storefront/internal/domain/cart"
)

const (
	getActiveCartSQL = `SELECT id, customer_id, status, total, created_at, updated_at
		FROM carts WHERE customer_id = $1 AND status = 'active'
		ORDER BY created_at DESC LIMIT 1`

	insertCartSQL = `INSERT INTO carts (customer_id, status, total)
		VALUES ($1, 'active', 0)
		RETURNING id, customer_id, status, total, created_at, updated_at`

	getCartLinesSQL = `SELECT product_id, segment_id, quantity
		FROM cart_lines WHERE cart_id = $1 ORDER BY product_id, segment_id`

	upsertCartLineSQL = `INSERT INTO cart_lines (cart_id, product_id, segment_id, quantity)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (cart_id, product_id, segment_id) DO UPDATE SET quantity = EXCLUDED.quantity`

	removeCartLineSQL = `DELETE FROM cart_lines WHERE cart_id = $1 AND product_id = $2 AND segment_id = $3`

	setCartTotalSQL = `UPDATE carts SET total = $2, updated_at = NOW() WHERE id = $1`
)

var _ cart.Store = (*CartRepository)(nil)

// CartRepository implements cart.Store backed by PostgreSQL. Cart lines are
// keyed by (cart, product, segment).
type CartRepository struct {
	pool *pgxpool.Pool
}

// NewCartRepository returns a CartRepository that uses the given pool.
func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{pool: pool}
}

// ActiveCart returns the customer's active cart, creating one when none
// exists.
func (r *CartRepository) ActiveCart(ctx context.Context, customerID int64) (*cart.Cart, error) {
	c, err := r.scanCart(r.pool.QueryRow(ctx, getActiveCartSQL, customerID))
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("getting cart for customer %d: %w", customerID, err)
	}

	c, err = r.scanCart(r.pool.QueryRow(ctx, insertCartSQL, customerID))
	if err != nil {
		return nil, fmt.Errorf("creating cart for customer %d: %w", customerID, err)
	}
	return c, nil
}

// Lines returns the cart's lines.
func (r *CartRepository) Lines(ctx context.Context, cartID int64) ([]cart.Line, error) {
	rows, err := r.pool.Query(ctx, getCartLinesSQL, cartID)
	if err != nil {
		return nil, fmt.Errorf("getting lines for cart %d: %w", cartID, err)
	}
	lines, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (cart.Line, error) {
		var l cart.Line
		err := row.Scan(&l.ProductID, &l.SegmentID, &l.Quantity)
		return l, err
	})
	if err != nil {
		return nil, fmt.Errorf("getting lines for cart %d: %w", cartID, err)
	}
	return lines, nil
}

// UpsertLine inserts the line or replaces the quantity of the line with the
// same key.
func (r *CartRepository) UpsertLine(ctx context.Context, cartID int64, l cart.Line) error {
	_, err := r.pool.Exec(ctx, upsertCartLineSQL, cartID, l.ProductID, l.SegmentID, l.Quantity)
	if err != nil {
		return fmt.Errorf("upserting line for cart %d: %w", cartID, err)
	}
	return nil
}

// RemoveLine deletes the line with the given key.
func (r *CartRepository) RemoveLine(ctx context.Context, cartID int64, key cart.LineKey) error {
	_, err := r.pool.Exec(ctx, removeCartLineSQL, cartID, key.ProductID, key.SegmentID)
	if err != nil {
		return fmt.Errorf("removing line from cart %d: %w", cartID, err)
	}
	return nil
}

// SetTotal persists the recomputed display total.
func (r *CartRepository) SetTotal(ctx context.Context, cartID int64, total decimal.Decimal) error {
	_, err := r.pool.Exec(ctx, setCartTotalSQL, cartID, total)
	if err != nil {
		return fmt.Errorf("setting total for cart %d: %w", cartID, err)
	}
	return nil
}

func (r *CartRepository) scanCart(row pgx.Row) (*cart.Cart, error) {
	var c cart.Cart
	err := row.Scan(&c.ID, &c.CustomerID, &c.Status, &c.Total, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}
