package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/altmarket/storefront/internal/domain/checkout"
)

const (
	getPaymentMethodSQL  = `SELECT id, code, name, active FROM payment_methods WHERE id = $1`
	getShippingMethodSQL = `SELECT id, code, name, pickup, cost, active FROM shipping_methods WHERE id = $1`
)

// ErrMethodNotFound is returned when a payment or shipping method id does not
// exist.
var ErrMethodNotFound = errors.New("method not found")

// PaymentMethodRepository implements checkout.PaymentMethodStore backed by
// PostgreSQL.
type PaymentMethodRepository struct {
	pool *pgxpool.Pool
}

var _ checkout.PaymentMethodStore = (*PaymentMethodRepository)(nil)

// NewPaymentMethodRepository returns a PaymentMethodRepository that uses the
// given pool.
func NewPaymentMethodRepository(pool *pgxpool.Pool) *PaymentMethodRepository {
	return &PaymentMethodRepository{pool: pool}
}

// GetByID returns a payment method by id.
func (r *PaymentMethodRepository) GetByID(ctx context.Context, id int64) (*checkout.PaymentMethod, error) {
	var m checkout.PaymentMethod
	err := r.pool.QueryRow(ctx, getPaymentMethodSQL, id).Scan(&m.ID, &m.Code, &m.Name, &m.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMethodNotFound
		}
		return nil, fmt.Errorf("getting payment method %d: %w", id, err)
	}
	return &m, nil
}

// ShippingMethodRepository implements checkout.ShippingMethodStore backed by
// PostgreSQL.
type ShippingMethodRepository struct {
	pool *pgxpool.Pool
}

var _ checkout.ShippingMethodStore = (*ShippingMethodRepository)(nil)

// NewShippingMethodRepository returns a ShippingMethodRepository that uses
// the given pool.
func NewShippingMethodRepository(pool *pgxpool.Pool) *ShippingMethodRepository {
	return &ShippingMethodRepository{pool: pool}
}

// GetByID returns a shipping method by id.
func (r *ShippingMethodRepository) GetByID(ctx context.Context, id int64) (*checkout.ShippingMethod, error) {
	var m checkout.ShippingMethod
	err := r.pool.QueryRow(ctx, getShippingMethodSQL, id).Scan(&m.ID, &m.Code, &m.Name, &m.Pickup, &m.Cost, &m.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMethodNotFound
		}
		return nil, fmt.Errorf("getting shipping method %d: %w", id, err)
	}
	return &m, nil
}
