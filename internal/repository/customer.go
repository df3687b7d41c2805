package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/altmarket/storefront/internal/domain/customer"
)

const (
	getCustomerSQL = `SELECT id, email, name, kind, segment_id, vat_number
		FROM customers WHERE id = $1`

	getAddressSQL = `SELECT id, customer_id, kind, preferred, line1, line2, city, region, postal_code, country_id, phone, created_at
		FROM addresses WHERE id = $1`

	// Preferred address wins; otherwise the most recently created one.
	preferredOrLatestSQL = `SELECT id, customer_id, kind, preferred, line1, line2, city, region, postal_code, country_id, phone, created_at
		FROM addresses WHERE customer_id = $1 AND kind = 'delivery'
		ORDER BY preferred DESC, created_at DESC LIMIT 1`

	registeredOfficeSQL = `SELECT id, customer_id, kind, preferred, line1, line2, city, region, postal_code, country_id, phone, created_at
		FROM addresses WHERE customer_id = $1 AND kind = 'registered_office'
		ORDER BY created_at DESC LIMIT 1`
)

// CustomerRepository implements customer.Store backed by PostgreSQL.
type CustomerRepository struct {
	pool *pgxpool.Pool
}

var _ customer.Store = (*CustomerRepository)(nil)

// NewCustomerRepository returns a CustomerRepository that uses the given pool.
func NewCustomerRepository(pool *pgxpool.Pool) *CustomerRepository {
	return &CustomerRepository{pool: pool}
}

// GetByID returns a customer account by id.
func (r *CustomerRepository) GetByID(ctx context.Context, id int64) (*customer.Customer, error) {
	var c customer.Customer
	err := r.pool.QueryRow(ctx, getCustomerSQL, id).Scan(
		&c.ID, &c.Email, &c.Name, &c.Kind, &c.SegmentID, &c.VatNumber,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		return nil, fmt.Errorf("getting customer %d: %w", id, err)
	}
	return &c, nil
}

// AddressRepository implements customer.AddressStore backed by PostgreSQL.
type AddressRepository struct {
	pool *pgxpool.Pool
}

var _ customer.AddressStore = (*AddressRepository)(nil)

// NewAddressRepository returns an AddressRepository that uses the given pool.
func NewAddressRepository(pool *pgxpool.Pool) *AddressRepository {
	return &AddressRepository{pool: pool}
}

// GetByID returns an address-book entry by id.
func (r *AddressRepository) GetByID(ctx context.Context, id int64) (*customer.Address, error) {
	rows, err := r.pool.Query(ctx, getAddressSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting address %d: %w", id, err)
	}
	a, err := pgx.CollectExactlyOneRow(rows, scanAddress)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrAddressNotFound
		}
		return nil, fmt.Errorf("getting address %d: %w", id, err)
	}
	return &a, nil
}

// PreferredOrLatest returns the customer's preferred delivery address, or the
// most recent one when none is marked preferred.
func (r *AddressRepository) PreferredOrLatest(ctx context.Context, customerID int64) (*customer.Address, error) {
	rows, err := r.pool.Query(ctx, preferredOrLatestSQL, customerID)
	if err != nil {
		return nil, fmt.Errorf("getting addresses for customer %d: %w", customerID, err)
	}
	a, err := pgx.CollectExactlyOneRow(rows, scanAddress)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrAddressNotFound
		}
		return nil, fmt.Errorf("getting addresses for customer %d: %w", customerID, err)
	}
	return &a, nil
}

// RegisteredOffice returns the customer's registered-office address.
func (r *AddressRepository) RegisteredOffice(ctx context.Context, customerID int64) (*customer.Address, error) {
	rows, err := r.pool.Query(ctx, registeredOfficeSQL, customerID)
	if err != nil {
		return nil, fmt.Errorf("getting registered office for customer %d: %w", customerID, err)
	}
	a, err := pgx.CollectExactlyOneRow(rows, scanAddress)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrAddressNotFound
		}
		return nil, fmt.Errorf("getting registered office for customer %d: %w", customerID, err)
	}
	return &a, nil
}

func scanAddress(row pgx.CollectableRow) (customer.Address, error) {
	var a customer.Address
	err := row.Scan(
		&a.ID, &a.CustomerID, &a.Kind, &a.Preferred, &a.Line1, &a.Line2,
		&a.City, &a.Region, &a.PostalCode, &a.CountryID, &a.Phone, &a.CreatedAt,
	)
	return a, err
}
