package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/altmarket/storefront/internal/domain/catalog"
)

const (
	getSegmentSQL = `SELECT id, code, b2c FROM segments WHERE id = $1`

	getCountryByIDSQL   = `SELECT id, code, name FROM countries WHERE id = $1`
	getCountryByCodeSQL = `SELECT id, code, name FROM countries WHERE UPPER(code) = UPPER($1)`

	// A country may carry several VAT rate rows (standard, reduced).
	// Resolution picks the numerically highest one.
	highestVatRateSQL = `SELECT rate FROM vat_rates WHERE country_id = $1 ORDER BY rate DESC LIMIT 1`

	getCurrencySQL = `SELECT code, rate, active FROM currencies WHERE UPPER(code) = UPPER($1) AND active = TRUE`
)

// SegmentRepository implements catalog.SegmentStore backed by PostgreSQL.
type SegmentRepository struct {
	pool *pgxpool.Pool
}

var _ catalog.SegmentStore = (*SegmentRepository)(nil)

// NewSegmentRepository returns a SegmentRepository that uses the given pool.
func NewSegmentRepository(pool *pgxpool.Pool) *SegmentRepository {
	return &SegmentRepository{pool: pool}
}

// GetByID returns a customer segment by id.
func (r *SegmentRepository) GetByID(ctx context.Context, id int64) (*catalog.Segment, error) {
	var s catalog.Segment
	err := r.pool.QueryRow(ctx, getSegmentSQL, id).Scan(&s.ID, &s.Code, &s.B2C)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrSegmentNotFound
		}
		return nil, fmt.Errorf("getting segment %d: %w", id, err)
	}
	return &s, nil
}

// CountryRepository implements catalog.CountryStore backed by PostgreSQL.
type CountryRepository struct {
	pool *pgxpool.Pool
}

var _ catalog.CountryStore = (*CountryRepository)(nil)

// NewCountryRepository returns a CountryRepository that uses the given pool.
func NewCountryRepository(pool *pgxpool.Pool) *CountryRepository {
	return &CountryRepository{pool: pool}
}

// GetByID returns a country by id.
func (r *CountryRepository) GetByID(ctx context.Context, id int64) (*catalog.Country, error) {
	var c catalog.Country
	err := r.pool.QueryRow(ctx, getCountryByIDSQL, id).Scan(&c.ID, &c.Code, &c.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrCountryNotFound
		}
		return nil, fmt.Errorf("getting country %d: %w", id, err)
	}
	return &c, nil
}

// GetByCode returns a country by its ISO code, case-insensitive.
func (r *CountryRepository) GetByCode(ctx context.Context, code string) (*catalog.Country, error) {
	var c catalog.Country
	err := r.pool.QueryRow(ctx, getCountryByCodeSQL, code).Scan(&c.ID, &c.Code, &c.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrCountryNotFound
		}
		return nil, fmt.Errorf("getting country %q: %w", code, err)
	}
	return &c, nil
}

// VatRateRepository implements catalog.VatRateStore backed by PostgreSQL.
type VatRateRepository struct {
	pool *pgxpool.Pool
}

var _ catalog.VatRateStore = (*VatRateRepository)(nil)

// NewVatRateRepository returns a VatRateRepository that uses the given pool.
func NewVatRateRepository(pool *pgxpool.Pool) *VatRateRepository {
	return &VatRateRepository{pool: pool}
}

// HighestRate returns the highest VAT rate row for the country.
func (r *VatRateRepository) HighestRate(ctx context.Context, countryID int64) (decimal.Decimal, error) {
	var rate decimal.Decimal
	err := r.pool.QueryRow(ctx, highestVatRateSQL, countryID).Scan(&rate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, fmt.Errorf("no vat rate rows for country %d", countryID)
		}
		return decimal.Zero, fmt.Errorf("getting vat rate for country %d: %w", countryID, err)
	}
	return rate, nil
}

// CurrencyRepository implements catalog.CurrencyStore backed by PostgreSQL.
type CurrencyRepository struct {
	pool *pgxpool.Pool
}

var _ catalog.CurrencyStore = (*CurrencyRepository)(nil)

// NewCurrencyRepository returns a CurrencyRepository that uses the given pool.
func NewCurrencyRepository(pool *pgxpool.Pool) *CurrencyRepository {
	return &CurrencyRepository{pool: pool}
}

// GetByCode returns an active currency by code, case-insensitive.
func (r *CurrencyRepository) GetByCode(ctx context.Context, code string) (*catalog.Currency, error) {
	var c catalog.Currency
	err := r.pool.QueryRow(ctx, getCurrencySQL, code).Scan(&c.Code, &c.Rate, &c.Active)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrCurrencyNotFound
		}
		return nil, fmt.Errorf("getting currency %q: %w", code, err)
	}
	return &c, nil
}
