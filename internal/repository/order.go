package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/altmarket/storefront/internal/domain/order"
)

const (
	getOrderSQL = `SELECT id, number, status, customer_id, guest_email, currency, exchange_rate, avg_vat_rate,
		total_excl_ron, total_incl_ron, total_excl, total_incl,
		shipping_country_id, shipping_method_id, payment_method_id, paid, created_at
		FROM orders WHERE id = $1`

	getOrderLinesSQL = `SELECT id, order_id, product_id, sku, name, quantity, vat_rate, exchange_rate,
		unit_excl_ron, unit_incl_ron, total_excl_ron, total_incl_ron,
		unit_excl, unit_incl, total_excl, total_incl
		FROM order_lines WHERE order_id = $1 ORDER BY id`

	insertOrderSQL = `INSERT INTO orders (number, status, customer_id, guest_email, currency, exchange_rate, avg_vat_rate,
		total_excl_ron, total_incl_ron, total_excl, total_incl,
		shipping_country_id, shipping_method_id, payment_method_id, paid)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, FALSE)
		RETURNING id`

	setOrderNumberSQL = `UPDATE orders SET number = $2 WHERE id = $1`

	insertOrderLineSQL = `INSERT INTO order_lines (order_id, product_id, sku, name, quantity, vat_rate, exchange_rate,
		unit_excl_ron, unit_incl_ron, total_excl_ron, total_incl_ron,
		unit_excl, unit_incl, total_excl, total_incl)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`

	insertOrderAddressSQL = `INSERT INTO order_addresses (order_id, role, name, line1, line2, city, region, postal_code, country_id, phone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	insertOrderShippingSQL = `INSERT INTO order_shipping (order_id, method_name, vat_rate, cost_excl, cost_incl,
		pickup_point_id, pickup_carrier, pickup_name, pickup_city)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	lockStockSQL   = `SELECT stock FROM products WHERE id = $1 FOR UPDATE`
	adjustStockSQL = `UPDATE products SET stock = stock + $2 WHERE id = $1`

	deleteCartLinesSQL = `DELETE FROM cart_lines WHERE cart_id = $1`
	convertCartSQL     = `UPDATE carts SET status = 'converted', updated_at = NOW() WHERE id = $1`

	insertHistorySQL = `INSERT INTO order_history (order_id, actor_id, action, summary, before_state, after_state)
		VALUES ($1, $2, $3, $4, $5, $6)`
)

var _ order.Store = (*OrderRepository)(nil)

// OrderRepository implements order.Store backed by PostgreSQL.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// GetByID returns an order with its line snapshots.
func (r *OrderRepository) GetByID(ctx context.Context, id int64) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, getOrderSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}
	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %d: %w", id, err)
	}

	lineRows, err := r.pool.Query(ctx, getOrderLinesSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting lines for order %d: %w", id, err)
	}
	o.Lines, err = pgx.CollectRows(lineRows, scanOrderLine)
	if err != nil {
		return nil, fmt.Errorf("getting lines for order %d: %w", id, err)
	}
	return &o, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var o order.Order
	err := row.Scan(
		&o.ID, &o.Number, &o.Status, &o.CustomerID, &o.GuestEmail,
		&o.Currency, &o.ExchangeRate, &o.AvgVatRate,
		&o.TotalExclRON, &o.TotalInclRON, &o.TotalExcl, &o.TotalIncl,
		&o.ShippingCountryID, &o.ShippingMethodID, &o.PaymentMethodID,
		&o.Paid, &o.CreatedAt,
	)
	return o, err
}

func scanOrderLine(row pgx.CollectableRow) (order.Line, error) {
	var l order.Line
	err := row.Scan(
		&l.ID, &l.OrderID, &l.ProductID, &l.SKU, &l.Name, &l.Quantity,
		&l.VatRate, &l.ExchangeRate,
		&l.UnitExclRON, &l.UnitInclRON, &l.TotalExclRON, &l.TotalInclRON,
		&l.UnitExcl, &l.UnitIncl, &l.TotalExcl, &l.TotalIncl,
	)
	return l, err
}

// orderTxStore implements order.TxStore on a single pgx transaction.
type orderTxStore struct {
	tx pgx.Tx
}

var _ order.TxStore = (*orderTxStore)(nil)

func (s *orderTxStore) InsertOrder(ctx context.Context, o *order.Order) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx, insertOrderSQL,
		o.Number, o.Status, o.CustomerID, o.GuestEmail,
		o.Currency, o.ExchangeRate, o.AvgVatRate,
		o.TotalExclRON, o.TotalInclRON, o.TotalExcl, o.TotalIncl,
		o.ShippingCountryID, o.ShippingMethodID, o.PaymentMethodID,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("inserting order: %w", err)
	}
	return id, nil
}

func (s *orderTxStore) SetNumber(ctx context.Context, orderID int64, number string) error {
	_, err := s.tx.Exec(ctx, setOrderNumberSQL, orderID, number)
	if err != nil {
		return fmt.Errorf("setting number for order %d: %w", orderID, err)
	}
	return nil
}

func (s *orderTxStore) InsertLines(ctx context.Context, orderID int64, lines []order.Line) error {
	for _, l := range lines {
		_, err := s.tx.Exec(ctx, insertOrderLineSQL,
			orderID, l.ProductID, l.SKU, l.Name, l.Quantity, l.VatRate, l.ExchangeRate,
			l.UnitExclRON, l.UnitInclRON, l.TotalExclRON, l.TotalInclRON,
			l.UnitExcl, l.UnitIncl, l.TotalExcl, l.TotalIncl,
		)
		if err != nil {
			return fmt.Errorf("inserting line for order %d: %w", orderID, err)
		}
	}
	return nil
}

func (s *orderTxStore) InsertAddress(ctx context.Context, a *order.Address) error {
	_, err := s.tx.Exec(ctx, insertOrderAddressSQL,
		a.OrderID, a.Role, a.Name, a.Line1, a.Line2, a.City, a.Region,
		a.PostalCode, a.CountryID, a.Phone,
	)
	if err != nil {
		return fmt.Errorf("inserting %s address for order %d: %w", a.Role, a.OrderID, err)
	}
	return nil
}

func (s *orderTxStore) InsertShipping(ctx context.Context, sh *order.Shipping) error {
	_, err := s.tx.Exec(ctx, insertOrderShippingSQL,
		sh.OrderID, sh.MethodName, sh.VatRate, sh.CostExcl, sh.CostIncl,
		sh.PickupPointID, sh.PickupCarrier, sh.PickupName, sh.PickupCity,
	)
	if err != nil {
		return fmt.Errorf("inserting shipping for order %d: %w", sh.OrderID, err)
	}
	return nil
}

// LockStock acquires the exclusive row lock that serializes concurrent
// purchases of the same product. A lock-wait timeout surfaces as
// order.ErrStockContention so callers can retry.
func (s *orderTxStore) LockStock(ctx context.Context, productID int64) (int, error) {
	var stock int
	err := s.tx.QueryRow(ctx, lockStockSQL, productID).Scan(&stock)
	if err != nil {
		if isLockTimeout(err) {
			return 0, order.ErrStockContention
		}
		return 0, fmt.Errorf("locking stock for product %d: %w", productID, err)
	}
	return stock, nil
}

func (s *orderTxStore) AdjustStock(ctx context.Context, productID int64, delta int) error {
	_, err := s.tx.Exec(ctx, adjustStockSQL, productID, delta)
	if err != nil {
		return fmt.Errorf("adjusting stock for product %d: %w", productID, err)
	}
	return nil
}

func (s *orderTxStore) ConvertCart(ctx context.Context, cartID int64) error {
	if _, err := s.tx.Exec(ctx, deleteCartLinesSQL, cartID); err != nil {
		return fmt.Errorf("clearing lines for cart %d: %w", cartID, err)
	}
	if _, err := s.tx.Exec(ctx, convertCartSQL, cartID); err != nil {
		return fmt.Errorf("converting cart %d: %w", cartID, err)
	}
	return nil
}

func (s *orderTxStore) AppendHistory(ctx context.Context, e *order.HistoryEntry) error {
	_, err := s.tx.Exec(ctx, insertHistorySQL,
		e.OrderID, e.ActorID, e.Action, e.Summary, e.Before, e.After,
	)
	if err != nil {
		return fmt.Errorf("appending history for order %d: %w", e.OrderID, err)
	}
	return nil
}
