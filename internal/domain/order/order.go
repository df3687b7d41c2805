// Package order turns a validated cart into an immutable, fully snapshotted
// order inside a single transaction.
package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Status is the lifecycle state of an order. Only status and payment flags
// ever change after creation; everything else is frozen.
type Status string

const (
	StatusNew       Status = "new"
	StatusPaid      Status = "paid"
	StatusShipped   Status = "shipped"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ErrNotFound is returned when a requested order does not exist.
var ErrNotFound = errors.New("order not found")

// ErrStockContention is returned when the stock row lock could not be
// acquired within the transaction's lock timeout. The request is safe to
// retry.
var ErrStockContention = errors.New("stock row is locked, try again")

// ConfigurationError is a fatal operator-facing problem: the order cannot be
// priced safely and no user action can fix it.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("order configuration error: %s: %s", e.Reason, e.Err)
	}
	return "order configuration error: " + e.Reason
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// Order is the frozen result of a checkout. Currency, exchange rate, and the
// average VAT rate are captured at creation time and never recomputed.
type Order struct {
	ID     int64
	Number string
	Status Status

	CustomerID *int64
	GuestEmail string

	Currency     string
	ExchangeRate decimal.Decimal
	AvgVatRate   decimal.Decimal

	TotalExclRON decimal.Decimal
	TotalInclRON decimal.Decimal
	TotalExcl    decimal.Decimal
	TotalIncl    decimal.Decimal

	ShippingCountryID int64
	ShippingMethodID  int64
	PaymentMethodID   int64
	Paid              bool

	Lines     []Line
	CreatedAt time.Time
}

// Line is an order line snapshot. Name, SKU, prices, VAT rate, and exchange
// rate are copied from live data at order time and never follow later catalog
// changes.
type Line struct {
	ID        int64
	OrderID   int64
	ProductID int64
	SKU       string
	Name      string
	Quantity  int

	VatRate      decimal.Decimal
	ExchangeRate decimal.Decimal

	UnitExclRON  decimal.Decimal
	UnitInclRON  decimal.Decimal
	TotalExclRON decimal.Decimal
	TotalInclRON decimal.Decimal
	UnitExcl     decimal.Decimal
	UnitIncl     decimal.Decimal
	TotalExcl    decimal.Decimal
	TotalIncl    decimal.Decimal
}

// AddressRole distinguishes the one or two address snapshots an order owns.
type AddressRole string

const (
	AddressBilling  AddressRole = "billing"
	AddressShipping AddressRole = "shipping"
)

// Address is an order-owned address snapshot.
type Address struct {
	ID         int64
	OrderID    int64
	Role       AddressRole
	Name       string
	Line1      string
	Line2      string
	City       string
	Region     string
	PostalCode string
	CountryID  int64
	Phone      string
}

// Shipping is the order-owned delivery snapshot: cost with VAT treatment plus
// pickup metadata when the delivery goes to a courier point.
type Shipping struct {
	OrderID    int64
	MethodName string
	VatRate    decimal.Decimal
	CostExcl   decimal.Decimal
	CostIncl   decimal.Decimal

	PickupPointID string
	PickupCarrier string
	PickupName    string
	PickupCity    string
}

// HistoryEntry is one append-only audit record. ActorID is nil for guest
// checkouts and system transitions.
type HistoryEntry struct {
	ID        int64
	OrderID   int64
	ActorID   *int64
	Action    string
	Summary   string
	Before    string
	After     string
	CreatedAt time.Time
}

// Store provides read access to persisted orders.
type Store interface {
	GetByID(ctx context.Context, id int64) (*Order, error)
}

// TxStore is the transaction-scoped write surface used during order
// creation. Every method runs on the same underlying transaction.
type TxStore interface {
	// InsertOrder persists the order with its placeholder number and returns
	// the generated id.
	InsertOrder(ctx context.Context, o *Order) (int64, error)
	// SetNumber replaces the placeholder with the permanent order code.
	SetNumber(ctx context.Context, orderID int64, number string) error
	InsertLines(ctx context.Context, orderID int64, lines []Line) error
	InsertAddress(ctx context.Context, a *Address) error
	InsertShipping(ctx context.Context, s *Shipping) error
	// LockStock acquires an exclusive row lock on the product and returns the
	// current stock. It returns ErrStockContention when the lock wait times
	// out.
	LockStock(ctx context.Context, productID int64) (int, error)
	// AdjustStock applies the delta to the locked product row. Stock may go
	// negative (backorder policy).
	AdjustStock(ctx context.Context, productID int64, delta int) error
	// ConvertCart deletes the cart's lines and marks the cart converted.
	ConvertCart(ctx context.Context, cartID int64) error
	AppendHistory(ctx context.Context, e *HistoryEntry) error
}

// Transactor runs fn inside one database transaction. Any error rolls back
// everything; there is no partial order.
type Transactor interface {
	InTx(ctx context.Context, fn func(ctx context.Context, s TxStore) error) error
}
