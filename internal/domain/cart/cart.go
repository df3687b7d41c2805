// Package cart maintains the working set of shopping lines for guests and
// authenticated customers and keeps cart totals consistent with live prices.
package cart

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for cart operations.
var (
	// ErrInvalidOperation rejects lines for products that cannot be sold
	// directly (configurable parents of variant families).
	ErrInvalidOperation = errors.New("product cannot be added to cart")
	ErrCartNotFound     = errors.New("cart not found")
)

// Status is the lifecycle state of a persisted cart.
type Status string

const (
	StatusActive    Status = "active"
	StatusConverted Status = "converted"
)

// LineKey identifies a cart line. Lines are keyed by product AND segment: the
// same product can sit in a cart twice at two different negotiated prices
// when the segment context changes.
type LineKey struct {
	ProductID int64
	SegmentID int64
}

// Line is one (product, segment, quantity) entry.
type Line struct {
	ProductID int64
	SegmentID int64
	Quantity  int
}

// Key returns the identity of the line.
func (l Line) Key() LineKey {
	return LineKey{ProductID: l.ProductID, SegmentID: l.SegmentID}
}

// Lines is an in-memory line set keyed by LineKey. It backs guest carts and
// is the shape both cart flavours present to pricing.
type Lines map[LineKey]Line

// Add merges a line into the set, summing quantities on key collision.
func (ls Lines) Add(l Line) {
	k := l.Key()
	if existing, ok := ls[k]; ok {
		existing.Quantity += l.Quantity
		ls[k] = existing
		return
	}
	ls[k] = l
}

// SetQuantity replaces the quantity under key. A non-positive quantity
// removes the line.
func (ls Lines) SetQuantity(k LineKey, quantity int) {
	if quantity <= 0 {
		delete(ls, k)
		return
	}
	l := ls[k]
	l.ProductID, l.SegmentID, l.Quantity = k.ProductID, k.SegmentID, quantity
	ls[k] = l
}

// GuestCart is the ephemeral, session-scoped cart of an unauthenticated
// shopper. The session layer owns the value; the aggregator only mutates it.
type GuestCart struct {
	Lines Lines
}

// NewGuestCart returns an empty guest cart.
func NewGuestCart() *GuestCart {
	return &GuestCart{Lines: make(Lines)}
}

// Cart is a persisted customer cart.
type Cart struct {
	ID         int64
	CustomerID int64
	Status     Status
	// Total is the display-currency total, refreshed on every mutation so it
	// never drifts from current prices.
	Total     decimal.Decimal
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Store persists customer carts and their lines.
type Store interface {
	// ActiveCart returns the customer's active cart, creating one if needed.
	ActiveCart(ctx context.Context, customerID int64) (*Cart, error)
	Lines(ctx context.Context, cartID int64) ([]Line, error)
	// UpsertLine inserts the line or replaces the quantity of an existing
	// line with the same key.
	UpsertLine(ctx context.Context, cartID int64, l Line) error
	RemoveLine(ctx context.Context, cartID int64, key LineKey) error
	SetTotal(ctx context.Context, cartID int64, total decimal.Decimal) error
}

// Summary is the aggregate view of a cart in one display currency.
type Summary struct {
	ItemCount    int
	TotalExclVat decimal.Decimal
	TotalInclVat decimal.Decimal
	VatRate      decimal.Decimal
	VatIncluded  bool
	Currency     string
}
