// Package catalog holds the product, segment, country, and currency types the
// pricing engine depends on, together with their read-side store contracts.
package catalog

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// Sentinel errors for catalog lookups.
var (
	ErrProductNotFound  = errors.New("product not found")
	ErrSegmentNotFound  = errors.New("customer segment not found")
	ErrCountryNotFound  = errors.New("country not found")
	ErrCurrencyNotFound = errors.New("currency not found")
)

// RON is the base settlement currency. All authoritative prices are stored in
// RON excluding VAT; every other figure is derived from them.
const RON = "RON"

// Product is a sellable catalog item. BasePrice is the unit price in RON
// excluding VAT. Configurable products are parents of concrete variants and
// cannot be purchased directly.
type Product struct {
	ID           int64
	SKU          string
	Name         string
	BasePrice    decimal.Decimal
	Stock        int
	Active       bool
	Configurable bool
	ParentID     *int64
	Tiers        []PriceTier
	CreatedAt    time.Time
}

// PriceTier is a quantity-break price for one customer segment. MaxQty nil
// means the tier is unbounded above. Price is in RON excluding VAT.
// Tiers are unique per (segment, min quantity).
type PriceTier struct {
	SegmentID int64
	MinQty    int
	MaxQty    *int
	Price     decimal.Decimal
}

// TierFor selects the tier for the given segment and quantity: the matching
// tier with the largest MinQty <= quantity whose MaxQty (if set) covers the
// quantity. It returns nil when no tier matches, in which case callers fall
// back to BasePrice.
func (p *Product) TierFor(segmentID int64, quantity int) *PriceTier {
	var best *PriceTier
	for i := range p.Tiers {
		t := &p.Tiers[i]
		if t.SegmentID != segmentID || t.MinQty > quantity {
			continue
		}
		if t.MaxQty != nil && *t.MaxQty < quantity {
			continue
		}
		if best == nil || t.MinQty > best.MinQty {
			best = t
		}
	}
	return best
}

// Segment classifies customers for pricing. Exactly one segment is the
// canonical B2C segment; it sees VAT-inclusive prices. Every other segment is
// a reverse-charge segment and is priced at 0% VAT.
type Segment struct {
	ID   int64
	Code string
	B2C  bool
}

// ReverseCharge reports whether the segment is VAT-exempt (buyer
// self-assesses VAT).
func (s Segment) ReverseCharge() bool {
	return !s.B2C
}

// Country is a tax jurisdiction.
type Country struct {
	ID   int64
	Code string
	Name string
}

// Currency is a display currency with its RON exchange rate: how many RON one
// unit of the currency is worth. RON itself always has rate 1.
type Currency struct {
	Code   string
	Rate   decimal.Decimal
	Active bool
}

// ProductStore provides read access to the product catalog.
type ProductStore interface {
	GetByID(ctx context.Context, id int64) (*Product, error)
	GetByIDs(ctx context.Context, ids []int64) ([]Product, error)
	// Children returns the concrete variants under a configurable parent.
	Children(ctx context.Context, parentID int64) ([]Product, error)
}

// SegmentStore provides read access to customer segments.
type SegmentStore interface {
	GetByID(ctx context.Context, id int64) (*Segment, error)
}

// CountryStore provides read access to countries.
type CountryStore interface {
	GetByID(ctx context.Context, id int64) (*Country, error)
	GetByCode(ctx context.Context, code string) (*Country, error)
}

// VatRateStore resolves the VAT percentage for a country. A country may carry
// several rate rows (standard, reduced); HighestRate returns the numerically
// highest one.
type VatRateStore interface {
	HighestRate(ctx context.Context, countryID int64) (decimal.Decimal, error)
}

// CurrencyStore provides read access to display currencies.
type CurrencyStore interface {
	GetByCode(ctx context.Context, code string) (*Currency, error)
}
