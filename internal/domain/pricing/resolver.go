// Package pricing computes unit and total prices for catalog products,
// including tier selection, VAT treatment per jurisdiction and customer
// segment, and display-currency conversion.
//
// All authoritative amounts are RON excluding VAT. Every derived figure is
// rounded to two decimals immediately after the arithmetic step that produced
// it, so floating drift stays within one minor unit per line.
package pricing

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/altmarket/storefront/internal/domain/catalog"
)

// ErrRateNotFound indicates the resolved country has no VAT rate row.
// Charging an undetermined tax rate is unsafe, so this is fatal for the
// request rather than recoverable.
var ErrRateNotFound = errors.New("vat rate not found for country")

// InvalidExchangeRateError indicates a currency whose stored RON rate is not
// strictly positive. This is operator misconfiguration, not user input.
type InvalidExchangeRateError struct {
	Currency string
	Rate     decimal.Decimal
}

func (e *InvalidExchangeRateError) Error() string {
	return fmt.Sprintf("currency %s has non-positive exchange rate %s", e.Currency, e.Rate)
}

var (
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// RateMemo caches resolved VAT rates by country id for the duration of one
// request. Create one per request and thread it through the pricing calls;
// it is not safe for concurrent use and must not outlive the request.
type RateMemo map[int64]decimal.Decimal

// NewRateMemo returns an empty per-request VAT rate memo.
func NewRateMemo() RateMemo {
	return make(RateMemo)
}

// Breakdown is the full price picture for one (product, quantity) pair: unit
// and total in both RON and the display currency, with and without VAT.
type Breakdown struct {
	Currency     string
	ExchangeRate decimal.Decimal
	VatRate      decimal.Decimal
	// ShowVat is true only for the canonical B2C segment; reverse-charge
	// segments see VAT-exempt prices.
	ShowVat bool

	UnitExclRON  decimal.Decimal
	UnitInclRON  decimal.Decimal
	TotalExclRON decimal.Decimal
	TotalInclRON decimal.Decimal

	UnitExcl  decimal.Decimal
	UnitIncl  decimal.Decimal
	TotalExcl decimal.Decimal
	TotalIncl decimal.Decimal
}

// TierQuote is one price tier formatted for display, with VAT-aware prices in
// RON and the display currency. IsCurrent marks the tier that the presently
// selected quantity falls into.
type TierQuote struct {
	MinQty      int
	MaxQty      *int
	UnitExclRON decimal.Decimal
	UnitInclRON decimal.Decimal
	UnitExcl    decimal.Decimal
	UnitIncl    decimal.Decimal
	IsCurrent   bool
}

// Resolver derives prices from catalog data. It is the single pricing entry
// point: cart display and order creation both go through PriceInfo, so no
// caller re-derives pricing on its own.
type Resolver struct {
	vatRates   catalog.VatRateStore
	currencies catalog.CurrencyStore
}

// NewResolver creates a price Resolver.
func NewResolver(vatRates catalog.VatRateStore, currencies catalog.CurrencyStore) *Resolver {
	return &Resolver{vatRates: vatRates, currencies: currencies}
}

// UnitPriceRON resolves the RON-excluding-VAT unit price for the product at
// the given quantity and segment, applying tier selection with fallback to
// the base price.
func (r *Resolver) UnitPriceRON(p *catalog.Product, quantity int, segment catalog.Segment) decimal.Decimal {
	if t := p.TierFor(segment.ID, quantity); t != nil {
		return t.Price
	}
	return p.BasePrice
}

// VatRate returns the VAT percentage for the country and segment.
// Reverse-charge segments are always 0. Lookups are memoized per country in
// the supplied memo. Returns ErrRateNotFound when the country has no rate row.
func (r *Resolver) VatRate(ctx context.Context, memo RateMemo, countryID int64, segment catalog.Segment) (decimal.Decimal, error) {
	if segment.ReverseCharge() {
		return decimal.Zero, nil
	}
	if rate, ok := memo[countryID]; ok {
		return rate, nil
	}

	rate, err := r.vatRates.HighestRate(ctx, countryID)
	if err != nil {
		return decimal.Zero, errors.Wrapf(ErrRateNotFound, "country %d: %s", countryID, err)
	}
	memo[countryID] = rate
	return rate, nil
}

// ExclToIncl adds VAT to a net amount, rounding to two decimals immediately.
func ExclToIncl(excl, ratePct decimal.Decimal) decimal.Decimal {
	return excl.Mul(one.Add(ratePct.Div(hundred))).Round(2)
}

// InclToExcl strips VAT from a gross amount, rounding to two decimals
// immediately.
func InclToExcl(incl, ratePct decimal.Decimal) decimal.Decimal {
	return incl.Div(one.Add(ratePct.Div(hundred))).Round(2)
}

// Currency loads and validates a display currency. The RON exchange rate must
// be strictly positive.
func (r *Resolver) Currency(ctx context.Context, code string) (*catalog.Currency, error) {
	if code == catalog.RON {
		return &catalog.Currency{Code: catalog.RON, Rate: one, Active: true}, nil
	}
	cur, err := r.currencies.GetByCode(ctx, code)
	if err != nil {
		return nil, errors.Wrapf(err, "currency %q", code)
	}
	if !cur.Rate.IsPositive() {
		return nil, &InvalidExchangeRateError{Currency: cur.Code, Rate: cur.Rate}
	}
	return cur, nil
}

// ConvertFromRON converts a RON amount into the given currency. Identity for
// RON; otherwise the amount is divided by the currency's RON rate and rounded
// to two decimals.
func ConvertFromRON(ronAmount decimal.Decimal, cur *catalog.Currency) decimal.Decimal {
	if cur.Code == catalog.RON {
		return ronAmount
	}
	return ronAmount.Div(cur.Rate).Round(2)
}

// PriceInfo composes tier selection, VAT resolution, and currency conversion
// into the full breakdown for (product, quantity, segment, country) in the
// given display currency.
func (r *Resolver) PriceInfo(
	ctx context.Context,
	memo RateMemo,
	p *catalog.Product,
	currencyCode string,
	quantity int,
	segment catalog.Segment,
	countryID int64,
) (*Breakdown, error) {
	cur, err := r.Currency(ctx, currencyCode)
	if err != nil {
		return nil, err
	}

	rate, err := r.VatRate(ctx, memo, countryID, segment)
	if err != nil {
		return nil, err
	}

	qty := decimal.NewFromInt(int64(quantity))
	unitExclRON := r.UnitPriceRON(p, quantity, segment).Round(2)
	unitInclRON := ExclToIncl(unitExclRON, rate)
	totalExclRON := unitExclRON.Mul(qty).Round(2)
	totalInclRON := unitInclRON.Mul(qty).Round(2)

	return &Breakdown{
		Currency:     cur.Code,
		ExchangeRate: cur.Rate,
		VatRate:      rate,
		ShowVat:      segment.B2C,

		UnitExclRON:  unitExclRON,
		UnitInclRON:  unitInclRON,
		TotalExclRON: totalExclRON,
		TotalInclRON: totalInclRON,

		UnitExcl:  ConvertFromRON(unitExclRON, cur),
		UnitIncl:  ConvertFromRON(unitInclRON, cur),
		TotalExcl: ConvertFromRON(totalExclRON, cur),
		TotalIncl: ConvertFromRON(totalInclRON, cur),
	}, nil
}

// PriceTiers formats every tier of the product for the given segment as
// display-ready quotes, ordered by ascending minimum quantity. The tier
// matching the presently selected quantity is flagged IsCurrent.
func (r *Resolver) PriceTiers(
	ctx context.Context,
	memo RateMemo,
	p *catalog.Product,
	currencyCode string,
	quantity int,
	segment catalog.Segment,
	countryID int64,
) ([]TierQuote, error) {
	cur, err := r.Currency(ctx, currencyCode)
	if err != nil {
		return nil, err
	}
	rate, err := r.VatRate(ctx, memo, countryID, segment)
	if err != nil {
		return nil, err
	}

	current := p.TierFor(segment.ID, quantity)

	quotes := make([]TierQuote, 0, len(p.Tiers))
	for i := range p.Tiers {
		t := &p.Tiers[i]
		if t.SegmentID != segment.ID {
			continue
		}
		unitExcl := t.Price.Round(2)
		unitIncl := ExclToIncl(unitExcl, rate)
		quotes = append(quotes, TierQuote{
			MinQty:      t.MinQty,
			MaxQty:      t.MaxQty,
			UnitExclRON: unitExcl,
			UnitInclRON: unitIncl,
			UnitExcl:    ConvertFromRON(unitExcl, cur),
			UnitIncl:    ConvertFromRON(unitIncl, cur),
			IsCurrent:   current != nil && current.MinQty == t.MinQty,
		})
	}

	// Order by ascending MinQty for "buy N more" hints.
	for i := 1; i < len(quotes); i++ {
		for j := i; j > 0 && quotes[j].MinQty < quotes[j-1].MinQty; j-- {
			quotes[j], quotes[j-1] = quotes[j-1], quotes[j]
		}
	}
	return quotes, nil
}
