// Package checkout validates an intended checkout without mutating state and
// produces the typed context the order creator consumes.
package checkout

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/altmarket/storefront/internal/domain/cart"
	"github.com/altmarket/storefront/internal/domain/catalog"
	"github.com/altmarket/storefront/internal/domain/customer"
)

// PaymentMethod is a configured way to pay.
type PaymentMethod struct {
	ID     int64
	Code   string
	Name   string
	Active bool
}

// ShippingMethod is a configured way to deliver. Pickup methods deliver to a
// courier pickup point instead of a street address. Cost is in RON excluding
// VAT.
type ShippingMethod struct {
	ID     int64
	Code   string
	Name   string
	Pickup bool
	Cost   decimal.Decimal
	Active bool
}

// PaymentMethodStore provides read access to payment methods.
type PaymentMethodStore interface {
	GetByID(ctx context.Context, id int64) (*PaymentMethod, error)
}

// ShippingMethodStore provides read access to shipping methods.
type ShippingMethodStore interface {
	GetByID(ctx context.Context, id int64) (*ShippingMethod, error)
}

// GuestContact identifies an unauthenticated shopper. Email is mandatory.
type GuestContact struct {
	Email string
	Name  string
	Phone string
}

// InlineAddress is structured address data submitted with a guest checkout,
// as opposed to a reference into an authenticated customer's address book.
type InlineAddress struct {
	Name        string
	Line1       string
	Line2       string
	City        string
	Region      string
	PostalCode  string
	CountryCode string
	Phone       string
}

type addressRefKind uint8

const (
	addressRefNone addressRefKind = iota
	addressRefStored
	addressRefInline
)

// AddressRef is a tagged reference to either a stored address-book entry
// (authenticated checkout) or inline address data (guest checkout). The two
// cases are statically distinguishable; a zero AddressRef means "absent".
type AddressRef struct {
	kind     addressRefKind
	storedID int64
	inline   *InlineAddress
}

// StoredAddress references an address-book entry by id.
func StoredAddress(id int64) AddressRef {
	return AddressRef{kind: addressRefStored, storedID: id}
}

// InlineAddressRef wraps inline address data.
func InlineAddressRef(a InlineAddress) AddressRef {
	return AddressRef{kind: addressRefInline, inline: &a}
}

// IsZero reports whether no address was supplied.
func (r AddressRef) IsZero() bool { return r.kind == addressRefNone }

// Stored returns the referenced address-book id when the ref is a stored one.
func (r AddressRef) Stored() (int64, bool) {
	return r.storedID, r.kind == addressRefStored
}

// Inline returns the inline data when the ref carries it.
func (r AddressRef) Inline() (*InlineAddress, bool) {
	if r.kind != addressRefInline {
		return nil, false
	}
	return r.inline, true
}

// Request is an intended checkout as submitted by the caller. Totals are
// never part of the request; the server recomputes them.
type Request struct {
	// CustomerID is zero for guest checkouts.
	CustomerID int64
	Guest      *GuestContact
	// GuestLines is the session cart for guest checkouts; ignored for
	// authenticated customers, whose persisted cart is loaded instead.
	GuestLines cart.Lines

	Billing  AddressRef
	Shipping AddressRef
	// PickupPayload is the raw courier payload for pickup-point methods. It
	// is parsed with strict structural validation before use.
	PickupPayload map[string]any

	ShippingMethodID int64
	PaymentMethodID  int64
	Currency         string
	ClientIP         string
}

// ResolvedAddress is an address after validation: either a verified stored
// entry or accepted inline data, with the jurisdiction country resolved.
type ResolvedAddress struct {
	Stored    *customer.Address
	Inline    *InlineAddress
	CountryID int64
}

// Context is a fully validated checkout, ready for order creation.
type Context struct {
	Customer *customer.Customer
	Guest    *GuestContact
	Segment  catalog.Segment

	CartID int64 // zero for guest checkouts
	Lines  cart.Lines

	Billing        ResolvedAddress
	Shipping       *ResolvedAddress // nil for pickup deliveries
	Pickup         *PickupPoint
	ShippingMethod *ShippingMethod
	PaymentMethod  *PaymentMethod
	Currency       string

	// Warnings are non-blocking notices, currently stock shortfalls
	// (backorder policy).
	Warnings []string
}

// FieldError is one user-correctable validation problem.
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}

// ValidationErrors is the itemized list of correctable problems found in a
// checkout request.
type ValidationErrors []FieldError

func (v ValidationErrors) Error() string {
	msgs := make([]string, len(v))
	for i, e := range v {
		msgs[i] = e.Error()
	}
	return "checkout validation failed: " + strings.Join(msgs, "; ")
}
