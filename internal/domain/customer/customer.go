// Package customer holds the shopper identity and address-book types the
// checkout path depends on.
package customer

import (
	"context"
	"time"

	"github.com/go-faster/errors"
)

// Sentinel errors for customer lookups.
var (
	ErrNotFound        = errors.New("customer not found")
	ErrAddressNotFound = errors.New("address not found")
)

// Kind distinguishes private shoppers from company accounts.
type Kind string

const (
	KindIndividual Kind = "individual"
	KindCompany    Kind = "company"
)

// Customer is an authenticated shopper. SegmentID ties the account to its
// pricing segment.
type Customer struct {
	ID        int64
	Email     string
	Name      string
	Kind      Kind
	SegmentID int64
	// VatNumber is set for company accounts registered for VAT.
	VatNumber string
}

// AddressKind distinguishes delivery addresses from a company's registered
// office.
type AddressKind string

const (
	AddressDelivery         AddressKind = "delivery"
	AddressRegisteredOffice AddressKind = "registered_office"
)

// Address is one address-book entry.
type Address struct {
	ID         int64
	CustomerID int64
	Kind       AddressKind
	Preferred  bool
	Line1      string
	Line2      string
	City       string
	Region     string
	PostalCode string
	CountryID  int64
	Phone      string
	CreatedAt  time.Time
}

// Store provides read access to customer accounts.
type Store interface {
	GetByID(ctx context.Context, id int64) (*Customer, error)
}

// AddressStore provides read access to the address book.
type AddressStore interface {
	GetByID(ctx context.Context, id int64) (*Address, error)
	// PreferredOrLatest returns the customer's preferred address, or the most
	// recently created one when none is marked preferred. Returns
	// ErrAddressNotFound when the customer has no addresses at all.
	PreferredOrLatest(ctx context.Context, customerID int64) (*Address, error)
	// RegisteredOffice returns the customer's registered-office address, or
	// ErrAddressNotFound when none exists.
	RegisteredOffice(ctx context.Context, customerID int64) (*Address, error)
}
