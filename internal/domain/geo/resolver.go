// Package geo resolves the tax jurisdiction for a request. Resolution is a
// short chain, terminal on first match: the customer's address book, then a
// cached IP geolocation, then the configured default country. The default
// step never fails, so every pricing call receives a valid country.
package geo

import (
	"context"
	"net/netip"
	"strconv"
	"time"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/altmarket/storefront/internal/cache"
	"github.com/altmarket/storefront/internal/domain/catalog"
	"github.com/altmarket/storefront/internal/domain/customer"
	"github.com/altmarket/storefront/internal/geoip"
)

// geoCacheTTL is how long a resolved IP -> country mapping stays valid.
const geoCacheTTL = 7 * 24 * time.Hour

// Resolver determines the tax jurisdiction country for pricing.
type Resolver struct {
	addresses customer.AddressStore
	countries catalog.CountryStore
	lookup    geoip.Lookup
	cache     cache.Cache

	defaultCountryID int64
}

// NewResolver creates a country Resolver. defaultCountryID is the terminal
// fallback jurisdiction (Romania in production).
func NewResolver(
	addresses customer.AddressStore,
	countries catalog.CountryStore,
	lookup geoip.Lookup,
	c cache.Cache,
	defaultCountryID int64,
) *Resolver {
	return &Resolver{
		addresses:        addresses,
		countries:        countries,
		lookup:           lookup,
		cache:            c,
		defaultCountryID: defaultCountryID,
	}
}

// ResolveForCustomer returns the jurisdiction country id for an authenticated
// customer: the preferred address if one is marked, otherwise the most
// recently created address, otherwise the IP chain. customerID zero means
// guest and skips the address book entirely.
func (r *Resolver) ResolveForCustomer(ctx context.Context, customerID int64, clientIP string) int64 {
	if customerID != 0 {
		addr, err := r.addresses.PreferredOrLatest(ctx, customerID)
		if err == nil && addr != nil {
			return addr.CountryID
		}
	}
	return r.ResolveForIP(ctx, clientIP)
}

// ResolveForIP returns the jurisdiction country id from IP geolocation alone,
// ignoring the address book. Used by address-entry forms to preselect a
// country. Local, private, and unparsable addresses fall straight through to
// the default.
func (r *Resolver) ResolveForIP(ctx context.Context, clientIP string) int64 {
	if clientIP == "" {
		return r.defaultCountryID
	}
	addr, err := netip.ParseAddr(clientIP)
	if err != nil || addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsUnspecified() {
		return r.defaultCountryID
	}

	key := "geo:ip:" + clientIP
	if v, ok := r.cache.Get(ctx, key); ok {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			return id
		}
	}

	code, err := r.lookup.CountryForIP(ctx, clientIP)
	if err != nil {
		// Degradation is expected here; log at debug and keep going.
		zctx.From(ctx).Debug("geoip lookup failed", zap.String("ip", clientIP), zap.Error(err))
		return r.defaultCountryID
	}

	country, err := r.countries.GetByCode(ctx, code)
	if err != nil {
		return r.defaultCountryID
	}

	r.cache.Set(ctx, key, strconv.FormatInt(country.ID, 10), geoCacheTTL)
	return country.ID
}
