//go:build integration

package integration

import (
	"net/http"
	"strconv"
	"testing"
)

// amount parses a string-encoded decimal from an API response.
func amount(t *testing.T, s string) float64 {
	t.Helper()
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		t.Fatalf("parse amount %q: %v", s, err)
	}
	return v
}

func TestProductPrice_GuestRetail(t *testing.T) {
	resp := doGet(t, "/api/products/1/price")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	price := decodeJSON[priceResponse](t, resp)
	if price.SKU != "CBL-CAT6-1M" {
		t.Errorf("sku: got %q", price.SKU)
	}
	if price.Quantity != 1 {
		t.Errorf("quantity: got %d, want 1", price.Quantity)
	}
	if !price.Price.VatIncluded {
		t.Error("retail pricing must display VAT-inclusive prices")
	}
	if got := amount(t, price.Price.VatRate); got != 19 {
		t.Errorf("vat rate: got %v, want 19", got)
	}
	// 14.90 excl -> 17.73 incl at 19%.
	if got := amount(t, price.Price.UnitExclVat); got != 14.90 {
		t.Errorf("unit excl: got %v, want 14.90", got)
	}
	if got := amount(t, price.Price.UnitInclVat); got != 17.73 {
		t.Errorf("unit incl: got %v, want 17.73", got)
	}
	if price.Price.Currency != "RON" {
		t.Errorf("currency: got %q, want RON", price.Price.Currency)
	}
}

func TestProductPrice_QuantityTotals(t *testing.T) {
	resp := doGet(t, "/api/products/1/price?quantity=3")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	price := decodeJSON[priceResponse](t, resp)
	if got := amount(t, price.Price.TotalExclVat); got != 44.70 {
		t.Errorf("total excl: got %v, want 44.70", got)
	}
	if got := amount(t, price.Price.TotalInclVat); got != 53.19 {
		t.Errorf("total incl: got %v, want 53.19 (3 * 17.73)", got)
	}
}

func TestProductPrice_RetailTierKicksIn(t *testing.T) {
	// RTR-AX-EU has a retail tier at 2+ units for 469.00.
	resp := doGet(t, "/api/products/3/price?quantity=2")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	price := decodeJSON[priceResponse](t, resp)
	if got := amount(t, price.Price.UnitExclVat); got != 469 {
		t.Errorf("tier unit excl: got %v, want 469", got)
	}
	if got := amount(t, price.Price.TotalExclVat); got != 938 {
		t.Errorf("tier total excl: got %v, want 938", got)
	}

	if len(price.Tiers) != 1 {
		t.Fatalf("expected 1 tier quote, got %d", len(price.Tiers))
	}
	if !price.Tiers[0].Current {
		t.Error("the 2+ tier should be marked current at quantity 2")
	}
	if price.Tiers[0].MinQty != 2 {
		t.Errorf("tier min qty: got %d, want 2", price.Tiers[0].MinQty)
	}
}

func TestProductPrice_BelowTierUsesBasePrice(t *testing.T) {
	resp := doGet(t, "/api/products/3/price?quantity=1")
	defer resp.Body.Close()

	price := decodeJSON[priceResponse](t, resp)
	if got := amount(t, price.Price.UnitExclVat); got != 499 {
		t.Errorf("unit excl: got %v, want base price 499", got)
	}
	if price.Tiers[0].Current {
		t.Error("tier must not be current below its minimum quantity")
	}
}

func TestProductPrice_CurrencyConversion(t *testing.T) {
	resp := doGet(t, "/api/products/1/price?currency=EUR")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	price := decodeJSON[priceResponse](t, resp)
	if price.Price.Currency != "EUR" {
		t.Errorf("currency: got %q, want EUR", price.Price.Currency)
	}
	if got := amount(t, price.Price.ExchangeRate); got != 4.97 {
		t.Errorf("exchange rate: got %v, want 4.97", got)
	}
	// 14.90 / 4.97 = 3.00 rounded.
	if got := amount(t, price.Price.UnitExclVat); got != 3.00 {
		t.Errorf("unit excl EUR: got %v, want 3.00", got)
	}
}

func TestProductPrice_UnknownCurrency(t *testing.T) {
	resp := doGet(t, "/api/products/1/price?currency=XXX")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestProductPrice_UnknownProduct(t *testing.T) {
	resp := doGet(t, "/api/products/9999/price")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestProductPrice_InvalidID(t *testing.T) {
	resp := doGet(t, "/api/products/zero/price")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}
