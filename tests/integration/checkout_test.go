//go:build integration

package integration

import (
	"net/http"
	"regexp"
	"strings"
	"sync"
	"testing"
)

var orderNumberPattern = regexp.MustCompile(`^[CDFGHJKMNPQRTVWXZ]{3}-[CDFGHJKMNPQRTVWXZ]{3}-[CDFGHJKMNPQRTVWXZ]{3}$`)

func guestAddress() *inlineAddress {
	return &inlineAddress{
		Line1:       "Strada Lunga 42",
		City:        "Brasov",
		PostalCode:  "500001",
		CountryCode: "RO",
	}
}

func guestCheckout(lines []cartLineRequest) checkoutRequest {
	return checkoutRequest{
		Guest:            &guestContact{Email: "guest@example.com", Name: "Guest Shopper"},
		GuestLines:       lines,
		Billing:          guestAddress(),
		Shipping:         guestAddress(),
		ShippingMethodID: 1, // courier, 19.90
		PaymentMethodID:  1, // card
	}
}

func TestCheckout_GuestHappyPath(t *testing.T) {
	req := guestCheckout([]cartLineRequest{{ProductID: 1, Quantity: 2}})
	resp := doPost(t, "/api/checkout", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	o := decodeJSON[orderResponse](t, resp)
	if !orderNumberPattern.MatchString(o.Number) {
		t.Errorf("order number %q does not match the code format", o.Number)
	}
	if o.Status != "new" {
		t.Errorf("status: got %q, want new", o.Status)
	}
	if o.Paid {
		t.Error("orders are created unpaid")
	}

	// 2 * 14.90 + 19.90 shipping = 49.70 excl; 2 * 17.73 + 23.68 = 59.14 incl.
	if got := amount(t, o.TotalExclVat); got != 49.70 {
		t.Errorf("total excl: got %v, want 49.70", got)
	}
	if got := amount(t, o.TotalInclVat); got != 59.14 {
		t.Errorf("total incl: got %v, want 59.14", got)
	}

	if len(o.Lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(o.Lines))
	}
	line := o.Lines[0]
	if line.SKU != "CBL-CAT6-1M" {
		t.Errorf("line sku: got %q", line.SKU)
	}
	if line.Quantity != 2 {
		t.Errorf("line quantity: got %d, want 2", line.Quantity)
	}
	if got := amount(t, line.TotalInclVat); got != 35.46 {
		t.Errorf("line total incl: got %v, want 35.46", got)
	}
}

func TestCheckout_PickupPoint(t *testing.T) {
	req := guestCheckout([]cartLineRequest{{ProductID: 3, Quantity: 1}})
	req.ShippingMethodID = 2 // locker, 12.90
	req.Shipping = nil
	req.Pickup = map[string]any{
		"point_id":   "LKR-0042",
		"carrier":    "sameday",
		"name":       "Easybox Unirii",
		"city":       "Bucuresti",
		"country_id": 1,
	}

	resp := doPost(t, "/api/checkout", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	o := decodeJSON[orderResponse](t, resp)
	// 499.00 + 12.90 = 511.90 excl; 593.81 + 15.35 = 609.16 incl.
	if got := amount(t, o.TotalExclVat); got != 511.90 {
		t.Errorf("total excl: got %v, want 511.90", got)
	}
	if got := amount(t, o.TotalInclVat); got != 609.16 {
		t.Errorf("total incl: got %v, want 609.16", got)
	}
}

func TestCheckout_PickupPayloadRejected(t *testing.T) {
	req := guestCheckout([]cartLineRequest{{ProductID: 1, Quantity: 1}})
	req.ShippingMethodID = 2
	req.Shipping = nil
	req.Pickup = map[string]any{
		"point_id":   "LKR-0042",
		"carrier":    "sameday",
		"country_id": 1,
		"metadata":   map[string]any{"injected": true},
	}

	resp := doPost(t, "/api/checkout", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}

	body := decodeJSON[errorResponse](t, resp)
	if len(body.Errors) != 1 || body.Errors[0].Field != "pickup_point" {
		t.Errorf("expected a pickup_point field error, got %+v", body.Errors)
	}
}

func TestCheckout_ValidationErrorsItemized(t *testing.T) {
	req := checkoutRequest{
		Guest:      &guestContact{Email: "guest@example.com"},
		GuestLines: []cartLineRequest{{ProductID: 1, Quantity: 1}},
		// billing, shipping method, and payment method all missing
	}

	resp := doPost(t, "/api/checkout", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}

	body := decodeJSON[errorResponse](t, resp)
	fields := make(map[string]bool, len(body.Errors))
	for _, fe := range body.Errors {
		fields[fe.Field] = true
	}
	for _, want := range []string{"billing", "shipping_method", "payment_method"} {
		if !fields[want] {
			t.Errorf("missing field error %q in %+v", want, body.Errors)
		}
	}
}

func TestCheckout_GuestNeedsEmail(t *testing.T) {
	req := guestCheckout([]cartLineRequest{{ProductID: 1, Quantity: 1}})
	req.Guest = nil

	resp := doPost(t, "/api/checkout", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", resp.StatusCode)
	}
}

func TestCheckout_IdempotencyKeyCollapsesDuplicates(t *testing.T) {
	req := guestCheckout([]cartLineRequest{{ProductID: 1, Quantity: 1}})
	headers := map[string]string{"Idempotency-Key": "integration-idem-1"}

	first := doPostWithHeaders(t, "/api/checkout", req, headers)
	defer first.Body.Close()
	if first.StatusCode != http.StatusCreated {
		t.Fatalf("first: expected 201, got %d", first.StatusCode)
	}
	o1 := decodeJSON[orderResponse](t, first)

	second := doPostWithHeaders(t, "/api/checkout", req, headers)
	defer second.Body.Close()
	if second.StatusCode != http.StatusCreated {
		t.Fatalf("second: expected 201, got %d", second.StatusCode)
	}
	o2 := decodeJSON[orderResponse](t, second)

	if o1.ID != o2.ID || o1.Number != o2.Number {
		t.Errorf("duplicate submission created a second order: %d/%s vs %d/%s",
			o1.ID, o1.Number, o2.ID, o2.Number)
	}
}

func TestCheckout_ConcurrentOrdersAllSucceed(t *testing.T) {
	const n = 5

	before := productStock(t, 1)

	var wg sync.WaitGroup
	numbers := make([]string, n)
	statuses := make([]int, n)

	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req := guestCheckout([]cartLineRequest{{ProductID: 1, Quantity: 1}})
			resp := doPost(t, "/api/checkout", req)
			defer resp.Body.Close()

			statuses[i] = resp.StatusCode
			if resp.StatusCode == http.StatusCreated {
				numbers[i] = decodeJSON[orderResponse](t, resp).Number
			}
		}()
	}
	wg.Wait()

	seen := make(map[string]bool, n)
	for i := range n {
		// Contention maps to 409 and is retryable; with a 5 second lock
		// timeout none of the five should hit it.
		if statuses[i] != http.StatusCreated {
			t.Errorf("request %d: status %d", i, statuses[i])
			continue
		}
		if seen[numbers[i]] {
			t.Errorf("order number %q issued twice", numbers[i])
		}
		seen[numbers[i]] = true
	}

	// Row locks serialize the decrements: every unit ordered must be
	// accounted for, with no lost updates.
	if after := productStock(t, 1); after != before-n {
		t.Errorf("stock after %d concurrent orders: got %d, want %d", n, after, before-n)
	}
}

func TestCheckout_BackorderDrivesStockNegative(t *testing.T) {
	before := productStock(t, 3)
	qty := 3
	if before > 0 {
		qty = before + 3
	}

	req := guestCheckout([]cartLineRequest{{ProductID: 3, Quantity: qty}})
	resp := doPost(t, "/api/checkout", req)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("orders beyond stock are backorders, expected 201, got %d", resp.StatusCode)
	}

	after := productStock(t, 3)
	if after != before-qty {
		t.Errorf("stock: got %d, want %d", after, before-qty)
	}
	if after >= 0 {
		t.Errorf("stock should have gone negative, got %d", after)
	}
}

func TestOrderLookup_ByNumber(t *testing.T) {
	req := guestCheckout([]cartLineRequest{{ProductID: 1, Quantity: 1}})
	created := doPost(t, "/api/checkout", req)
	defer created.Body.Close()
	if created.StatusCode != http.StatusCreated {
		t.Fatalf("checkout: expected 201, got %d", created.StatusCode)
	}
	placed := decodeJSON[orderResponse](t, created)

	resp := doGet(t, "/api/orders/"+placed.Number)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	fetched := decodeJSON[orderResponse](t, resp)
	if fetched.ID != placed.ID {
		t.Errorf("fetched order %d, want %d", fetched.ID, placed.ID)
	}
	if fetched.TotalInclVat != placed.TotalInclVat {
		t.Errorf("totals diverge: %s vs %s", fetched.TotalInclVat, placed.TotalInclVat)
	}
	if len(fetched.Lines) != len(placed.Lines) {
		t.Errorf("line count diverges: %d vs %d", len(fetched.Lines), len(placed.Lines))
	}
}

func TestOrderLookup_CaseInsensitive(t *testing.T) {
	req := guestCheckout([]cartLineRequest{{ProductID: 1, Quantity: 1}})
	created := doPost(t, "/api/checkout", req)
	defer created.Body.Close()
	placed := decodeJSON[orderResponse](t, created)

	resp := doGet(t, "/api/orders/"+strings.ToLower(placed.Number))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("lowercase code lookup: expected 200, got %d", resp.StatusCode)
	}
}

func TestOrderLookup_InvalidCode(t *testing.T) {
	resp := doGet(t, "/api/orders/AAA-BBB-111")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestOrderLookup_UnknownCode(t *testing.T) {
	resp := doGet(t, "/api/orders/ZZZ-ZZZ-ZZZ")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}
