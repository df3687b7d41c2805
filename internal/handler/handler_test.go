package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/altmarket/storefront/internal/domain/cart"
	"github.com/altmarket/storefront/internal/domain/catalog"
	"github.com/altmarket/storefront/internal/domain/checkout"
	"github.com/altmarket/storefront/internal/domain/customer"
	"github.com/altmarket/storefront/internal/domain/order"
	"github.com/altmarket/storefront/internal/domain/pricing"
)

// --- Mock implementations ---

type mockProducts struct {
	byID map[int64]*catalog.Product
}

func (m *mockProducts) GetByID(_ context.Context, id int64) (*catalog.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, catalog.ErrProductNotFound
	}
	return p, nil
}

func (m *mockProducts) GetByIDs(_ context.Context, _ []int64) ([]catalog.Product, error) {
	return nil, nil
}

func (m *mockProducts) Children(_ context.Context, _ int64) ([]catalog.Product, error) {
	return nil, nil
}

type mockSegments struct {
	byID map[int64]*catalog.Segment
}

func (m *mockSegments) GetByID(_ context.Context, id int64) (*catalog.Segment, error) {
	s, ok := m.byID[id]
	if !ok {
		return nil, catalog.ErrSegmentNotFound
	}
	return s, nil
}

type mockCustomers struct {
	byID map[int64]*customer.Customer
}

func (m *mockCustomers) GetByID(_ context.Context, id int64) (*customer.Customer, error) {
	c, ok := m.byID[id]
	if !ok {
		return nil, customer.ErrNotFound
	}
	return c, nil
}

type mockAddresses struct{}

func (mockAddresses) GetByID(_ context.Context, _ int64) (*customer.Address, error) {
	return nil, customer.ErrAddressNotFound
}

func (mockAddresses) PreferredOrLatest(_ context.Context, _ int64) (*customer.Address, error) {
	return nil, customer.ErrAddressNotFound
}

func (mockAddresses) RegisteredOffice(_ context.Context, _ int64) (*customer.Address, error) {
	return nil, customer.ErrAddressNotFound
}

type mockCountries struct{}

func (mockCountries) GetByID(_ context.Context, id int64) (*catalog.Country, error) {
	if id != 1 {
		return nil, catalog.ErrCountryNotFound
	}
	return &catalog.Country{ID: 1, Code: "RO"}, nil
}

func (mockCountries) GetByCode(_ context.Context, code string) (*catalog.Country, error) {
	if code != "RO" {
		return nil, catalog.ErrCountryNotFound
	}
	return &catalog.Country{ID: 1, Code: "RO"}, nil
}

type mockCountryResolver struct{}

func (mockCountryResolver) ResolveForCustomer(_ context.Context, _ int64, _ string) int64 {
	return 1
}

type mockVatRates struct{}

func (mockVatRates) HighestRate(_ context.Context, _ int64) (decimal.Decimal, error) {
	return decimal.NewFromInt(19), nil
}

type mockCurrencies struct{}

func (mockCurrencies) GetByCode(_ context.Context, code string) (*catalog.Currency, error) {
	if code != "EUR" {
		return nil, catalog.ErrCurrencyNotFound
	}
	return &catalog.Currency{Code: "EUR", Rate: decimal.RequireFromString("5"), Active: true}, nil
}

type mockCartStore struct{}

func (mockCartStore) ActiveCart(_ context.Context, customerID int64) (*cart.Cart, error) {
	return &cart.Cart{ID: 10, CustomerID: customerID, Status: cart.StatusActive}, nil
}

func (mockCartStore) Lines(_ context.Context, _ int64) ([]cart.Line, error) {
	return nil, nil
}

func (mockCartStore) UpsertLine(_ context.Context, _ int64, _ cart.Line) error    { return nil }
func (mockCartStore) RemoveLine(_ context.Context, _ int64, _ cart.LineKey) error { return nil }
func (mockCartStore) SetTotal(_ context.Context, _ int64, _ decimal.Decimal) error {
	return nil
}

type mockPayments struct{}

func (mockPayments) GetByID(_ context.Context, id int64) (*checkout.PaymentMethod, error) {
	if id != 1 {
		return nil, errors.New("payment method not found")
	}
	return &checkout.PaymentMethod{ID: 1, Code: "card", Active: true}, nil
}

type mockShippings struct{}

func (mockShippings) GetByID(_ context.Context, id int64) (*checkout.ShippingMethod, error) {
	if id != 1 {
		return nil, errors.New("shipping method not found")
	}
	return &checkout.ShippingMethod{ID: 1, Code: "courier", Name: "Courier", Cost: decimal.RequireFromString("19.90"), Active: true}, nil
}

type mockOrders struct {
	byID map[int64]*order.Order
}

func (m *mockOrders) GetByID(_ context.Context, id int64) (*order.Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	return o, nil
}

type mockTxStore struct {
	nextID int64
}

func (m *mockTxStore) InsertOrder(_ context.Context, _ *order.Order) (int64, error) {
	return m.nextID, nil
}

func (m *mockTxStore) SetNumber(_ context.Context, _ int64, _ string) error         { return nil }
func (m *mockTxStore) InsertLines(_ context.Context, _ int64, _ []order.Line) error { return nil }
func (m *mockTxStore) InsertAddress(_ context.Context, _ *order.Address) error      { return nil }
func (m *mockTxStore) InsertShipping(_ context.Context, _ *order.Shipping) error    { return nil }
func (m *mockTxStore) LockStock(_ context.Context, _ int64) (int, error)            { return 100, nil }
func (m *mockTxStore) AdjustStock(_ context.Context, _ int64, _ int) error          { return nil }
func (m *mockTxStore) ConvertCart(_ context.Context, _ int64) error                 { return nil }
func (m *mockTxStore) AppendHistory(_ context.Context, _ *order.HistoryEntry) error { return nil }

type mockTransactor struct {
	store order.TxStore
}

func (m *mockTransactor) InTx(ctx context.Context, fn func(ctx context.Context, s order.TxStore) error) error {
	return fn(ctx, m.store)
}

type mockCache struct{}

func (mockCache) Get(_ context.Context, _ string) (string, bool)      { return "", false }
func (mockCache) Set(_ context.Context, _, _ string, _ time.Duration) {}
func (mockCache) Delete(_ context.Context, _ string)                  {}

// --- Helpers ---

func newTestHandler() http.Handler {
	products := &mockProducts{byID: map[int64]*catalog.Product{
		1: {ID: 1, SKU: "CBL-1", Name: "Cable", Active: true, Stock: 100, BasePrice: decimal.RequireFromString("100.00")},
	}}
	segments := &mockSegments{byID: map[int64]*catalog.Segment{
		1: {ID: 1, Code: "retail", B2C: true},
	}}
	customers := &mockCustomers{byID: map[int64]*customer.Customer{
		42: {ID: 42, Email: "ion@example.com", Kind: customer.KindIndividual, SegmentID: 1},
	}}
	pricer := pricing.NewResolver(mockVatRates{}, mockCurrencies{})
	aggregator := cart.NewAggregator(mockCartStore{}, products, segments, pricer)
	validator := checkout.NewValidator(
		customers, mockAddresses{}, segments, products, mockCountries{},
		mockCartStore{}, mockPayments{}, mockShippings{}, 1,
	)
	orders := &mockOrders{byID: map[int64]*order.Order{
		7: {ID: 7, Number: "CCC-CCC-CCM", Status: order.StatusNew},
	}}
	creator := order.NewCreator(
		validator, pricer, products, segments, orders,
		&mockTransactor{store: &mockTxStore{nextID: 7}}, mockCache{},
	)

	h := NewHandler(
		Config{GuestSegmentID: 1},
		pricer, products, segments, customers,
		mockCountryResolver{}, aggregator, creator, orders,
	)
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func doRequest(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func field(t *testing.T, body map[string]any, path ...string) any {
	t.Helper()
	var cur any = body
	for _, p := range path {
		m, ok := cur.(map[string]any)
		require.True(t, ok, "no object at %v", path)
		cur = m[p]
	}
	return cur
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

// --- Tests ---

func TestProductPrice(t *testing.T) {
	h := newTestHandler()

	rec := doRequest(t, h, http.MethodGet, "/api/products/1/price?quantity=2", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, "CBL-1", field(t, body, "sku"))
	assert.Equal(t, float64(2), field(t, body, "quantity"))
	assert.Equal(t, "119.00", field(t, body, "price", "unit_incl_vat"))
	assert.Equal(t, "238.00", field(t, body, "price", "total_incl_vat"))
	assert.Equal(t, true, field(t, body, "price", "vat_included"))
	// Amounts are fixed two-decimal strings even when the value is integral.
	assert.Equal(t, "1.00", field(t, body, "price", "exchange_rate"))
}

func TestProductPrice_NotFound(t *testing.T) {
	h := newTestHandler()

	rec := doRequest(t, h, http.MethodGet, "/api/products/999/price", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProductPrice_BadID(t *testing.T) {
	h := newTestHandler()

	rec := doRequest(t, h, http.MethodGet, "/api/products/abc/price", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProductPrice_UnknownCurrency(t *testing.T) {
	h := newTestHandler()

	rec := doRequest(t, h, http.MethodGet, "/api/products/1/price?currency=XXX", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCartSummary_GuestLines(t *testing.T) {
	h := newTestHandler()

	rec := doRequest(t, h, http.MethodPost, "/api/cart/summary",
		`{"lines":[{"product_id":1,"quantity":3}]}`)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(3), field(t, body, "summary", "item_count"))
	assert.Equal(t, "357.00", field(t, body, "summary", "total_incl_vat"))

	lines, ok := field(t, body, "lines").([]any)
	require.True(t, ok)
	require.Len(t, lines, 1)
}

func TestCartSummary_UnknownProduct(t *testing.T) {
	h := newTestHandler()

	rec := doRequest(t, h, http.MethodPost, "/api/cart/summary",
		`{"lines":[{"product_id":999,"quantity":1}]}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCartSummary_MalformedBody(t *testing.T) {
	h := newTestHandler()

	rec := doRequest(t, h, http.MethodPost, "/api/cart/summary", `{"lines":[`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckout_Guest(t *testing.T) {
	h := newTestHandler()

	rec := doRequest(t, h, http.MethodPost, "/api/checkout", `{
		"guest": {"email": "guest@example.com"},
		"guest_lines": [{"product_id": 1, "quantity": 1}],
		"billing": {"line1": "Str. Noua 3", "city": "Iasi", "postal_code": "700001", "country_code": "RO"},
		"shipping": {"line1": "Str. Noua 3", "city": "Iasi", "postal_code": "700001", "country_code": "RO"},
		"shipping_method_id": 1,
		"payment_method_id": 1
	}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "new", field(t, body, "status"))
	// 100.00 + 19.90 shipping excl; 119.00 + 23.68 incl.
	assert.Equal(t, "119.90", field(t, body, "total_excl_vat"))
	assert.Equal(t, "142.68", field(t, body, "total_incl_vat"))
}

func TestCheckout_ValidationErrors(t *testing.T) {
	h := newTestHandler()

	rec := doRequest(t, h, http.MethodPost, "/api/checkout", `{
		"guest": {"email": "guest@example.com"},
		"guest_lines": [{"product_id": 1, "quantity": 1}]
	}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	body := decodeBody(t, rec)
	errs, ok := field(t, body, "errors").([]any)
	require.True(t, ok)
	assert.NotEmpty(t, errs)
}

func TestCheckout_MalformedBody(t *testing.T) {
	h := newTestHandler()

	rec := doRequest(t, h, http.MethodPost, "/api/checkout", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderByCode(t *testing.T) {
	h := newTestHandler()

	// CCC-CCC-CCM decodes to id 7 (M is digit 7 in the code alphabet).
	rec := doRequest(t, h, http.MethodGet, "/api/orders/CCC-CCC-CCM", "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(7), field(t, body, "id"))
	assert.Equal(t, "CCC-CCC-CCM", field(t, body, "number"))
}

func TestOrderByCode_InvalidCode(t *testing.T) {
	h := newTestHandler()

	rec := doRequest(t, h, http.MethodGet, "/api/orders/not-a-code", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOrderByCode_Unknown(t *testing.T) {
	h := newTestHandler()

	rec := doRequest(t, h, http.MethodGet, "/api/orders/ZZZ-ZZZ-ZZZ", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
