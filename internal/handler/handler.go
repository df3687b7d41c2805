// Package handler exposes the storefront pricing, cart, and checkout
// operations as a thin JSON facade over the domain services.
package handler

import (
	"context"
	"net"
	"net/http"
	"strconv"

	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/altmarket/storefront/internal/domain/cart"
	"github.com/altmarket/storefront/internal/domain/catalog"
	"github.com/altmarket/storefront/internal/domain/customer"
	"github.com/altmarket/storefront/internal/domain/order"
	"github.com/altmarket/storefront/internal/domain/pricing"
)

// CountryResolver yields the tax jurisdiction for a request.
type CountryResolver interface {
	ResolveForCustomer(ctx context.Context, customerID int64, clientIP string) int64
}

// Config holds non-dependency settings for the Handler.
type Config struct {
	// GuestSegmentID prices requests that carry no customer id.
	GuestSegmentID int64
}

// Handler serves the public API. It owns no business rules: pricing, cart
// aggregation, validation, and order creation all happen in the domain
// services it delegates to.
type Handler struct {
	cfg        Config
	pricer     *pricing.Resolver
	products   catalog.ProductStore
	segments   catalog.SegmentStore
	customers  customer.Store
	countries  CountryResolver
	aggregator *cart.Aggregator
	creator    *order.Creator
	orders     order.Store
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(
	cfg Config,
	pricer *pricing.Resolver,
	products catalog.ProductStore,
	segments catalog.SegmentStore,
	customers customer.Store,
	countries CountryResolver,
	aggregator *cart.Aggregator,
	creator *order.Creator,
	orders order.Store,
) *Handler {
	return &Handler{
		cfg:        cfg,
		pricer:     pricer,
		products:   products,
		segments:   segments,
		customers:  customers,
		countries:  countries,
		aggregator: aggregator,
		creator:    creator,
		orders:     orders,
	}
}

// Register mounts all API routes on the mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/products/{id}/price", h.ProductPrice)
	mux.HandleFunc("POST /api/cart/summary", h.CartSummary)
	mux.HandleFunc("POST /api/checkout", h.Checkout)
	mux.HandleFunc("GET /api/orders/{code}", h.OrderByCode)
}

// segmentFor resolves the pricing segment: the customer's own segment for
// authenticated requests, the configured guest segment otherwise.
func (h *Handler) segmentFor(r *http.Request, customerID int64) (*catalog.Segment, error) {
	segmentID := h.cfg.GuestSegmentID
	if customerID != 0 {
		c, err := h.customers.GetByID(r.Context(), customerID)
		if err != nil {
			return nil, err
		}
		segmentID = c.SegmentID
	}
	return h.segments.GetByID(r.Context(), segmentID)
}

// clientIP extracts the caller address, trusting X-Forwarded-For when present.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		for i := range len(fwd) {
			if fwd[i] == ',' {
				return fwd[:i]
			}
		}
		return fwd
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func pathInt64(r *http.Request, name string) int64 {
	v, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func queryInt64(r *http.Request, name string) int64 {
	v, err := strconv.ParseInt(r.URL.Query().Get(name), 10, 64)
	if err != nil {
		return 0
	}
	return v
}

func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

func queryCurrency(r *http.Request) string {
	if c := r.URL.Query().Get("currency"); c != "" {
		return c
	}
	return catalog.RON
}

// writeJSON encodes the response with jx. Encoding failures at this point can
// only be connection-level, so they are logged and dropped.
func writeJSON(w http.ResponseWriter, r *http.Request, status int, encode func(e *jx.Encoder)) {
	e := &jx.Encoder{}
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(e.Bytes()); err != nil {
		zctx.From(r.Context()).Debug("response write failed", zap.Error(err))
	}
}

// writeError emits the uniform error envelope.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, r, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("code", func(e *jx.Encoder) { e.Int(status) })
			e.Field("message", func(e *jx.Encoder) { e.Str(message) })
		})
	})
}
