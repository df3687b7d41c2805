package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/altmarket/storefront/internal/domain/catalog"
	"github.com/altmarket/storefront/internal/domain/pricing"
)

// ProductPrice returns the full price breakdown and tier quotes for one
// product. Query parameters: quantity (default 1), currency (default RON),
// customer_id (optional; absent means guest pricing).
func (h *Handler) ProductPrice(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	productID := pathInt64(r, "id")
	if productID <= 0 {
		writeError(w, r, http.StatusBadRequest, "invalid product id")
		return
	}
	quantity := queryInt(r, "quantity", 1)
	currency := queryCurrency(r)
	customerID := queryInt64(r, "customer_id")

	p, err := h.products.GetByID(ctx, productID)
	if err != nil {
		if errors.Is(err, catalog.ErrProductNotFound) {
			writeError(w, r, http.StatusNotFound, "product not found")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	seg, err := h.segmentFor(r, customerID)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "unknown customer or segment")
		return
	}
	countryID := h.countries.ResolveForCustomer(ctx, customerID, clientIP(r))

	memo := pricing.NewRateMemo()
	b, err := h.pricer.PriceInfo(ctx, memo, p, currency, quantity, *seg, countryID)
	if err != nil {
		writePricingError(w, r, err)
		return
	}
	tiers, err := h.pricer.PriceTiers(ctx, memo, p, currency, quantity, *seg, countryID)
	if err != nil {
		writePricingError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("product_id", func(e *jx.Encoder) { e.Int64(p.ID) })
			e.Field("sku", func(e *jx.Encoder) { e.Str(p.SKU) })
			e.Field("quantity", func(e *jx.Encoder) { e.Int(quantity) })
			e.Field("price", func(e *jx.Encoder) { encodeBreakdown(e, b) })
			e.Field("tiers", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for i := range tiers {
						encodeTierQuote(e, &tiers[i])
					}
				})
			})
		})
	})
}

func writePricingError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, pricing.ErrRateNotFound):
		writeError(w, r, http.StatusInternalServerError, "tax configuration incomplete")
	case errors.Is(err, catalog.ErrCurrencyNotFound):
		writeError(w, r, http.StatusBadRequest, "unknown currency")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func encodeBreakdown(e *jx.Encoder, b *pricing.Breakdown) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("currency", func(e *jx.Encoder) { e.Str(b.Currency) })
		e.Field("exchange_rate", func(e *jx.Encoder) { encodeDecimal(e, b.ExchangeRate) })
		e.Field("vat_rate", func(e *jx.Encoder) { encodeDecimal(e, b.VatRate) })
		e.Field("vat_included", func(e *jx.Encoder) { e.Bool(b.ShowVat) })
		e.Field("unit_excl_vat", func(e *jx.Encoder) { encodeDecimal(e, b.UnitExcl) })
		e.Field("unit_incl_vat", func(e *jx.Encoder) { encodeDecimal(e, b.UnitIncl) })
		e.Field("total_excl_vat", func(e *jx.Encoder) { encodeDecimal(e, b.TotalExcl) })
		e.Field("total_incl_vat", func(e *jx.Encoder) { encodeDecimal(e, b.TotalIncl) })
	})
}

func encodeTierQuote(e *jx.Encoder, t *pricing.TierQuote) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("min_qty", func(e *jx.Encoder) { e.Int(t.MinQty) })
		if t.MaxQty != nil {
			e.Field("max_qty", func(e *jx.Encoder) { e.Int(*t.MaxQty) })
		}
		e.Field("unit_excl_vat", func(e *jx.Encoder) { encodeDecimal(e, t.UnitExcl) })
		e.Field("unit_incl_vat", func(e *jx.Encoder) { encodeDecimal(e, t.UnitIncl) })
		e.Field("current", func(e *jx.Encoder) { e.Bool(t.IsCurrent) })
	})
}

// encodeDecimal writes amounts as fixed two-decimal JSON strings so clients
// never touch floats and trailing zeros survive the wire.
func encodeDecimal(e *jx.Encoder, d decimal.Decimal) {
	e.Str(d.StringFixed(2))
}
