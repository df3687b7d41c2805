package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/altmarket/storefront/internal/domain/cart"
	"github.com/altmarket/storefront/internal/domain/catalog"
)

// cartSummaryRequest is the decoded POST /api/cart/summary body.
type cartSummaryRequest struct {
	CustomerID int64
	Currency   string
	Lines      []cart.Line
}

// CartSummary prices a line set and returns display lines plus totals. For
// authenticated requests the persisted cart is used and the submitted lines
// are ignored; guests submit their session lines inline.
func (h *Handler) CartSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	req, err := decodeCartSummaryRequest(r.Body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed request body")
		return
	}
	if req.Currency == "" {
		req.Currency = catalog.RON
	}

	seg, err := h.segmentFor(r, req.CustomerID)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "unknown customer or segment")
		return
	}
	countryID := h.countries.ResolveForCustomer(ctx, req.CustomerID, clientIP(r))

	var ls cart.Lines
	if req.CustomerID != 0 {
		ls, err = h.aggregator.Lines(ctx, req.CustomerID)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "internal error")
			return
		}
	} else {
		ls = make(cart.Lines, len(req.Lines))
		for _, l := range req.Lines {
			if l.SegmentID == 0 {
				l.SegmentID = seg.ID
			}
			ls.Add(l)
		}
	}

	lines, summary, err := h.aggregator.FormatForDisplay(ctx, ls, req.Currency, *seg, countryID)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrProductNotFound):
			writeError(w, r, http.StatusUnprocessableEntity, "cart references an unknown product")
		default:
			writePricingError(w, r, err)
		}
		return
	}

	writeJSON(w, r, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("lines", func(e *jx.Encoder) {
				e.Arr(func(e *jx.Encoder) {
					for i := range lines {
						encodeDisplayLine(e, &lines[i])
					}
				})
			})
			e.Field("summary", func(e *jx.Encoder) { encodeSummary(e, summary) })
		})
	})
}

func encodeDisplayLine(e *jx.Encoder, l *cart.DisplayLine) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("product_id", func(e *jx.Encoder) { e.Int64(l.ProductID) })
		e.Field("segment_id", func(e *jx.Encoder) { e.Int64(l.SegmentID) })
		e.Field("sku", func(e *jx.Encoder) { e.Str(l.SKU) })
		e.Field("name", func(e *jx.Encoder) { e.Str(l.Name) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
		e.Field("price", func(e *jx.Encoder) { encodeBreakdown(e, &l.Price) })
	})
}

func encodeSummary(e *jx.Encoder, s *cart.Summary) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("item_count", func(e *jx.Encoder) { e.Int(s.ItemCount) })
		e.Field("total_excl_vat", func(e *jx.Encoder) { encodeDecimal(e, s.TotalExclVat) })
		e.Field("total_incl_vat", func(e *jx.Encoder) { encodeDecimal(e, s.TotalInclVat) })
		e.Field("vat_rate", func(e *jx.Encoder) { encodeDecimal(e, s.VatRate) })
		e.Field("vat_included", func(e *jx.Encoder) { e.Bool(s.VatIncluded) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(s.Currency) })
	})
}

func decodeCartSummaryRequest(body io.Reader) (*cartSummaryRequest, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}

	var req cartSummaryRequest
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "customer_id":
			req.CustomerID, err = d.Int64()
			return err
		case "currency":
			req.Currency, err = d.Str()
			return err
		case "lines":
			return d.Arr(func(d *jx.Decoder) error {
				l, err := decodeCartLine(d)
				if err != nil {
					return err
				}
				req.Lines = append(req.Lines, l)
				return nil
			})
		default:
			return d.Skip()
		}
	}); err != nil {
		return nil, err
	}
	return &req, nil
}

func decodeCartLine(d *jx.Decoder) (cart.Line, error) {
	var l cart.Line
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "product_id":
			l.ProductID, err = d.Int64()
		case "segment_id":
			l.SegmentID, err = d.Int64()
		case "quantity":
			l.Quantity, err = d.Int()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return cart.Line{}, err
	}
	if l.ProductID <= 0 || l.Quantity <= 0 {
		return cart.Line{}, errors.New("line requires positive product_id and quantity")
	}
	return l, nil
}
