package handler

import (
	"io"
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"

	"github.com/altmarket/storefront/internal/domain/cart"
	"github.com/altmarket/storefront/internal/domain/catalog"
	"github.com/altmarket/storefront/internal/domain/checkout"
	"github.com/altmarket/storefront/internal/domain/order"
)

// Checkout validates the submitted checkout and creates the order. An
// optional Idempotency-Key header collapses duplicate submissions onto the
// first created order.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	req, err := decodeCheckoutRequest(r.Body)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed request body")
		return
	}
	req.ClientIP = clientIP(r)
	if req.Currency == "" {
		req.Currency = catalog.RON
	}

	o, err := h.creator.CreateFromCart(r.Context(), *req, r.Header.Get("Idempotency-Key"))
	if err != nil {
		writeCheckoutError(w, r, err)
		return
	}

	writeJSON(w, r, http.StatusCreated, func(e *jx.Encoder) { encodeOrder(e, o) })
}

// writeCheckoutError maps domain failures onto HTTP statuses. Validation
// problems are itemized per field; configuration problems stay opaque to the
// caller.
func writeCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	var verrs checkout.ValidationErrors
	if errors.As(err, &verrs) {
		writeJSON(w, r, http.StatusUnprocessableEntity, func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				e.Field("code", func(e *jx.Encoder) { e.Int(http.StatusUnprocessableEntity) })
				e.Field("message", func(e *jx.Encoder) { e.Str("checkout validation failed") })
				e.Field("errors", func(e *jx.Encoder) {
					e.Arr(func(e *jx.Encoder) {
						for _, fe := range verrs {
							e.Obj(func(e *jx.Encoder) {
								e.Field("field", func(e *jx.Encoder) { e.Str(fe.Field) })
								e.Field("message", func(e *jx.Encoder) { e.Str(fe.Message) })
							})
						}
					})
				})
			})
		})
		return
	}

	var cfgErr *order.ConfigurationError
	switch {
	case errors.Is(err, order.ErrStockContention):
		writeError(w, r, http.StatusConflict, "stock is contended, retry the request")
	case errors.As(err, &cfgErr):
		writeError(w, r, http.StatusInternalServerError, "store configuration error")
	default:
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Int64(o.ID) })
		e.Field("number", func(e *jx.Encoder) { e.Str(o.Number) })
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(o.Currency) })
		e.Field("exchange_rate", func(e *jx.Encoder) { encodeDecimal(e, o.ExchangeRate) })
		e.Field("avg_vat_rate", func(e *jx.Encoder) { encodeDecimal(e, o.AvgVatRate) })
		e.Field("total_excl_vat", func(e *jx.Encoder) { encodeDecimal(e, o.TotalExcl) })
		e.Field("total_incl_vat", func(e *jx.Encoder) { encodeDecimal(e, o.TotalIncl) })
		e.Field("paid", func(e *jx.Encoder) { e.Bool(o.Paid) })
		e.Field("lines", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i := range o.Lines {
					encodeOrderLine(e, &o.Lines[i])
				}
			})
		})
	})
}

func encodeOrderLine(e *jx.Encoder, l *order.Line) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("product_id", func(e *jx.Encoder) { e.Int64(l.ProductID) })
		e.Field("sku", func(e *jx.Encoder) { e.Str(l.SKU) })
		e.Field("name", func(e *jx.Encoder) { e.Str(l.Name) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
		e.Field("vat_rate", func(e *jx.Encoder) { encodeDecimal(e, l.VatRate) })
		e.Field("unit_excl_vat", func(e *jx.Encoder) { encodeDecimal(e, l.UnitExcl) })
		e.Field("unit_incl_vat", func(e *jx.Encoder) { encodeDecimal(e, l.UnitIncl) })
		e.Field("total_excl_vat", func(e *jx.Encoder) { encodeDecimal(e, l.TotalExcl) })
		e.Field("total_incl_vat", func(e *jx.Encoder) { encodeDecimal(e, l.TotalIncl) })
	})
}

func decodeCheckoutRequest(body io.Reader) (*checkout.Request, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}

	var req checkout.Request
	d := jx.DecodeBytes(data)
	if err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "customer_id":
			req.CustomerID, err = d.Int64()
		case "guest":
			req.Guest, err = decodeGuestContact(d)
		case "guest_lines":
			err = d.Arr(func(d *jx.Decoder) error {
				l, err := decodeCartLine(d)
				if err != nil {
					return err
				}
				if req.GuestLines == nil {
					req.GuestLines = make(cart.Lines)
				}
				req.GuestLines.Add(l)
				return nil
			})
		case "billing":
			req.Billing, err = decodeAddressRef(d)
		case "shipping":
			req.Shipping, err = decodeAddressRef(d)
		case "pickup":
			req.PickupPayload, err = decodeAnyMap(d)
		case "shipping_method_id":
			req.ShippingMethodID, err = d.Int64()
		case "payment_method_id":
			req.PaymentMethodID, err = d.Int64()
		case "currency":
			req.Currency, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return nil, err
	}
	return &req, nil
}

func decodeGuestContact(d *jx.Decoder) (*checkout.GuestContact, error) {
	var g checkout.GuestContact
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "email":
			g.Email, err = d.Str()
		case "name":
			g.Name, err = d.Str()
		case "phone":
			g.Phone, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// decodeAddressRef accepts either {"address_id": N} referencing the address
// book or a full inline address object.
func decodeAddressRef(d *jx.Decoder) (checkout.AddressRef, error) {
	var (
		storedID  int64
		inline    checkout.InlineAddress
		hasInline bool
	)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		var err error
		switch key {
		case "address_id":
			storedID, err = d.Int64()
			return err
		case "name":
			inline.Name, err = d.Str()
		case "line1":
			inline.Line1, err = d.Str()
		case "line2":
			inline.Line2, err = d.Str()
		case "city":
			inline.City, err = d.Str()
		case "region":
			inline.Region, err = d.Str()
		case "postal_code":
			inline.PostalCode, err = d.Str()
		case "country_code":
			inline.CountryCode, err = d.Str()
		case "phone":
			inline.Phone, err = d.Str()
		default:
			return d.Skip()
		}
		hasInline = hasInline || err == nil
		return err
	})
	if err != nil {
		return checkout.AddressRef{}, err
	}
	switch {
	case storedID != 0:
		return checkout.StoredAddress(storedID), nil
	case hasInline:
		return checkout.InlineAddressRef(inline), nil
	default:
		return checkout.AddressRef{}, nil
	}
}

// decodeAnyMap materializes one JSON object as a generic map. Structural
// validation of pickup payloads happens downstream in the checkout package.
func decodeAnyMap(d *jx.Decoder) (map[string]any, error) {
	m := make(map[string]any)
	err := d.Obj(func(d *jx.Decoder, key string) error {
		v, err := decodeAny(d)
		if err != nil {
			return err
		}
		m[key] = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func decodeAny(d *jx.Decoder) (any, error) {
	switch d.Next() {
	case jx.String:
		return d.Str()
	case jx.Number:
		return d.Float64()
	case jx.Bool:
		return d.Bool()
	case jx.Null:
		return nil, d.Null()
	case jx.Object:
		return decodeAnyMap(d)
	case jx.Array:
		var arr []any
		err := d.Arr(func(d *jx.Decoder) error {
			v, err := decodeAny(d)
			if err != nil {
				return err
			}
			arr = append(arr, v)
			return nil
		})
		return arr, err
	default:
		return nil, errors.New("unexpected JSON token")
	}
}
