package checkout

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-faster/errors"

	"github.com/altmarket/storefront/internal/domain/cart"
	"github.com/altmarket/storefront/internal/domain/catalog"
	"github.com/altmarket/storefront/internal/domain/customer"
)

// Validator runs the read-only checks ahead of order creation. It never
// mutates state, so a validation pass may be cancelled or repeated freely.
type Validator struct {
	customers customer.Store
	addresses customer.AddressStore
	segments  catalog.SegmentStore
	products  catalog.ProductStore
	countries catalog.CountryStore
	carts     cart.Store
	payments  PaymentMethodStore
	shippings ShippingMethodStore

	// guestSegmentID is the canonical B2C segment applied to guests.
	guestSegmentID int64
}

// NewValidator creates a checkout Validator.
func NewValidator(
	customers customer.Store,
	addresses customer.AddressStore,
	segments catalog.SegmentStore,
	products catalog.ProductStore,
	countries catalog.CountryStore,
	carts cart.Store,
	payments PaymentMethodStore,
	shippings ShippingMethodStore,
	guestSegmentID int64,
) *Validator {
	return &Validator{
		customers:      customers,
		addresses:      addresses,
		segments:       segments,
		products:       products,
		countries:      countries,
		carts:          carts,
		payments:       payments,
		shippings:      shippings,
		guestSegmentID: guestSegmentID,
	}
}

// Validate checks the request and either returns the resolved checkout
// context or the itemized list of correctable problems. Identity and cart
// presence short-circuit; the remaining checks collect errors so the shopper
// sees everything wrong at once. Stock shortfalls are warnings only.
func (v *Validator) Validate(ctx context.Context, req Request) (*Context, error) {
	out := &Context{Currency: req.Currency}
	if out.Currency == "" {
		out.Currency = catalog.RON
	}

	// Identity first; nothing else is meaningful without it.
	if err := v.resolveIdentity(ctx, req, out); err != nil {
		return nil, err
	}

	// Cart content.
	if err := v.resolveLines(ctx, req, out); err != nil {
		return nil, err
	}

	var errs ValidationErrors

	// B2B accounts must have a registered office on file.
	if out.Customer != nil && out.Customer.Kind == customer.KindCompany {
		if _, err := v.addresses.RegisteredOffice(ctx, out.Customer.ID); err != nil {
			errs = append(errs, FieldError{Field: "customer", Message: "a registered office address is required for company accounts"})
		}
	}

	if err := v.resolveBilling(ctx, req, out); err != nil {
		errs = append(errs, *err)
	}
	errs = append(errs, v.resolveShipping(ctx, req, out)...)
	if err := v.resolvePayment(ctx, req, out); err != nil {
		errs = append(errs, *err)
	}

	if len(errs) > 0 {
		return nil, errs
	}

	v.collectStockWarnings(ctx, out)
	return out, nil
}

func (v *Validator) resolveIdentity(ctx context.Context, req Request, out *Context) error {
	if req.CustomerID != 0 {
		cust, err := v.customers.GetByID(ctx, req.CustomerID)
		if err != nil {
			if errors.Is(err, customer.ErrNotFound) {
				return ValidationErrors{{Field: "customer", Message: "customer account not found"}}
			}
			return errors.Wrap(err, "load customer")
		}
		seg, err := v.segments.GetByID(ctx, cust.SegmentID)
		if err != nil {
			return errors.Wrapf(err, "segment %d", cust.SegmentID)
		}
		out.Customer = cust
		out.Segment = *seg
		return nil
	}

	if req.Guest == nil || strings.TrimSpace(req.Guest.Email) == "" {
		return ValidationErrors{{Field: "email", Message: "a contact email is required for guest checkout"}}
	}
	seg, err := v.segments.GetByID(ctx, v.guestSegmentID)
	if err != nil {
		return errors.Wrapf(err, "guest segment %d", v.guestSegmentID)
	}
	out.Guest = req.Guest
	out.Segment = *seg
	return nil
}

func (v *Validator) resolveLines(ctx context.Context, req Request, out *Context) error {
	if out.Customer != nil {
		c, err := v.carts.ActiveCart(ctx, out.Customer.ID)
		if err != nil {
			return errors.Wrap(err, "load cart")
		}
		stored, err := v.carts.Lines(ctx, c.ID)
		if err != nil {
			return errors.Wrap(err, "load cart lines")
		}
		out.CartID = c.ID
		out.Lines = make(cart.Lines, len(stored))
		for _, l := range stored {
			out.Lines[l.Key()] = l
		}
	} else {
		// Guest lines without an explicit segment take the guest segment.
		out.Lines = make(cart.Lines, len(req.GuestLines))
		for _, l := range req.GuestLines {
			if l.SegmentID == 0 {
				l.SegmentID = out.Segment.ID
			}
			out.Lines.Add(l)
		}
	}

	if len(out.Lines) == 0 {
		return ValidationErrors{{Field: "cart", Message: "cart is empty"}}
	}
	return nil
}

// resolveAddressRef verifies an AddressRef and resolves its country. Stored
// references must belong to the checking-out customer.
func (v *Validator) resolveAddressRef(ctx context.Context, ref AddressRef, out *Context, field string) (*ResolvedAddress, *FieldError) {
	if id, ok := ref.Stored(); ok {
		if out.Customer == nil {
			return nil, &FieldError{Field: field, Message: "stored addresses require an authenticated customer"}
		}
		addr, err := v.addresses.GetByID(ctx, id)
		if err != nil || addr.CustomerID != out.Customer.ID {
			return nil, &FieldError{Field: field, Message: "address not found"}
		}
		return &ResolvedAddress{Stored: addr, CountryID: addr.CountryID}, nil
	}

	inline, ok := ref.Inline()
	if !ok {
		return nil, &FieldError{Field: field, Message: "address is required"}
	}
	if strings.TrimSpace(inline.Line1) == "" || strings.TrimSpace(inline.City) == "" {
		return nil, &FieldError{Field: field, Message: "street and city are required"}
	}
	if strings.TrimSpace(inline.PostalCode) == "" {
		return nil, &FieldError{Field: field, Message: "postal code is required"}
	}
	country, err := v.countries.GetByCode(ctx, inline.CountryCode)
	if err != nil {
		return nil, &FieldError{Field: field, Message: "unknown country"}
	}
	return &ResolvedAddress{Inline: inline, CountryID: country.ID}, nil
}

func (v *Validator) resolveBilling(ctx context.Context, req Request, out *Context) *FieldError {
	if req.Billing.IsZero() {
		return &FieldError{Field: "billing", Message: "billing address is required"}
	}
	resolved, ferr := v.resolveAddressRef(ctx, req.Billing, out, "billing")
	if ferr != nil {
		return ferr
	}
	out.Billing = *resolved
	return nil
}

func (v *Validator) resolveShipping(ctx context.Context, req Request, out *Context) ValidationErrors {
	if req.ShippingMethodID == 0 {
		return ValidationErrors{{Field: "shipping_method", Message: "shipping method is required"}}
	}
	method, err := v.shippings.GetByID(ctx, req.ShippingMethodID)
	if err != nil || !method.Active {
		return ValidationErrors{{Field: "shipping_method", Message: "shipping method not available"}}
	}
	out.ShippingMethod = method

	if method.Pickup {
		point, err := ParsePickupPayload(req.PickupPayload)
		if err != nil {
			return ValidationErrors{{Field: "pickup_point", Message: err.Error()}}
		}
		if _, err := v.countries.GetByID(ctx, point.CountryID); err != nil {
			return ValidationErrors{{Field: "pickup_point", Message: "unknown pickup country"}}
		}
		out.Pickup = point
		return nil
	}

	if req.Shipping.IsZero() {
		return ValidationErrors{{Field: "shipping", Message: "shipping address is required"}}
	}
	resolved, ferr := v.resolveAddressRef(ctx, req.Shipping, out, "shipping")
	if ferr != nil {
		return ValidationErrors{*ferr}
	}
	out.Shipping = resolved
	return nil
}

func (v *Validator) resolvePayment(ctx context.Context, req Request, out *Context) *FieldError {
	if req.PaymentMethodID == 0 {
		return &FieldError{Field: "payment_method", Message: "payment method is required"}
	}
	method, err := v.payments.GetByID(ctx, req.PaymentMethodID)
	if err != nil || !method.Active {
		return &FieldError{Field: "payment_method", Message: "payment method not available"}
	}
	out.PaymentMethod = method
	return nil
}

// collectStockWarnings flags lines that exceed available stock. Shortfalls do
// not block checkout; orders may drive stock negative (backorder policy).
func (v *Validator) collectStockWarnings(ctx context.Context, out *Context) {
	for _, l := range out.Lines {
		p, err := v.products.GetByID(ctx, l.ProductID)
		if err != nil {
			continue
		}
		if p.Stock < l.Quantity {
			out.Warnings = append(out.Warnings, fmt.Sprintf(
				"%s: only %d in stock, %d requested; remainder will be backordered",
				p.SKU, p.Stock, l.Quantity,
			))
		}
	}
}
