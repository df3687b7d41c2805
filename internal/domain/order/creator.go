package order

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/altmarket/storefront/internal/cache"
	"github.com/altmarket/storefront/internal/domain/catalog"
	"github.com/altmarket/storefront/internal/domain/checkout"
	"github.com/altmarket/storefront/internal/domain/pricing"
	"github.com/altmarket/storefront/pkg/ordercode"
)

const (
	// idempotencyTTL bounds how long a submitted idempotency key collapses
	// duplicate checkouts onto the first order.
	idempotencyTTL = 10 * time.Minute

	idempotencyPrefix = "order:idem:"
)

// Creator is the atomic state transition from a validated cart to a persisted
// order: authoritative total recomputation, snapshotting, stock decrement,
// idempotency handling, and audit logging.
type Creator struct {
	validator *checkout.Validator
	pricer    *pricing.Resolver
	products  catalog.ProductStore
	segments  catalog.SegmentStore
	orders    Store
	tx        Transactor
	cache     cache.Cache
}

// NewCreator creates an order Creator.
func NewCreator(
	validator *checkout.Validator,
	pricer *pricing.Resolver,
	products catalog.ProductStore,
	segments catalog.SegmentStore,
	orders Store,
	tx Transactor,
	c cache.Cache,
) *Creator {
	return &Creator{
		validator: validator,
		pricer:    pricer,
		products:  products,
		segments:  segments,
		orders:    orders,
		tx:        tx,
		cache:     c,
	}
}

// CreateFromCart validates the request and commits the order. When an
// idempotency key is supplied and a prior order exists under it, that order
// is returned unchanged and no new side effects occur. Client-submitted
// totals are never trusted: every amount is re-derived from live product,
// VAT, and exchange-rate data using the shipping country as the VAT
// jurisdiction.
//
// Validation failures come back as checkout.ValidationErrors; missing tax or
// exchange-rate configuration as *ConfigurationError; lock-wait timeouts as
// ErrStockContention.
func (c *Creator) CreateFromCart(ctx context.Context, req checkout.Request, idemKey string) (*Order, error) {
	if idemKey != "" {
		if existing, ok := c.lookupIdempotent(ctx, idemKey); ok {
			return existing, nil
		}
	}

	cctx, err := c.validator.Validate(ctx, req)
	if err != nil {
		return nil, err
	}

	o, lines, shipping, err := c.recomputeTotals(ctx, cctx)
	if err != nil {
		return nil, err
	}

	err = c.tx.InTx(ctx, func(ctx context.Context, s TxStore) error {
		return c.persist(ctx, s, cctx, o, lines, shipping)
	})
	if err != nil {
		return nil, err
	}

	// Guest session carts are discarded once converted.
	if cctx.Guest != nil && req.GuestLines != nil {
		clear(req.GuestLines)
	}

	if idemKey != "" {
		// Get-then-set: a duplicate arriving between the lookup above and
		// this write can still create a second order. Preserved as-is; a
		// set-if-absent primitive would change observable behaviour.
		c.cache.Set(ctx, idempotencyPrefix+idemKey, strconv.FormatInt(o.ID, 10), idempotencyTTL)
	}

	zctx.From(ctx).Info("order created",
		zap.Int64("order_id", o.ID),
		zap.String("number", o.Number),
		zap.String("total", o.TotalIncl.String()),
		zap.String("currency", o.Currency),
	)
	return o, nil
}

// lookupIdempotent returns the prior order stored under the idempotency key,
// if any.
func (c *Creator) lookupIdempotent(ctx context.Context, key string) (*Order, bool) {
	v, ok := c.cache.Get(ctx, idempotencyPrefix+key)
	if !ok {
		return nil, false
	}
	id, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, false
	}
	existing, err := c.orders.GetByID(ctx, id)
	if err != nil {
		zctx.From(ctx).Warn("idempotency hit but order load failed",
			zap.Int64("order_id", id), zap.Error(err))
		return nil, false
	}
	return existing, true
}

// recomputeTotals derives the authoritative order amounts. The VAT
// jurisdiction is the shipping country, not billing and not the client IP.
func (c *Creator) recomputeTotals(ctx context.Context, cctx *checkout.Context) (*Order, []Line, *Shipping, error) {
	countryID := c.shippingCountry(cctx)
	if countryID == 0 {
		return nil, nil, nil, &ConfigurationError{Reason: "shipping country could not be resolved"}
	}

	cur, err := c.pricer.Currency(ctx, cctx.Currency)
	if err != nil {
		var rateErr *pricing.InvalidExchangeRateError
		if errors.As(err, &rateErr) {
			return nil, nil, nil, &ConfigurationError{Reason: "invalid exchange rate", Err: err}
		}
		return nil, nil, nil, err
	}

	memo := pricing.NewRateMemo()
	segs := map[int64]catalog.Segment{cctx.Segment.ID: cctx.Segment}

	o := &Order{
		Status:            StatusNew,
		Currency:          cur.Code,
		ExchangeRate:      cur.Rate,
		ShippingCountryID: countryID,
		ShippingMethodID:  cctx.ShippingMethod.ID,
		PaymentMethodID:   cctx.PaymentMethod.ID,
		TotalExclRON:      decimal.Zero,
		TotalInclRON:      decimal.Zero,
		TotalExcl:         decimal.Zero,
		TotalIncl:         decimal.Zero,
	}
	if cctx.Customer != nil {
		id := cctx.Customer.ID
		o.CustomerID = &id
	} else {
		o.GuestEmail = cctx.Guest.Email
	}

	lines := make([]Line, 0, len(cctx.Lines))
	for _, l := range cctx.Lines {
		p, err := c.products.GetByID(ctx, l.ProductID)
		if err != nil {
			return nil, nil, nil, errors.Wrapf(err, "product %d", l.ProductID)
		}

		seg, ok := segs[l.SegmentID]
		if !ok {
			sp, err := c.segments.GetByID(ctx, l.SegmentID)
			if err != nil {
				return nil, nil, nil, errors.Wrapf(err, "segment %d", l.SegmentID)
			}
			seg = *sp
			segs[seg.ID] = seg
		}

		b, err := c.pricer.PriceInfo(ctx, memo, p, cur.Code, l.Quantity, seg, countryID)
		if err != nil {
			if errors.Is(err, pricing.ErrRateNotFound) {
				return nil, nil, nil, &ConfigurationError{Reason: "missing VAT rate for shipping country", Err: err}
			}
			return nil, nil, nil, err
		}

		lines = append(lines, Line{
			ProductID:    p.ID,
			SKU:          p.SKU,
			Name:         p.Name,
			Quantity:     l.Quantity,
			VatRate:      b.VatRate,
			ExchangeRate: cur.Rate,
			UnitExclRON:  b.UnitExclRON,
			UnitInclRON:  b.UnitInclRON,
			TotalExclRON: b.TotalExclRON,
			TotalInclRON: b.TotalInclRON,
			UnitExcl:     b.UnitExcl,
			UnitIncl:     b.UnitIncl,
			TotalExcl:    b.TotalExcl,
			TotalIncl:    b.TotalIncl,
		})

		o.TotalExclRON = o.TotalExclRON.Add(b.TotalExclRON).Round(2)
		o.TotalInclRON = o.TotalInclRON.Add(b.TotalInclRON).Round(2)
		o.TotalExcl = o.TotalExcl.Add(b.TotalExcl).Round(2)
		o.TotalIncl = o.TotalIncl.Add(b.TotalIncl).Round(2)
	}

	shipping, costExclRON, costInclRON, err := c.shippingSnapshot(ctx, cctx, memo, cur, countryID)
	if err != nil {
		return nil, nil, nil, err
	}
	o.TotalExclRON = o.TotalExclRON.Add(costExclRON).Round(2)
	o.TotalInclRON = o.TotalInclRON.Add(costInclRON).Round(2)
	o.TotalExcl = o.TotalExcl.Add(shipping.CostExcl).Round(2)
	o.TotalIncl = o.TotalIncl.Add(shipping.CostIncl).Round(2)

	o.AvgVatRate = averageVatRate(o.TotalExclRON, o.TotalInclRON)
	o.Lines = lines
	return o, lines, shipping, nil
}

// shippingCountry picks the jurisdiction: the shipping address country, or
// the pickup point's country for locker deliveries.
func (c *Creator) shippingCountry(cctx *checkout.Context) int64 {
	if cctx.Shipping != nil {
		return cctx.Shipping.CountryID
	}
	if cctx.Pickup != nil {
		return cctx.Pickup.CountryID
	}
	return 0
}

// shippingSnapshot freezes the delivery cost with the order's VAT treatment.
// It returns the snapshot (display currency) along with the RON cost pair for
// total accumulation.
func (c *Creator) shippingSnapshot(
	ctx context.Context,
	cctx *checkout.Context,
	memo pricing.RateMemo,
	cur *catalog.Currency,
	countryID int64,
) (*Shipping, decimal.Decimal, decimal.Decimal, error) {
	rate, err := c.pricer.VatRate(ctx, memo, countryID, cctx.Segment)
	if err != nil {
		if errors.Is(err, pricing.ErrRateNotFound) {
			return nil, decimal.Zero, decimal.Zero, &ConfigurationError{Reason: "missing VAT rate for shipping country", Err: err}
		}
		return nil, decimal.Zero, decimal.Zero, err
	}

	costExclRON := cctx.ShippingMethod.Cost.Round(2)
	costInclRON := pricing.ExclToIncl(costExclRON, rate)

	s := &Shipping{
		MethodName: cctx.ShippingMethod.Name,
		VatRate:    rate,
		CostExcl:   pricing.ConvertFromRON(costExclRON, cur),
		CostIncl:   pricing.ConvertFromRON(costInclRON, cur),
	}
	if cctx.Pickup != nil {
		s.PickupPointID = cctx.Pickup.PointID
		s.PickupCarrier = cctx.Pickup.Carrier
		s.PickupName = cctx.Pickup.Name
		s.PickupCity = cctx.Pickup.City
	}
	return s, costExclRON, costInclRON, nil
}

// snapshotAddress copies a resolved address into an order-owned record.
// Later edits to the address book never alter a placed order.
func snapshotAddress(orderID int64, role AddressRole, r *checkout.ResolvedAddress) *Address {
	a := &Address{OrderID: orderID, Role: role, CountryID: r.CountryID}
	switch {
	case r.Stored != nil:
		a.Line1 = r.Stored.Line1
		a.Line2 = r.Stored.Line2
		a.City = r.Stored.City
		a.Region = r.Stored.Region
		a.PostalCode = r.Stored.PostalCode
		a.Phone = r.Stored.Phone
	case r.Inline != nil:
		a.Name = r.Inline.Name
		a.Line1 = r.Inline.Line1
		a.Line2 = r.Inline.Line2
		a.City = r.Inline.City
		a.Region = r.Inline.Region
		a.PostalCode = r.Inline.PostalCode
		a.Phone = r.Inline.Phone
	}
	return a
}

// persist runs the transactional tail of order creation: insert with a
// placeholder number, derive the permanent code from the generated id,
// snapshot addresses and shipping, decrement stock under row locks, convert
// the cart, and append the audit entry.
func (c *Creator) persist(ctx context.Context, s TxStore, cctx *checkout.Context, o *Order, lines []Line, shipping *Shipping) error {
	// The order needs a primary identifier before its code can exist.
	o.Number = placeholderNumber
	id, err := s.InsertOrder(ctx, o)
	if err != nil {
		return errors.Wrap(err, "insert order")
	}
	o.ID = id

	code, err := ordercode.Encode(id)
	if err != nil {
		return errors.Wrap(err, "derive order code")
	}
	if err := s.SetNumber(ctx, id, code); err != nil {
		return errors.Wrap(err, "set order number")
	}
	o.Number = code

	for i := range lines {
		lines[i].OrderID = id
	}
	if err := s.InsertLines(ctx, id, lines); err != nil {
		return errors.Wrap(err, "insert order lines")
	}

	if err := s.InsertAddress(ctx, snapshotAddress(id, AddressBilling, &cctx.Billing)); err != nil {
		return errors.Wrap(err, "insert billing address")
	}
	if cctx.Shipping != nil {
		if err := s.InsertAddress(ctx, snapshotAddress(id, AddressShipping, cctx.Shipping)); err != nil {
			return errors.Wrap(err, "insert shipping address")
		}
	}

	shipping.OrderID = id
	if err := s.InsertShipping(ctx, shipping); err != nil {
		return errors.Wrap(err, "insert shipping snapshot")
	}

	// Serialize concurrent purchases of the same product with row locks.
	// Decrements proceed even past zero: backorders are allowed.
	for _, l := range lines {
		if _, err := s.LockStock(ctx, l.ProductID); err != nil {
			return errors.Wrapf(err, "lock stock for product %d", l.ProductID)
		}
		if err := s.AdjustStock(ctx, l.ProductID, -l.Quantity); err != nil {
			return errors.Wrapf(err, "adjust stock for product %d", l.ProductID)
		}
	}

	if cctx.CartID != 0 {
		if err := s.ConvertCart(ctx, cctx.CartID); err != nil {
			return errors.Wrap(err, "convert cart")
		}
	}

	entry := &HistoryEntry{
		OrderID: id,
		Action:  "created",
		Summary: fmt.Sprintf("order %s created with %d lines, total %s %s",
			code, len(lines), o.TotalIncl, o.Currency),
		After: string(StatusNew),
	}
	if o.CustomerID != nil {
		entry.ActorID = o.CustomerID
	}
	if err := s.AppendHistory(ctx, entry); err != nil {
		return errors.Wrap(err, "append order history")
	}
	return nil
}

// placeholderNumber is the temporary order number used between the initial
// insert and the code derivation.
const placeholderNumber = "PENDING"

// averageVatRate derives the frozen average VAT percentage from the RON
// totals.
func averageVatRate(excl, incl decimal.Decimal) decimal.Decimal {
	if !excl.IsPositive() {
		return decimal.Zero
	}
	return incl.Sub(excl).Div(excl).Mul(decimal.NewFromInt(100)).Round(2)
}
