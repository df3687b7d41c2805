package cart

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/altmarket/storefront/internal/domain/catalog"
	"github.com/altmarket/storefront/internal/domain/pricing"
)

// DisplayLine is one cart line formatted for the storefront.
type DisplayLine struct {
	ProductID int64
	SegmentID int64
	SKU       string
	Name      string
	Quantity  int
	Price     pricing.Breakdown
}

// Aggregator applies cart mutations and keeps persisted totals consistent
// with current prices. All pricing goes through the shared resolver; the
// aggregator never derives amounts on its own.
type Aggregator struct {
	carts    Store
	products catalog.ProductStore
	segments catalog.SegmentStore
	pricer   *pricing.Resolver
}

// NewAggregator creates a cart Aggregator.
func NewAggregator(
	carts Store,
	products catalog.ProductStore,
	segments catalog.SegmentStore,
	pricer *pricing.Resolver,
) *Aggregator {
	return &Aggregator{
		carts:    carts,
		products: products,
		segments: segments,
		pricer:   pricer,
	}
}

// Lines returns the customer's active cart lines keyed by line identity.
func (a *Aggregator) Lines(ctx context.Context, customerID int64) (Lines, error) {
	c, err := a.carts.ActiveCart(ctx, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart")
	}
	stored, err := a.carts.Lines(ctx, c.ID)
	if err != nil {
		return nil, errors.Wrap(err, "load cart lines")
	}

	ls := make(Lines, len(stored))
	for _, l := range stored {
		ls[l.Key()] = l
	}
	return ls, nil
}

// checkSellable rejects products that cannot be put in a cart directly.
func (a *Aggregator) checkSellable(ctx context.Context, productID int64) (*catalog.Product, error) {
	p, err := a.products.GetByID(ctx, productID)
	if err != nil {
		return nil, errors.Wrapf(err, "product %d", productID)
	}
	if p.Configurable {
		return nil, errors.Wrapf(ErrInvalidOperation, "product %d is configurable", productID)
	}
	return p, nil
}

// AddLine merges a line into the customer's active cart, summing the quantity
// when a line with the same (product, segment) key already exists, then
// refreshes the persisted total.
func (a *Aggregator) AddLine(ctx context.Context, customerID int64, l Line, currency string, countryID int64) error {
	if _, err := a.checkSellable(ctx, l.ProductID); err != nil {
		return err
	}

	c, err := a.carts.ActiveCart(ctx, customerID)
	if err != nil {
		return errors.Wrap(err, "load cart")
	}

	ls, err := a.Lines(ctx, customerID)
	if err != nil {
		return err
	}
	ls.Add(l)

	if err := a.carts.UpsertLine(ctx, c.ID, ls[l.Key()]); err != nil {
		return errors.Wrap(err, "upsert cart line")
	}
	return a.refreshTotal(ctx, c.ID, ls, currency, countryID)
}

// UpdateQuantity sets the quantity of an existing line. A non-positive
// quantity removes the line.
func (a *Aggregator) UpdateQuantity(ctx context.Context, customerID int64, key LineKey, quantity int, currency string, countryID int64) error {
	if quantity <= 0 {
		return a.RemoveLine(ctx, customerID, key, currency, countryID)
	}

	c, err := a.carts.ActiveCart(ctx, customerID)
	if err != nil {
		return errors.Wrap(err, "load cart")
	}
	ls, err := a.Lines(ctx, customerID)
	if err != nil {
		return err
	}
	ls.SetQuantity(key, quantity)

	if err := a.carts.UpsertLine(ctx, c.ID, ls[key]); err != nil {
		return errors.Wrap(err, "upsert cart line")
	}
	return a.refreshTotal(ctx, c.ID, ls, currency, countryID)
}

// RemoveLine deletes a line from the customer's active cart.
func (a *Aggregator) RemoveLine(ctx context.Context, customerID int64, key LineKey, currency string, countryID int64) error {
	c, err := a.carts.ActiveCart(ctx, customerID)
	if err != nil {
		return errors.Wrap(err, "load cart")
	}
	ls, err := a.Lines(ctx, customerID)
	if err != nil {
		return err
	}
	delete(ls, key)

	if err := a.carts.RemoveLine(ctx, c.ID, key); err != nil {
		return errors.Wrap(err, "remove cart line")
	}
	return a.refreshTotal(ctx, c.ID, ls, currency, countryID)
}

// AddGuestLine merges a line into an ephemeral guest cart. The same
// sellability rule applies; nothing is persisted.
func (a *Aggregator) AddGuestLine(ctx context.Context, g *GuestCart, l Line) error {
	if _, err := a.checkSellable(ctx, l.ProductID); err != nil {
		return err
	}
	g.Lines.Add(l)
	return nil
}

// MergeGuestIntoCustomer folds a guest cart into the customer's persisted
// cart on login. Every guest line is re-keyed to the customer's real segment,
// quantities are summed against existing lines with the same re-keyed
// identity, and the guest state is discarded.
func (a *Aggregator) MergeGuestIntoCustomer(ctx context.Context, g *GuestCart, customerID, segmentID int64, currency string, countryID int64) error {
	c, err := a.carts.ActiveCart(ctx, customerID)
	if err != nil {
		return errors.Wrap(err, "load cart")
	}
	ls, err := a.Lines(ctx, customerID)
	if err != nil {
		return err
	}

	for _, gl := range g.Lines {
		rekeyed := Line{ProductID: gl.ProductID, SegmentID: segmentID, Quantity: gl.Quantity}
		ls.Add(rekeyed)
		if err := a.carts.UpsertLine(ctx, c.ID, ls[rekeyed.Key()]); err != nil {
			return errors.Wrap(err, "merge cart line")
		}
	}

	g.Lines = make(Lines)
	return a.refreshTotal(ctx, c.ID, ls, currency, countryID)
}

// Summarize aggregates the line set into totals for the given display
// currency and jurisdiction. Lines whose product is inactive are skipped.
// Amounts accumulate line by line through the price resolver, rounding after
// each line. The headline VAT flags reflect the caller's segment.
func (a *Aggregator) Summarize(ctx context.Context, ls Lines, currency string, segment catalog.Segment, countryID int64) (*Summary, error) {
	memo := pricing.NewRateMemo()
	s := &Summary{
		Currency:     currency,
		TotalExclVat: decimal.Zero,
		TotalInclVat: decimal.Zero,
		VatIncluded:  segment.B2C,
	}

	rate, err := a.pricer.VatRate(ctx, memo, countryID, segment)
	if err != nil {
		return nil, err
	}
	s.VatRate = rate

	segs := map[int64]catalog.Segment{segment.ID: segment}
	for _, l := range ls {
		p, err := a.products.GetByID(ctx, l.ProductID)
		if err != nil {
			return nil, errors.Wrapf(err, "product %d", l.ProductID)
		}
		if !p.Active {
			continue
		}

		seg, ok := segs[l.SegmentID]
		if !ok {
			sp, err := a.segments.GetByID(ctx, l.SegmentID)
			if err != nil {
				return nil, errors.Wrapf(err, "segment %d", l.SegmentID)
			}
			seg = *sp
			segs[seg.ID] = seg
		}

		b, err := a.pricer.PriceInfo(ctx, memo, p, currency, l.Quantity, seg, countryID)
		if err != nil {
			return nil, err
		}

		s.ItemCount += l.Quantity
		s.TotalExclVat = s.TotalExclVat.Add(b.TotalExcl).Round(2)
		s.TotalInclVat = s.TotalInclVat.Add(b.TotalIncl).Round(2)
	}
	return s, nil
}

// FormatForDisplay renders the line set plus its summary for the storefront.
func (a *Aggregator) FormatForDisplay(ctx context.Context, ls Lines, currency string, segment catalog.Segment, countryID int64) ([]DisplayLine, *Summary, error) {
	summary, err := a.Summarize(ctx, ls, currency, segment, countryID)
	if err != nil {
		return nil, nil, err
	}

	memo := pricing.NewRateMemo()
	out := make([]DisplayLine, 0, len(ls))
	for _, l := range ls {
		p, err := a.products.GetByID(ctx, l.ProductID)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "product %d", l.ProductID)
		}
		if !p.Active {
			continue
		}
		seg, err := a.segments.GetByID(ctx, l.SegmentID)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "segment %d", l.SegmentID)
		}

		b, err := a.pricer.PriceInfo(ctx, memo, p, currency, l.Quantity, *seg, countryID)
		if err != nil {
			return nil, nil, err
		}
		out = append(out, DisplayLine{
			ProductID: p.ID,
			SegmentID: l.SegmentID,
			SKU:       p.SKU,
			Name:      p.Name,
			Quantity:  l.Quantity,
			Price:     *b,
		})
	}
	return out, summary, nil
}

// refreshTotal recomputes and persists the cart's display total so the
// stored figure always matches current prices.
func (a *Aggregator) refreshTotal(ctx context.Context, cartID int64, ls Lines, currency string, countryID int64) error {
	total := decimal.Zero
	memo := pricing.NewRateMemo()
	segs := map[int64]catalog.Segment{}

	for _, l := range ls {
		p, err := a.products.GetByID(ctx, l.ProductID)
		if err != nil {
			return errors.Wrapf(err, "product %d", l.ProductID)
		}
		if !p.Active {
			continue
		}
		seg, ok := segs[l.SegmentID]
		if !ok {
			sp, err := a.segments.GetByID(ctx, l.SegmentID)
			if err != nil {
				return errors.Wrapf(err, "segment %d", l.SegmentID)
			}
			seg = *sp
			segs[seg.ID] = seg
		}

		b, err := a.pricer.PriceInfo(ctx, memo, p, currency, l.Quantity, seg, countryID)
		if err != nil {
			return err
		}
		total = total.Add(b.TotalIncl).Round(2)
	}

	if err := a.carts.SetTotal(ctx, cartID, total); err != nil {
		return errors.Wrap(err, "persist cart total")
	}
	return nil
}
