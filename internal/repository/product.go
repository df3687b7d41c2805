package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/altmarket/storefront/internal/domain/catalog"
)

const (
	getProductSQL = `SELECT id, sku, name, base_price, stock, active, configurable, parent_id, created_at
		FROM products WHERE id = $1`

	getProductsSQL = `SELECT id, sku, name, base_price, stock, active, configurable, parent_id, created_at
		FROM products WHERE id = ANY($1) ORDER BY id`

	getChildrenSQL = `SELECT id, sku, name, base_price, stock, active, configurable, parent_id, created_at
		FROM products WHERE parent_id = $1 ORDER BY id`

	getTiersSQL = `SELECT product_id, segment_id, min_qty, max_qty, price
		FROM price_tiers WHERE product_id = ANY($1) ORDER BY product_id, segment_id, min_qty`

	setProductActiveSQL = `UPDATE products SET active = $2 WHERE id = $1`
)

var _ catalog.ProductStore = (*ProductRepository)(nil)

// ProductRepository implements catalog.ProductStore backed by PostgreSQL.
// Price tiers are loaded alongside their products.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByID returns a single product with its price tiers.
func (r *ProductRepository) GetByID(ctx context.Context, id int64) (*catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, catalog.ErrProductNotFound
		}
		return nil, fmt.Errorf("getting product %d: %w", id, err)
	}

	if err := r.attachTiers(ctx, []*catalog.Product{&p}); err != nil {
		return nil, err
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given ids, tiers included.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []int64) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products: %w", err)
	}
	products, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("getting products: %w", err)
	}

	refs := make([]*catalog.Product, len(products))
	for i := range products {
		refs[i] = &products[i]
	}
	if err := r.attachTiers(ctx, refs); err != nil {
		return nil, err
	}
	return products, nil
}

// Children returns the concrete variants under a configurable parent.
func (r *ProductRepository) Children(ctx context.Context, parentID int64) ([]catalog.Product, error) {
	rows, err := r.pool.Query(ctx, getChildrenSQL, parentID)
	if err != nil {
		return nil, fmt.Errorf("getting children of product %d: %w", parentID, err)
	}
	children, err := pgx.CollectRows(rows, scanProduct)
	if err != nil {
		return nil, fmt.Errorf("getting children of product %d: %w", parentID, err)
	}
	return children, nil
}

// SetActive applies one hierarchy status update.
func (r *ProductRepository) SetActive(ctx context.Context, u catalog.StatusUpdate) error {
	_, err := r.pool.Exec(ctx, setProductActiveSQL, u.ProductID, u.Active)
	if err != nil {
		return fmt.Errorf("updating product %d status: %w", u.ProductID, err)
	}
	return nil
}

// attachTiers loads the price tiers for the given products in one query.
func (r *ProductRepository) attachTiers(ctx context.Context, products []*catalog.Product) error {
	if len(products) == 0 {
		return nil
	}
	ids := make([]int64, len(products))
	byID := make(map[int64]*catalog.Product, len(products))
	for i, p := range products {
		ids[i] = p.ID
		byID[p.ID] = p
	}

	rows, err := r.pool.Query(ctx, getTiersSQL, ids)
	if err != nil {
		return fmt.Errorf("getting price tiers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			productID int64
			t         catalog.PriceTier
		)
		if err := rows.Scan(&productID, &t.SegmentID, &t.MinQty, &t.MaxQty, &t.Price); err != nil {
			return fmt.Errorf("scanning price tier: %w", err)
		}
		if p, ok := byID[productID]; ok {
			p.Tiers = append(p.Tiers, t)
		}
	}
	return rows.Err()
}

func scanProduct(row pgx.CollectableRow) (catalog.Product, error) {
	var p catalog.Product
	err := row.Scan(
		&p.ID, &p.SKU, &p.Name, &p.BasePrice, &p.Stock,
		&p.Active, &p.Configurable, &p.ParentID, &p.CreatedAt,
	)
	return p, err
}
