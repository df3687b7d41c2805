// Command seed-db loads catalog and reference data from a JSON dataset into
// the database. Datasets may be plain JSON or gzip-compressed (.gz); seeding
// is idempotent via upserts, so rerunning with the same file is safe.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	pgzip "github.com/klauspost/pgzip"
	"github.com/shopspring/decimal"

	"github.com/altmarket/storefront/internal/repository"
)

type dataset struct {
	Countries       []countryJSON  `json:"countries"`
	Currencies      []currencyJSON `json:"currencies"`
	Segments        []segmentJSON  `json:"segments"`
	PaymentMethods  []methodJSON   `json:"payment_methods"`
	ShippingMethods []shippingJSON `json:"shipping_methods"`
	Products        []productJSON  `json:"products"`
}

type countryJSON struct {
	Code     string            `json:"code"`
	Name     string            `json:"name"`
	VatRates []decimal.Decimal `json:"vat_rates"`
}

type currencyJSON struct {
	Code string          `json:"code"`
	Rate decimal.Decimal `json:"rate"`
}

type segmentJSON struct {
	Code string `json:"code"`
	B2C  bool   `json:"b2c"`
}

type methodJSON struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

type shippingJSON struct {
	Code   string          `json:"code"`
	Name   string          `json:"name"`
	Pickup bool            `json:"pickup"`
	Cost   decimal.Decimal `json:"cost"`
}

type productJSON struct {
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	BasePrice    decimal.Decimal `json:"base_price"`
	Stock        int             `json:"stock"`
	Active       bool            `json:"active"`
	Configurable bool            `json:"configurable"`
	ParentSKU    string          `json:"parent_sku"`
	Tiers        []tierJSON      `json:"tiers"`
}

type tierJSON struct {
	Segment string          `json:"segment"`
	MinQty  int             `json:"min_qty"`
	MaxQty  *int            `json:"max_qty"`
	Price   decimal.Decimal `json:"price"`
}

func main() {
	var (
		databaseURL string
		dataFile    string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&dataFile, "data-file", "db/seed/catalog.json", "path to dataset (.json or .json.gz)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, dataFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, dataFile string) error {
	ds, err := readDataset(dataFile)
	if err != nil {
		return errors.Wrap(err, "read dataset")
	}

	slog.Info("connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if _, err := seedCountries(ctx, pool, ds.Countries); err != nil {
		return errors.Wrap(err, "seed countries")
	}
	if err := seedCurrencies(ctx, pool, ds.Currencies); err != nil {
		return errors.Wrap(err, "seed currencies")
	}
	segmentIDs, err := seedSegments(ctx, pool, ds.Segments)
	if err != nil {
		return errors.Wrap(err, "seed segments")
	}
	if err := seedMethods(ctx, pool, ds.PaymentMethods, ds.ShippingMethods); err != nil {
		return errors.Wrap(err, "seed methods")
	}
	if err := seedProducts(ctx, pool, ds.Products, segmentIDs); err != nil {
		return errors.Wrap(err, "seed products")
	}
	return nil
}

// readDataset opens the file and transparently decompresses .gz datasets.
func readDataset(path string) (*dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open dataset")
	}
	defer f.Close()

	var r io.Reader = f
	if strings.HasSuffix(path, ".gz") {
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return nil, errors.Wrap(err, "open gzip stream")
		}
		defer gz.Close()
		r = gz
	}

	var ds dataset
	if err := json.NewDecoder(r).Decode(&ds); err != nil {
		return nil, errors.Wrap(err, "parse dataset JSON")
	}
	return &ds, nil
}

func seedCountries(ctx context.Context, pool *pgxpool.Pool, countries []countryJSON) (map[string]int64, error) {
	slog.Info("upserting countries", slog.Int("count", len(countries)))

	ids := make(map[string]int64, len(countries))
	for _, c := range countries {
		var id int64
		err := pool.QueryRow(ctx,
			`INSERT INTO countries (code, name) VALUES ($1, $2)
			 ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name
			 RETURNING id`,
			c.Code, c.Name,
		).Scan(&id)
		if err != nil {
			return nil, errors.Wrapf(err, "upsert country %s", c.Code)
		}
		ids[c.Code] = id

		for _, rate := range c.VatRates {
			if _, err := pool.Exec(ctx,
				`INSERT INTO vat_rates (country_id, rate) VALUES ($1, $2)
				 ON CONFLICT (country_id, rate) DO NOTHING`,
				id, rate,
			); err != nil {
				return nil, errors.Wrapf(err, "upsert vat rate %s for %s", rate, c.Code)
			}
		}
		slog.Info("upserted country", slog.String("code", c.Code), slog.Int("vat_rates", len(c.VatRates)))
	}
	return ids, nil
}

func seedCurrencies(ctx context.Context, pool *pgxpool.Pool, currencies []currencyJSON) error {
	slog.Info("upserting currencies", slog.Int("count", len(currencies)))

	for _, c := range currencies {
		if _, err := pool.Exec(ctx,
			`INSERT INTO currencies (code, rate, active) VALUES ($1, $2, TRUE)
			 ON CONFLICT (code) DO UPDATE SET rate = EXCLUDED.rate, active = TRUE`,
			c.Code, c.Rate,
		); err != nil {
			return errors.Wrapf(err, "upsert currency %s", c.Code)
		}
	}
	return nil
}

func seedSegments(ctx context.Context, pool *pgxpool.Pool, segments []segmentJSON) (map[string]int64, error) {
	slog.Info("upserting segments", slog.Int("count", len(segments)))

	ids := make(map[string]int64, len(segments))
	for _, s := range segments {
		var id int64
		err := pool.QueryRow(ctx,
			`INSERT INTO segments (code, b2c) VALUES ($1, $2)
			 ON CONFLICT (code) DO UPDATE SET b2c = EXCLUDED.b2c
			 RETURNING id`,
			s.Code, s.B2C,
		).Scan(&id)
		if err != nil {
			return nil, errors.Wrapf(err, "upsert segment %s", s.Code)
		}
		ids[s.Code] = id
	}
	return ids, nil
}

func seedMethods(ctx context.Context, pool *pgxpool.Pool, payments []methodJSON, shippings []shippingJSON) error {
	slog.Info("upserting methods",
		slog.Int("payment", len(payments)),
		slog.Int("shipping", len(shippings)),
	)

	for _, m := range payments {
		if _, err := pool.Exec(ctx,
			`INSERT INTO payment_methods (code, name, active) VALUES ($1, $2, TRUE)
			 ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, active = TRUE`,
			m.Code, m.Name,
		); err != nil {
			return errors.Wrapf(err, "upsert payment method %s", m.Code)
		}
	}
	for _, m := range shippings {
		if _, err := pool.Exec(ctx,
			`INSERT INTO shipping_methods (code, name, pickup, cost, active) VALUES ($1, $2, $3, $4, TRUE)
			 ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, pickup = EXCLUDED.pickup, cost = EXCLUDED.cost, active = TRUE`,
			m.Code, m.Name, m.Pickup, m.Cost,
		); err != nil {
			return errors.Wrapf(err, "upsert shipping method %s", m.Code)
		}
	}
	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, products []productJSON, segmentIDs map[string]int64) error {
	slog.Info("upserting products", slog.Int("count", len(products)))

	// First pass inserts every product so parent references resolve
	// regardless of dataset ordering.
	ids := make(map[string]int64, len(products))
	for _, p := range products {
		var id int64
		err := pool.QueryRow(ctx,
			`INSERT INTO products (sku, name, base_price, stock, active, configurable)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (sku) DO UPDATE SET
				name = EXCLUDED.name, base_price = EXCLUDED.base_price,
				stock = EXCLUDED.stock, active = EXCLUDED.active,
				configurable = EXCLUDED.configurable
			 RETURNING id`,
			p.SKU, p.Name, p.BasePrice, p.Stock, p.Active, p.Configurable,
		).Scan(&id)
		if err != nil {
			return errors.Wrapf(err, "upsert product %s", p.SKU)
		}
		ids[p.SKU] = id
	}

	for _, p := range products {
		id := ids[p.SKU]

		if p.ParentSKU != "" {
			parentID, ok := ids[p.ParentSKU]
			if !ok {
				return errors.Errorf("product %s references unknown parent %s", p.SKU, p.ParentSKU)
			}
			if _, err := pool.Exec(ctx,
				`UPDATE products SET parent_id = $2 WHERE id = $1`, id, parentID,
			); err != nil {
				return errors.Wrapf(err, "link product %s to parent", p.SKU)
			}
		}

		for _, t := range p.Tiers {
			segID, ok := segmentIDs[t.Segment]
			if !ok {
				return errors.Errorf("product %s tier references unknown segment %s", p.SKU, t.Segment)
			}
			if _, err := pool.Exec(ctx,
				`INSERT INTO price_tiers (product_id, segment_id, min_qty, max_qty, price)
				 VALUES ($1, $2, $3, $4, $5)
				 ON CONFLICT (product_id, segment_id, min_qty) DO UPDATE SET
					max_qty = EXCLUDED.max_qty, price = EXCLUDED.price`,
				id, segID, t.MinQty, t.MaxQty, t.Price,
			); err != nil {
				return errors.Wrapf(err, "upsert tier for product %s", p.SKU)
			}
		}

		slog.Info("upserted product", slog.String("sku", p.SKU), slog.Int("tiers", len(p.Tiers)))
	}
	return nil
}
