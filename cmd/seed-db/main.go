// Command seed-db populates the database with a product catalog, demo
// customers, and a handful of coupons for local development.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/shopcore/backoffice/internal/domain/coupon"
	"github.com/shopcore/backoffice/internal/storage/postgres"
)

type productJSON struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
}

var customers = [][3]string{
	{"cust-alice", "Alice Carter", "alice@example.com"},
	{"cust-bob", "Bob Nguyen", "bob@example.com"},
	{"cust-carol", "Carol Fischer", "carol@example.com"},
}

func main() {
	var (
		databaseURL  string
		productsFile string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
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

	if err := run(ctx, databaseURL, productsFile); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, productsFile string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedCustomers(ctx, pool); err != nil {
		return errors.Wrap(err, "seed customers")
	}
	if err := seedProducts(ctx, pool, productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, pool); err != nil {
		return errors.Wrap(err, "seed coupons")
	}

	return nil
}

const (
	upsertCustomerSQL = `
INSERT INTO customers (id, name, email)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email`

	upsertProductSQL = `
INSERT INTO products (id, name, price)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, price = EXCLUDED.price`
)

func seedCustomers(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("upserting customers", slog.Int("count", len(customers)))

	for _, c := range customers {
		if _, err := pool.Exec(ctx, upsertCustomerSQL, c[0], c[1], c[2]); err != nil {
			return errors.Wrapf(err, "upsert customer %s", c[0])
		}
		slog.Info("upserted customer", slog.String("id", c[0]))
	}
	return nil
}

func seedProducts(ctx context.Context, pool *pgxpool.Pool, productsFile string) error {
	slog.Info("reading products file", slog.String("path", productsFile))

	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	slog.Info("upserting products", slog.Int("count", len(products)))

	for _, p := range products {
		if _, err := pool.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Price); err != nil {
			return errors.Wrapf(err, "upsert product %s", p.ID)
		}
		slog.Info("upserted product", slog.String("id", p.ID), slog.String("name", p.Name))
	}
	return nil
}

// seedCoupons creates demo coupons through the repository so restriction
// sets and scope markers stay consistent.
func seedCoupons(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding demo coupons")

	repo := postgres.NewCouponRepository(pool)

	seeds := []struct {
		c coupon.Coupon
		r coupon.Restrictions
	}{
		{
			c: coupon.Coupon{
				Code:     "WELCOME10",
				Type:     coupon.DiscountPercent,
				Discount: decimal.NewFromInt(10),
				Quantity: 1000,
			},
		},
		{
			c: coupon.Coupon{
				Code:      "STACK5",
				Type:      coupon.DiscountCurrency,
				Discount:  decimal.NewFromInt(5),
				Quantity:  500,
				Recursive: true,
			},
		},
		{
			c: coupon.Coupon{
				Code:     "WAFFLEDAY",
				Type:     coupon.DiscountPercent,
				Discount: decimal.NewFromInt(25),
				Quantity: 200,
			},
			r: coupon.Restrictions{Products: []string{"prod-waffle"}},
		},
		{
			c: coupon.Coupon{
				Code:     "VIPALICE",
				Type:     coupon.DiscountCurrency,
				Discount: decimal.NewFromInt(15),
				Quantity: 50,
			},
			r: coupon.Restrictions{Customers: []string{"cust-alice"}},
		},
	}

	for _, s := range seeds {
		c := s.c
		c.Scope = s.r.Scope()
		if _, err := repo.FindByCode(ctx, c.Code); err == nil {
			slog.Info("coupon exists, skipping", slog.String("code", c.Code))
			continue
		}
		if err := repo.Create(ctx, &c, s.r); err != nil {
			return errors.Wrapf(err, "create coupon %s", c.Code)
		}
		slog.Info("created coupon", slog.String("code", c.Code), slog.String("scope", c.Scope.String()))
	}
	return nil
}
