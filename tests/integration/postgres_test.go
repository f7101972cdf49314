//go:build integration

package integration

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/shopcore/backoffice/internal/domain/coupon"
	"github.com/shopcore/backoffice/internal/domain/discount"
	"github.com/shopcore/backoffice/internal/domain/order"
	"github.com/shopcore/backoffice/internal/storage/postgres"
)

var pool *pgxpool.Pool

func TestMain(m *testing.M) {
	os.Exit(testMain(m))
}

func testMain(m *testing.M) int {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "shop",
				"POSTGRES_PASSWORD": "shop",
				"POSTGRES_DB":       "shop",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute),
		},
		Started: true,
	})
	if err != nil {
		log.Fatalf("start postgres: %v", err)
	}
	defer func() { _ = container.Terminate(context.Background()) }()

	host, err := container.Host(ctx)
	if err != nil {
		log.Fatalf("container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		log.Fatalf("mapped port: %v", err)
	}

	url := fmt.Sprintf("postgres://shop:shop@%s:%s/shop?sslmode=disable", host, port.Port())
	pool, err = postgres.NewPool(ctx, url)
	if err != nil {
		log.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		log.Fatalf("run migrations: %v", err)
	}

	return m.Run()
}

// --- Fixtures ---

func seedCustomer(t *testing.T, ctx context.Context) string {
	t.Helper()
	id := uuid.NewString()
	_, err := pool.Exec(ctx,
		`INSERT INTO customers (id, name, email) VALUES ($1, $2, $3)`,
		id, "Test Customer", id+"@example.com")
	require.NoError(t, err)
	return id
}

func seedProduct(t *testing.T, ctx context.Context, price string) string {
	t.Helper()
	id := uuid.NewString()
	_, err := pool.Exec(ctx,
		`INSERT INTO products (id, name, price) VALUES ($1, $2, $3)`,
		id, "Test Product", decimal.RequireFromString(price))
	require.NoError(t, err)
	return id
}

func seedOrder(t *testing.T, ctx context.Context, customerID, productID string, qty int) *order.Order {
	t.Helper()
	o := &order.Order{CustomerID: customerID}
	err := postgres.NewOrderRepository(pool).Create(ctx, o, []order.ItemRequest{
		{ProductID: productID, Quantity: qty},
	})
	require.NoError(t, err)
	return o
}

func seedCoupon(t *testing.T, ctx context.Context, c *coupon.Coupon, r coupon.Restrictions) {
	t.Helper()
	c.Scope = r.Scope()
	require.NoError(t, postgres.NewCouponRepository(pool).Create(ctx, c, r))
}

// --- Tests ---

func TestOrderItemSubtotalDerivedFromCatalog(t *testing.T) {
	ctx := context.Background()
	customerID := seedCustomer(t, ctx)
	productID := seedProduct(t, ctx, "6.50")

	o := seedOrder(t, ctx, customerID, productID, 3)

	require.Len(t, o.Items, 1)
	assert.True(t, decimal.RequireFromString("19.50").Equal(o.Items[0].Subtotal),
		"got %s", o.Items[0].Subtotal)
}

func TestOrderItemSync(t *testing.T) {
	ctx := context.Background()
	customerID := seedCustomer(t, ctx)
	p1 := seedProduct(t, ctx, "10")
	p2 := seedProduct(t, ctx, "4")

	repo := postgres.NewOrderRepository(pool)
	o := seedOrder(t, ctx, customerID, p1, 1)
	keptID := o.Items[0].ID

	// Keep the first item with a new quantity and add a second product.
	err := repo.Update(ctx, o, []order.ItemRequest{
		{ID: keptID, ProductID: p1, Quantity: 5},
		{ProductID: p2, Quantity: 2},
	})
	require.NoError(t, err)
	require.Len(t, o.Items, 2)

	byProduct := map[string]order.LineItem{}
	for _, it := range o.Items {
		byProduct[it.ProductID] = it
	}
	assert.Equal(t, keptID, byProduct[p1].ID, "persisted item keeps its id")
	assert.True(t, decimal.RequireFromString("50").Equal(byProduct[p1].Subtotal))
	assert.True(t, decimal.RequireFromString("8").Equal(byProduct[p2].Subtotal))

	// Dropping a product from the request deletes its row.
	err = repo.Update(ctx, o, []order.ItemRequest{
		{ID: keptID, ProductID: p1, Quantity: 5},
	})
	require.NoError(t, err)
	assert.Len(t, o.Items, 1)
}

func TestApplyAndRemoveDiscountRoundTrip(t *testing.T) {
	ctx := context.Background()
	customerID := seedCustomer(t, ctx)
	productID := seedProduct(t, ctx, "100")
	o := seedOrder(t, ctx, customerID, productID, 2)

	c := &coupon.Coupon{
		ID:       uuid.NewString(),
		Code:     "ROUND-" + uuid.NewString()[:8],
		Type:     coupon.DiscountPercent,
		Discount: decimal.NewFromInt(10),
		Quantity: 5,
	}
	seedCoupon(t, ctx, c, coupon.Restrictions{})

	store := postgres.NewDiscountStore(pool)
	lifecycle := discount.NewLifecycle(store)

	d, err := lifecycle.Apply(ctx, o.ID, c.Code)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("20").Equal(d.Amount), "got %s", d.Amount)

	got, err := postgres.NewCouponRepository(pool).FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, got.Quantity)

	require.NoError(t, lifecycle.Remove(ctx, d.ID))

	got, err = postgres.NewCouponRepository(pool).FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 5, got.Quantity, "removal releases the redemption")

	rows, err := store.ListByOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestExhaustedCouponLeavesNoRows(t *testing.T) {
	ctx := context.Background()
	customerID := seedCustomer(t, ctx)
	productID := seedProduct(t, ctx, "50")
	o := seedOrder(t, ctx, customerID, productID, 1)

	c := &coupon.Coupon{
		ID:       uuid.NewString(),
		Code:     "EMPTY-" + uuid.NewString()[:8],
		Type:     coupon.DiscountPercent,
		Discount: decimal.NewFromInt(10),
		Quantity: 0,
	}
	seedCoupon(t, ctx, c, coupon.Restrictions{})

	store := postgres.NewDiscountStore(pool)
	_, err := discount.NewLifecycle(store).Apply(ctx, o.ID, c.Code)
	require.ErrorIs(t, err, discount.ErrExhausted)

	rows, err := store.ListByOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Empty(t, rows, "rejected application must not leave a discount row")
}

func TestConcurrentNonRecursiveApplicationHasOneWinner(t *testing.T) {
	ctx := context.Background()
	customerID := seedCustomer(t, ctx)
	productID := seedProduct(t, ctx, "30")
	o := seedOrder(t, ctx, customerID, productID, 1)

	c := &coupon.Coupon{
		ID:       uuid.NewString(),
		Code:     "RACE-" + uuid.NewString()[:8],
		Type:     coupon.DiscountCurrency,
		Discount: decimal.NewFromInt(5),
		Quantity: 100,
	}
	seedCoupon(t, ctx, c, coupon.Restrictions{})

	lifecycle := discount.NewLifecycle(postgres.NewDiscountStore(pool))

	const workers = 8
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = lifecycle.Apply(ctx, o.ID, c.Code)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		require.ErrorIs(t, err, discount.ErrAlreadyApplied)
	}
	assert.Equal(t, 1, succeeded, "exactly one concurrent application wins")

	got, err := postgres.NewCouponRepository(pool).FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 99, got.Quantity, "exactly one redemption consumed")

	rows, err := postgres.NewDiscountStore(pool).ListByOrder(ctx, o.ID)
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

func TestCouponCodeLookupIsCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	repo := postgres.NewCouponRepository(pool)

	c := &coupon.Coupon{
		ID:       uuid.NewString(),
		Code:     "mixedCase" + uuid.NewString()[:8],
		Type:     coupon.DiscountPercent,
		Discount: decimal.NewFromInt(5),
		Quantity: 1,
	}
	seedCoupon(t, ctx, c, coupon.Restrictions{})

	got, err := repo.FindByCode(ctx, c.Code)
	require.NoError(t, err)
	assert.Equal(t, c.ID, got.ID)
	assert.Equal(t, coupon.NormalizeCode(c.Code), got.Code, "stored code is normalized")
}

func TestCouponRestrictionsPersistAndDeriveScope(t *testing.T) {
	ctx := context.Background()
	productID := seedProduct(t, ctx, "10")
	customerID := seedCustomer(t, ctx)
	repo := postgres.NewCouponRepository(pool)

	c := &coupon.Coupon{
		ID:       uuid.NewString(),
		Code:     "SCOPED-" + uuid.NewString()[:8],
		Type:     coupon.DiscountPercent,
		Discount: decimal.NewFromInt(15),
		Quantity: 10,
	}
	seedCoupon(t, ctx, c, coupon.Restrictions{
		Products:  []string{productID},
		Customers: []string{customerID},
	})

	got, err := repo.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, coupon.ScopeProductsAndCustomers, got.Scope)

	restr, err := repo.Restrictions(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{productID}, restr.Products)
	assert.Equal(t, []string{customerID}, restr.Customers)

	// Clearing the customer set narrows the scope to products only.
	err = repo.Update(ctx, got, coupon.Restrictions{Products: []string{productID}})
	require.NoError(t, err)

	got, err = repo.FindByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, coupon.ScopeProducts, got.Scope)
}
