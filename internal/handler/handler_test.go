package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shopcore/backoffice/internal/domain/coupon"
	"github.com/shopcore/backoffice/internal/domain/discount"
	"github.com/shopcore/backoffice/internal/domain/order"
	"github.com/shopcore/backoffice/internal/domain/product"
)

// --- Mock implementations ---

type mockProductRepo struct {
	byID map[string]product.Product
}

func (m *mockProductRepo) List(_ context.Context) ([]product.Product, error) {
	list := make([]product.Product, 0, len(m.byID))
	for _, p := range m.byID {
		list = append(list, p)
	}
	return list, nil
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return &p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var list []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			list = append(list, p)
		}
	}
	return list, nil
}

type mockOrderRepo struct {
	products *mockProductRepo
	orders   map[string]*order.Order
	nextID   int
}

func (m *mockOrderRepo) items(orderID string, reqs []order.ItemRequest) ([]order.LineItem, error) {
	items := make([]order.LineItem, len(reqs))
	for i, req := range reqs {
		p, ok := m.products.byID[req.ProductID]
		if !ok {
			return nil, product.ErrNotFound
		}
		items[i] = order.LineItem{
			ID:        fmt.Sprintf("li%d-%d", m.nextID, i),
			OrderID:   orderID,
			ProductID: req.ProductID,
			Quantity:  req.Quantity,
			Subtotal:  p.Price.Mul(decimal.NewFromInt(int64(req.Quantity))),
		}
	}
	return items, nil
}

func (m *mockOrderRepo) Create(_ context.Context, o *order.Order, reqs []order.ItemRequest) error {
	if err := order.ValidateItems(reqs); err != nil {
		return err
	}
	m.nextID++
	o.ID = fmt.Sprintf("o%d", m.nextID)
	if o.Status == "" {
		o.Status = order.StatusPending
	}
	items, err := m.items(o.ID, reqs)
	if err != nil {
		return err
	}
	o.Items = items
	m.orders[o.ID] = o
	return nil
}

func (m *mockOrderRepo) Get(_ context.Context, id string) (*order.Order, error) {
	o, ok := m.orders[id]
	if !ok {
		return nil, order.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) List(_ context.Context, status *order.Status) ([]order.Order, error) {
	var list []order.Order
	for _, o := range m.orders {
		if status == nil || o.Status == *status {
			list = append(list, *o)
		}
	}
	return list, nil
}

func (m *mockOrderRepo) Update(_ context.Context, o *order.Order, reqs []order.ItemRequest) error {
	if _, ok := m.orders[o.ID]; !ok {
		return order.ErrNotFound
	}
	if err := order.ValidateItems(reqs); err != nil {
		return err
	}
	items, err := m.items(o.ID, reqs)
	if err != nil {
		return err
	}
	o.Items = items
	m.orders[o.ID] = o
	return nil
}

func (m *mockOrderRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.orders[id]; !ok {
		return order.ErrNotFound
	}
	delete(m.orders, id)
	return nil
}

type mockCouponRepo struct {
	byID         map[string]*coupon.Coupon
	restrictions map[string]coupon.Restrictions
	nextID       int
}

func (m *mockCouponRepo) FindByCode(_ context.Context, code string) (*coupon.Coupon, error) {
	for _, c := range m.byID {
		if c.Code == coupon.NormalizeCode(code) {
			return c, nil
		}
	}
	return nil, coupon.ErrNotFound
}

func (m *mockCouponRepo) FindByID(_ context.Context, id string) (*coupon.Coupon, error) {
	c, ok := m.byID[id]
	if !ok {
		return nil, coupon.ErrNotFound
	}
	return c, nil
}

func (m *mockCouponRepo) Restrictions(_ context.Context, couponID string) (coupon.Restrictions, error) {
	return m.restrictions[couponID], nil
}

func (m *mockCouponRepo) Create(_ context.Context, c *coupon.Coupon, r coupon.Restrictions) error {
	m.nextID++
	c.ID = fmt.Sprintf("cp%d", m.nextID)
	m.byID[c.ID] = c
	m.restrictions[c.ID] = r
	return nil
}

func (m *mockCouponRepo) Update(_ context.Context, c *coupon.Coupon, r coupon.Restrictions) error {
	if _, ok := m.byID[c.ID]; !ok {
		return coupon.ErrNotFound
	}
	m.byID[c.ID] = c
	m.restrictions[c.ID] = r
	return nil
}

func (m *mockCouponRepo) Delete(_ context.Context, id string) error {
	if _, ok := m.byID[id]; !ok {
		return coupon.ErrNotFound
	}
	delete(m.byID, id)
	delete(m.restrictions, id)
	return nil
}

func (m *mockCouponRepo) List(_ context.Context, codeFilter string) ([]coupon.Coupon, error) {
	var list []coupon.Coupon
	for _, c := range m.byID {
		if codeFilter == "" || strings.Contains(c.Code, coupon.NormalizeCode(codeFilter)) {
			list = append(list, *c)
		}
	}
	return list, nil
}

// mockDiscountStore backs the discount lifecycle with the order and coupon
// mocks, committing changes directly.
type mockDiscountStore struct {
	orders    *mockOrderRepo
	coupons   *mockCouponRepo
	discounts map[string]*discount.Discount
}

func (m *mockDiscountStore) ListByOrder(_ context.Context, orderID string) ([]discount.Discount, error) {
	var list []discount.Discount
	for _, d := range m.discounts {
		if d.OrderID == orderID {
			list = append(list, *d)
		}
	}
	return list, nil
}

func (m *mockDiscountStore) Begin(_ context.Context) (discount.Tx, error) {
	return &mockDiscountTx{s: m}, nil
}

type mockDiscountTx struct {
	s *mockDiscountStore
}

func (t *mockDiscountTx) Commit(context.Context) error   { return nil }
func (t *mockDiscountTx) Rollback(context.Context) error { return nil }

func (t *mockDiscountTx) LockOrder(ctx context.Context, orderID string) (*order.Order, error) {
	return t.s.orders.Get(ctx, orderID)
}

func (t *mockDiscountTx) CouponByCode(ctx context.Context, code string) (*coupon.Coupon, error) {
	return t.s.coupons.FindByCode(ctx, code)
}

func (t *mockDiscountTx) CouponRestrictions(ctx context.Context, couponID string) (coupon.Restrictions, error) {
	return t.s.coupons.Restrictions(ctx, couponID)
}

func (t *mockDiscountTx) DiscountCount(_ context.Context, orderID string) (int, error) {
	n := 0
	for _, d := range t.s.discounts {
		if d.OrderID == orderID {
			n++
		}
	}
	return n, nil
}

func (t *mockDiscountTx) InsertDiscount(_ context.Context, d *discount.Discount) error {
	t.s.discounts[d.ID] = d
	return nil
}

func (t *mockDiscountTx) DiscountByID(_ context.Context, id string) (*discount.Discount, error) {
	d, ok := t.s.discounts[id]
	if !ok {
		return nil, discount.ErrNotFound
	}
	return d, nil
}

func (t *mockDiscountTx) DeleteDiscount(_ context.Context, id string) error {
	delete(t.s.discounts, id)
	return nil
}

func (t *mockDiscountTx) DecrementCouponQuantity(_ context.Context, couponID string) error {
	c := t.s.coupons.byID[couponID]
	if c.Quantity <= 0 {
		return discount.ErrExhausted
	}
	c.Quantity--
	return nil
}

func (t *mockDiscountTx) IncrementCouponQuantity(_ context.Context, couponID string) error {
	t.s.coupons.byID[couponID].Quantity++
	return nil
}

// --- Helpers ---

type fixture struct {
	handler  http.Handler
	orders   *mockOrderRepo
	coupons  *mockCouponRepo
	store    *mockDiscountStore
	products *mockProductRepo
}

func newFixture() *fixture {
	products := &mockProductRepo{byID: map[string]product.Product{
		"p1": {ID: "p1", Name: "Waffle", Price: decimal.RequireFromString("100")},
		"p2": {ID: "p2", Name: "Brownie", Price: decimal.RequireFromString("7.50")},
	}}
	orders := &mockOrderRepo{products: products, orders: make(map[string]*order.Order)}
	coupons := &mockCouponRepo{
		byID:         make(map[string]*coupon.Coupon),
		restrictions: make(map[string]coupon.Restrictions),
	}
	store := &mockDiscountStore{
		orders:    orders,
		coupons:   coupons,
		discounts: make(map[string]*discount.Discount),
	}

	h := New(products, orders, coupons, store, discount.NewLifecycle(store))
	return &fixture{
		handler:  h.Routes(),
		orders:   orders,
		coupons:  coupons,
		store:    store,
		products: products,
	}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

// --- Tests ---

func TestGetProduct(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodGet, "/products/p1", "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeJSON[productResponse](t, rec)
	assert.Equal(t, "Waffle", got.Name)
	assert.Equal(t, 100.0, got.Price)

	rec = f.do(t, http.MethodGet, "/products/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateOrder(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/orders",
		`{"customer_id":"c1","items":[{"product_id":"p1","quantity":2},{"product_id":"p2","quantity":1}]}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	got := decodeJSON[orderResponse](t, rec)
	assert.Equal(t, "c1", got.CustomerID)
	assert.Equal(t, "pending", got.Status)
	require.Len(t, got.Items, 2)
	assert.Equal(t, 200.0, got.Items[0].Subtotal)
	assert.Equal(t, 207.50, got.Subtotal)
	assert.Equal(t, got.Subtotal, got.Total)
}

func TestCreateOrderRejectsBadItems(t *testing.T) {
	f := newFixture()

	t.Run("missing items", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/orders", `{"customer_id":"c1"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("zero quantity", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/orders",
			`{"customer_id":"c1","items":[{"product_id":"p1","quantity":0}]}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("unknown product", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/orders",
			`{"customer_id":"c1","items":[{"product_id":"ghost","quantity":1}]}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestGetOrderNotFound(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/orders/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListOrdersRejectsUnknownStatus(t *testing.T) {
	f := newFixture()
	rec := f.do(t, http.MethodGet, "/orders?status=limbo", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateOrderSyncsItems(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/orders",
		`{"customer_id":"c1","items":[{"product_id":"p1","quantity":1}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeJSON[orderResponse](t, rec)

	rec = f.do(t, http.MethodPut, "/orders/"+created.ID,
		`{"items":[{"product_id":"p2","quantity":4}],"status":"paid"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decodeJSON[orderResponse](t, rec)
	assert.Equal(t, "paid", got.Status)
	require.Len(t, got.Items, 1)
	assert.Equal(t, "p2", got.Items[0].ProductID)
	assert.Equal(t, 30.0, got.Subtotal)
}

func TestApplyCoupon(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/orders",
		`{"customer_id":"c1","items":[{"product_id":"p1","quantity":2}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	o := decodeJSON[orderResponse](t, rec)

	rec = f.do(t, http.MethodPost, "/coupons",
		`{"code":"save10","type":"percent","discount":10,"quantity":5}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/orders/"+o.ID+"/discounts", `{"code":"SAVE10"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	d := decodeJSON[discountResponse](t, rec)
	assert.Equal(t, 20.0, d.Amount)

	// The order response reflects the discount.
	rec = f.do(t, http.MethodGet, "/orders/"+o.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeJSON[orderResponse](t, rec)
	require.Len(t, got.Discounts, 1)
	assert.Equal(t, 180.0, got.Total)
}

func TestApplyCouponRejections(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/orders",
		`{"customer_id":"c1","items":[{"product_id":"p1","quantity":1}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	o := decodeJSON[orderResponse](t, rec)

	t.Run("missing code", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/orders/"+o.ID+"/discounts", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown coupon", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/orders/"+o.ID+"/discounts", `{"code":"GHOST"}`)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("scope mismatch", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/coupons",
			`{"code":"vip","type":"percent","discount":10,"quantity":5,"customers":["someone-else"]}`)
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = f.do(t, http.MethodPost, "/orders/"+o.ID+"/discounts", `{"code":"VIP"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("exhausted", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/coupons",
			`{"code":"gone","type":"percent","discount":10,"quantity":0}`)
		require.Equal(t, http.StatusCreated, rec.Code)

		rec = f.do(t, http.MethodPost, "/orders/"+o.ID+"/discounts", `{"code":"GONE"}`)
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestRemoveDiscount(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/orders",
		`{"customer_id":"c1","items":[{"product_id":"p1","quantity":1}]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	o := decodeJSON[orderResponse](t, rec)

	rec = f.do(t, http.MethodPost, "/coupons",
		`{"code":"tmp","type":"currency","discount":5,"quantity":3}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = f.do(t, http.MethodPost, "/orders/"+o.ID+"/discounts", `{"code":"TMP"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	d := decodeJSON[discountResponse](t, rec)

	rec = f.do(t, http.MethodDelete, "/orders/"+o.ID+"/discounts/"+d.ID, "")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	// Redemption is released back.
	c, err := f.coupons.FindByCode(context.Background(), "TMP")
	require.NoError(t, err)
	assert.Equal(t, 3, c.Quantity)

	rec = f.do(t, http.MethodDelete, "/orders/"+o.ID+"/discounts/"+d.ID, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateCoupon(t *testing.T) {
	f := newFixture()

	t.Run("derives scope and normalizes code", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/coupons",
			`{"code":" spring25 ","type":"percent","discount":25,"quantity":10,"products":["p1"],"customers":["c1"]}`)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		got := decodeJSON[couponResponse](t, rec)
		assert.Equal(t, "SPRING25", got.Code)
		assert.Equal(t, "product_client", got.Scope)
	})

	t.Run("rejects unknown type", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/coupons",
			`{"code":"x","type":"bogus","discount":1,"quantity":1}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("rejects negative quantity", func(t *testing.T) {
		rec := f.do(t, http.MethodPost, "/coupons",
			`{"code":"x","type":"percent","discount":1,"quantity":-1}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestUpdateCouponRederivesScope(t *testing.T) {
	f := newFixture()

	rec := f.do(t, http.MethodPost, "/coupons",
		`{"code":"a","type":"percent","discount":5,"quantity":1,"products":["p1"]}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeJSON[couponResponse](t, rec)
	require.Equal(t, "product", created.Scope)

	rec = f.do(t, http.MethodPut, "/coupons/"+created.ID,
		`{"code":"a","type":"percent","discount":5,"quantity":1}`)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decodeJSON[couponResponse](t, rec)
	assert.Equal(t, "all", got.Scope)
}
