package discount

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/shopcore/backoffice/internal/domain/coupon"
	"github.com/shopcore/backoffice/internal/domain/order"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func testOrder(items ...order.LineItem) *order.Order {
	return &order.Order{ID: "o1", CustomerID: "c1", Status: order.StatusPending, Items: items}
}

func TestComputeAmount(t *testing.T) {
	twoItems := testOrder(
		order.LineItem{ID: "1", ProductID: "p1", Quantity: 3, Subtotal: d("30")},
		order.LineItem{ID: "2", ProductID: "p2", Quantity: 1, Subtotal: d("10")},
	)

	tests := []struct {
		name         string
		coupon       *coupon.Coupon
		restrictions coupon.Restrictions
		order        *order.Order
		want         decimal.Decimal
	}{
		{
			name:   "10 percent off whole order",
			coupon: &coupon.Coupon{Type: coupon.DiscountPercent, Discount: d("10")},
			order: testOrder(
				order.LineItem{ID: "1", ProductID: "p1", Quantity: 2, Subtotal: d("200")},
			),
			want: d("20"),
		},
		{
			name:         "currency per unit on restricted product only",
			coupon:       &coupon.Coupon{Type: coupon.DiscountCurrency, Discount: d("5")},
			restrictions: coupon.Restrictions{Products: []string{"p1"}},
			order:        twoItems,
			want:         d("15"),
		},
		{
			name:         "percent on restricted product only",
			coupon:       &coupon.Coupon{Type: coupon.DiscountPercent, Discount: d("50")},
			restrictions: coupon.Restrictions{Products: []string{"p2"}},
			order:        twoItems,
			want:         d("5"),
		},
		{
			name:         "full waiver on restricted product",
			coupon:       &coupon.Coupon{Type: coupon.DiscountFull},
			restrictions: coupon.Restrictions{Products: []string{"p1"}},
			order:        twoItems,
			want:         d("30"),
		},
		{
			name:         "no qualifying item yields zero",
			coupon:       &coupon.Coupon{Type: coupon.DiscountCurrency, Discount: d("5")},
			restrictions: coupon.Restrictions{Products: []string{"p9"}},
			order:        twoItems,
			want:         d("0"),
		},
		{
			name:         "customer scoped coupon discounts order level",
			coupon:       &coupon.Coupon{Type: coupon.DiscountCurrency, Discount: d("7")},
			restrictions: coupon.Restrictions{Customers: []string{"c1"}},
			order:        twoItems,
			want:         d("7"),
		},
		{
			name:   "flat currency exceeding subtotal is clamped",
			coupon: &coupon.Coupon{Type: coupon.DiscountCurrency, Discount: d("500")},
			order:  twoItems,
			want:   d("40"),
		},
		{
			name:         "per unit currency exceeding subtotal is clamped",
			coupon:       &coupon.Coupon{Type: coupon.DiscountCurrency, Discount: d("20")},
			restrictions: coupon.Restrictions{Products: []string{"p1"}},
			order:        twoItems,
			want:         d("40"),
		},
		{
			name:   "full waiver of whole order",
			coupon: &coupon.Coupon{Type: coupon.DiscountFull},
			order:  twoItems,
			want:   d("40"),
		},
		{
			name:   "percent rounds to 2 decimal places",
			coupon: &coupon.Coupon{Type: coupon.DiscountPercent, Discount: d("33.33")},
			order: testOrder(
				order.LineItem{ID: "1", ProductID: "p1", Quantity: 1, Subtotal: d("10.01")},
			),
			// 10.01 * 33.33 / 100 = 3.336333 -> 3.34
			want: d("3.34"),
		},
		{
			name:   "empty order yields zero",
			coupon: &coupon.Coupon{Type: coupon.DiscountPercent, Discount: d("10")},
			order:  testOrder(),
			want:   d("0"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeAmount(tt.coupon, tt.restrictions, tt.order)

			assert.True(t, tt.want.Equal(got), "want %s, got %s", tt.want, got)
			assert.False(t, got.IsNegative())
			assert.True(t, got.LessThanOrEqual(tt.order.Subtotal()))
		})
	}
}
