package discount

import (
	"github.com/shopspring/decimal"

	"github.com/shopcore/backoffice/internal/domain/coupon"
	"github.com/shopcore/backoffice/internal/domain/order"
)

var hundred = decimal.NewFromInt(100)

// ComputeAmount calculates the monetary discount the coupon produces for
// the order's line items. Deterministic and side-effect free.
//
// Product-scoped coupons discount only the qualifying line items; coupons
// not restricted by product discount the order as a whole. The result is
// rounded to 2 decimal places and clamped to [0, order subtotal] so the
// payable total can never go negative.
func ComputeAmount(c *coupon.Coupon, r coupon.Restrictions, o *order.Order) decimal.Decimal {
	subtotal := o.Subtotal()

	var amount decimal.Decimal
	switch r.Scope() {
	case coupon.ScopeProducts, coupon.ScopeProductsAndCustomers:
		amount = perItemAmount(c, r, o.Items)
	default:
		amount = orderLevelAmount(c, subtotal)
	}

	return clamp(amount.Round(2), subtotal)
}

// perItemAmount accumulates the discount across line items whose product is
// in the coupon's restricted set.
func perItemAmount(c *coupon.Coupon, r coupon.Restrictions, items []order.LineItem) decimal.Decimal {
	restricted := make(map[string]struct{}, len(r.Products))
	for _, id := range r.Products {
		restricted[id] = struct{}{}
	}

	sum := decimal.Zero
	for _, it := range items {
		if _, ok := restricted[it.ProductID]; !ok {
			continue
		}
		switch c.Type {
		case coupon.DiscountPercent:
			sum = sum.Add(it.Subtotal.Mul(c.Discount).Div(hundred))
		case coupon.DiscountCurrency:
			sum = sum.Add(c.Discount.Mul(decimal.NewFromInt(int64(it.Quantity))))
		default:
			// Full waiver: the qualifying item becomes free.
			sum = sum.Add(it.Subtotal)
		}
	}
	return sum
}

// orderLevelAmount computes a whole-order discount. Customer-scoped coupons
// intentionally share this branch: the currency type is a flat amount, not
// per item.
func orderLevelAmount(c *coupon.Coupon, subtotal decimal.Decimal) decimal.Decimal {
	switch c.Type {
	case coupon.DiscountPercent:
		return subtotal.Mul(c.Discount).Div(hundred)
	case coupon.DiscountCurrency:
		return c.Discount
	default:
		return subtotal
	}
}

// clamp bounds amount to [0, max].
func clamp(amount, max decimal.Decimal) decimal.Decimal {
	if amount.IsNegative() {
		return decimal.Zero
	}
	if amount.GreaterThan(max) {
		return max
	}
	return amount
}
