package coupon

// Eligible decides whether a coupon with the given restriction sets may be
// applied to an order placed by customerID containing orderProducts.
//
// The decision is pure and idempotent. Validity window, remaining quantity
// and the one-discount-per-order rule for non-recursive coupons are
// preconditions checked by the caller, not part of this decision.
func Eligible(r Restrictions, customerID string, orderProducts []string) bool {
	switch r.Scope() {
	case ScopeUnrestricted:
		return true
	case ScopeProductsAndCustomers:
		return r.HasCustomer(customerID) && len(r.MatchingProducts(orderProducts)) > 0
	case ScopeProducts:
		return len(r.MatchingProducts(orderProducts)) > 0
	case ScopeCustomers:
		return r.HasCustomer(customerID)
	default:
		return false
	}
}
