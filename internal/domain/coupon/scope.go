package coupon

import "github.com/go-faster/errors"

// Scope is the dimension restricting where a coupon may be applied. It is a
// closed set derived from the coupon's restriction sets, never parsed from
// free-form input.
type Scope int

const (
	// ScopeUnrestricted applies to any order by any customer.
	ScopeUnrestricted Scope = iota
	// ScopeProducts applies only to orders containing at least one of the
	// coupon's restricted products.
	ScopeProducts
	// ScopeCustomers applies only to orders placed by one of the coupon's
	// restricted customers.
	ScopeCustomers
	// ScopeProductsAndCustomers requires both a customer match and a
	// product match.
	ScopeProductsAndCustomers
)

// Marker values persisted in the coupons.can_use_for column.
const (
	markerAll           = "all"
	markerProduct       = "product"
	markerClient        = "client"
	markerProductClient = "product_client"
)

// String returns the persisted marker for the scope.
func (s Scope) String() string {
	switch s {
	case ScopeProducts:
		return markerProduct
	case ScopeCustomers:
		return markerClient
	case ScopeProductsAndCustomers:
		return markerProductClient
	default:
		return markerAll
	}
}

// ScopeFromMarker parses a persisted can_use_for marker.
func ScopeFromMarker(m string) (Scope, error) {
	switch m {
	case markerAll:
		return ScopeUnrestricted, nil
	case markerProduct:
		return ScopeProducts, nil
	case markerClient:
		return ScopeCustomers, nil
	case markerProductClient:
		return ScopeProductsAndCustomers, nil
	default:
		return ScopeUnrestricted, errors.Errorf("unknown coupon scope marker: %q", m)
	}
}

// Restrictions holds the product and customer sets a coupon is limited to.
// An empty set means unrestricted along that dimension.
type Restrictions struct {
	Products  []string
	Customers []string
}

// Scope derives the coupon scope from which restriction sets are non-empty.
func (r Restrictions) Scope() Scope {
	switch {
	case len(r.Products) > 0 && len(r.Customers) > 0:
		return ScopeProductsAndCustomers
	case len(r.Products) > 0:
		return ScopeProducts
	case len(r.Customers) > 0:
		return ScopeCustomers
	default:
		return ScopeUnrestricted
	}
}

// HasCustomer reports whether the given customer is in the restriction set.
func (r Restrictions) HasCustomer(customerID string) bool {
	for _, id := range r.Customers {
		if id == customerID {
			return true
		}
	}
	return false
}

// MatchingProducts returns the intersection of the given product ids with
// the restricted product set, preserving input order.
func (r Restrictions) MatchingProducts(productIDs []string) []string {
	restricted := make(map[string]struct{}, len(r.Products))
	for _, id := range r.Products {
		restricted[id] = struct{}{}
	}

	var match []string
	for _, id := range productIDs {
		if _, ok := restricted[id]; ok {
			match = append(match, id)
		}
	}
	return match
}
