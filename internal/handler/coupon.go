package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/shopcore/backoffice/internal/domain/coupon"
)

type couponRequest struct {
	Code       string     `json:"code"`
	Type       string     `json:"type"`
	Discount   float64    `json:"discount"`
	Quantity   int        `json:"quantity"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	Recursive  bool       `json:"recursive"`
	Products   []string   `json:"products,omitempty"`
	Customers  []string   `json:"customers,omitempty"`
}

type couponResponse struct {
	ID         string     `json:"id"`
	Code       string     `json:"code"`
	Type       string     `json:"type"`
	Discount   float64    `json:"discount"`
	Quantity   int        `json:"quantity"`
	ValidFrom  *time.Time `json:"valid_from,omitempty"`
	ValidUntil *time.Time `json:"valid_until,omitempty"`
	Recursive  bool       `json:"recursive"`
	Scope      string     `json:"scope"`
	Products   []string   `json:"products,omitempty"`
	Customers  []string   `json:"customers,omitempty"`
}

func couponToResponse(c *coupon.Coupon, r coupon.Restrictions) couponResponse {
	return couponResponse{
		ID:         c.ID,
		Code:       c.Code,
		Type:       string(c.Type),
		Discount:   c.Discount.InexactFloat64(),
		Quantity:   c.Quantity,
		ValidFrom:  c.ValidFrom,
		ValidUntil: c.ValidUntil,
		Recursive:  c.Recursive,
		Scope:      c.Scope.String(),
		Products:   r.Products,
		Customers:  r.Customers,
	}
}

func (req *couponRequest) validate() string {
	if coupon.NormalizeCode(req.Code) == "" {
		return "coupon code required"
	}
	switch coupon.DiscountType(req.Type) {
	case coupon.DiscountPercent, coupon.DiscountCurrency, coupon.DiscountFull:
	default:
		return "unknown discount type"
	}
	if req.Discount < 0 {
		return "discount must not be negative"
	}
	if req.Quantity < 0 {
		return "quantity must not be negative"
	}
	return ""
}

func (req *couponRequest) toDomain() (*coupon.Coupon, coupon.Restrictions) {
	restr := coupon.Restrictions{Products: req.Products, Customers: req.Customers}
	return &coupon.Coupon{
		Code:       coupon.NormalizeCode(req.Code),
		Type:       coupon.DiscountType(req.Type),
		Discount:   decimal.NewFromFloat(req.Discount),
		Quantity:   req.Quantity,
		ValidFrom:  req.ValidFrom,
		ValidUntil: req.ValidUntil,
		Recursive:  req.Recursive,
		Scope:      restr.Scope(),
	}, restr
}

// CreateCoupon handles POST /coupons. The coupon's scope is derived from
// which restriction sets are present, never sent by the client.
func (h *Handler) CreateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg := req.validate(); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	c, restr := req.toDomain()
	if err := h.coupons.Create(r.Context(), c, restr); err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, couponToResponse(c, restr))
}

// GetCoupon handles GET /coupons/{id}.
func (h *Handler) GetCoupon(w http.ResponseWriter, r *http.Request) {
	c, err := h.coupons.FindByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	restr, err := h.coupons.Restrictions(r.Context(), c.ID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, couponToResponse(c, restr))
}

// ListCoupons handles GET /coupons with an optional code query filter.
func (h *Handler) ListCoupons(w http.ResponseWriter, r *http.Request) {
	list, err := h.coupons.List(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	resp := make([]couponResponse, len(list))
	for i := range list {
		resp[i] = couponToResponse(&list[i], coupon.Restrictions{})
		resp[i].Scope = list[i].Scope.String()
	}
	respondJSON(w, http.StatusOK, resp)
}

// UpdateCoupon handles PUT /coupons/{id}. Restriction sets are replaced
// wholesale and the scope re-derived from the new sets.
func (h *Handler) UpdateCoupon(w http.ResponseWriter, r *http.Request) {
	var req couponRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg := req.validate(); msg != "" {
		respondError(w, http.StatusBadRequest, msg)
		return
	}

	c, restr := req.toDomain()
	c.ID = chi.URLParam(r, "id")
	if err := h.coupons.Update(r.Context(), c, restr); err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, couponToResponse(c, restr))
}

// DeleteCoupon handles DELETE /coupons/{id}. Discounts already granted from
// the coupon stay on their orders.
func (h *Handler) DeleteCoupon(w http.ResponseWriter, r *http.Request) {
	if err := h.coupons.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
