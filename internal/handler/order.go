package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/shopcore/backoffice/internal/domain/discount"
	"github.com/shopcore/backoffice/internal/domain/order"
)

type orderRequest struct {
	CustomerID string              `json:"customer_id"`
	Status     string              `json:"status,omitempty"`
	Items      []order.ItemRequest `json:"items"`
}

type lineItemResponse struct {
	ID        string  `json:"id"`
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	Subtotal  float64 `json:"subtotal"`
}

type discountResponse struct {
	ID       string  `json:"id"`
	OrderID  string  `json:"order_id"`
	CouponID string  `json:"coupon_id"`
	Amount   float64 `json:"amount"`
}

type orderResponse struct {
	ID         string             `json:"id"`
	CustomerID string             `json:"customer_id"`
	Status     string             `json:"status"`
	Items      []lineItemResponse `json:"items"`
	Subtotal   float64            `json:"subtotal"`
	Discounts  []discountResponse `json:"discounts,omitempty"`
	Total      float64            `json:"total"`
}

// orderToResponse assembles the response body, including the discounted
// total. The total never goes below zero.
func orderToResponse(o *order.Order, discounts []discount.Discount) orderResponse {
	items := make([]lineItemResponse, len(o.Items))
	for i, it := range o.Items {
		items[i] = lineItemResponse{
			ID:        it.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Subtotal:  it.Subtotal.InexactFloat64(),
		}
	}

	subtotal := o.Subtotal()
	total := subtotal
	var ds []discountResponse
	for _, d := range discounts {
		total = total.Sub(d.Amount)
		ds = append(ds, discountResponse{
			ID:       d.ID,
			OrderID:  d.OrderID,
			CouponID: d.CouponID,
			Amount:   d.Amount.InexactFloat64(),
		})
	}
	if total.IsNegative() {
		total = decimal.Zero
	}

	return orderResponse{
		ID:         o.ID,
		CustomerID: o.CustomerID,
		Status:     string(o.Status),
		Items:      items,
		Subtotal:   subtotal.InexactFloat64(),
		Discounts:  ds,
		Total:      total.InexactFloat64(),
	}
}

// CreateOrder handles POST /orders.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	o := &order.Order{
		CustomerID: req.CustomerID,
		Status:     order.Status(req.Status),
	}
	if req.Status != "" && !o.Status.Valid() {
		respondError(w, http.StatusBadRequest, order.ErrInvalidStatus.Error())
		return
	}

	if err := h.orders.Create(r.Context(), o, req.Items); err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, orderToResponse(o, nil))
}

// GetOrder handles GET /orders/{id}.
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	discounts, err := h.discounts.ListByOrder(r.Context(), o.ID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orderToResponse(o, discounts))
}

// ListOrders handles GET /orders with an optional status query filter.
func (h *Handler) ListOrders(w http.ResponseWriter, r *http.Request) {
	var status *order.Status
	if s := r.URL.Query().Get("status"); s != "" {
		st := order.Status(s)
		if !st.Valid() {
			respondError(w, http.StatusBadRequest, order.ErrInvalidStatus.Error())
			return
		}
		status = &st
	}

	list, err := h.orders.List(r.Context(), status)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	resp := make([]orderResponse, len(list))
	for i := range list {
		resp[i] = orderToResponse(&list[i], nil)
	}
	respondJSON(w, http.StatusOK, resp)
}

// UpdateOrder handles PUT /orders/{id}. The request's item collection is the
// desired final state: items keep, change, appear, or disappear to match it.
func (h *Handler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	if req.CustomerID != "" {
		o.CustomerID = req.CustomerID
	}
	if req.Status != "" {
		st := order.Status(req.Status)
		if !st.Valid() {
			respondError(w, http.StatusBadRequest, order.ErrInvalidStatus.Error())
			return
		}
		o.Status = st
	}

	if err := h.orders.Update(r.Context(), o, req.Items); err != nil {
		respondDomainError(w, r, err)
		return
	}
	discounts, err := h.discounts.ListByOrder(r.Context(), o.ID)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, orderToResponse(o, discounts))
}

// DeleteOrder handles DELETE /orders/{id}.
func (h *Handler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.orders.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type applyCouponRequest struct {
	Code string `json:"code"`
}

// ApplyCoupon handles POST /orders/{id}/discounts: it applies the coupon
// identified by code to the order and returns the created discount.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var req applyCouponRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Code == "" {
		respondError(w, http.StatusBadRequest, "coupon code required")
		return
	}

	d, err := h.lifecycle.Apply(r.Context(), chi.URLParam(r, "id"), req.Code)
	if err != nil {
		respondDomainError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, discountResponse{
		ID:       d.ID,
		OrderID:  d.OrderID,
		CouponID: d.CouponID,
		Amount:   d.Amount.InexactFloat64(),
	})
}

// RemoveDiscount handles DELETE /orders/{id}/discounts/{discountID}: it
// deletes the discount and releases the coupon redemption back.
func (h *Handler) RemoveDiscount(w http.ResponseWriter, r *http.Request) {
	if err := h.lifecycle.Remove(r.Context(), chi.URLParam(r, "discountID")); err != nil {
		respondDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
