// Package handler exposes the back-office HTTP API: product catalog reads,
// order management, coupon management, and discount application.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/shopcore/backoffice/internal/domain/coupon"
	"github.com/shopcore/backoffice/internal/domain/discount"
	"github.com/shopcore/backoffice/internal/domain/order"
	"github.com/shopcore/backoffice/internal/domain/product"
)

// DiscountLister reads the discounts applied to an order outside of the
// application transaction, for response assembly.
type DiscountLister interface {
	ListByOrder(ctx context.Context, orderID string) ([]discount.Discount, error)
}

// Handler carries the domain dependencies for all API endpoints.
type Handler struct {
	products  product.Repository
	orders    order.Repository
	coupons   coupon.Repository
	discounts DiscountLister
	lifecycle *discount.Lifecycle
}

// New constructs a Handler with the required domain dependencies.
func New(
	products product.Repository,
	orders order.Repository,
	coupons coupon.Repository,
	discounts DiscountLister,
	lifecycle *discount.Lifecycle,
) *Handler {
	return &Handler{
		products:  products,
		orders:    orders,
		coupons:   coupons,
		discounts: discounts,
		lifecycle: lifecycle,
	}
}

// Routes mounts all API endpoints on a fresh chi router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.ListProducts)
		r.Get("/{id}", h.GetProduct)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", h.CreateOrder)
		r.Get("/", h.ListOrders)
		r.Get("/{id}", h.GetOrder)
		r.Put("/{id}", h.UpdateOrder)
		r.Delete("/{id}", h.DeleteOrder)

		r.Post("/{id}/discounts", h.ApplyCoupon)
		r.Delete("/{id}/discounts/{discountID}", h.RemoveDiscount)
	})

	r.Route("/coupons", func(r chi.Router) {
		r.Post("/", h.CreateCoupon)
		r.Get("/", h.ListCoupons)
		r.Get("/{id}", h.GetCoupon)
		r.Put("/{id}", h.UpdateCoupon)
		r.Delete("/{id}", h.DeleteCoupon)
	})

	return r
}

// errorResponse is the JSON body for all error replies.
type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}

func respondError(w http.ResponseWriter, code int, message string) {
	respondJSON(w, code, errorResponse{Code: code, Message: message})
}

// respondDomainError maps domain errors to HTTP status codes. Unrecognized
// errors are logged and reported as 500 without leaking internals.
func respondDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, order.ErrNotFound),
		errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, discount.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, order.ErrMalformedItems),
		errors.Is(err, order.ErrInvalidStatus):
		respondError(w, http.StatusBadRequest, err.Error())
	case discount.IsEligibilityErr(err):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		var itemErr *order.InvalidItemError
		if errors.As(err, &itemErr) {
			respondError(w, http.StatusUnprocessableEntity, itemErr.Error())
			return
		}
		if errors.Is(err, product.ErrNotFound) {
			respondError(w, http.StatusUnprocessableEntity, err.Error())
			return
		}
		zctx.From(r.Context()).Error("request failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

func decodeBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.Wrap(err, "decode request body")
	}
	return nil
}
