package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jsa498/digitalmarketing/internal/model"
	"github.com/jsa498/digitalmarketing/internal/reconcile"
	"github.com/jsa498/digitalmarketing/internal/service"
	"github.com/jsa498/digitalmarketing/pkg/apierror"
	"github.com/jsa498/digitalmarketing/pkg/response"
	"github.com/shopspring/decimal"
)

// CartHandler serves the cart endpoints.
type CartHandler struct {
	cart *service.CartService
}

// NewCartHandler creates a new cart handler.
func NewCartHandler(cart *service.CartService) *CartHandler {
	return &CartHandler{cart: cart}
}

// CartResponse is the cart as the UI renders it.
type CartResponse struct {
	Items  []model.CartLineItem `json:"items"`
	Count  int                  `json:"count"`
	Total  decimal.Decimal      `json:"total"`
	Status reconcile.Status     `json:"status"`
}

func (h *CartHandler) snapshot() CartResponse {
	return CartResponse{
		Items:  h.cart.Items(),
		Count:  h.cart.GetItemCount(),
		Total:  h.cart.GetTotalPrice(),
		Status: h.cart.Status(),
	}
}

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.snapshot())
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var item model.CartLineItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	if err := h.cart.AddItem(item); err != nil {
		response.Error(w, validationError(err))
		return
	}

	response.OK(w, h.snapshot())
}

// RemoveItem handles DELETE /api/v1/cart/items/{id}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.cart.RemoveItem(id); err != nil {
		response.Error(w, validationError(err))
		return
	}

	response.OK(w, h.snapshot())
}

// GetItem handles GET /api/v1/cart/items/{id}
func (h *CartHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	response.OK(w, map[string]interface{}{
		"id":      id,
		"in_cart": h.cart.IsItemInCart(id),
	})
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	h.cart.ClearCart()
	response.OK(w, h.snapshot())
}

// Sync handles POST /api/v1/cart/sync
func (h *CartHandler) Sync(w http.ResponseWriter, r *http.Request) {
	response.OK(w, h.cart.Resync(r.Context()))
}

func validationError(err error) error {
	if errors.Is(err, model.ErrInvalidItem) {
		return apierror.ValidationError(err.Error())
	}
	return err
}
