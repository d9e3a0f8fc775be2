package handler

import (
	"encoding/json"
	"net/http"

	"github.com/jsa498/digitalmarketing/internal/model"
	"github.com/jsa498/digitalmarketing/internal/service"
	"github.com/jsa498/digitalmarketing/pkg/apierror"
	"github.com/jsa498/digitalmarketing/pkg/response"
)

// CheckoutHandler receives the checkout success callback from the UI.
type CheckoutHandler struct {
	cart *service.CartService
}

// NewCheckoutHandler creates a new checkout handler.
func NewCheckoutHandler(cart *service.CartService) *CheckoutHandler {
	return &CheckoutHandler{cart: cart}
}

// CompleteRequest is the body of POST /api/v1/checkout/complete.
type CompleteRequest struct {
	SessionID string `json:"session_id"`
}

// Complete handles POST /api/v1/checkout/complete. The caller is this
// agent's own UI, so the event is attributed to the current user and session.
func (h *CheckoutHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	if req.SessionID == "" {
		response.Error(w, apierror.ValidationError("session_id is required",
			apierror.FieldError{Field: "session_id", Message: "required"}))
		return
	}

	cleared := h.cart.CompleteCheckout(model.CheckoutEvent{
		UserID:    h.cart.UserID(),
		SessionID: h.cart.SessionID(),
	})

	response.OK(w, map[string]interface{}{
		"checkout_session": req.SessionID,
		"cleared":          cleared,
	})
}
