package handler

import (
	"net/http"

	"github.com/jsa498/digitalmarketing/internal/middleware"
	"github.com/jsa498/digitalmarketing/internal/service"
	"github.com/jsa498/digitalmarketing/pkg/apierror"
	"github.com/jsa498/digitalmarketing/pkg/response"
)

// SessionHandler moves the agent between anonymous and signed-in.
type SessionHandler struct {
	cart *service.CartService
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(cart *service.CartService) *SessionHandler {
	return &SessionHandler{cart: cart}
}

// SignIn handles POST /api/v1/session. The identity middleware has already
// resolved the bearer token.
func (h *SessionHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	if err := h.cart.SignIn(r.Context(), userID); err != nil {
		response.Error(w, apierror.Unauthorized(err.Error()))
		return
	}

	response.OK(w, map[string]interface{}{
		"user_id":    userID,
		"session_id": h.cart.SessionID(),
		"status":     h.cart.Status(),
	})
}

// SignOut handles DELETE /api/v1/session
func (h *SessionHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	h.cart.SignOut()
	response.OK(w, map[string]interface{}{
		"status": h.cart.Status(),
	})
}
