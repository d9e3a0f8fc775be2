package model

import "time"

// SessionData is what the identity collaborator stores for a session token.
type SessionData struct {
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// CheckoutEvent is emitted by the checkout collaborator after payment completes.
type CheckoutEvent struct {
	UserID    string `json:"user_id"`
	SessionID string `json:"session_id"`
}
