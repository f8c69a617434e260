package api

import "time"

// TokenRequest represents the request payload for chat token issuance
type TokenRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

// TokenResponse represents the response payload for chat token issuance
type TokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    string    `json:"user_id"`
}

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
