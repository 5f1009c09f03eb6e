package authapi

import "time"

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// statusResponse is the uniform body shape for this API. Failure messages are
// part of the client contract and must stay stable.
type statusResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type loginResponse struct {
	Success         bool      `json:"success"`
	UserID          string    `json:"user_id"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
}
