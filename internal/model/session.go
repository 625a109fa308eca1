package model

import "time"

// Session is the authenticated identity and bearer credentials for one
// browser context. It is either fully present (both tokens resolve to a
// user) or absent — a nil *Session. There is no partial state.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	UserID       string    `json:"user_id"`
	ExpiresAt    time.Time `json:"expires_at"`
	CreatedAt    time.Time `json:"created_at"`
}
