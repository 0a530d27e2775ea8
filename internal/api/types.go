// Package api is the HTTP layer of the client: credential-bearing calls to
// the backend's REST endpoints. Types mirror the backend wire format without
// importing server packages.
package api

import "time"

// Credentials is the login request payload.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Registration is the register request payload. Role defaults to USER
// server-side when empty.
type Registration struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role,omitempty"`
}

// AuthResponse is the common response shape of the auth endpoints.
type AuthResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Username  string `json:"username,omitempty"`
	Role      string `json:"role,omitempty"`
	SessionID string `json:"sessionId,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

// Notification is the server-defined push payload. The client forwards it
// verbatim; nothing here is validated.
type Notification struct {
	ID        string    `json:"id"`
	Message   string    `json:"message"`
	Type      string    `json:"type"` // INFO, ALERT, SUCCESS
	UserID    string    `json:"userId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
}

// SendNotification is the publish request payload.
type SendNotification struct {
	Message string `json:"message"`
	Type    string `json:"type,omitempty"`
	UserID  string `json:"userId,omitempty"`
}

// --- collaborator types (external services, interface only) ---

type Product struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}

type Weather struct {
	City      string    `json:"city"`
	Temp      float64   `json:"temp"`
	Humidity  float64   `json:"humidity"`
	Timestamp time.Time `json:"timestamp"`
}

type Currency struct {
	ID         string    `json:"id"`
	Code       string    `json:"code"`
	Rate       float64   `json:"rate"` // relative to USD
	LastUpdate time.Time `json:"lastUpdate"`
}

type Conversion struct {
	From   string  `json:"from"`
	To     string  `json:"to"`
	Amount float64 `json:"amount"`
	Result float64 `json:"result"`
}
