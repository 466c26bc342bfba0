package models

import "time"

// CustomerInfo is copied onto the payment at initiation.
type CustomerInfo struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// InitiateRequest is the body of POST /api/payment/initiate.
// Amount is in paisa.
type InitiateRequest struct {
	BookingID    uint         `json:"bookingId"`
	Amount       int64        `json:"amount"`
	ProductName  string       `json:"productName"`
	CustomerInfo CustomerInfo `json:"customerInfo"`
}

// InitiateResponse is returned on successful initiation.
type InitiateResponse struct {
	PaymentURL string    `json:"paymentUrl"`
	PaymentID  uint      `json:"paymentId"`
	Pidx       string    `json:"pidx"`
	Status     Status    `json:"status"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
}

// ErrorResponse is the body of every non-2xx JSON response.
type ErrorResponse struct {
	Message string `json:"message"`
}

// SessionRequest exchanges the admin API key for a session token.
type SessionRequest struct {
	APIKey string `json:"apiKey"`
}

// SessionResponse carries a freshly issued session token.
type SessionResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}
