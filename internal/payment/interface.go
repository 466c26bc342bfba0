package payment

import (
	"context"
	"time"

	"eventpay/internal/models"
)

// CreateRequest describes a payment to be opened on the gateway.
// Amount is in paisa.
type CreateRequest struct {
	PurchaseOrderID   string
	PurchaseOrderName string
	Amount            int64
	ReturnURL         string
	Customer          models.CustomerInfo
}

// PaymentResult contains the result of a payment creation.
type PaymentResult struct {
	Pidx       string    `json:"pidx"`
	PaymentURL string    `json:"payment_url"`
	ExpiresAt  *time.Time `json:"expires_at,omitempty"`
}

// LookupResult is the gateway's current view of a transaction.
type LookupResult struct {
	Pidx          string        `json:"pidx"`
	Status        models.Status `json:"status"`
	RawStatus     string        `json:"raw_status"`
	TransactionID string        `json:"transaction_id,omitempty"`
	Amount        int64         `json:"amount"`
}

// Gateway defines the interface for payment gateway implementations.
type Gateway interface {
	// Name returns the gateway identifier.
	Name() string

	// CreatePayment opens a hosted payment page for the request.
	CreatePayment(ctx context.Context, req CreateRequest) (*PaymentResult, error)

	// LookupPayment asks the gateway for the current state of a transaction.
	LookupPayment(ctx context.Context, pidx string) (*LookupResult, error)
}
