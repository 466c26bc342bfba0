package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"eventpay/internal/models"
	"eventpay/internal/pkg/httpclient"
)

// KhaltiGateway implements the Gateway interface for Khalti ePayment v2.
type KhaltiGateway struct {
	websiteURL string
	client     *httpclient.Client
}

// GatewayError carries the message the gateway returned for a rejected call.
type GatewayError struct {
	Code    int
	Message string
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("khalti: %s (status %d)", e.Message, e.Code)
}

func NewKhaltiGateway(secretKey string, sandbox bool, websiteURL string) *KhaltiGateway {
	return &KhaltiGateway{
		websiteURL: websiteURL,
		client: httpclient.New().
			WithBaseURL(khaltiBaseURL(sandbox)).
			WithTimeout(30*time.Second).
			WithoutRetry().
			WithHeader("Authorization", "Key "+secretKey),
	}
}

// WithBaseURL points the gateway at another API root.
func (k *KhaltiGateway) WithBaseURL(url string) *KhaltiGateway {
	k.client.WithBaseURL(url)
	return k
}

func (k *KhaltiGateway) Name() string {
	return "khalti"
}

func khaltiBaseURL(sandbox bool) string {
	if sandbox {
		return "https://dev.khalti.com/api/v2"
	}
	return "https://khalti.com/api/v2"
}

type khaltiInitiateResponse struct {
	Pidx       string `json:"pidx"`
	PaymentURL string `json:"payment_url"`
	ExpiresAt  string `json:"expires_at"`
}

type khaltiLookupResponse struct {
	Pidx          string `json:"pidx"`
	TotalAmount   int64  `json:"total_amount"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id"`
}

func (k *KhaltiGateway) CreatePayment(ctx context.Context, req CreateRequest) (*PaymentResult, error) {
	body := map[string]interface{}{
		"return_url":          req.ReturnURL,
		"website_url":         k.websiteURL,
		"amount":              req.Amount,
		"purchase_order_id":   req.PurchaseOrderID,
		"purchase_order_name": req.PurchaseOrderName,
		"customer_info": map[string]string{
			"name":  req.Customer.Name,
			"email": req.Customer.Email,
			"phone": req.Customer.Phone,
		},
	}

	resp, err := k.client.Post(ctx, "/epayment/initiate/", body)
	if err != nil {
		return nil, k.wrap("initiate", err)
	}

	var result khaltiInitiateResponse
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("khalti initiate parse error: %w", err)
	}
	if result.Pidx == "" || result.PaymentURL == "" {
		return nil, fmt.Errorf("khalti initiate: no pidx returned")
	}

	out := &PaymentResult{
		Pidx:       result.Pidx,
		PaymentURL: result.PaymentURL,
	}
	if t, err := time.Parse(time.RFC3339Nano, result.ExpiresAt); err == nil {
		out.ExpiresAt = &t
	}
	return out, nil
}

func (k *KhaltiGateway) LookupPayment(ctx context.Context, pidx string) (*LookupResult, error) {
	resp, err := k.client.Post(ctx, "/epayment/lookup/", map[string]string{"pidx": pidx})
	if err != nil {
		return nil, k.wrap("lookup", err)
	}

	var result khaltiLookupResponse
	if err := json.Unmarshal(resp, &result); err != nil {
		return nil, fmt.Errorf("khalti lookup parse error: %w", err)
	}

	return &LookupResult{
		Pidx:          result.Pidx,
		Status:        MapKhaltiStatus(result.Status),
		RawStatus:     result.Status,
		TransactionID: result.TransactionID,
		Amount:        result.TotalAmount,
	}, nil
}

// MapKhaltiStatus converts a Khalti transaction status to a lifecycle status.
// Unrecognized values are treated as pending so the payment keeps being checked.
func MapKhaltiStatus(raw string) models.Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "completed":
		return models.StatusCompleted
	case "initiated":
		return models.StatusInitiated
	case "pending":
		return models.StatusPending
	case "expired", "user canceled", "refunded", "partially refunded":
		return models.StatusFailed
	}
	return models.StatusPending
}

func (k *KhaltiGateway) wrap(op string, err error) error {
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		return &GatewayError{Code: statusErr.Code, Message: khaltiErrorMessage(statusErr.Body)}
	}
	return fmt.Errorf("khalti %s failed: %w", op, err)
}

// khaltiErrorMessage pulls "detail" or the first field error out of an error body.
func khaltiErrorMessage(body []byte) string {
	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return "request rejected"
	}
	if detail, ok := data["detail"].(string); ok && detail != "" {
		return detail
	}
	for key, v := range data {
		if key == "error_key" {
			continue
		}
		if list, ok := v.([]interface{}); ok && len(list) > 0 {
			if msg, ok := list[0].(string); ok {
				return key + ": " + msg
			}
		}
	}
	return "request rejected"
}
