// Package client talks to the payment backend from the customer or admin side.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"eventpay/internal/models"
	"eventpay/internal/pkg/httpclient"
)

// GenericInitiationMessage is shown when the backend gives no usable message.
const GenericInitiationMessage = "Failed to initiate payment. Please try again."

// InitiationError reports a failed attempt to start a payment.
type InitiationError struct {
	Status  int // 0 for transport errors
	Message string
	Err     error
}

func (e *InitiationError) Error() string {
	return e.Message
}

func (e *InitiationError) Unwrap() error {
	return e.Err
}

// StatusQueryError reports a failed status query.
type StatusQueryError struct {
	Ref    string
	Status int
	Err    error
}

func (e *StatusQueryError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("status query for %s failed with status %d", e.Ref, e.Status)
	}
	return fmt.Sprintf("status query for %s failed: %v", e.Ref, e.Err)
}

func (e *StatusQueryError) Unwrap() error {
	return e.Err
}

// Option configures a Client.
type Option func(*Client)

// WithSessionToken attaches a server-issued session token to every request.
func WithSessionToken(token string) Option {
	return func(c *Client) {
		if token != "" {
			c.http.WithBearerToken(token)
		}
	}
}

// WithTimeout overrides the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.WithTimeout(d) }
}

// Client calls the payment backend's JSON API.
type Client struct {
	http *httpclient.Client
}

// New creates a client for the backend at baseURL. Requests are never
// retried automatically; the tracker polls again on its own schedule.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		http: httpclient.New().
			WithBaseURL(strings.TrimRight(baseURL, "/")).
			WithTimeout(15 * time.Second).
			WithoutRetry(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Initiate asks the backend to open a payment. Failures are *InitiationError.
func (c *Client) Initiate(ctx context.Context, req models.InitiateRequest) (*models.InitiateResponse, error) {
	body, err := c.http.Post(ctx, "/api/payment/initiate", req)
	if err != nil {
		return nil, initiationError(err)
	}

	var res models.InitiateResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, &InitiationError{Message: GenericInitiationMessage, Err: err}
	}
	if res.PaymentURL == "" {
		return nil, &InitiationError{Message: GenericInitiationMessage, Err: errors.New("response has no paymentUrl")}
	}
	return &res, nil
}

// Status fetches the current projection of a payment by id or pidx.
// Failures are *StatusQueryError.
func (c *Client) Status(ctx context.Context, ref string) (*models.PaymentView, error) {
	body, err := c.http.Get(ctx, "/api/payment/status/"+url.PathEscape(ref))
	if err != nil {
		qe := &StatusQueryError{Ref: ref, Err: err}
		var statusErr *httpclient.StatusError
		if errors.As(err, &statusErr) {
			qe.Status = statusErr.Code
		}
		return nil, qe
	}

	var view models.PaymentView
	if err := json.Unmarshal(body, &view); err != nil {
		return nil, &StatusQueryError{Ref: ref, Err: err}
	}
	return &view, nil
}

func initiationError(err error) *InitiationError {
	var statusErr *httpclient.StatusError
	if !errors.As(err, &statusErr) {
		return &InitiationError{Message: GenericInitiationMessage, Err: err}
	}

	msg := GenericInitiationMessage
	var body models.ErrorResponse
	if jsonErr := json.Unmarshal(statusErr.Body, &body); jsonErr == nil && strings.TrimSpace(body.Message) != "" {
		msg = body.Message
	}
	return &InitiationError{Status: statusErr.Code, Message: msg, Err: err}
}

// Login exchanges an admin API key for a session token.
func (c *Client) Login(ctx context.Context, apiKey string) (*models.SessionResponse, error) {
	body, err := c.http.Post(ctx, "/api/admin/session", models.SessionRequest{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	var res models.SessionResponse
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &res, nil
}
