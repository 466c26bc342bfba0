package client

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"eventpay/internal/models"
)

// ErrInitiationInFlight is returned when Start is called while a previous
// initiation has not finished.
var ErrInitiationInFlight = errors.New("payment initiation already in progress")

// Redirector sends the customer to the gateway's hosted payment page.
type Redirector interface {
	Redirect(paymentURL string) error
}

// RedirectFunc adapts a function to Redirector.
type RedirectFunc func(paymentURL string) error

func (f RedirectFunc) Redirect(paymentURL string) error { return f(paymentURL) }

// Notifier shows a short message to the user.
type Notifier interface {
	Error(message string)
}

// Initiator runs at most one initiation at a time, like a pay button that
// is disabled while its request is outstanding.
type Initiator struct {
	api      *Client
	notifier Notifier
	logger   *zap.Logger

	mu      sync.Mutex
	pending bool
}

func NewInitiator(api *Client, notifier Notifier, logger *zap.Logger) *Initiator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Initiator{api: api, notifier: notifier, logger: logger}
}

// Pending reports whether a request is outstanding. This is a local
// approximation; the backend has not confirmed any pending state yet.
func (i *Initiator) Pending() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.pending
}

// Start initiates a payment and redirects to the gateway on success.
// Failures are reported to the notifier and returned; nothing is retried.
func (i *Initiator) Start(ctx context.Context, req models.InitiateRequest, redirect Redirector) (*models.InitiateResponse, error) {
	i.mu.Lock()
	if i.pending {
		i.mu.Unlock()
		return nil, ErrInitiationInFlight
	}
	i.pending = true
	i.mu.Unlock()

	defer func() {
		i.mu.Lock()
		i.pending = false
		i.mu.Unlock()
	}()

	res, err := i.api.Initiate(ctx, req)
	if err != nil {
		var initErr *InitiationError
		msg := GenericInitiationMessage
		if errors.As(err, &initErr) {
			msg = initErr.Message
		}
		i.logger.Warn("Payment initiation failed", zap.Uint("booking_id", req.BookingID), zap.Error(err))
		if i.notifier != nil {
			i.notifier.Error(msg)
		}
		return nil, err
	}

	i.logger.Info("Payment initiated, redirecting",
		zap.Uint("booking_id", req.BookingID), zap.Uint("payment_id", res.PaymentID), zap.String("pidx", res.Pidx))
	if err := redirect.Redirect(res.PaymentURL); err != nil {
		return res, err
	}
	return res, nil
}
