package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"eventpay/internal/models"
	"eventpay/internal/monitoring"
	"eventpay/internal/payment"
)

// PaymentStore is the persistence the service needs.
// *repository.PaymentRepository satisfies it.
type PaymentStore interface {
	CreateForBooking(ctx context.Context, p *models.Payment) (*models.Payment, error)
	FindByID(ctx context.Context, id uint) (*models.Payment, error)
	FindByPidx(ctx context.Context, pidx string) (*models.Payment, error)
	Update(ctx context.Context, id uint, updates map[string]interface{}) error
	AdvanceStatus(ctx context.Context, id uint, from, to models.Status, updates map[string]interface{}) (bool, error)
	Touch(ctx context.Context, id uint) error
	FindUnsettled(ctx context.Context, before time.Time, limit int) ([]models.Payment, error)
	FindInitiatedBefore(ctx context.Context, before time.Time, limit int) ([]models.Payment, error)
}

// Notifier is told about payments that reached a terminal state.
type Notifier interface {
	PaymentSettled(ctx context.Context, p *models.Payment)
}

const batchSize = 100

const bookingLockStripes = 64

// PaymentService owns the backend side of the payment lifecycle.
type PaymentService struct {
	store     PaymentStore
	gateway   payment.Gateway
	notifier  Notifier
	returnURL string
	logger    *zap.Logger
	now       func() time.Time

	bookingLocks [bookingLockStripes]sync.Mutex
}

// NewPaymentService creates the service. returnURL is where the gateway
// sends the browser after checkout. notifier may be nil.
func NewPaymentService(store PaymentStore, gateway payment.Gateway, notifier Notifier, returnURL string, logger *zap.Logger) *PaymentService {
	return &PaymentService{
		store:     store,
		gateway:   gateway,
		notifier:  notifier,
		returnURL: returnURL,
		logger:    logger,
		now:       time.Now,
	}
}

// Initiate opens a payment for a booking and returns the hosted payment page URL.
func (s *PaymentService) Initiate(ctx context.Context, req models.InitiateRequest) (*models.InitiateResponse, error) {
	if err := validateInitiate(req); err != nil {
		return nil, err
	}

	p := &models.Payment{
		PurchaseOrderID: "BK" + strconv.FormatUint(uint64(req.BookingID), 10) + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		BookingID:       req.BookingID,
		Status:          models.StatusInitiated,
		Amount:          req.Amount,
		ProductName:     strings.TrimSpace(req.ProductName),
		CustomerName:    strings.TrimSpace(req.CustomerInfo.Name),
		CustomerEmail:   strings.TrimSpace(req.CustomerInfo.Email),
		CustomerPhone:   strings.TrimSpace(req.CustomerInfo.Phone),
	}

	lock := &s.bookingLocks[req.BookingID%bookingLockStripes]
	lock.Lock()
	active, err := s.store.CreateForBooking(ctx, p)
	lock.Unlock()
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}
	if active != nil {
		s.logger.Info("Rejected initiation, booking has active payment",
			zap.Uint("booking_id", req.BookingID), zap.Uint("payment_id", active.ID))
		return nil, ErrActivePaymentExists
	}

	res, err := s.gateway.CreatePayment(ctx, payment.CreateRequest{
		PurchaseOrderID:   p.PurchaseOrderID,
		PurchaseOrderName: p.ProductName,
		Amount:            p.Amount,
		ReturnURL:         s.returnURL,
		Customer:          req.CustomerInfo,
	})
	if err != nil {
		reason := gatewayReason(err)
		s.logger.Warn("Gateway rejected initiation",
			zap.Uint("payment_id", p.ID), zap.String("gateway", s.gateway.Name()), zap.Error(err))
		if _, uerr := s.store.AdvanceStatus(ctx, p.ID, models.StatusInitiated, models.StatusFailed,
			map[string]interface{}{"failure_reason": reason}); uerr != nil {
			s.logger.Error("Failed to mark payment failed", zap.Uint("payment_id", p.ID), zap.Error(uerr))
		}
		monitoring.RecordInitiation("rejected")
		return nil, &InitiationError{PaymentID: p.ID, Reason: reason, Err: err}
	}

	if err := s.store.Update(ctx, p.ID, map[string]interface{}{
		"pidx":        res.Pidx,
		"payment_url": res.PaymentURL,
	}); err != nil {
		monitoring.RecordInitiation("error")
		return nil, fmt.Errorf("store gateway reference: %w", err)
	}
	monitoring.RecordInitiation("ok")

	s.logger.Info("Payment initiated",
		zap.Uint("payment_id", p.ID),
		zap.Uint("booking_id", p.BookingID),
		zap.String("pidx", res.Pidx),
		zap.Int64("amount", p.Amount),
	)

	return &models.InitiateResponse{
		PaymentURL: res.PaymentURL,
		PaymentID:  p.ID,
		Pidx:       res.Pidx,
		Status:     models.StatusInitiated,
		ExpiresAt:  res.ExpiresAt,
	}, nil
}

// Status returns the current projection of a payment, looked up by numeric
// id or by pidx. Non-terminal payments are re-checked with the gateway first.
func (s *PaymentService) Status(ctx context.Context, ref string) (*models.PaymentView, error) {
	p, err := s.find(ctx, ref)
	if err != nil {
		return nil, err
	}

	if !p.Status.IsTerminal() && p.PidxValue() != "" {
		p = s.recheck(ctx, p)
	}

	view := p.View()
	return &view, nil
}

func (s *PaymentService) find(ctx context.Context, ref string) (*models.Payment, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, ErrNotFound
	}
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil {
		p, err := s.store.FindByID(ctx, uint(id))
		if err == nil || !errors.Is(err, ErrNotFound) {
			return p, err
		}
	}
	return s.store.FindByPidx(ctx, ref)
}

// recheck asks the gateway for a fresher status. Lookup failures leave the
// payment as it was.
func (s *PaymentService) recheck(ctx context.Context, p *models.Payment) *models.Payment {
	result, err := s.gateway.LookupPayment(ctx, p.PidxValue())
	monitoring.RecordStatusQuery("gateway", err)
	if err != nil {
		s.logger.Warn("Gateway lookup failed", zap.Uint("payment_id", p.ID), zap.Error(err))
		return p
	}

	updated, err := s.apply(ctx, p, result)
	if err != nil {
		s.logger.Error("Failed to apply gateway result", zap.Uint("payment_id", p.ID), zap.Error(err))
		return p
	}
	return updated
}

// apply moves p forward to the state the gateway reported. Regressions are
// ignored and logged.
func (s *PaymentService) apply(ctx context.Context, p *models.Payment, result *payment.LookupResult) (*models.Payment, error) {
	to := result.Status
	updates := map[string]interface{}{}

	if to == models.StatusCompleted && result.Amount > 0 && result.Amount != p.Amount {
		s.logger.Warn("Gateway amount mismatch",
			zap.Uint("payment_id", p.ID), zap.Int64("expected", p.Amount), zap.Int64("paid", result.Amount))
		to = models.StatusFailed
		updates["failure_reason"] = "amount_mismatch"
	}

	if to == p.Status {
		if err := s.store.Touch(ctx, p.ID); err != nil {
			return p, err
		}
		p.UpdatedAt = s.now()
		return p, nil
	}

	if !models.CanTransition(p.Status, to) {
		s.logger.Warn("Ignoring status regression",
			zap.Uint("payment_id", p.ID), zap.String("from", string(p.Status)), zap.String("to", string(to)))
		return p, nil
	}

	switch to {
	case models.StatusCompleted:
		updates["gateway_ref"] = result.TransactionID
	case models.StatusFailed:
		if _, ok := updates["failure_reason"]; !ok {
			updates["failure_reason"] = reasonCode(result.RawStatus)
		}
	}

	from := p.Status
	changed, err := s.store.AdvanceStatus(ctx, p.ID, from, to, updates)
	if err != nil {
		return p, err
	}
	if !changed {
		// Someone else moved it first; report what is stored now.
		return s.store.FindByID(ctx, p.ID)
	}

	p.Status = to
	p.UpdatedAt = s.now()
	if v, ok := updates["gateway_ref"].(string); ok {
		p.GatewayRef = v
	}
	if v, ok := updates["failure_reason"].(string); ok {
		p.FailureReason = v
	}
	monitoring.RecordTransition(string(from), string(to))

	s.logger.Info("Payment status changed",
		zap.Uint("payment_id", p.ID), zap.String("from", string(from)), zap.String("to", string(to)))

	if to.IsTerminal() && s.notifier != nil {
		s.notifier.PaymentSettled(ctx, p)
	}
	return p, nil
}

// ApplyGatewayResult records a gateway result for the payment with the given
// pidx. Only forward transitions are applied.
func (s *PaymentService) ApplyGatewayResult(ctx context.Context, pidx string, result *payment.LookupResult) (*models.PaymentView, error) {
	p, err := s.store.FindByPidx(ctx, pidx)
	if err != nil {
		return nil, err
	}
	updated, err := s.apply(ctx, p, result)
	if err != nil {
		return nil, fmt.Errorf("apply gateway result: %w", err)
	}
	view := updated.View()
	return &view, nil
}

// CallbackParams are the query parameters the gateway appends on return.
type CallbackParams struct {
	Pidx            string
	Status          string
	PurchaseOrderID string
}

// ReturnOutcome is what the return-flow page is told about a payment.
type ReturnOutcome struct {
	Payment string // success, failed or pending
	Booking uint
	Error   string
}

// Values encodes the outcome as return-flow query parameters.
func (o ReturnOutcome) Values() url.Values {
	v := url.Values{}
	if o.Payment != "" {
		v.Set("payment", o.Payment)
	}
	if o.Booking > 0 {
		v.Set("booking", strconv.FormatUint(uint64(o.Booking), 10))
	}
	if o.Error != "" {
		v.Set("error", o.Error)
	}
	return v
}

// HandleCallback verifies a gateway return with a lookup and records the
// result. The query string's own status is never trusted.
func (s *PaymentService) HandleCallback(ctx context.Context, params CallbackParams) ReturnOutcome {
	if params.Pidx == "" {
		monitoring.RecordCallback("missing_reference")
		return ReturnOutcome{Payment: "failed", Error: "missing_reference"}
	}

	p, err := s.store.FindByPidx(ctx, params.Pidx)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Error("Callback lookup failed", zap.String("pidx", params.Pidx), zap.Error(err))
		}
		monitoring.RecordCallback("unknown_transaction")
		return ReturnOutcome{Payment: "failed", Error: "unknown_transaction"}
	}

	if params.PurchaseOrderID != "" && params.PurchaseOrderID != p.PurchaseOrderID {
		s.logger.Warn("Callback purchase order mismatch",
			zap.String("pidx", params.Pidx), zap.String("got", params.PurchaseOrderID))
		monitoring.RecordCallback("order_mismatch")
		return ReturnOutcome{Payment: "failed", Booking: p.BookingID, Error: "order_mismatch"}
	}

	if !p.Status.IsTerminal() {
		p = s.recheck(ctx, p)
	}

	out := ReturnOutcome{Booking: p.BookingID}
	switch p.Status {
	case models.StatusCompleted:
		out.Payment = "success"
	case models.StatusFailed:
		out.Payment = "failed"
		out.Error = p.FailureReason
	default:
		out.Payment = "pending"
	}
	monitoring.RecordCallback(out.Payment)
	return out
}

// ReconcileStale re-checks non-terminal payments not updated within olderThan.
// It returns how many changed state.
func (s *PaymentService) ReconcileStale(ctx context.Context, olderThan time.Duration) (int, error) {
	payments, err := s.store.FindUnsettled(ctx, s.now().Add(-olderThan), batchSize)
	if err != nil {
		return 0, fmt.Errorf("find unsettled payments: %w", err)
	}

	changed := 0
	for i := range payments {
		if ctx.Err() != nil {
			return changed, ctx.Err()
		}
		p := &payments[i]
		if p.PidxValue() == "" {
			continue
		}
		before := p.Status
		if s.recheck(ctx, p).Status != before {
			changed++
		}
	}
	return changed, nil
}

// ExpireAbandoned fails payments stuck in initiated for longer than olderThan.
// Payments the gateway has since seen are advanced instead.
func (s *PaymentService) ExpireAbandoned(ctx context.Context, olderThan time.Duration) (int, error) {
	payments, err := s.store.FindInitiatedBefore(ctx, s.now().Add(-olderThan), batchSize)
	if err != nil {
		return 0, fmt.Errorf("find abandoned payments: %w", err)
	}

	expired := 0
	for i := range payments {
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
		p := &payments[i]
		if p.PidxValue() != "" {
			if updated := s.recheck(ctx, p); updated.Status != models.StatusInitiated {
				continue
			}
		}

		ok, err := s.store.AdvanceStatus(ctx, p.ID, models.StatusInitiated, models.StatusFailed,
			map[string]interface{}{"failure_reason": "expired"})
		if err != nil {
			s.logger.Error("Failed to expire payment", zap.Uint("payment_id", p.ID), zap.Error(err))
			continue
		}
		if !ok {
			continue
		}
		expired++
		p.Status = models.StatusFailed
		p.FailureReason = "expired"
		monitoring.RecordTransition(string(models.StatusInitiated), string(models.StatusFailed))
		if s.notifier != nil {
			s.notifier.PaymentSettled(ctx, p)
		}
	}
	return expired, nil
}

func validateInitiate(req models.InitiateRequest) error {
	switch {
	case req.BookingID == 0:
		return &ValidationError{Field: "bookingId", Reason: "is required"}
	case req.Amount <= 0:
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	case strings.TrimSpace(req.ProductName) == "":
		return &ValidationError{Field: "productName", Reason: "is required"}
	case strings.TrimSpace(req.CustomerInfo.Name) == "":
		return &ValidationError{Field: "customerInfo.name", Reason: "is required"}
	case strings.TrimSpace(req.CustomerInfo.Email) == "":
		return &ValidationError{Field: "customerInfo.email", Reason: "is required"}
	}
	return nil
}

func gatewayReason(err error) string {
	var gwErr *payment.GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Message
	}
	return "gateway unavailable"
}

// reasonCode turns a gateway status like "User canceled" into "user_canceled".
func reasonCode(raw string) string {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if raw == "" {
		return "failed"
	}
	return strings.ReplaceAll(raw, " ", "_")
}
