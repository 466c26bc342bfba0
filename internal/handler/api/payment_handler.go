package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"eventpay/internal/auth"
	"eventpay/internal/models"
	"eventpay/internal/tracker"
)

// PaymentService is the part of the backend the API exposes.
type PaymentService interface {
	Initiate(ctx context.Context, req models.InitiateRequest) (*models.InitiateResponse, error)
	Status(ctx context.Context, ref string) (*models.PaymentView, error)
}

// PaymentHandler serves the payment JSON API.
type PaymentHandler struct {
	svc      PaymentService
	logger   *zap.Logger
	interval time.Duration
}

func NewPaymentHandler(svc PaymentService, logger *zap.Logger) *PaymentHandler {
	return &PaymentHandler{svc: svc, logger: logger, interval: tracker.DefaultInterval}
}

// WithTrackInterval overrides the polling period used by Track.
func (h *PaymentHandler) WithTrackInterval(d time.Duration) *PaymentHandler {
	if d > 0 {
		h.interval = d
	}
	return h
}

// Initiate opens a payment for a booking.
// POST /api/payment/initiate
func (h *PaymentHandler) Initiate(c echo.Context) error {
	var req models.InitiateRequest
	if err := c.Bind(&req); err != nil {
		return errorResponse(c, http.StatusBadRequest, "Invalid request body")
	}

	res, err := h.svc.Initiate(c.Request().Context(), req)
	if err != nil {
		h.logger.Warn("Payment initiation rejected", zap.Uint("booking_id", req.BookingID), zap.Error(err))
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, res)
}

// Status returns the current projection of a payment.
// GET /api/payment/status/:ref
func (h *PaymentHandler) Status(c echo.Context) error {
	ref := strings.TrimSpace(c.Param("ref"))
	if ref == "" {
		return errorResponse(c, http.StatusBadRequest, "Payment reference is required")
	}

	view, err := h.svc.Status(c.Request().Context(), ref)
	if err != nil {
		if !isNotFound(err) {
			h.logger.Error("Status lookup failed", zap.String("ref", ref), zap.Error(err))
		}
		return serviceError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

// Track streams status transitions as server-sent events until the
// payment settles or the client goes away.
// GET /api/payment/track/:ref
func (h *PaymentHandler) Track(c echo.Context) error {
	ref := strings.TrimSpace(c.Param("ref"))
	ctx := c.Request().Context()

	if _, err := h.svc.Status(ctx, ref); err != nil {
		return serviceError(c, err)
	}

	w := c.Response()
	w.Header().Set(echo.HeaderContentType, "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	w.Flush()

	var subject string
	if sess, ok := auth.FromContext(c); ok {
		subject = sess.Subject
	}
	h.logger.Info("Tracking stream opened", zap.String("ref", ref), zap.String("subject", subject))

	done := make(chan struct{})
	changes := make(chan models.Status, 4)
	tr := tracker.New(h.svc, ref,
		tracker.WithInterval(h.interval),
		tracker.WithLogger(h.logger),
		tracker.WithSourceName("sse"),
		tracker.WithOnStatusChange(func(s models.Status) {
			select {
			case changes <- s:
			case <-done:
			}
		}),
	)
	defer func() {
		close(done)
		tr.Close()
		h.logger.Info("Tracking stream closed", zap.String("ref", ref))
	}()

	tr.Enable()
	for {
		select {
		case <-ctx.Done():
			return nil
		case s := <-changes:
			view, _ := tr.Latest()
			if err := writeEvent(w, s, view); err != nil {
				return nil
			}
			if s.IsTerminal() {
				return nil
			}
		}
	}
}

type statusEvent struct {
	Status  models.Status       `json:"status"`
	Payment *models.PaymentView `json:"payment,omitempty"`
}

func writeEvent(w *echo.Response, s models.Status, view *models.PaymentView) error {
	if view != nil && view.Status != s {
		view = nil
	}
	data, err := json.Marshal(statusEvent{Status: s, Payment: view})
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: status\ndata: %s\n\n", data); err != nil {
		return err
	}
	w.Flush()
	return nil
}
