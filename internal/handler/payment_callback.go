package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"eventpay/internal/service"
)

// CallbackService verifies a gateway return and decides the outcome.
type CallbackService interface {
	HandleCallback(ctx context.Context, params service.CallbackParams) service.ReturnOutcome
}

// PaymentCallbackHandler handles gateway callbacks.
type PaymentCallbackHandler struct {
	svc        CallbackService
	returnPath string
	logger     *zap.Logger
}

// NewPaymentCallbackHandler creates a callback handler that redirects to returnPath.
func NewPaymentCallbackHandler(svc CallbackService, returnPath string, logger *zap.Logger) *PaymentCallbackHandler {
	if returnPath == "" {
		returnPath = "/payment/return"
	}
	return &PaymentCallbackHandler{svc: svc, returnPath: returnPath, logger: logger}
}

// ── Khalti callback ──────────────────────────────────────────────────

// KhaltiCallback handles the customer's return from Khalti. The query
// status is only logged; the outcome comes from a gateway lookup.
// GET /payment/khalti/callback
func (h *PaymentCallbackHandler) KhaltiCallback(c echo.Context) error {
	params := service.CallbackParams{
		Pidx:            c.QueryParam("pidx"),
		Status:          c.QueryParam("status"),
		PurchaseOrderID: c.QueryParam("purchase_order_id"),
	}

	out := h.svc.HandleCallback(c.Request().Context(), params)
	h.logger.Info("Khalti callback handled",
		zap.String("pidx", params.Pidx),
		zap.String("reported_status", params.Status),
		zap.String("outcome", out.Payment),
		zap.Uint("booking_id", out.Booking),
		zap.String("error", out.Error),
	)

	target := h.returnPath
	if q := out.Values().Encode(); q != "" {
		target += "?" + q
	}
	return c.Redirect(http.StatusFound, target)
}
