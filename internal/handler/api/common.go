package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"eventpay/internal/models"
	"eventpay/internal/service"
)

func errorResponse(c echo.Context, code int, msg string) error {
	return c.JSON(code, models.ErrorResponse{Message: msg})
}

// serviceError maps service errors onto HTTP responses.
func serviceError(c echo.Context, err error) error {
	var validationErr *service.ValidationError
	var initErr *service.InitiationError

	switch {
	case errors.As(err, &validationErr):
		return errorResponse(c, http.StatusBadRequest, validationErr.Error())
	case errors.Is(err, service.ErrNotFound):
		return errorResponse(c, http.StatusNotFound, "Payment not found")
	case errors.Is(err, service.ErrActivePaymentExists):
		return errorResponse(c, http.StatusConflict, "An active payment already exists for this booking")
	case errors.As(err, &initErr):
		return errorResponse(c, http.StatusBadGateway, "Payment gateway rejected the request: "+initErr.Reason)
	default:
		return errorResponse(c, http.StatusInternalServerError, "Internal server error")
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, service.ErrNotFound)
}
