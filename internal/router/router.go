package router

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"eventpay/internal/auth"
	"eventpay/internal/handler"
	"eventpay/internal/handler/api"
	"eventpay/internal/middleware"
	"eventpay/internal/monitoring"
	"eventpay/internal/service"
)

// Deps are the collaborators the routes are wired to.
type Deps struct {
	Payments      *service.PaymentService
	Sessions      auth.SessionStore
	Deduper       middleware.CallbackDeduper
	AdminAPIKey   string
	ReturnPage    handler.ReturnPageConfig
	TrackInterval time.Duration
	Logger        *zap.Logger
}

// Setup configures all routes for the Echo server.
func Setup(e *echo.Echo, d Deps) {
	logger := d.Logger

	// Global middleware
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(logger))

	// Handlers
	paymentHandler := api.NewPaymentHandler(d.Payments, logger).WithTrackInterval(d.TrackInterval)
	callbackHandler := handler.NewPaymentCallbackHandler(d.Payments, "/payment/return", logger)
	returnHandler := handler.NewReturnFlowHandler(d.ReturnPage, logger)
	sessionHandler := auth.NewHandler(d.Sessions, d.AdminAPIKey, logger)

	// Public JSON API
	apiGroup := e.Group("/api")
	apiGroup.Use(middleware.CORS())
	apiGroup.POST("/payment/initiate", paymentHandler.Initiate)
	apiGroup.GET("/payment/status/:ref", paymentHandler.Status)

	// Admin
	apiGroup.POST("/admin/session", sessionHandler.Login)
	apiGroup.DELETE("/admin/session", sessionHandler.Logout, auth.RequireSession(d.Sessions, logger))
	apiGroup.GET("/payment/track/:ref", paymentHandler.Track, auth.RequireSession(d.Sessions, logger))

	// Gateway return and customer pages
	e.GET("/payment/khalti/callback", callbackHandler.KhaltiCallback, middleware.CallbackDedup(d.Deduper, logger))
	e.GET("/payment/return", returnHandler.Show)

	// Ops
	e.GET("/metrics", echo.WrapHandler(monitoring.Handler()))
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
}
