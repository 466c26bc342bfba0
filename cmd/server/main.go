package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"eventpay/internal/auth"
	"eventpay/internal/bootstrap"
	"eventpay/internal/config"
	cronpkg "eventpay/internal/cron"
	"eventpay/internal/handler"
	"eventpay/internal/middleware"
	"eventpay/internal/payment"
	"eventpay/internal/pkg/telegram"
	"eventpay/internal/repository"
	"eventpay/internal/router"
	"eventpay/internal/service"
)

func main() {
	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// --- Logger ---
	logger, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if hasArg("--bootstrap-db") {
		if err := runDBBootstrap(logger); err != nil {
			logger.Fatal("Database bootstrap failed", zap.Error(err))
		}
		logger.Info("Database bootstrap completed")
		return
	}

	// --- Database ---
	db, err := config.NewDatabase(&cfg.Database, cfg.IsDevelopment())
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := bootstrap.Migrate(db); err != nil {
		logger.Fatal("Failed to migrate database schema", zap.Error(err))
	}

	// --- Redis (sessions + callback dedup, in-memory fallback) ---
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Pass,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
	}
	sessions, err := auth.NewSessionStore(rdb, cfg.Session.TTL)
	if err != nil {
		logger.Warn("Redis unavailable for sessions, using in-memory fallback", zap.Error(err))
	}
	deduper, err := middleware.NewCallbackDeduper(rdb, 10*time.Minute)
	if err != nil {
		logger.Warn("Redis unavailable for callback dedup, using in-memory fallback", zap.Error(err))
	}

	// --- Gateway + notifications ---
	gateway := payment.NewKhaltiGateway(cfg.Khalti.SecretKey, cfg.Khalti.Sandbox, cfg.Khalti.WebsiteURL)
	notifier := telegram.NewNotifier(telegram.NewBotAPI(cfg.Telegram.Token), cfg.Telegram.ChatID, logger)

	// --- Service ---
	returnURL := strings.TrimRight(cfg.Server.BaseURL, "/") + "/payment/khalti/callback"
	payments := service.NewPaymentService(repository.NewPaymentRepository(db), gateway, notifier, returnURL, logger)

	// --- Echo ---
	e := echo.New()
	e.HideBanner = true
	router.Setup(e, router.Deps{
		Payments:    payments,
		Sessions:    sessions,
		Deduper:     deduper,
		AdminAPIKey: cfg.Session.APIKey,
		ReturnPage: handler.ReturnPageConfig{
			HomePath:     cfg.Return.HomePath,
			Countdown:    cfg.Return.Countdown,
			SupportEmail: cfg.Return.SupportEmail,
			SupportPhone: cfg.Return.SupportPhone,
		},
		Logger: logger,
	})

	// --- Cron Scheduler ---
	scheduler := cronpkg.New(cfg.Cron, payments, logger)
	if err := scheduler.Start(); err != nil {
		logger.Fatal("Failed to start cron scheduler", zap.Error(err))
	}

	// --- Start Server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		logger.Info("Starting eventpay server", zap.String("addr", addr), zap.Bool("khalti_sandbox", cfg.Khalti.Sandbox))
		if err := e.Start(addr); err != nil {
			logger.Info("Server stopped", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	// Stop cron
	ctx := scheduler.Stop()
	<-ctx.Done()

	// Stop HTTP server
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	notifier.Wait()

	logger.Info("Server exited")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func hasArg(name string) bool {
	for _, arg := range os.Args[1:] {
		if arg == name {
			return true
		}
	}
	return false
}

func runDBBootstrap(logger *zap.Logger) error {
	dbCfg, err := config.LoadDatabaseOnly()
	if err != nil {
		return err
	}
	db, err := config.NewDatabase(dbCfg, false)
	if err != nil {
		return err
	}
	if err := bootstrap.Migrate(db); err != nil {
		return err
	}
	logger.Info("Schema migration completed")
	return nil
}
