package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"whop_checkout_echo/internal/app"
	"whop_checkout_echo/internal/config"
	"whop_checkout_echo/internal/handlers"
	"whop_checkout_echo/internal/logging"
	appMiddleware "whop_checkout_echo/internal/middleware"
	"whop_checkout_echo/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("").WithError(err).Fatal("Invalid configuration")
	}
	log := logging.New(cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log, app.Options{Migrate: true})
	if err != nil {
		log.WithError(err).Fatal("Failed to initialise application")
	}
	defer a.Close()

	if err := cfg.Whop.Validate(); err != nil {
		log.WithError(err).Warn("Whop integration not configured, checkout will fail until it is")
	}

	// Firebase only guards the admin panel
	var verifier appMiddleware.SessionVerifier
	var exchanger handlers.TokenExchanger
	authClient, err := services.InitFirebase(ctx, cfg.Firebase)
	if err != nil {
		log.WithError(err).Warn("Firebase initialization failed, admin login disabled")
	} else {
		verifier, exchanger = authClient, authClient
	}

	// no database means no separate worker, so run tasks in-process
	if a.Memory != nil {
		go runTasks(ctx, a, cfg.Worker.Interval)
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = appMiddleware.NewErrorHandler(log)

	e.Use(middleware.RequestID())
	e.Use(appMiddleware.RequestLogger(log))
	e.Use(middleware.Recover())

	authHandler := handlers.NewAuthHandler(exchanger, cfg.Firebase, cfg.Server.IsProduction())
	webhookHandler := handlers.NewWebhookHandler(a.Reconciler, a.Webhooks, cfg.Whop.WebhookSecret)
	checkoutHandler := handlers.NewCheckoutHandler(cfg.Whop.Enabled, a.Orders, a.Gateway, a.Reconciler)
	adminHandler := handlers.NewAdminHandler(cfg, a.Orders, a.Reconciler, a.Tester)

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	// Webhook routes
	webhookLimiter := middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
			Rate:      rate.Limit(10),
			Burst:     30,
			ExpiresIn: 3 * time.Minute,
		}),
		DenyHandler: func(c echo.Context, identifier string, err error) error {
			return c.JSON(http.StatusTooManyRequests, map[string]string{"error": "Too many requests"})
		},
	})
	for _, path := range []string{"/webhook", "/whop/v1/webhook"} {
		e.POST(path, webhookHandler.Handle, middleware.BodyLimit("64K"), webhookLimiter)
	}

	// Checkout routes
	e.POST("/checkout/orders/:id/pay", checkoutHandler.ProcessPayment)
	e.GET("/checkout/order-received/:id", checkoutHandler.ReceiptPage)

	// Public routes
	e.GET("/login", authHandler.LoginPage)
	e.POST("/auth/login", authHandler.HandleLogin)
	e.POST("/auth/logout", authHandler.HandleLogout)

	// Protected routes
	admin := e.Group("/admin")
	admin.Use(appMiddleware.RequireAuth(verifier))
	admin.GET("/orders/:id/payment", adminHandler.PaymentPanel)
	admin.GET("/orders/:id/payment.json", adminHandler.PaymentJSON)
	admin.POST("/orders/:id/payment/ensure", adminHandler.EnsurePayment)
	admin.GET("/whop", adminHandler.Settings)
	admin.POST("/whop/test-connection", adminHandler.TestConnection)

	e.GET("/", func(c echo.Context) error {
		return c.Redirect(http.StatusTemporaryRedirect, "/admin/whop")
	})

	go func() {
		log.WithField("port", cfg.Server.Port).Info("Server starting")
		if err := e.Start(":" + cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("Server stopped")
		}
	}()

	<-ctx.Done()
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Graceful shutdown failed")
	}
}

func runTasks(ctx context.Context, a *app.App, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := a.Runner.ProcessDue(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.Log.WithError(err).Error("In-process task run failed")
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return
		}
	}
}
