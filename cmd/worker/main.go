package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"whop_checkout_echo/internal/app"
	"whop_checkout_echo/internal/config"
	"whop_checkout_echo/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.New("").WithError(err).Fatal("Invalid configuration")
	}
	log := logging.New(cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log, app.Options{RequireDB: true})
	if err != nil {
		log.WithError(err).Fatal("Failed to initialise worker")
	}
	defer a.Close()

	interval := cfg.Worker.Interval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	log.WithFields(logrus.Fields{
		"interval": interval.String(),
		"tasks":    a.Registry.Names(),
	}).Info("Worker started")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// run once on start, then on every tick
	process(ctx, a)
	for {
		select {
		case <-ticker.C:
			process(ctx, a)
		case <-ctx.Done():
			log.Info("Shutting down worker...")
			return
		}
	}
}

func process(ctx context.Context, a *app.App) {
	ran, err := a.Runner.ProcessDue(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Log.WithError(err).Error("Error processing scheduled tasks")
		return
	}
	if ran > 0 {
		a.Log.WithField("count", ran).Info("Scheduled tasks processed")
	}
}
