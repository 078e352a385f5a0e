package app

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"whop_checkout_echo/internal/config"
	"whop_checkout_echo/internal/models"
	"whop_checkout_echo/internal/services"
	"whop_checkout_echo/internal/tasks"
)

// App is the object graph shared by the server, the worker and whopctl
type App struct {
	Config *config.Config
	Log    *logrus.Logger

	DB     *gorm.DB
	Memory *services.MemoryStore
	Cache  *services.RedisCache

	Orders    services.OrderStore
	Sessions  services.SessionStore
	Scheduler services.TaskScheduler
	Webhooks  services.WebhookLog
	TaskStore tasks.TaskStore

	Whop       *services.WhopClient
	Reconciler *services.Reconciler
	Gateway    *services.Gateway
	Tester     *services.ConnectionTester
	Mailer     services.Mailer
	Registry   *tasks.Registry
	Runner     *tasks.Runner
}

type Options struct {
	// RequireDB fails New when DATABASE_URL is empty instead of falling back to memory
	RequireDB bool
	// Migrate runs AutoMigrate after connecting
	Migrate bool
}

var ErrDatabaseRequired = errors.New("DATABASE_URL not set")

// New wires storage, the Whop client, the reconciler and the task registry
func New(ctx context.Context, cfg *config.Config, log *logrus.Logger, opts Options) (*App, error) {
	a := &App{Config: cfg, Log: log}

	if cfg.Database.URL != "" {
		db, err := services.InitDB(cfg.Database.URL, log)
		if err != nil {
			return nil, err
		}
		if opts.Migrate {
			if err := services.AutoMigrate(db); err != nil {
				return nil, err
			}
		}
		store := services.NewGormStore(db)
		a.DB = db
		a.Orders, a.Sessions, a.Scheduler, a.Webhooks = store, store, store, store
		a.TaskStore = tasks.NewGormTaskStore(db)
	} else {
		if opts.RequireDB {
			return nil, ErrDatabaseRequired
		}
		log.Warn("DATABASE_URL not set, using in-memory storage")
		mem := services.NewMemoryStore()
		seedDemoOrder(mem, log)
		a.Memory = mem
		a.Orders, a.Sessions, a.Scheduler, a.Webhooks = mem, mem, mem, mem
		a.TaskStore = mem
	}

	var locker services.Locker
	if cfg.Redis.URL != "" {
		cache, err := services.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			log.WithError(err).Warn("Redis unavailable, session locking and product cache disabled")
		} else {
			a.Cache = cache
			locker = cache
		}
	}

	a.Whop = services.NewWhopClient(cfg.Whop)
	a.Reconciler = services.NewReconciler(a.Orders, a.Sessions, a.Whop, cfg.Whop.ProductID, cfg.Server.AppURL,
		services.WithNotifier(services.NewCustomerNotifier(a.Sessions, a.Orders, a.Scheduler)),
		services.WithLocker(locker),
	)
	a.Gateway = services.NewGateway(cfg.Whop, a.Orders, a.Reconciler)
	a.Tester = services.NewConnectionTester(cfg.Whop, services.NewWhopClientWithTimeout(cfg.Whop, cfg.Whop.TestTimeout), a.Cache)
	a.Mailer = services.NewEmailService(cfg.SMTP)

	a.Registry = tasks.NewRegistry()
	tasks.DefineTasks(a.Registry, tasks.Dependencies{
		Orders:     a.Orders,
		Sessions:   a.Sessions,
		Reconciler: a.Reconciler,
		Mailer:     a.Mailer,
	})
	a.Runner = tasks.NewRunner(a.TaskStore, a.Registry)

	return a, nil
}

// Close releases the database pool and the Redis client
func (a *App) Close() {
	if a.Cache != nil {
		if err := a.Cache.Close(); err != nil {
			a.Log.WithError(err).Warn("Failed to close Redis client")
		}
	}
	if a.DB != nil {
		if sqlDB, err := a.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
}

func seedDemoOrder(mem *services.MemoryStore, log *logrus.Logger) {
	order := mem.PutOrder(models.Order{
		OrderKey:      "wc_order_demo",
		Status:        models.OrderStatusPending,
		Total:         decimal.RequireFromString("25.00"),
		Currency:      "USD",
		BillingEmail:  "customer@example.com",
		BillingName:   "Demo Customer",
		PaymentMethod: models.PaymentMethodWhop,
	})
	log.WithFields(logrus.Fields{"order_id": order.ID, "order_key": order.OrderKey}).Info("Seeded demo order")
}
