/*
Package app wires configuration into a running object graph.

PURPOSE:
  Both binaries need the same components built the same way: store,
  calendar, scorer, detector, request service, notifier, alert engine and
  scheduler. The server additionally gets a rate limiter and the router.

STARTUP SEQUENCE:
  1. Open the store named by database.driver (memory, sqlite, postgres)
  2. Build calendar, scorer and detector from their config sections
  3. Build the request service
  4. Build the notifier (log or webhook) and the alert engine
  5. Build the scheduler (started by the caller)
  6. Build the limiter (memory or redis) when rate limiting is enabled

SEE ALSO:
  - config/config.go: Sections consumed here
  - cmd/server/main.go: HTTP server
  - cmd/rosterctl/main.go: Operator CLI
*/
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/warp/crew-roster/alerts"
	"github.com/warp/crew-roster/api"
	"github.com/warp/crew-roster/config"
	"github.com/warp/crew-roster/conflict"
	"github.com/warp/crew-roster/generic"
	"github.com/warp/crew-roster/notify"
	"github.com/warp/crew-roster/priority"
	"github.com/warp/crew-roster/requests"
	"github.com/warp/crew-roster/roster"
	"github.com/warp/crew-roster/store/memory"
	"github.com/warp/crew-roster/store/postgres"
	"github.com/warp/crew-roster/store/sqlite"
)

// Store is what every backend provides.
type Store interface {
	generic.TxStore
	alerts.Store
}

// App holds the application dependencies.
type App struct {
	Config    *config.Config
	Logger    *zap.Logger
	Store     Store
	Calendar  *roster.Calendar
	Service   *requests.Service
	Notifier  notify.Notifier
	Alerts    *alerts.Engine
	Scheduler *alerts.Scheduler
	Limiter   api.Limiter

	closers []func() error
}

// New builds the application. Close releases what it opened.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	if err := a.openStore(ctx); err != nil {
		return nil, err
	}

	var err error
	a.Calendar, err = cfg.Calendar.Build()
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to build calendar: %w", err)
	}
	scorer, err := priority.NewScorer(cfg.Priority)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to build scorer: %w", err)
	}
	detector := conflict.NewDetector(cfg.Conflicts.Minimums(), logger)

	a.Service = requests.NewService(a.Calendar, a.Store, scorer, detector, requests.WithLogger(logger))
	a.Notifier = buildNotifier(cfg.Notify, logger)
	a.Alerts = alerts.NewEngine(a.Calendar, a.Store, a.Notifier,
		alerts.WithMilestones(cfg.Alerts.Milestones),
		alerts.WithRecipients(cfg.Alerts.Recipients),
		alerts.WithLogger(logger),
	)
	a.Scheduler = alerts.NewScheduler(a.Alerts, logger)
	a.Scheduler.Enabled = cfg.Alerts.Enabled
	a.Scheduler.CheckInterval = cfg.Alerts.Interval

	if cfg.RateLimit.Enabled {
		if err := a.buildLimiter(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}

	logger.Info("application initialized",
		zap.String("driver", cfg.Database.Driver),
		zap.String("notifier", cfg.Notify.Kind),
		zap.Bool("alerts_enabled", cfg.Alerts.Enabled),
		zap.Bool("rate_limit", a.Limiter != nil))
	return a, nil
}

func (a *App) openStore(ctx context.Context) error {
	db := a.Config.Database
	switch db.Driver {
	case "memory":
		a.Store = memory.New()
	case "sqlite":
		s, err := sqlite.New(db.DSN)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		a.Store = s
		a.closers = append(a.closers, s.Close)
	case "postgres":
		s, err := postgres.New(ctx, postgres.Config{DSN: db.DSN, MaxOpenConns: db.MaxOpenConns})
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		a.Store = s
		a.closers = append(a.closers, s.Close)
	default:
		return fmt.Errorf("unknown database driver %q", db.Driver)
	}
	return nil
}

func buildNotifier(cfg config.NotifyConfig, logger *zap.Logger) notify.Notifier {
	if cfg.Kind == "webhook" {
		return notify.NewWebhook(notify.WebhookConfig{
			URL:        cfg.WebhookURL,
			Token:      cfg.Token,
			Timeout:    cfg.Timeout,
			RetryCount: cfg.Retries,
		}, logger)
	}
	return notify.NewLog(logger)
}

func (a *App) buildLimiter(ctx context.Context) error {
	rl := a.Config.RateLimit
	if rl.Backend != "redis" {
		a.Limiter = api.NewMemoryLimiter(rl.Requests, rl.Window)
		return nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     rl.RedisAddr,
		Password: rl.RedisPassword,
		DB:       rl.RedisDB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	a.closers = append(a.closers, client.Close)
	a.Limiter = api.NewRedisLimiter(client, rl.Requests, rl.Window)
	return nil
}

// Handler builds the HTTP handler wired to the scheduler.
func (a *App) Handler() *api.Handler {
	return api.NewHandler(a.Service, a.Store, a.Alerts,
		api.WithLogger(a.Logger),
		api.WithScheduler(a.Scheduler),
	)
}

// Router builds the full HTTP stack around h.
func (a *App) Router(h *api.Handler) *chi.Mux {
	return api.NewRouter(h, api.RouterConfig{
		CORSOrigins: a.Config.Server.CORSOrigins,
		Limiter:     a.Limiter,
		Logger:      a.Logger,
	})
}

// HTTPServer returns a server with the configured timeouts.
func (a *App) HTTPServer(handler http.Handler) *http.Server {
	s := a.Config.Server
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", s.Port),
		Handler:      handler,
		ReadTimeout:  s.ReadTimeout,
		WriteTimeout: s.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
}

// Close stops the scheduler and releases connections in reverse order.
func (a *App) Close() error {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
