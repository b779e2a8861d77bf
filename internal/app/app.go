package app

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/gorilla/mux"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prolific-digital/wp-events/internal/config"
	"github.com/prolific-digital/wp-events/internal/database"
	"github.com/prolific-digital/wp-events/internal/scheduler"
	log "github.com/sirupsen/logrus"
)

const jobTimeout = 10 * time.Minute

// Application wires configuration, database, router, background jobs and
// server lifecycle.
type Application struct {
	cfg       config.Application
	db        *pgxpool.Pool
	router    *mux.Router
	scheduler *scheduler.Scheduler
	srv       *http.Server
}

// NewApplication constructs the full HTTP application, ready to Run().
func NewApplication(ctx context.Context) (*Application, error) {
	cfg, err := config.Load("./config/application.yaml")
	if err != nil {
		return nil, err
	}

	if cfg.Sentry.DSN != "" {
		err := sentry.Init(sentry.ClientOptions{Dsn: cfg.Sentry.DSN, Environment: cfg.Sentry.Environment})
		if err != nil {
			return nil, err
		}
		log.Info("Sentry error reporting enabled")
	}

	// DB + migrations
	if err := database.Migrate(cfg.Database); err != nil {
		return nil, err
	}
	db, err := database.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	r := mux.NewRouter()

	// Build dependencies (services, handlers...)
	deps, err := BuildDependencies(ctx, db, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	// Middleware chain
	SetupMiddleware(r)

	// Routes
	RegisterRoutes(r, deps)

	// Background jobs
	jobs, err := ScheduleJobs(deps, cfg)
	if err != nil {
		db.Close()
		return nil, err
	}

	srv := &http.Server{
		Handler:      r,
		Addr:         ":8181",
		WriteTimeout: 60 * time.Second,
		ReadTimeout:  15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Application{cfg: cfg, db: db, router: r, scheduler: jobs, srv: srv}, nil
}

// ScheduleJobs registers reconciliation and reminder jobs.
func ScheduleJobs(deps *Dependencies, cfg config.Application) (*scheduler.Scheduler, error) {
	jobs := scheduler.New(deps.Location, jobTimeout)
	if deps.ReconcileService != nil {
		err := jobs.Every("reconcile", cfg.Provider.IntervalMinutes, func(ctx context.Context) error {
			_, err := deps.ReconcileService.Run(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	if deps.Notifier != nil && cfg.Notifications.Enabled {
		err := jobs.Add("reminders", cfg.Notifications.Cron, func(ctx context.Context) error {
			_, err := deps.Notifier.Run(ctx)
			return err
		})
		if err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

// Run starts the background jobs and the HTTP server. It blocks until the
// process receives SIGINT or SIGTERM.
func (a *Application) Run() error {
	defer a.db.Close()
	defer sentry.Flush(2 * time.Second)

	a.scheduler.Start()
	defer a.scheduler.Stop()

	errs := make(chan error, 1)
	go func() {
		log.Infof("Starting server on %s", a.srv.Addr)
		errs <- a.srv.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errs:
		return err
	case sig := <-stop:
		log.Infof("Received %s, shutting down", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
