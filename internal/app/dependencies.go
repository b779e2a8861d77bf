package app

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prolific-digital/wp-events/internal/config"
	"github.com/prolific-digital/wp-events/internal/event_bus"
	"github.com/prolific-digital/wp-events/internal/utils"
	"github.com/prolific-digital/wp-events/pkg/calendar"
	"github.com/prolific-digital/wp-events/pkg/google"
	"github.com/prolific-digital/wp-events/pkg/notification"
	"github.com/prolific-digital/wp-events/pkg/occurrence"
	"github.com/prolific-digital/wp-events/pkg/provider"
	"github.com/prolific-digital/wp-events/pkg/reconcile"
	"github.com/prolific-digital/wp-events/pkg/registration"
	"github.com/prolific-digital/wp-events/pkg/series"
	"github.com/prolific-digital/wp-events/pkg/stats"
	"github.com/prolific-digital/wp-events/pkg/zoom"
	log "github.com/sirupsen/logrus"
)

// Dependencies holds all services and handlers for the application.
type Dependencies struct {
	Clock    utils.Clock
	Location *time.Location
	EventBus *event_bus.EventBus

	OccurrenceRepo    occurrence.Repository
	OccurrenceService *occurrence.ServiceImpl
	OccurrenceHandler *occurrence.Handler

	Synchronizer  *series.Synchronizer
	SeriesHandler *series.Handler

	// ProviderClient is nil when no external calendar is configured.
	ProviderClient   provider.Client
	ReconcileService *reconcile.Service
	ReconcileHandler *reconcile.Handler

	GoogleHandler *google.Handler

	Notifier *notification.Notifier

	RegistrationHandler *registration.Handler

	StatsService     *stats.StatsServiceImpl
	CsvStatsRenderer *stats.CsvStatsRendererImpl
	StatsHandler     *stats.StatsHandler
}

// BuildDependencies initializes and wires all application services and handlers.
func BuildDependencies(ctx context.Context, db *pgxpool.Pool, cfg config.Application) (*Dependencies, error) {
	location, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}
	deps := &Dependencies{
		Clock:    &utils.SystemClock{},
		Location: location,
		EventBus: event_bus.NewEventBus(),
	}

	deps.OccurrenceRepo = occurrence.NewRepo(db)
	deps.OccurrenceService = occurrence.NewService(deps.OccurrenceRepo, deps.EventBus)
	deps.OccurrenceHandler = occurrence.NewHandler(deps.OccurrenceService)

	deps.Synchronizer = series.NewSynchronizer(deps.OccurrenceService, series.Policy{
		PropagateNotify:          cfg.Series.PropagateNotify,
		PropagateRegistrationURL: cfg.Series.PropagateRegistrationURL,
	}, cfg.Timezone)
	deps.Synchronizer.Subscribe(deps.EventBus)
	deps.SeriesHandler = series.NewHandler(deps.OccurrenceService, calendar.NewRenderer(location))

	switch cfg.Provider.Kind {
	case "zoom":
		deps.ProviderClient = zoom.NewClient(cfg.Zoom, cfg.Provider.RegistrantPages)
	case "google":
		service, err := google.NewService(ctx, cfg.Google)
		if err != nil {
			return nil, err
		}
		client := google.NewClient(service, cfg.Google.CalendarId, deps.Clock)
		deps.ProviderClient = client
		deps.GoogleHandler = google.NewHandler(client)
	case "":
		log.Info("no external calendar provider configured")
	default:
		return nil, fmt.Errorf("unknown provider kind %q", cfg.Provider.Kind)
	}
	if deps.ProviderClient != nil {
		deps.ReconcileService = reconcile.NewService(deps.ProviderClient, deps.OccurrenceService, deps.EventBus, deps.Clock, location)
		deps.ReconcileHandler = reconcile.NewHandler(deps.ReconcileService)
	}

	if cfg.Mailgun.Domain != "" {
		mailer := notification.NewMailgunMailer(cfg.Mailgun)
		deps.Notifier = notification.NewNotifier(deps.OccurrenceService, mailer, deps.Clock, location, notification.DefaultLeads)
	}

	deps.RegistrationHandler = registration.NewHandler(registration.NewService(deps.OccurrenceService, deps.ProviderClient))

	deps.StatsService = stats.NewStatsServiceImpl(deps.OccurrenceService)
	deps.CsvStatsRenderer = stats.NewCsvStatsTransformer()
	deps.StatsHandler = stats.NewStatsHandler(deps.StatsService, deps.CsvStatsRenderer)

	return deps, nil
}
