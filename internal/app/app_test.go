package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/prolific-digital/wp-events/internal/config"
	"github.com/prolific-digital/wp-events/internal/event_bus"
	"github.com/prolific-digital/wp-events/internal/utils"
	"github.com/prolific-digital/wp-events/pkg/calendar"
	"github.com/prolific-digital/wp-events/pkg/occurrence"
	"github.com/prolific-digital/wp-events/pkg/provider"
	"github.com/prolific-digital/wp-events/pkg/reconcile"
	"github.com/prolific-digital/wp-events/pkg/registration"
	"github.com/prolific-digital/wp-events/pkg/series"
	"github.com/prolific-digital/wp-events/pkg/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubDependencies(t *testing.T, client *provider.ClientStub) (*Dependencies, *occurrence.RepositoryStub) {
	repo := occurrence.NewRepositoryStub()
	t.Cleanup(repo.Reset)
	clock := &utils.MockClock{FixedNow: time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)}
	deps := &Dependencies{Clock: clock, Location: time.UTC, EventBus: event_bus.NewEventBus()}
	deps.OccurrenceRepo = repo
	deps.OccurrenceService = occurrence.NewService(repo, deps.EventBus)
	deps.OccurrenceHandler = occurrence.NewHandler(deps.OccurrenceService)
	deps.Synchronizer = series.NewSynchronizer(deps.OccurrenceService, series.Policy{PropagateRegistrationURL: true}, "UTC")
	t.Cleanup(deps.Synchronizer.Subscribe(deps.EventBus))
	deps.SeriesHandler = series.NewHandler(deps.OccurrenceService, calendar.NewRenderer(time.UTC))
	if client != nil {
		deps.ProviderClient = client
		deps.ReconcileService = reconcile.NewService(client, deps.OccurrenceService, deps.EventBus, clock, time.UTC)
		deps.ReconcileHandler = reconcile.NewHandler(deps.ReconcileService)
	}
	deps.RegistrationHandler = registration.NewHandler(registration.NewService(deps.OccurrenceService, deps.ProviderClient))
	deps.StatsService = stats.NewStatsServiceImpl(deps.OccurrenceService)
	deps.StatsHandler = stats.NewStatsHandler(deps.StatsService, stats.NewCsvStatsTransformer())
	return deps, repo
}

func TestRegisterRoutes(t *testing.T) {
	t.Run("should expand a repeating occurrence saved through the api", func(t *testing.T) {
		// given
		deps, repo := stubDependencies(t, nil)
		r := mux.NewRouter()
		RegisterRoutes(r, deps)
		body := `{"title":"Weekly sync","startDate":"2024-01-01","status":"publish",
			"recurrence":{"frequency":"WEEKLY","byWeekday":["MO","WE"],"until":"2024-01-17"}}`

		// when
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/occurrence", strings.NewReader(body)))

		// then
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
		assert.Equal(t, 6, repo.Len())
	})

	t.Run("should register sync only with a provider", func(t *testing.T) {
		// given
		without, _ := stubDependencies(t, nil)
		with, _ := stubDependencies(t, provider.NewClientStub())
		withoutRouter, withRouter := mux.NewRouter(), mux.NewRouter()
		RegisterRoutes(withoutRouter, without)
		RegisterRoutes(withRouter, with)

		// when
		missing := httptest.NewRecorder()
		withoutRouter.ServeHTTP(missing, httptest.NewRequest(http.MethodPost, "/api/sync", nil))
		present := httptest.NewRecorder()
		withRouter.ServeHTTP(present, httptest.NewRequest(http.MethodPost, "/api/sync", nil))

		// then
		assert.Equal(t, http.StatusNotFound, missing.Code)
		assert.Equal(t, http.StatusOK, present.Code)
	})
}

func TestScheduleJobs(t *testing.T) {
	t.Run("should schedule reconciliation for a provider", func(t *testing.T) {
		// given
		client := provider.NewClientStub()
		deps, _ := stubDependencies(t, client)
		cfg := config.Application{Provider: config.Provider{IntervalMinutes: 15}}

		// when
		jobs, err := ScheduleJobs(deps, cfg)

		// then
		require.NoError(t, err)
		require.NoError(t, jobs.RunNow("reconcile"))
		assert.Equal(t, 1, client.ListCalls)
		assert.Error(t, jobs.RunNow("reminders"))
	})

	t.Run("should fail on an invalid interval", func(t *testing.T) {
		// given
		deps, _ := stubDependencies(t, provider.NewClientStub())

		// when
		_, err := ScheduleJobs(deps, config.Application{Provider: config.Provider{IntervalMinutes: 0}})

		// then
		assert.Error(t, err)
	})
}
