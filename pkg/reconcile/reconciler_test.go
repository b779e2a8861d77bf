package reconcile

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prolific-digital/wp-events/internal/utils"
	"github.com/prolific-digital/wp-events/pkg/occurrence"
	"github.com/prolific-digital/wp-events/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)

func newReconciler() *Reconciler {
	return NewReconciler(&utils.MockClock{FixedNow: now}, time.UTC)
}

func meeting(id string, start time.Time) provider.Meeting {
	return provider.Meeting{
		ExternalID:          id,
		Topic:               "Topic " + id,
		Agenda:              "Agenda " + id,
		JoinURL:             "https://zoom.us/j/" + id,
		StartTime:           start,
		Timezone:            "UTC",
		DurationMinutes:     45,
		Registrants:         []string{"ana@example.com"},
		RegistrantsComplete: true,
	}
}

func imported(t *testing.T, m provider.Meeting) occurrence.Occurrence {
	plan := newReconciler().Reconcile([]provider.Meeting{m}, nil)
	require.Len(t, plan.ToCreate, 1)
	o := plan.ToCreate[0]
	o.Id = uuid.New()
	o.ParentId = o.Id
	return o
}

func TestReconciler_Reconcile(t *testing.T) {
	t.Run("should create new meeting and delete the one gone upstream", func(t *testing.T) {
		// given
		ext1 := meeting("ext-1", time.Date(2024, 1, 20, 15, 0, 0, 0, time.UTC))
		ext2 := imported(t, meeting("ext-2", time.Date(2024, 1, 22, 15, 0, 0, 0, time.UTC)))

		// when
		plan := newReconciler().Reconcile([]provider.Meeting{ext1}, []occurrence.Occurrence{ext2})

		// then
		require.Len(t, plan.ToCreate, 1)
		created := plan.ToCreate[0]
		assert.Equal(t, "ext-1", created.ExternalMeetingId)
		assert.Equal(t, "Topic ext-1", created.Title)
		assert.Equal(t, "Agenda ext-1", created.Description)
		assert.Equal(t, "https://zoom.us/j/ext-1", created.RegistrationURL)
		assert.Equal(t, time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC), created.StartDate)
		assert.Equal(t, occurrence.NewTimeOfDay(15, 0), created.StartTime)
		assert.Equal(t, occurrence.NewTimeOfDay(15, 45), created.EndTime)
		assert.Equal(t, []string{"ana@example.com"}, created.Registrants)
		assert.True(t, created.Notify)
		assert.False(t, created.HasSeries())
		assert.Empty(t, plan.ToUpdate)
		assert.Equal(t, []uuid.UUID{ext2.Id}, plan.ToDelete)
	})

	t.Run("should emit nothing for an unchanged payload", func(t *testing.T) {
		// given
		m := meeting("ext-1", time.Date(2024, 1, 20, 15, 0, 0, 0, time.UTC))
		local := imported(t, m)

		// when
		plan := newReconciler().Reconcile([]provider.Meeting{m}, []occurrence.Occurrence{local})

		// then
		assert.True(t, plan.IsEmpty())
	})

	t.Run("should not import meetings dated before today", func(t *testing.T) {
		// given
		yesterday := meeting("old", time.Date(2024, 1, 9, 23, 0, 0, 0, time.UTC))
		today := meeting("today", time.Date(2024, 1, 10, 8, 0, 0, 0, time.UTC))

		// when
		plan := newReconciler().Reconcile([]provider.Meeting{yesterday, today}, nil)

		// then
		require.Len(t, plan.ToCreate, 1)
		assert.Equal(t, "today", plan.ToCreate[0].ExternalMeetingId)
	})

	t.Run("should compute the date in the meeting timezone", func(t *testing.T) {
		// given
		m := meeting("ny", time.Date(2024, 1, 21, 2, 0, 0, 0, time.UTC))
		m.Timezone = "America/New_York"

		// when
		plan := newReconciler().Reconcile([]provider.Meeting{m}, nil)

		// then
		require.Len(t, plan.ToCreate, 1)
		assert.Equal(t, time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC), plan.ToCreate[0].StartDate)
		assert.Equal(t, occurrence.NewTimeOfDay(21, 0), plan.ToCreate[0].StartTime)
	})

	t.Run("should update only changed fields", func(t *testing.T) {
		// given
		m := meeting("ext-1", time.Date(2024, 1, 20, 15, 0, 0, 0, time.UTC))
		local := imported(t, m)
		m.Topic = "Renamed"
		m.StartTime = time.Date(2024, 1, 21, 15, 0, 0, 0, time.UTC)

		// when
		plan := newReconciler().Reconcile([]provider.Meeting{m}, []occurrence.Occurrence{local})

		// then
		require.Len(t, plan.ToUpdate, 1)
		update := plan.ToUpdate[0]
		assert.Equal(t, []string{"title", "start_date"}, update.Changed)
		assert.Equal(t, local.Id, update.Occurrence.Id)
		assert.Equal(t, "Renamed", update.Occurrence.Title)
		assert.Equal(t, time.Date(2024, 1, 21, 0, 0, 0, 0, time.UTC), update.Occurrence.StartDate)
	})

	t.Run("should keep local registrants when the provider list is incomplete", func(t *testing.T) {
		// given
		m := meeting("ext-1", time.Date(2024, 1, 20, 15, 0, 0, 0, time.UTC))
		local := imported(t, m)
		local.Registrants = []string{"ana@example.com", "local@example.com"}
		m.Registrants = nil
		m.RegistrantsComplete = false

		// when
		plan := newReconciler().Reconcile([]provider.Meeting{m}, []occurrence.Occurrence{local})

		// then
		assert.True(t, plan.IsEmpty())
	})

	t.Run("should merge a truncated list into local registrants", func(t *testing.T) {
		// given
		m := meeting("ext-1", time.Date(2024, 1, 20, 15, 0, 0, 0, time.UTC))
		local := imported(t, m)
		local.Registrants = []string{"local@example.com"}
		m.Registrants = []string{"new@example.com"}
		m.RegistrantsComplete = false

		// when
		plan := newReconciler().Reconcile([]provider.Meeting{m}, []occurrence.Occurrence{local})

		// then
		require.Len(t, plan.ToUpdate, 1)
		assert.Equal(t, []string{"local@example.com", "new@example.com"}, plan.ToUpdate[0].Occurrence.Registrants)
	})

	t.Run("should replace registrants from a complete list", func(t *testing.T) {
		// given
		m := meeting("ext-1", time.Date(2024, 1, 20, 15, 0, 0, 0, time.UTC))
		local := imported(t, m)
		local.Registrants = []string{"gone@example.com"}

		// when
		plan := newReconciler().Reconcile([]provider.Meeting{m}, []occurrence.Occurrence{local})

		// then
		require.Len(t, plan.ToUpdate, 1)
		assert.Equal(t, []string{"registrants"}, plan.ToUpdate[0].Changed)
		assert.Equal(t, []string{"ana@example.com"}, plan.ToUpdate[0].Occurrence.Registrants)
	})

	t.Run("should match recurring instances by parent and occurrence id", func(t *testing.T) {
		// given
		first := meeting("900", time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
		first.ParentExternalID, first.OccurrenceExternalID = "900", "1705309200000"
		second := meeting("900", time.Date(2024, 1, 22, 9, 0, 0, 0, time.UTC))
		second.ParentExternalID, second.OccurrenceExternalID = "900", "1705914000000"
		local := imported(t, first)

		// when
		plan := newReconciler().Reconcile([]provider.Meeting{first, second}, []occurrence.Occurrence{local})

		// then
		require.Len(t, plan.ToCreate, 1)
		assert.Equal(t, "900_1705914000000", plan.ToCreate[0].ExternalMeetingId)
		assert.Empty(t, plan.ToUpdate)
		assert.Empty(t, plan.ToDelete)
	})

	t.Run("should never touch trashed or local occurrences", func(t *testing.T) {
		// given
		m := meeting("ext-1", time.Date(2024, 1, 20, 15, 0, 0, 0, time.UTC))
		trashed := imported(t, m)
		trashed.Status = occurrence.StatusTrash
		trashed.Title = "Outdated"
		own := occurrence.Occurrence{Id: uuid.New(), Details: occurrence.Details{Title: "Local event"}, StartDate: time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)}

		// when
		plan := newReconciler().Reconcile([]provider.Meeting{m}, []occurrence.Occurrence{trashed, own})

		// then
		assert.True(t, plan.IsEmpty())
	})

	t.Run("should keep the first of duplicated meetings", func(t *testing.T) {
		// given
		m := meeting("ext-1", time.Date(2024, 1, 20, 15, 0, 0, 0, time.UTC))
		duplicate := m
		duplicate.Topic = "Duplicate"

		// when
		plan := newReconciler().Reconcile([]provider.Meeting{m, duplicate}, nil)

		// then
		require.Len(t, plan.ToCreate, 1)
		assert.Equal(t, "Topic ext-1", plan.ToCreate[0].Title)
	})

	t.Run("should import all day events without times", func(t *testing.T) {
		// given
		m := meeting("allday", time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC))
		m.AllDay = true
		m.DurationMinutes = 0

		// when
		plan := newReconciler().Reconcile([]provider.Meeting{m}, nil)

		// then
		require.Len(t, plan.ToCreate, 1)
		assert.False(t, plan.ToCreate[0].StartTime.Valid)
		assert.False(t, plan.ToCreate[0].EndTime.Valid)
	})
}
