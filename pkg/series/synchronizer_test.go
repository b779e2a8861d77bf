package series

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prolific-digital/wp-events/internal/event_bus"
	"github.com/prolific-digital/wp-events/pkg/occurrence"
	"github.com/prolific-digital/wp-events/pkg/recurrence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = context.Background()

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

type fixture struct {
	repo  *occurrence.RepositoryStub
	bus   *event_bus.EventBus
	store *occurrence.ServiceImpl
	sync  *Synchronizer
}

func setup(t *testing.T, policy Policy) fixture {
	repo := occurrence.NewRepositoryStub()
	bus := event_bus.NewEventBus()
	store := occurrence.NewService(repo, bus)
	sync := NewSynchronizer(store, policy, "UTC")
	unsubscribe := sync.Subscribe(bus)
	t.Cleanup(func() {
		unsubscribe()
		repo.Reset()
	})
	return fixture{repo: repo, bus: bus, store: store, sync: sync}
}

func dailyEvent(until time.Time) occurrence.Occurrence {
	return occurrence.Occurrence{
		StartDate:   day(1),
		Status:      occurrence.StatusPublish,
		Registrants: []string{"first@example.com"},
		Details: occurrence.Details{
			Title:           "Daily standup",
			Description:     "Short sync",
			RegistrationURL: "https://example.com/register",
			StartTime:       occurrence.NewTimeOfDay(9, 0),
			EndTime:         occurrence.NewTimeOfDay(9, 15),
			Notify:          true,
		},
		Rule: recurrence.Rule{Frequency: recurrence.Daily, Until: until},
	}
}

func members(t *testing.T, f fixture, seriesId uuid.UUID) []occurrence.Occurrence {
	result, err := f.repo.GetBySeries(ctx, seriesId)
	require.NoError(t, err)
	return result
}

func startDates(occurrences []occurrence.Occurrence) []time.Time {
	var result []time.Time
	for _, o := range occurrences {
		result = append(result, o.StartDate)
	}
	return result
}

func TestSynchronizer_CreateSeries(t *testing.T) {
	t.Run("should create weekly series when a repeating occurrence is saved", func(t *testing.T) {
		// given
		f := setup(t, Policy{})
		canonical := dailyEvent(day(17))
		canonical.Rule = recurrence.Rule{
			Frequency: recurrence.Weekly,
			ByWeekday: []recurrence.Weekday{recurrence.MO, recurrence.WE},
			Until:     day(17),
		}

		// when
		created, err := f.store.Create(ctx, canonical)

		// then
		require.NoError(t, err)
		stored, err := f.repo.Get(ctx, created.Id)
		require.NoError(t, err)
		require.True(t, stored.HasSeries())
		assert.Equal(t, stored.Id, stored.ParentId)

		series := members(t, f, stored.SeriesId.UUID)
		assert.Equal(t, []time.Time{day(1), day(3), day(8), day(10), day(15), day(17)}, startDates(series))
		for _, m := range series {
			assert.Equal(t, stored.Id, m.ParentId)
			assert.Equal(t, stored.Details, m.Details)
			assert.Equal(t, stored.Rule, m.Rule)
			if m.Id != stored.Id {
				assert.Empty(t, m.Registrants)
			}
		}
		assert.Equal(t, []string{"first@example.com"}, stored.Registrants)
	})

	t.Run("should do nothing when series already exists", func(t *testing.T) {
		// given
		f := setup(t, Policy{})
		created, err := f.store.Create(ctx, dailyEvent(day(5)))
		require.NoError(t, err)
		canonical, err := f.repo.Get(ctx, created.Id)
		require.NoError(t, err)
		before := f.repo.Len()

		// when
		result, err := f.sync.CreateSeries(ctx, canonical)

		// then
		require.NoError(t, err)
		assert.Equal(t, canonical, result)
		assert.Equal(t, before, f.repo.Len())
		assert.Equal(t, 5, before)
	})

	t.Run("should leave occurrence standalone when preconditions are not met", func(t *testing.T) {
		cases := map[string]func(o *occurrence.Occurrence){
			"draft":           func(o *occurrence.Occurrence) { o.Status = occurrence.StatusDraft },
			"not repeating":   func(o *occurrence.Occurrence) { o.Rule.Frequency = recurrence.None },
			"external":        func(o *occurrence.Occurrence) { o.ExternalMeetingId = "ext-1" },
			"until too early": func(o *occurrence.Occurrence) { o.StartDate = day(10); o.Rule.Until = day(2) },
			"invalid ordinal": func(o *occurrence.Occurrence) {
				o.Rule.Frequency = recurrence.Monthly
				o.Rule.ByMonthOrdinal = []int{9}
			},
		}
		for name, modify := range cases {
			t.Run(name, func(t *testing.T) {
				// given
				f := setup(t, Policy{})
				o := dailyEvent(day(5))
				modify(&o)

				// when
				created, err := f.store.Create(ctx, o)

				// then
				require.NoError(t, err)
				assert.Equal(t, 1, f.repo.Len())
				stored, err := f.repo.Get(ctx, created.Id)
				require.NoError(t, err)
				assert.False(t, stored.HasSeries())
			})
		}
	})

	t.Run("should roll back when the store fails", func(t *testing.T) {
		// given
		f := setup(t, Policy{})
		canonical, err := f.repo.Create(ctx, dailyEvent(day(5)))
		require.NoError(t, err)
		f.repo.FailOn["Create"] = occurrence.ErrStubFailure

		// when
		_, err = f.sync.CreateSeries(ctx, canonical)

		// then
		require.ErrorIs(t, err, occurrence.ErrStubFailure)
		stored, err := f.repo.Get(ctx, canonical.Id)
		require.NoError(t, err)
		assert.False(t, stored.HasSeries())
		assert.Equal(t, 1, f.repo.Len())
	})
}

func TestSynchronizer_UpdateSeries(t *testing.T) {
	t.Run("should propagate description to every member", func(t *testing.T) {
		// given
		f := setup(t, Policy{})
		created, err := f.store.Create(ctx, dailyEvent(day(5)))
		require.NoError(t, err)
		canonical, _ := f.repo.Get(ctx, created.Id)
		series := members(t, f, canonical.SeriesId.UUID)
		require.Len(t, series, 5)
		edited := series[2]
		edited.Description = "Moved to the big room"

		// when
		_, err = f.store.Update(ctx, edited)

		// then
		require.NoError(t, err)
		for _, m := range members(t, f, canonical.SeriesId.UUID) {
			assert.Equal(t, "Moved to the big room", m.Description)
		}
	})

	t.Run("should delete members after the new end except provider owned ones", func(t *testing.T) {
		// given
		f := setup(t, Policy{})
		created, err := f.store.Create(ctx, dailyEvent(day(10)))
		require.NoError(t, err)
		canonical, _ := f.repo.Get(ctx, created.Id)
		series := members(t, f, canonical.SeriesId.UUID)
		require.Len(t, series, 10)
		bound := series[7]
		bound.ExternalMeetingId = "ext-8"
		_, err = f.repo.Update(ctx, bound)
		require.NoError(t, err)

		// when
		canonical.Rule.Until = day(5)
		_, err = f.store.Update(ctx, canonical)

		// then
		require.NoError(t, err)
		remaining := members(t, f, canonical.SeriesId.UUID)
		assert.Equal(t, []time.Time{day(1), day(2), day(3), day(4), day(5), day(8)}, startDates(remaining))
		for _, m := range remaining {
			assert.Equal(t, day(5), m.Rule.Until)
		}
	})

	t.Run("should extend series when end date moves later", func(t *testing.T) {
		// given
		f := setup(t, Policy{})
		created, err := f.store.Create(ctx, dailyEvent(day(5)))
		require.NoError(t, err)
		canonical, _ := f.repo.Get(ctx, created.Id)

		// when
		canonical.Rule.Until = day(8)
		_, err = f.store.Update(ctx, canonical)

		// then
		require.NoError(t, err)
		series := members(t, f, canonical.SeriesId.UUID)
		assert.Equal(t, []time.Time{day(1), day(2), day(3), day(4), day(5), day(6), day(7), day(8)}, startDates(series))
		for _, m := range series {
			assert.Equal(t, canonical.Id, m.ParentId)
			assert.Equal(t, day(8), m.Rule.Until)
			assert.Equal(t, "Daily standup", m.Title)
		}
	})

	t.Run("should not delete anything for an invalid end date", func(t *testing.T) {
		// given
		f := setup(t, Policy{})
		created, err := f.store.Create(ctx, dailyEvent(day(5)))
		require.NoError(t, err)
		canonical, _ := f.repo.Get(ctx, created.Id)
		series := members(t, f, canonical.SeriesId.UUID)
		edited := series[3]

		// when
		edited.Rule.Until = time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)
		edited.Title = "Renamed"
		_, err = f.store.Update(ctx, edited)

		// then
		require.NoError(t, err)
		after := members(t, f, canonical.SeriesId.UUID)
		assert.Len(t, after, 5)
		assert.Equal(t, "Daily standup", after[0].Title)
	})

	t.Run("should keep notify and registration url per member unless configured", func(t *testing.T) {
		// given
		f := setup(t, Policy{PropagateNotify: false, PropagateRegistrationURL: false})
		created, err := f.store.Create(ctx, dailyEvent(day(3)))
		require.NoError(t, err)
		canonical, _ := f.repo.Get(ctx, created.Id)

		// when
		canonical.Notify = false
		canonical.RegistrationURL = "https://example.com/other"
		canonical.Title = "Renamed"
		_, err = f.store.Update(ctx, canonical)

		// then
		require.NoError(t, err)
		for _, m := range members(t, f, canonical.SeriesId.UUID) {
			assert.Equal(t, "Renamed", m.Title)
			if m.Id == canonical.Id {
				continue
			}
			assert.True(t, m.Notify)
			assert.Equal(t, "https://example.com/register", m.RegistrationURL)
		}
	})

	t.Run("should propagate notify and registration url when configured", func(t *testing.T) {
		// given
		f := setup(t, Policy{PropagateNotify: true, PropagateRegistrationURL: true})
		created, err := f.store.Create(ctx, dailyEvent(day(3)))
		require.NoError(t, err)
		canonical, _ := f.repo.Get(ctx, created.Id)

		// when
		canonical.Notify = false
		canonical.RegistrationURL = "https://example.com/other"
		_, err = f.store.Update(ctx, canonical)

		// then
		require.NoError(t, err)
		for _, m := range members(t, f, canonical.SeriesId.UUID) {
			assert.False(t, m.Notify)
			assert.Equal(t, "https://example.com/other", m.RegistrationURL)
		}
	})

	t.Run("should not propagate registrants or repetition pattern", func(t *testing.T) {
		// given
		f := setup(t, Policy{})
		created, err := f.store.Create(ctx, dailyEvent(day(3)))
		require.NoError(t, err)
		canonical, _ := f.repo.Get(ctx, created.Id)

		// when
		canonical.Registrants = append(canonical.Registrants, "second@example.com")
		canonical.Rule.ByWeekday = []recurrence.Weekday{recurrence.FR}
		_, err = f.store.Update(ctx, canonical)

		// then
		require.NoError(t, err)
		for _, m := range members(t, f, canonical.SeriesId.UUID) {
			if m.Id == canonical.Id {
				continue
			}
			assert.Empty(t, m.Registrants)
			assert.Empty(t, m.Rule.ByWeekday)
		}
	})
}

func TestSynchronizer_ExtendSeries(t *testing.T) {
	t.Run("should be idempotent", func(t *testing.T) {
		// given
		f := setup(t, Policy{})
		created, err := f.store.Create(ctx, dailyEvent(day(4)))
		require.NoError(t, err)
		canonical, _ := f.repo.Get(ctx, created.Id)
		canonical.Rule.Until = day(6)
		_, err = f.repo.Update(ctx, canonical)
		require.NoError(t, err)

		// when
		require.NoError(t, f.sync.ExtendSeries(ctx, canonical))
		afterFirst := startDates(members(t, f, canonical.SeriesId.UUID))
		require.NoError(t, f.sync.ExtendSeries(ctx, canonical))
		afterSecond := startDates(members(t, f, canonical.SeriesId.UUID))

		// then
		assert.Equal(t, []time.Time{day(1), day(2), day(3), day(4), day(5), day(6)}, afterFirst)
		assert.Equal(t, afterFirst, afterSecond)
	})

	t.Run("should follow the canonical weekly pattern", func(t *testing.T) {
		// given
		f := setup(t, Policy{})
		o := dailyEvent(day(10))
		o.Rule = recurrence.Rule{
			Frequency: recurrence.Weekly,
			ByWeekday: []recurrence.Weekday{recurrence.MO, recurrence.WE},
			Until:     day(10),
		}
		created, err := f.store.Create(ctx, o)
		require.NoError(t, err)
		canonical, _ := f.repo.Get(ctx, created.Id)

		// when
		canonical.Rule.Until = day(24)
		_, err = f.store.Update(ctx, canonical)

		// then
		require.NoError(t, err)
		assert.Equal(t,
			[]time.Time{day(1), day(3), day(8), day(10), day(15), day(17), day(22), day(24)},
			startDates(members(t, f, canonical.SeriesId.UUID)))
	})

	t.Run("should not recreate a trashed member when the end date moves later", func(t *testing.T) {
		// given
		f := setup(t, Policy{})
		created, err := f.store.Create(ctx, dailyEvent(day(4)))
		require.NoError(t, err)
		canonical, _ := f.repo.Get(ctx, created.Id)
		lastDay := members(t, f, canonical.SeriesId.UUID)[3]
		require.Equal(t, day(4), lastDay.StartDate)
		_, err = f.store.Trash(ctx, lastDay.Id)
		require.NoError(t, err)

		// when
		canonical.Rule.Until = day(6)
		_, err = f.store.Update(ctx, canonical)

		// then
		require.NoError(t, err)
		assert.Equal(t, []time.Time{day(1), day(2), day(3), day(5), day(6)},
			startDates(members(t, f, canonical.SeriesId.UUID)))
		all, err := f.repo.GetAllBySeries(ctx, canonical.SeriesId.UUID)
		require.NoError(t, err)
		assert.Len(t, all, 6)
		trashed, err := f.repo.Get(ctx, lastDay.Id)
		require.NoError(t, err)
		assert.Equal(t, occurrence.StatusTrash, trashed.Status)
	})

	t.Run("should ignore occurrence without series", func(t *testing.T) {
		// given
		f := setup(t, Policy{})
		o, err := f.repo.Create(ctx, dailyEvent(day(4)))
		require.NoError(t, err)

		// when
		err = f.sync.ExtendSeries(ctx, o)

		// then
		require.NoError(t, err)
		assert.Equal(t, 1, f.repo.Len())
	})
}

func TestSynchronizer_BeginAndCompleteUpdate(t *testing.T) {
	t.Run("should extend using the captured end date", func(t *testing.T) {
		// given
		f := setup(t, Policy{})
		created, err := f.store.Create(ctx, dailyEvent(day(3)))
		require.NoError(t, err)
		snapshot, err := f.sync.BeginUpdate(ctx, created.Id)
		require.NoError(t, err)
		assert.True(t, snapshot.Known)
		assert.Equal(t, day(3), snapshot.Until)

		canonical, _ := f.repo.Get(ctx, created.Id)
		canonical.Rule.Until = day(5)
		_, err = f.repo.Update(ctx, canonical)
		require.NoError(t, err)

		// when
		err = f.sync.CompleteUpdate(ctx, created.Id, snapshot)

		// then
		require.NoError(t, err)
		assert.Len(t, members(t, f, canonical.SeriesId.UUID), 5)
	})

	t.Run("should ignore missing occurrence", func(t *testing.T) {
		// given
		f := setup(t, Policy{})

		// when
		snapshot, err := f.sync.BeginUpdate(ctx, uuid.New())
		require.NoError(t, err)
		err = f.sync.CompleteUpdate(ctx, uuid.New(), snapshot)

		// then
		require.NoError(t, err)
		assert.False(t, snapshot.Known)
	})

	t.Run("should surface store errors", func(t *testing.T) {
		// given
		f := setup(t, Policy{})
		f.repo.FailOn["Get"] = errors.New("connection lost")

		// when
		err := f.sync.CompleteUpdate(ctx, uuid.New(), Snapshot{})

		// then
		require.Error(t, err)
	})
}
