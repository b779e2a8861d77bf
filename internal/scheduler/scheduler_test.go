package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler(t *testing.T) {
	t.Run("should run a scheduled job on demand", func(t *testing.T) {
		// given
		s := New(time.UTC, time.Second)
		var runs atomic.Int32
		require.NoError(t, s.Every("reconcile", 15, func(ctx context.Context) error {
			runs.Add(1)
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			return nil
		}))

		// when
		err := s.RunNow("reconcile")

		// then
		require.NoError(t, err)
		assert.Equal(t, int32(1), runs.Load())
	})

	t.Run("should reject invalid and duplicated schedules", func(t *testing.T) {
		// given
		s := New(time.UTC, 0)
		noop := func(ctx context.Context) error { return nil }
		require.NoError(t, s.Add("reminders", "0 7 * * *", noop))

		// when
		duplicate := s.Add("reminders", "0 8 * * *", noop)
		invalid := s.Add("broken", "every day", noop)
		interval := s.Every("zero", 0, noop)
		unknown := s.RunNow("missing")

		// then
		assert.Error(t, duplicate)
		assert.Error(t, invalid)
		assert.Error(t, interval)
		assert.Error(t, unknown)
	})

	t.Run("should report job failures to sentry", func(t *testing.T) {
		// given
		var events []*sentry.Event
		require.NoError(t, sentry.Init(sentry.ClientOptions{
			Dsn: "https://key@sentry.example.com/1",
			BeforeSend: func(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
				events = append(events, event)
				return nil
			},
		}))
		t.Cleanup(func() { sentry.CurrentHub().BindClient(nil) })
		s := New(time.UTC, 0)
		failure := errors.New("provider unavailable")
		require.NoError(t, s.Every("reconcile", 15, func(ctx context.Context) error { return failure }))

		// when
		err := s.RunNow("reconcile")

		// then
		assert.ErrorIs(t, err, failure)
		require.Len(t, events, 1)
		assert.Equal(t, "reconcile", events[0].Tags["job"])
	})
}
