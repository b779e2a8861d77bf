package notification

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/prolific-digital/wp-events/internal/event_bus"
	"github.com/prolific-digital/wp-events/internal/utils"
	"github.com/prolific-digital/wp-events/pkg/occurrence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mailerStub struct {
	mu      sync.Mutex
	sent    []Message
	failFor map[string]bool
}

func (m *mailerStub) Send(ctx context.Context, msg Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failFor[msg.To] {
		return errors.New("mailbox unavailable")
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *mailerStub) recipients(subject string) []string {
	var result []string
	for _, msg := range m.sent {
		if msg.Subject == subject {
			result = append(result, msg.To)
		}
	}
	return result
}

var today = time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)

func setupNotifier(t *testing.T) (*Notifier, *occurrence.ServiceImpl, *mailerStub) {
	repo := occurrence.NewRepositoryStub()
	store := occurrence.NewService(repo, event_bus.NewEventBus())
	mailer := &mailerStub{failFor: map[string]bool{}}
	notifier := NewNotifier(store, mailer, &utils.MockClock{FixedNow: today}, time.UTC, nil)
	t.Cleanup(repo.Reset)
	return notifier, store, mailer
}

func createEvent(t *testing.T, store occurrence.Store, daysAhead int, notify bool, registrants ...string) occurrence.Occurrence {
	o, err := store.Create(context.Background(), occurrence.Occurrence{
		StartDate:   time.Date(2024, 3, 1+daysAhead, 0, 0, 0, 0, time.UTC),
		Registrants: registrants,
		Details: occurrence.Details{
			Title:           gofakeit.Sentence(3),
			Description:     "See you there",
			RegistrationURL: "https://example.com/events/open-day",
			StartTime:       occurrence.NewTimeOfDay(18, 30),
			Notify:          notify,
		},
	})
	require.NoError(t, err)
	return o
}

func TestNotifier_Run(t *testing.T) {
	t.Run("should remind registrants one week and two days ahead", func(t *testing.T) {
		// given
		notifier, store, mailer := setupNotifier(t)
		weekAway := []string{gofakeit.Email(), gofakeit.Email()}
		twoDaysAway := []string{gofakeit.Email()}
		createEvent(t, store, 7, true, weekAway...)
		createEvent(t, store, 2, true, twoDaysAway...)
		createEvent(t, store, 3, true, gofakeit.Email())

		// when
		report, err := notifier.Run(context.Background())

		// then
		require.NoError(t, err)
		assert.Equal(t, Report{Occurrences: 2, Sent: 3}, report)
		assert.Equal(t, weekAway, mailer.recipients("1 Week Away!"))
		assert.Equal(t, twoDaysAway, mailer.recipients("2 Days Away!"))
	})

	t.Run("should skip occurrences without notify or not published", func(t *testing.T) {
		// given
		notifier, store, mailer := setupNotifier(t)
		createEvent(t, store, 7, false, gofakeit.Email())
		draft := createEvent(t, store, 2, true, gofakeit.Email())
		draft.Status = occurrence.StatusDraft
		_, err := store.Update(context.Background(), draft)
		require.NoError(t, err)
		trashed := createEvent(t, store, 2, true, gofakeit.Email())
		_, err = store.Trash(context.Background(), trashed.Id)
		require.NoError(t, err)

		// when
		report, err := notifier.Run(context.Background())

		// then
		require.NoError(t, err)
		assert.Zero(t, report.Occurrences)
		assert.Empty(t, mailer.sent)
	})

	t.Run("should keep sending after a failed message", func(t *testing.T) {
		// given
		notifier, store, mailer := setupNotifier(t)
		person := gofakeit.Person()
		broken := gofakeit.Email()
		createEvent(t, store, 7, true, broken, person.Contact.Email)
		mailer.failFor[broken] = true

		// when
		report, err := notifier.Run(context.Background())

		// then
		require.NoError(t, err)
		assert.Equal(t, 1, report.Sent)
		assert.Equal(t, 1, report.Failed)
		assert.Equal(t, []string{person.Contact.Email}, mailer.recipients("1 Week Away!"))
	})

	t.Run("should render occurrence details", func(t *testing.T) {
		// given
		notifier, store, mailer := setupNotifier(t)
		o := createEvent(t, store, 2, true, gofakeit.Email())

		// when
		_, err := notifier.Run(context.Background())

		// then
		require.NoError(t, err)
		require.Len(t, mailer.sent, 1)
		body := mailer.sent[0].HTML
		assert.Contains(t, body, "<h1>"+o.Title+"</h1>")
		assert.Contains(t, body, "Start Date: Sunday, March 3, 2024")
		assert.Contains(t, body, "Start Time: 18:30")
		assert.Contains(t, body, `href="`+o.RegistrationURL+`"`)
	})
}
