package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prolific-digital/wp-events/internal/event_bus"
	"github.com/prolific-digital/wp-events/internal/utils"
	"github.com/prolific-digital/wp-events/pkg/occurrence"
	"github.com/prolific-digital/wp-events/pkg/provider"
	"github.com/prolific-digital/wp-events/pkg/recurrence"
	log "github.com/sirupsen/logrus"
)

// Result summarises one reconciliation run.
type Result struct {
	Provider  string    `json:"provider"`
	Meetings  int       `json:"meetings"`
	Created   int       `json:"created"`
	Updated   int       `json:"updated"`
	Deleted   int       `json:"deleted"`
	Unknown   int       `json:"registrantsUnknown"`
	StartedAt time.Time `json:"startedAt"`
}

type Service struct {
	client     provider.Client
	store      occurrence.Store
	reconciler *Reconciler
	eventBus   *event_bus.EventBus
	clock      utils.Clock
	location   *time.Location
	mu         sync.Mutex
}

func NewService(client provider.Client, store occurrence.Store, eventBus *event_bus.EventBus, clock utils.Clock, location *time.Location) *Service {
	if location == nil {
		location = time.UTC
	}
	return &Service{
		client:     client,
		store:      store,
		reconciler: NewReconciler(clock, location),
		eventBus:   eventBus,
		clock:      clock,
		location:   location,
	}
}

// Run imports the provider meetings. Runs are serialised. A failure to list
// meetings aborts the run before the store is read, and the plan is applied
// in a single transaction.
func (s *Service) Run(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := Result{Provider: s.client.Name(), StartedAt: s.clock.Now()}
	meetings, err := s.client.ListMeetings(ctx)
	if err != nil {
		log.Errorf("failed to list %s meetings: %v", s.client.Name(), err)
		return result, err
	}
	result.Meetings = len(meetings)
	result.Unknown = s.resolveRegistrants(ctx, meetings)

	err = s.store.WithTransaction(ctx, func(store occurrence.Store) error {
		locals, err := store.ListExternal(ctx)
		if err != nil {
			return fmt.Errorf("unable to read external occurrences: %w", err)
		}
		plan := s.reconciler.Reconcile(meetings, locals)
		for _, o := range plan.ToCreate {
			if _, err := store.Create(ctx, o); err != nil {
				return fmt.Errorf("unable to import meeting %s: %w", o.ExternalMeetingId, err)
			}
		}
		for _, u := range plan.ToUpdate {
			log.Debugf("updating %s: %v", u.Occurrence.ExternalMeetingId, u.Changed)
			if _, err := store.Update(ctx, u.Occurrence); err != nil {
				return fmt.Errorf("unable to update meeting %s: %w", u.Occurrence.ExternalMeetingId, err)
			}
		}
		for _, id := range plan.ToDelete {
			if err := store.Delete(ctx, id); err != nil {
				return fmt.Errorf("unable to remove occurrence %s: %w", id, err)
			}
		}
		result.Created = len(plan.ToCreate)
		result.Updated = len(plan.ToUpdate)
		result.Deleted = len(plan.ToDelete)
		return nil
	})
	if err != nil {
		log.Errorf("reconciliation with %s failed: %v", s.client.Name(), err)
		return Result{Provider: result.Provider, StartedAt: result.StartedAt, Meetings: result.Meetings}, err
	}

	log.Infof("reconciled %d %s meetings: %d created, %d updated, %d deleted",
		result.Meetings, result.Provider, result.Created, result.Updated, result.Deleted)
	if err := s.eventBus.Publish(event_bus.NewEvent(ctx, event_bus.ReconcileCompleted, result)); err != nil {
		log.Errorf("failed to publish reconciliation result: %v", err)
	}
	return result, nil
}

// resolveRegistrants fills the registrants of upcoming meetings in place. A
// meeting whose list could not be read keeps nil registrants marked
// incomplete. It returns the number of such meetings.
func (s *Service) resolveRegistrants(ctx context.Context, meetings []provider.Meeting) int {
	today := utils.Today(s.clock, s.location)
	unknown := 0
	for i := range meetings {
		m := &meetings[i]
		if recurrence.Date(m.StartTime.In(m.Location(s.location))).Before(today) {
			continue
		}
		emails, complete, err := s.client.Registrants(*m).Collect(ctx)
		if err != nil {
			log.Warnf("registrants of %s are unknown: %v", m.Key(), err)
			m.Registrants, m.RegistrantsComplete = nil, false
			unknown++
			continue
		}
		m.Registrants, m.RegistrantsComplete = emails, complete
	}
	return unknown
}
