package occurrence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prolific-digital/wp-events/internal/event_bus"
	"github.com/prolific-digital/wp-events/pkg/recurrence"
	log "github.com/sirupsen/logrus"
)

var ErrInvalidOccurrence = errors.New("invalid occurrence")
var ErrOccurrenceTrashed = errors.New("occurrence is trashed")

// DefaultSeriesLength is used as the end of a repeating occurrence saved without one.
const DefaultSeriesLength = 365 * 24 * time.Hour

// Store is the occurrence store used by the series synchronizer, the
// reconciler and the HTTP handlers. Writes publish event_bus.OccurrenceSaved;
// inside WithTransaction the events are published after commit.
type Store interface {
	WithTransaction(ctx context.Context, fn func(store Store) error) error
	Get(ctx context.Context, id uuid.UUID) (Occurrence, error)
	GetBySeries(ctx context.Context, seriesId uuid.UUID) ([]Occurrence, error)
	GetAllBySeries(ctx context.Context, seriesId uuid.UUID) ([]Occurrence, error)
	GetByExternalId(ctx context.Context, externalId string) (Occurrence, error)
	ListExternal(ctx context.Context) ([]Occurrence, error)
	ListByStartDate(ctx context.Context, from, to time.Time) ([]Occurrence, error)
	Create(ctx context.Context, o Occurrence) (Occurrence, error)
	Update(ctx context.Context, o Occurrence) (Occurrence, error)
	// Trash moves an occurrence to trash. Trashing is terminal and idempotent.
	Trash(ctx context.Context, id uuid.UUID) (Occurrence, error)
	// Delete removes an occurrence. Deleting a missing occurrence is not an error.
	Delete(ctx context.Context, id uuid.UUID) error
}

type ServiceImpl struct {
	repo     Repository
	eventBus *event_bus.EventBus
	// pending collects events raised inside a transaction
	pending *[]event_bus.Event
}

func NewService(repo Repository, eventBus *event_bus.EventBus) *ServiceImpl {
	return &ServiceImpl{repo: repo, eventBus: eventBus}
}

func (s *ServiceImpl) WithTransaction(ctx context.Context, fn func(store Store) error) error {
	if s.pending != nil {
		return fn(s)
	}
	var pending []event_bus.Event
	err := s.repo.WithTransaction(ctx, func(repo Repository) error {
		return fn(&ServiceImpl{repo: repo, eventBus: s.eventBus, pending: &pending})
	})
	if err != nil {
		return err
	}
	for _, e := range pending {
		if err := s.eventBus.Publish(e); err != nil {
			log.Errorf("failed to publish %s after commit: %v", e.Type, err)
		}
	}
	return nil
}

func (s *ServiceImpl) publish(ctx context.Context, eventType event_bus.EventType, data any) error {
	e := event_bus.NewEvent(ctx, eventType, data)
	if s.pending != nil {
		*s.pending = append(*s.pending, e)
		return nil
	}
	return s.eventBus.Publish(e)
}

func (s *ServiceImpl) Get(ctx context.Context, id uuid.UUID) (Occurrence, error) {
	return s.repo.Get(ctx, id)
}

func (s *ServiceImpl) GetBySeries(ctx context.Context, seriesId uuid.UUID) ([]Occurrence, error) {
	return s.repo.GetBySeries(ctx, seriesId)
}

func (s *ServiceImpl) GetAllBySeries(ctx context.Context, seriesId uuid.UUID) ([]Occurrence, error) {
	return s.repo.GetAllBySeries(ctx, seriesId)
}

func (s *ServiceImpl) GetByExternalId(ctx context.Context, externalId string) (Occurrence, error) {
	return s.repo.GetByExternalId(ctx, externalId)
}

func (s *ServiceImpl) ListExternal(ctx context.Context) ([]Occurrence, error) {
	return s.repo.ListExternal(ctx)
}

func (s *ServiceImpl) ListByStartDate(ctx context.Context, from, to time.Time) ([]Occurrence, error) {
	if to.Before(from) {
		return nil, fmt.Errorf("%w: range end %s is before start %s", ErrInvalidOccurrence,
			to.Format(time.DateOnly), from.Format(time.DateOnly))
	}
	return s.repo.ListByStartDate(ctx, from, to)
}

func (s *ServiceImpl) Create(ctx context.Context, o Occurrence) (Occurrence, error) {
	o, err := normalize(o)
	if err != nil {
		return Occurrence{}, err
	}
	if o.Status == StatusTrash {
		return Occurrence{}, fmt.Errorf("%w: can not create a trashed occurrence", ErrInvalidOccurrence)
	}
	created, err := s.repo.Create(ctx, o)
	if err != nil {
		log.Errorf("failed to create occurrence: %v", err)
		return Occurrence{}, err
	}
	log.Debugf("created occurrence %s on %s", created.Id, created.StartDate.Format(time.DateOnly))

	if err := s.publish(ctx, event_bus.OccurrenceSaved, Saved{Occurrence: created.Clone()}); err != nil {
		return created, err
	}
	return created, nil
}

func (s *ServiceImpl) Update(ctx context.Context, o Occurrence) (Occurrence, error) {
	previous, err := s.repo.Get(ctx, o.Id)
	if err != nil {
		return Occurrence{}, err
	}
	if previous.Status == StatusTrash {
		return Occurrence{}, ErrOccurrenceTrashed
	}
	o, err = normalize(o)
	if err != nil {
		return Occurrence{}, err
	}
	if o.Status == StatusTrash {
		return s.Trash(ctx, o.Id)
	}
	updated, err := s.repo.Update(ctx, o)
	if err != nil {
		log.Errorf("failed to update occurrence %s: %v", o.Id, err)
		return Occurrence{}, err
	}

	if err := s.publish(ctx, event_bus.OccurrenceSaved, Saved{Occurrence: updated.Clone(), Previous: &previous}); err != nil {
		return updated, err
	}
	return updated, nil
}

func (s *ServiceImpl) Trash(ctx context.Context, id uuid.UUID) (Occurrence, error) {
	o, err := s.repo.Get(ctx, id)
	if err != nil {
		return Occurrence{}, err
	}
	if o.Status == StatusTrash {
		return o, nil
	}
	o.Status = StatusTrash
	trashed, err := s.repo.Update(ctx, o)
	if err != nil {
		log.Errorf("failed to trash occurrence %s: %v", id, err)
		return Occurrence{}, err
	}
	if err := s.publish(ctx, event_bus.OccurrenceTrashed, trashed.Clone()); err != nil {
		return trashed, err
	}
	return trashed, nil
}

func (s *ServiceImpl) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		log.Errorf("failed to delete occurrence %s: %v", id, err)
		return err
	}
	return nil
}

func normalize(o Occurrence) (Occurrence, error) {
	o.Title = strings.TrimSpace(o.Title)
	if o.StartDate.IsZero() {
		return o, fmt.Errorf("%w: start date is required", ErrInvalidOccurrence)
	}
	o.StartDate = recurrence.Date(o.StartDate)
	if o.Status == "" {
		o.Status = StatusPublish
	}
	if o.Rule.Frequency == "" {
		o.Rule.Frequency = recurrence.None
	}
	if o.Rule.IsRecurring() && o.Rule.Until.IsZero() {
		o.Rule.Until = recurrence.Date(o.StartDate.Add(DefaultSeriesLength))
	}
	o.Registrants = NormalizeRegistrants(o.Registrants)
	return o, nil
}
