package series

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prolific-digital/wp-events/internal/event_bus"
	"github.com/prolific-digital/wp-events/pkg/occurrence"
	"github.com/prolific-digital/wp-events/pkg/recurrence"
	log "github.com/sirupsen/logrus"
)

// ErrPreconditionNotMet marks a request the synchronizer ignores. Public
// operations never return it; they log it and leave the store untouched.
var ErrPreconditionNotMet = errors.New("series precondition not met")

// HandlerName identifies the synchronizer on the event bus. Writes made by the
// synchronizer suppress it so saving a member never re-enters the synchronizer.
const HandlerName = "series.synchronizer"

// Policy decides which optional fields are copied to the other members when
// one member of a series is edited.
type Policy struct {
	PropagateNotify          bool
	PropagateRegistrationURL bool
}

type Synchronizer struct {
	store    occurrence.Store
	policy   Policy
	timezone string
}

func NewSynchronizer(store occurrence.Store, policy Policy, timezone string) *Synchronizer {
	return &Synchronizer{store: store, policy: policy, timezone: timezone}
}

// Subscribe registers the synchronizer for saved occurrences.
func (s *Synchronizer) Subscribe(eventBus *event_bus.EventBus) (unsubscribe func()) {
	return event_bus.SubscribeTyped[occurrence.Saved](
		eventBus,
		event_bus.OccurrenceSaved,
		HandlerName,
		func(e event_bus.EventT[occurrence.Saved]) error {
			log.Debugf("received occurrence saved event for %s", e.Data.Occurrence.Id)
			err := s.CompleteUpdate(e.Context(), e.Data.Occurrence.Id, SnapshotOf(e.Data.Previous))
			if err != nil {
				log.Errorf("failed to synchronize series of occurrence %s: %v", e.Data.Occurrence.Id, err)
				return err
			}
			return nil
		},
	)
}

// Snapshot carries the values of an occurrence from before an edit.
type Snapshot struct {
	Until time.Time
	Known bool
}

func SnapshotOf(previous *occurrence.Occurrence) Snapshot {
	if previous == nil {
		return Snapshot{}
	}
	return Snapshot{Until: previous.Rule.Until, Known: true}
}

// BeginUpdate captures the state of an occurrence before it is edited.
func (s *Synchronizer) BeginUpdate(ctx context.Context, id uuid.UUID) (Snapshot, error) {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, occurrence.ErrOccurrenceNotFound) {
			return Snapshot{}, nil
		}
		return Snapshot{}, err
	}
	return SnapshotOf(&o), nil
}

// CompleteUpdate brings the series of an edited occurrence in line with it.
// An occurrence without a series gets one created when its rule repeats.
func (s *Synchronizer) CompleteUpdate(ctx context.Context, id uuid.UUID, before Snapshot) error {
	o, err := s.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, occurrence.ErrOccurrenceNotFound) {
			log.Debugf("occurrence %s no longer exists, nothing to synchronize", id)
			return nil
		}
		return err
	}
	if !o.HasSeries() {
		_, err := s.CreateSeries(ctx, o)
		return err
	}
	var priorUntil time.Time
	if before.Known {
		priorUntil = before.Until
	}
	return s.UpdateSeries(ctx, o, priorUntil)
}

// CreateSeries turns a repeating occurrence into the canonical member of a new
// series and creates one member per further date of its rule.
func (s *Synchronizer) CreateSeries(ctx context.Context, canonical occurrence.Occurrence) (occurrence.Occurrence, error) {
	dates, err := s.checkCreate(canonical)
	if err != nil {
		if errors.Is(err, ErrPreconditionNotMet) {
			log.Debugf("not creating series for %s: %v", canonical.Id, err)
			return canonical, nil
		}
		return canonical, err
	}

	result := canonical
	ctx = event_bus.Suppress(ctx, HandlerName)
	err = s.store.WithTransaction(ctx, func(store occurrence.Store) error {
		c := canonical.Clone()
		c.SeriesId = uuid.NullUUID{UUID: uuid.New(), Valid: true}
		c.ParentId = c.Id
		c.StartDate = dates[0]
		updated, err := store.Update(ctx, c)
		if err != nil {
			return fmt.Errorf("could not mark canonical occurrence: %w", err)
		}
		for _, d := range dates[1:] {
			if _, err := store.Create(ctx, newMember(updated, d)); err != nil {
				return fmt.Errorf("could not create series member on %s: %w", d.Format(time.DateOnly), err)
			}
		}
		result = updated
		return nil
	})
	if err != nil {
		log.Errorf("failed to create series for %s: %v", canonical.Id, err)
		return canonical, err
	}
	log.Infof("created series %s with %d occurrences", result.SeriesId.UUID, len(dates))
	return result, nil
}

func (s *Synchronizer) checkCreate(o occurrence.Occurrence) ([]time.Time, error) {
	switch {
	case o.Id == uuid.Nil:
		return nil, fmt.Errorf("%w: occurrence is not stored", ErrPreconditionNotMet)
	case o.HasSeries():
		return nil, fmt.Errorf("%w: already part of series %s", ErrPreconditionNotMet, o.SeriesId.UUID)
	case o.Status != occurrence.StatusPublish:
		return nil, fmt.Errorf("%w: status is %s", ErrPreconditionNotMet, o.Status)
	case !o.Rule.IsRecurring():
		return nil, fmt.Errorf("%w: rule does not repeat", ErrPreconditionNotMet)
	case o.IsExternal():
		return nil, fmt.Errorf("%w: bound to external meeting %s", ErrPreconditionNotMet, o.ExternalMeetingId)
	}
	dates, err := recurrence.Expand(o.Rule, o.StartDate, s.timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPreconditionNotMet, err)
	}
	return dates, nil
}

// UpdateSeries applies an edit of one member to its series. When priorUntil is
// known and the new end date is later the series is extended, otherwise
// members past the end date are removed and the shared fields are copied to
// the remaining members.
func (s *Synchronizer) UpdateSeries(ctx context.Context, edited occurrence.Occurrence, priorUntil time.Time) error {
	if err := s.checkUpdate(ctx, edited); err != nil {
		if errors.Is(err, ErrPreconditionNotMet) {
			log.Debugf("not updating series of %s: %v", edited.Id, err)
			return nil
		}
		return err
	}
	if !priorUntil.IsZero() && edited.Rule.Until.After(recurrence.Date(priorUntil)) {
		return s.ExtendSeries(ctx, edited)
	}

	ctx = event_bus.Suppress(ctx, HandlerName)
	until := edited.Rule.Until
	deleted, updated := 0, 0
	err := s.store.WithTransaction(ctx, func(store occurrence.Store) error {
		members, err := store.GetBySeries(ctx, edited.SeriesId.UUID)
		if err != nil {
			return err
		}
		for _, m := range members {
			if m.StartDate.After(until) && !m.IsExternal() {
				if err := store.Delete(ctx, m.Id); err != nil {
					return fmt.Errorf("could not delete series member %s: %w", m.Id, err)
				}
				deleted++
				continue
			}
			changed, err := s.propagate(ctx, store, m, edited)
			if err != nil {
				return err
			}
			if changed {
				updated++
			}
		}
		return nil
	})
	if err != nil {
		log.Errorf("failed to update series %s: %v", edited.SeriesId.UUID, err)
		return err
	}
	log.Debugf("updated series %s: %d members updated, %d deleted", edited.SeriesId.UUID, updated, deleted)
	return nil
}

func (s *Synchronizer) checkUpdate(ctx context.Context, edited occurrence.Occurrence) error {
	switch {
	case !edited.HasSeries():
		return fmt.Errorf("%w: occurrence has no series", ErrPreconditionNotMet)
	case edited.Status == occurrence.StatusTrash:
		return fmt.Errorf("%w: occurrence is trashed", ErrPreconditionNotMet)
	case !edited.Rule.IsRecurring() || edited.Rule.Until.IsZero():
		return fmt.Errorf("%w: rule has no end date", ErrPreconditionNotMet)
	}
	anchor, err := s.anchorOf(ctx, edited)
	if err != nil {
		return err
	}
	if _, err := recurrence.Expand(edited.Rule, anchor, s.timezone); err != nil {
		return fmt.Errorf("%w: %v", ErrPreconditionNotMet, err)
	}
	return nil
}

// anchorOf returns the start date of the canonical member of the series, or
// the edited one's when the canonical member is gone.
func (s *Synchronizer) anchorOf(ctx context.Context, edited occurrence.Occurrence) (time.Time, error) {
	if edited.IsCanonical() {
		return edited.StartDate, nil
	}
	canonical, err := s.store.Get(ctx, edited.ParentId)
	if err != nil {
		if errors.Is(err, occurrence.ErrOccurrenceNotFound) {
			return edited.StartDate, nil
		}
		return time.Time{}, err
	}
	if canonical.Status == occurrence.StatusTrash || canonical.SeriesId != edited.SeriesId {
		return edited.StartDate, nil
	}
	return canonical.StartDate, nil
}

// ExtendSeries copies the shared fields of member to the rest of its series
// and creates the members between the last existing one and the end date.
// Running it again without changes creates nothing.
func (s *Synchronizer) ExtendSeries(ctx context.Context, member occurrence.Occurrence) error {
	switch {
	case !member.HasSeries():
		log.Debugf("not extending %s: %v", member.Id, fmt.Errorf("%w: occurrence has no series", ErrPreconditionNotMet))
		return nil
	case !member.Rule.IsRecurring() || member.Rule.Until.IsZero():
		log.Debugf("not extending %s: %v", member.Id, fmt.Errorf("%w: rule has no end date", ErrPreconditionNotMet))
		return nil
	}

	ctx = event_bus.Suppress(ctx, HandlerName)
	created := 0
	err := s.store.WithTransaction(ctx, func(store occurrence.Store) error {
		all, err := store.GetAllBySeries(ctx, member.SeriesId.UUID)
		if err != nil {
			return err
		}
		// trashed dates stay taken so they are never created again
		existing := make(map[time.Time]bool, len(all))
		members := make([]occurrence.Occurrence, 0, len(all))
		for _, m := range all {
			existing[m.StartDate] = true
			if m.Status != occurrence.StatusTrash {
				members = append(members, m)
			}
		}
		if len(members) == 0 {
			return fmt.Errorf("%w: series %s has no members", ErrPreconditionNotMet, member.SeriesId.UUID)
		}

		rule := member.Rule
		var template occurrence.Occurrence
		for i, m := range members {
			if m.Id == member.Id {
				m = member
			} else if _, err := s.propagate(ctx, store, m, member); err != nil {
				return err
			}
			if m.IsCanonical() || i == 0 {
				// the canonical member is authoritative for the repetition pattern
				rule.Frequency = m.Rule.Frequency
				rule.ByWeekday = m.Rule.ByWeekday
				rule.ByMonthOrdinal = m.Rule.ByMonthOrdinal
				template = m
			}
		}

		last := members[len(members)-1]
		dates, err := recurrence.Expand(rule, last.StartDate, s.timezone)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPreconditionNotMet, err)
		}
		template.Details = s.merge(template.Details, member.Details)
		template.Rule.Until = member.Rule.Until
		for _, d := range dates[1:] {
			if existing[d] {
				continue
			}
			if _, err := store.Create(ctx, newMember(template, d)); err != nil {
				return fmt.Errorf("could not create series member on %s: %w", d.Format(time.DateOnly), err)
			}
			existing[d] = true
			created++
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrPreconditionNotMet) {
			log.Debugf("not extending series of %s: %v", member.Id, err)
			return nil
		}
		log.Errorf("failed to extend series %s: %v", member.SeriesId.UUID, err)
		return err
	}
	log.Debugf("extended series %s with %d occurrences", member.SeriesId.UUID, created)
	return nil
}

// propagate copies the shared fields of source to target and stores target
// when something changed.
func (s *Synchronizer) propagate(ctx context.Context, store occurrence.Store, target, source occurrence.Occurrence) (bool, error) {
	if target.Id == source.Id {
		return false, nil
	}
	updated := target.Clone()
	updated.Details = s.merge(target.Details, source.Details)
	updated.Rule.Until = source.Rule.Until
	if updated.Details == target.Details && recurrence.SameDate(updated.Rule.Until, target.Rule.Until) {
		return false, nil
	}
	if _, err := store.Update(ctx, updated); err != nil {
		if errors.Is(err, occurrence.ErrOccurrenceTrashed) {
			return false, nil
		}
		return false, fmt.Errorf("could not update series member %s: %w", target.Id, err)
	}
	return true, nil
}

// merge returns source's shared fields, keeping target's values for the fields
// the policy does not propagate.
func (s *Synchronizer) merge(target, source occurrence.Details) occurrence.Details {
	merged := source
	if !s.policy.PropagateNotify {
		merged.Notify = target.Notify
	}
	if !s.policy.PropagateRegistrationURL {
		merged.RegistrationURL = target.RegistrationURL
	}
	return merged
}

// newMember clones the shared fields of template onto a new occurrence dated d.
func newMember(template occurrence.Occurrence, d time.Time) occurrence.Occurrence {
	m := template.Clone()
	m.Id = uuid.Nil
	m.StartDate = d
	m.Registrants = nil
	m.ExternalMeetingId = ""
	m.Status = occurrence.StatusPublish
	m.ParentId = template.ParentId
	return m
}
