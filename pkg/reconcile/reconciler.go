package reconcile

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/prolific-digital/wp-events/internal/utils"
	"github.com/prolific-digital/wp-events/pkg/occurrence"
	"github.com/prolific-digital/wp-events/pkg/provider"
	"github.com/prolific-digital/wp-events/pkg/recurrence"
	log "github.com/sirupsen/logrus"
)

// Update is a local occurrence with the provider values applied.
type Update struct {
	Occurrence occurrence.Occurrence
	Changed    []string
}

// Plan lists the store mutations that bring the local external occurrences
// in line with a provider payload.
type Plan struct {
	ToCreate []occurrence.Occurrence
	ToUpdate []Update
	ToDelete []uuid.UUID
}

func (p Plan) IsEmpty() bool {
	return len(p.ToCreate) == 0 && len(p.ToUpdate) == 0 && len(p.ToDelete) == 0
}

// Reconciler computes plans. It never touches the store.
type Reconciler struct {
	clock    utils.Clock
	location *time.Location
}

func NewReconciler(clock utils.Clock, location *time.Location) *Reconciler {
	if location == nil {
		location = time.UTC
	}
	return &Reconciler{clock: clock, location: location}
}

// Reconcile matches meetings to locals by instance key. locals must only hold
// occurrences bound to an external meeting. Meeting registrants replace the
// local ones when the list is complete and are merged into them otherwise.
func (r *Reconciler) Reconcile(meetings []provider.Meeting, locals []occurrence.Occurrence) Plan {
	byKey := make(map[string]occurrence.Occurrence, len(locals))
	for _, o := range locals {
		if !o.IsExternal() {
			continue
		}
		byKey[o.ExternalMeetingId] = o
	}

	today := utils.Today(r.clock, r.location)
	seen := make(map[string]bool, len(meetings))
	var plan Plan
	for _, m := range meetings {
		key := m.Key()
		if seen[key] {
			log.Debugf("ignoring duplicate provider meeting %s", key)
			continue
		}
		seen[key] = true

		wanted := r.toOccurrence(m)
		local, found := byKey[key]
		if !found {
			if wanted.StartDate.Before(today) {
				log.Debugf("skipping past provider meeting %s on %s", key, wanted.StartDate.Format(time.DateOnly))
				continue
			}
			plan.ToCreate = append(plan.ToCreate, wanted)
			continue
		}
		if local.Status == occurrence.StatusTrash {
			continue
		}
		if update, changed := apply(local, wanted, m); changed {
			plan.ToUpdate = append(plan.ToUpdate, update)
		}
	}

	for _, o := range locals {
		if o.IsExternal() && !seen[o.ExternalMeetingId] {
			plan.ToDelete = append(plan.ToDelete, o.Id)
		}
	}
	return plan
}

func (r *Reconciler) toOccurrence(m provider.Meeting) occurrence.Occurrence {
	loc := m.Location(r.location)
	start := m.StartTime.In(loc)
	o := occurrence.Occurrence{
		ExternalMeetingId: m.Key(),
		StartDate:         recurrence.Date(start),
		Status:            occurrence.StatusPublish,
		Registrants:       occurrence.NormalizeRegistrants(m.Registrants),
		Details: occurrence.Details{
			Title:           m.Topic,
			Description:     m.Agenda,
			RegistrationURL: m.JoinURL,
			Notify:          true,
		},
		Rule: recurrence.Rule{Frequency: recurrence.None},
	}
	if !m.AllDay {
		o.StartTime = occurrence.TimeOfDayOf(start)
		o.EndTime = occurrence.TimeOfDayOf(m.EndTime().In(loc))
	}
	return o
}

func apply(local, wanted occurrence.Occurrence, m provider.Meeting) (Update, bool) {
	o := local.Clone()
	var changed []string
	if o.Title != wanted.Title {
		o.Title = wanted.Title
		changed = append(changed, "title")
	}
	if o.Description != wanted.Description {
		o.Description = wanted.Description
		changed = append(changed, "description")
	}
	if o.RegistrationURL != wanted.RegistrationURL {
		o.RegistrationURL = wanted.RegistrationURL
		changed = append(changed, "registration_url")
	}
	if !o.StartDate.Equal(wanted.StartDate) {
		o.StartDate = wanted.StartDate
		changed = append(changed, "start_date")
	}
	if o.StartTime != wanted.StartTime {
		o.StartTime = wanted.StartTime
		changed = append(changed, "start_time")
	}
	if o.EndTime != wanted.EndTime {
		o.EndTime = wanted.EndTime
		changed = append(changed, "end_time")
	}

	var registrants []string
	if m.RegistrantsComplete {
		registrants = wanted.Registrants
	} else {
		registrants = occurrence.NormalizeRegistrants(append(slices.Clone(o.Registrants), wanted.Registrants...))
	}
	if !slices.Equal(o.Registrants, registrants) && !(len(o.Registrants) == 0 && len(registrants) == 0) {
		o.Registrants = registrants
		changed = append(changed, "registrants")
	}
	return Update{Occurrence: o, Changed: changed}, len(changed) > 0
}
