package calendar

import (
	"fmt"
	"io"
	"time"

	ics "github.com/arran4/golang-ical"
	"github.com/prolific-digital/wp-events/pkg/occurrence"
)

const productId = "-//Prolific Digital//Events//EN"

// Renderer writes occurrences as an iCalendar feed. Occurrences with a time
// of day are placed in the configured location, the rest become all day events.
type Renderer struct {
	location *time.Location
	now      func() time.Time
}

func NewRenderer(location *time.Location) *Renderer {
	if location == nil {
		location = time.UTC
	}
	return &Renderer{location: location, now: time.Now}
}

// Render builds a calendar named name holding one event per occurrence.
func (r *Renderer) Render(name string, occurrences []occurrence.Occurrence) *ics.Calendar {
	cal := ics.NewCalendar()
	cal.SetProductId(productId)
	cal.SetMethod(ics.MethodPublish)
	if name != "" {
		cal.SetXWRCalName(name)
	}
	cal.SetXWRTimezone(r.location.String())

	stamp := r.now().UTC()
	for _, o := range occurrences {
		if o.Status == occurrence.StatusTrash {
			continue
		}
		e := cal.AddEvent(fmt.Sprintf("%s@wp-events", o.Id))
		e.SetDtStampTime(stamp)
		e.SetSummary(o.Title)
		if o.Description != "" {
			e.SetDescription(o.Description)
		}
		if o.RegistrationURL != "" {
			e.SetURL(o.RegistrationURL)
		}
		if o.Status == occurrence.StatusDraft {
			e.SetStatus(ics.ObjectStatusTentative)
		} else {
			e.SetStatus(ics.ObjectStatusConfirmed)
		}

		if !o.StartTime.Valid {
			e.SetAllDayStartAt(o.StartDate)
			e.SetAllDayEndAt(o.StartDate.AddDate(0, 0, 1))
			continue
		}
		start := o.StartTime.On(o.StartDate, r.location)
		end := start.Add(time.Hour)
		if o.EndTime.Valid {
			end = o.EndTime.On(o.StartDate, r.location)
			if !end.After(start) {
				end = end.AddDate(0, 0, 1)
			}
		}
		e.SetStartAt(start)
		e.SetEndAt(end)
	}
	return cal
}

// Write renders the occurrences to w.
func (r *Renderer) Write(w io.Writer, name string, occurrences []occurrence.Occurrence) error {
	return r.Render(name, occurrences).SerializeTo(w)
}
