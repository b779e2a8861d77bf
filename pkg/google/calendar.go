package google

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prolific-digital/wp-events/internal/utils"
	"github.com/prolific-digital/wp-events/pkg/provider"
	log "github.com/sirupsen/logrus"
	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
)

const pageSize = 250

// Client imports the upcoming events of one Google calendar. Recurring
// events are listed as single instances.
type Client struct {
	service    *gcal.Service
	calendarId string
	clock      utils.Clock
}

func NewClient(service *gcal.Service, calendarId string, clock utils.Clock) *Client {
	return &Client{service: service, calendarId: calendarId, clock: clock}
}

func (c *Client) Name() string {
	return "google"
}

func (c *Client) ListMeetings(ctx context.Context) ([]provider.Meeting, error) {
	var meetings []provider.Meeting
	call := c.service.Events.List(c.calendarId).
		TimeMin(c.clock.Now().Format(time.RFC3339)).
		SingleEvents(true).
		ShowDeleted(false).
		OrderBy("startTime").
		MaxResults(pageSize)

	err := call.Pages(ctx, func(events *gcal.Events) error {
		for _, item := range events.Items {
			if item.Status == "cancelled" {
				continue
			}
			m, err := toMeeting(item, events.TimeZone)
			if err != nil {
				return err
			}
			meetings = append(meetings, m)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, provider.ErrParse) {
			return nil, err
		}
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) {
			log.Errorf("google calendar %s answered %d: %s", c.calendarId, apiErr.Code, apiErr.Message)
		}
		return nil, fmt.Errorf("%w: unable to list events of %s: %v", provider.ErrTransport, c.calendarId, err)
	}
	log.Debugf("google calendar %s reported %d events", c.calendarId, len(meetings))
	return meetings, nil
}

// Registrants serves the attendees reported with the event. Google omits
// attendees from large events, those lists are incomplete.
func (c *Client) Registrants(m provider.Meeting) *provider.RegistrantIterator {
	return provider.StaticRegistrants(m.Registrants, m.RegistrantsComplete)
}

func toMeeting(item *gcal.Event, calendarTimezone string) (provider.Meeting, error) {
	m := provider.Meeting{
		ExternalID:       item.Id,
		ParentExternalID: item.RecurringEventId,
		Topic:            item.Summary,
		Agenda:           item.Description,
		JoinURL:          joinURL(item),
		Timezone:         calendarTimezone,
	}
	if item.Start == nil {
		return provider.Meeting{}, fmt.Errorf("%w: event %s has no start", provider.ErrParse, item.Id)
	}
	if item.Start.TimeZone != "" {
		m.Timezone = item.Start.TimeZone
	}

	if item.Start.DateTime == "" {
		start, err := time.ParseInLocation(time.DateOnly, item.Start.Date, m.Location(time.UTC))
		if err != nil {
			return provider.Meeting{}, fmt.Errorf("%w: event %s start date %q", provider.ErrParse, item.Id, item.Start.Date)
		}
		m.StartTime = start
		m.AllDay = true
	} else {
		start, err := time.Parse(time.RFC3339, item.Start.DateTime)
		if err != nil {
			return provider.Meeting{}, fmt.Errorf("%w: event %s start %q", provider.ErrParse, item.Id, item.Start.DateTime)
		}
		m.StartTime = start
		if item.End != nil && item.End.DateTime != "" {
			end, err := time.Parse(time.RFC3339, item.End.DateTime)
			if err != nil {
				return provider.Meeting{}, fmt.Errorf("%w: event %s end %q", provider.ErrParse, item.Id, item.End.DateTime)
			}
			m.DurationMinutes = int(end.Sub(start).Minutes())
		}
	}

	m.Registrants = []string{}
	for _, a := range item.Attendees {
		if a.Organizer || a.Resource || a.Email == "" || a.ResponseStatus == "declined" {
			continue
		}
		m.Registrants = append(m.Registrants, a.Email)
	}
	m.RegistrantsComplete = !item.AttendeesOmitted
	return m, nil
}

func joinURL(item *gcal.Event) string {
	if item.HangoutLink != "" {
		return item.HangoutLink
	}
	if item.ConferenceData != nil {
		for _, ep := range item.ConferenceData.EntryPoints {
			if ep.EntryPointType == "video" {
				return ep.Uri
			}
		}
	}
	return item.HtmlLink
}
