package provider

import (
	"context"
	"errors"
	"time"
)

// ErrTransport is returned when the provider could not be reached or answered
// with an error status.
var ErrTransport = errors.New("provider transport failure")

// ErrParse is returned when a provider payload could not be decoded.
var ErrParse = errors.New("provider payload could not be parsed")

var ErrRegistrationUnsupported = errors.New("provider does not support registration")

// Meeting is one scheduled instance reported by a provider. Recurring
// provider meetings are reported as one Meeting per instance.
type Meeting struct {
	ExternalID           string
	ParentExternalID     string
	OccurrenceExternalID string
	// Kind is provider specific, zoom uses it to tell webinars from meetings.
	Kind                 string
	Topic                string
	Agenda               string
	JoinURL              string
	StartTime            time.Time
	Timezone             string
	DurationMinutes      int
	AllDay               bool
	// Registrants is nil when the provider does not report registrants inline.
	Registrants []string
	// RegistrantsComplete is false when Registrants may be truncated.
	RegistrantsComplete bool
}

// Key identifies the meeting instance. It is stored as the external meeting
// id of the local occurrence.
func (m Meeting) Key() string {
	if m.OccurrenceExternalID == "" {
		return m.ExternalID
	}
	parent := m.ParentExternalID
	if parent == "" {
		parent = m.ExternalID
	}
	return parent + "_" + m.OccurrenceExternalID
}

// Location returns the meeting timezone, or fallback when it is unknown.
func (m Meeting) Location(fallback *time.Location) *time.Location {
	if m.Timezone != "" {
		if loc, err := time.LoadLocation(m.Timezone); err == nil {
			return loc
		}
	}
	if fallback == nil {
		return time.UTC
	}
	return fallback
}

func (m Meeting) EndTime() time.Time {
	return m.StartTime.Add(time.Duration(m.DurationMinutes) * time.Minute)
}

type Registrant struct {
	Email     string
	FirstName string
	LastName  string
}

// Client lists meetings of the configured provider account.
type Client interface {
	Name() string
	// ListMeetings returns every upcoming meeting instance. It fails as a
	// whole; a partial list is never returned.
	ListMeetings(ctx context.Context) ([]Meeting, error)
	Registrants(m Meeting) *RegistrantIterator
}

// Registrar is implemented by providers that accept registrations.
type Registrar interface {
	Register(ctx context.Context, m Meeting, r Registrant) error
}
