package occurrence

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prolific-digital/wp-events/pkg/recurrence"
)

type Status string

const (
	StatusPublish Status = "publish"
	StatusDraft   Status = "draft"
	StatusTrash   Status = "trash"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(s)); st {
	case "":
		return StatusPublish, nil
	case StatusPublish, StatusDraft, StatusTrash:
		return st, nil
	default:
		return "", fmt.Errorf("unknown status %q", s)
	}
}

// Occurrence is a single dated event. Occurrences sharing a SeriesId form a
// series whose canonical member has ParentId equal to its own Id.
type Occurrence struct {
	Id                uuid.UUID
	SeriesId          uuid.NullUUID
	ParentId          uuid.UUID
	ExternalMeetingId string
	// StartDate is a calendar date stored as UTC midnight.
	StartDate   time.Time
	Registrants []string
	Status      Status
	Details
	Rule recurrence.Rule
}

// Details holds the fields shared by all members of a series.
type Details struct {
	Title           string
	Description     string
	RegistrationURL string
	StartTime       TimeOfDay
	EndTime         TimeOfDay
	Notify          bool
}

func (o Occurrence) HasSeries() bool {
	return o.SeriesId.Valid
}

func (o Occurrence) IsExternal() bool {
	return o.ExternalMeetingId != ""
}

func (o Occurrence) IsCanonical() bool {
	return o.HasSeries() && o.ParentId == o.Id
}

// Clone returns a copy that does not share slices with o.
func (o Occurrence) Clone() Occurrence {
	c := o
	c.Registrants = slices.Clone(o.Registrants)
	c.Rule.ByWeekday = slices.Clone(o.Rule.ByWeekday)
	c.Rule.ByMonthOrdinal = slices.Clone(o.Rule.ByMonthOrdinal)
	return c
}

// AddRegistrant appends email unless it is already registered. It reports
// whether the list changed.
func (o *Occurrence) AddRegistrant(email string) bool {
	email = strings.TrimSpace(email)
	if email == "" {
		return false
	}
	for _, r := range o.Registrants {
		if strings.EqualFold(r, email) {
			return false
		}
	}
	o.Registrants = append(o.Registrants, email)
	return true
}

// NormalizeRegistrants trims, drops empty values and de-duplicates addresses
// keeping the first occurrence of each.
func NormalizeRegistrants(emails []string) []string {
	o := Occurrence{}
	for _, e := range emails {
		o.AddRegistrant(e)
	}
	return o.Registrants
}

// TimeOfDay is an optional wall clock time stored as seconds after midnight.
type TimeOfDay struct {
	Seconds int
	Valid   bool
}

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay{Seconds: hour*3600 + minute*60, Valid: true}
}

// TimeOfDayOf returns the wall clock time of t in its own location.
func TimeOfDayOf(t time.Time) TimeOfDay {
	h, m, s := t.Clock()
	return TimeOfDay{Seconds: h*3600 + m*60 + s, Valid: true}
}

// ParseTimeOfDay parses "15:04" or "15:04:05". An empty string is a missing time.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if s == "" {
		return TimeOfDay{}, nil
	}
	for _, layout := range []string{"15:04", time.TimeOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			return TimeOfDayOf(t), nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("invalid time of day %q", s)
}

func (t TimeOfDay) String() string {
	if !t.Valid {
		return ""
	}
	if t.Seconds%60 != 0 {
		return fmt.Sprintf("%02d:%02d:%02d", t.Seconds/3600, t.Seconds%3600/60, t.Seconds%60)
	}
	return fmt.Sprintf("%02d:%02d", t.Seconds/3600, t.Seconds%3600/60)
}

// On returns the instant of t on date in loc.
func (t TimeOfDay) On(date time.Time, loc *time.Location) time.Time {
	return time.Date(date.Year(), date.Month(), date.Day(), 0, 0, t.Seconds, 0, loc)
}

// Saved is the payload of event_bus.OccurrenceSaved. Previous is nil when the
// occurrence was created.
type Saved struct {
	Occurrence Occurrence
	Previous   *Occurrence
}
