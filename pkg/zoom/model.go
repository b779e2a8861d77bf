package zoom

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/prolific-digital/wp-events/pkg/provider"
)

type meetingKind string

const (
	kindMeeting meetingKind = "meeting"
	kindWebinar meetingKind = "webinar"
)

func (k meetingKind) collection() string {
	return string(k) + "s"
}

type listResponse struct {
	NextPageToken string           `json:"next_page_token"`
	Meetings      []meetingSummary `json:"meetings"`
	Webinars      []meetingSummary `json:"webinars"`
}

type meetingSummary struct {
	Id   int64 `json:"id"`
	kind meetingKind
}

type meetingDetail struct {
	Id          int64        `json:"id"`
	Topic       string       `json:"topic"`
	Agenda      string       `json:"agenda"`
	JoinURL     string       `json:"join_url"`
	StartTime   string       `json:"start_time"`
	Timezone    string       `json:"timezone"`
	Duration    int          `json:"duration"`
	Occurrences []occurrence `json:"occurrences"`
	kind        meetingKind
}

type occurrence struct {
	OccurrenceId string `json:"occurrence_id"`
	StartTime    string `json:"start_time"`
	Duration     int    `json:"duration"`
	Status       string `json:"status"`
}

type registrantsResponse struct {
	NextPageToken string `json:"next_page_token"`
	Registrants   []struct {
		Email string `json:"email"`
	} `json:"registrants"`
}

type registrantRequest struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
}

type registrationResponse struct {
	RegistrantId string `json:"registrant_id"`
	JoinURL      string `json:"join_url"`
}

type errorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// toMeetings turns a meeting into one provider meeting per instance. Meetings
// without a start time, such as recurring meetings with no fixed time, are
// skipped.
func (d meetingDetail) toMeetings() ([]provider.Meeting, error) {
	id := strconv.FormatInt(d.Id, 10)
	base := provider.Meeting{
		ExternalID: id,
		Kind:       string(d.kind),
		Topic:      d.Topic,
		Agenda:     d.Agenda,
		JoinURL:    d.JoinURL,
		Timezone:   d.Timezone,
	}

	if len(d.Occurrences) == 0 {
		if d.StartTime == "" {
			return nil, nil
		}
		start, err := parseTime(d.StartTime)
		if err != nil {
			return nil, err
		}
		m := base
		m.StartTime = start
		m.DurationMinutes = d.Duration
		return []provider.Meeting{m}, nil
	}

	result := make([]provider.Meeting, 0, len(d.Occurrences))
	for _, o := range d.Occurrences {
		if strings.EqualFold(o.Status, "deleted") {
			continue
		}
		start, err := parseTime(o.StartTime)
		if err != nil {
			return nil, err
		}
		m := base
		m.ParentExternalID = id
		m.OccurrenceExternalID = o.OccurrenceId
		m.StartTime = start
		m.DurationMinutes = o.Duration
		if m.DurationMinutes == 0 {
			m.DurationMinutes = d.Duration
		}
		result = append(result, m)
	}
	return result, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: start time %q: %v", provider.ErrParse, s, err)
	}
	return t, nil
}
