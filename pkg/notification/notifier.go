package notification

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/prolific-digital/wp-events/internal/utils"
	"github.com/prolific-digital/wp-events/pkg/occurrence"
	log "github.com/sirupsen/logrus"
)

// Lead is a reminder sent a fixed number of days before an occurrence.
type Lead struct {
	Days    int
	Subject string
}

var DefaultLeads = []Lead{
	{Days: 7, Subject: "1 Week Away!"},
	{Days: 2, Subject: "2 Days Away!"},
}

var reminderTemplate = template.Must(template.New("reminder").Parse(
	`<h1>{{.Title}}</h1>
<p class="start_date">Start Date: {{.StartDate}}</p>
{{- if .StartTime}}
<p class="start_time">Start Time: {{.StartTime}}</p>
{{- end}}
{{- if .Description}}
<p>{{.Description}}</p>
{{- end}}
{{- if .Link}}
<a href="{{.Link}}">View Event</a>
{{- end}}
`))

type reminderData struct {
	Title       string
	StartDate   string
	StartTime   string
	Description string
	Link        string
}

// Lister returns the non trashed occurrences starting within a date range.
type Lister interface {
	ListByStartDate(ctx context.Context, from, to time.Time) ([]occurrence.Occurrence, error)
}

// Report counts the messages of one reminder run.
type Report struct {
	Occurrences int
	Sent        int
	Failed      int
}

type Notifier struct {
	lister   Lister
	mailer   Mailer
	clock    utils.Clock
	location *time.Location
	leads    []Lead
}

func NewNotifier(lister Lister, mailer Mailer, clock utils.Clock, location *time.Location, leads []Lead) *Notifier {
	if location == nil {
		location = time.UTC
	}
	if len(leads) == 0 {
		leads = DefaultLeads
	}
	return &Notifier{lister: lister, mailer: mailer, clock: clock, location: location, leads: leads}
}

// Run mails every registrant of the published occurrences with notify set
// that start exactly one lead time from today. A failed message is counted
// and does not stop the run.
func (n *Notifier) Run(ctx context.Context) (Report, error) {
	var report Report
	today := utils.Today(n.clock, n.location)
	for _, lead := range n.leads {
		date := today.AddDate(0, 0, lead.Days)
		occurrences, err := n.lister.ListByStartDate(ctx, date, date)
		if err != nil {
			log.Errorf("failed to list occurrences on %s: %v", date.Format(time.DateOnly), err)
			return report, err
		}
		for _, o := range occurrences {
			if o.Status != occurrence.StatusPublish || !o.Notify || len(o.Registrants) == 0 {
				continue
			}
			report.Occurrences++
			sent, failed := n.remind(ctx, o, lead)
			report.Sent += sent
			report.Failed += failed
		}
	}
	log.Infof("sent %d reminders for %d occurrences, %d failed", report.Sent, report.Occurrences, report.Failed)
	return report, nil
}

func (n *Notifier) remind(ctx context.Context, o occurrence.Occurrence, lead Lead) (sent, failed int) {
	body, err := render(o)
	if err != nil {
		log.Errorf("failed to render reminder for %s: %v", o.Id, err)
		return 0, len(o.Registrants)
	}
	for _, to := range o.Registrants {
		err := n.mailer.Send(ctx, Message{To: to, Subject: lead.Subject, HTML: body})
		if err != nil {
			log.Errorf("failed to send %q reminder for %s to %s: %v", lead.Subject, o.Id, to, err)
			failed++
			continue
		}
		sent++
	}
	return sent, failed
}

func render(o occurrence.Occurrence) (string, error) {
	var buf bytes.Buffer
	err := reminderTemplate.Execute(&buf, reminderData{
		Title:       o.Title,
		StartDate:   o.StartDate.Format("Monday, January 2, 2006"),
		StartTime:   o.StartTime.String(),
		Description: o.Description,
		Link:        o.RegistrationURL,
	})
	if err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}
