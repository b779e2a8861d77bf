package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/prolific-digital/wp-events/internal/config"
)

type Message struct {
	To      string
	Subject string
	HTML    string
}

// Mailer delivers a single message.
type Mailer interface {
	Send(ctx context.Context, m Message) error
}

const sendTimeout = 10 * time.Second

type MailgunMailer struct {
	sender   string
	mgClient *mailgun.MailgunImpl
}

func NewMailgunMailer(cfg config.Mailgun) *MailgunMailer {
	mgClient := mailgun.NewMailgun(cfg.Domain, cfg.APIKey)
	if len(cfg.APIBase) > 0 {
		mgClient.SetAPIBase(cfg.APIBase)
	}
	sender := cfg.Sender
	if sender == "" {
		sender = fmt.Sprintf("Events <events@%s>", cfg.Domain)
	}
	return &MailgunMailer{sender: sender, mgClient: mgClient}
}

func (m *MailgunMailer) Send(ctx context.Context, msg Message) error {
	message := m.mgClient.NewMessage(m.sender, msg.Subject, "", msg.To)
	message.SetHtml(msg.HTML)

	ctxWithTimeout, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()

	if _, _, err := m.mgClient.Send(ctxWithTimeout, message); err != nil {
		return fmt.Errorf("send: %w", err)
	}
	return nil
}
