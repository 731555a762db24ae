package alert

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"co2-bank-monitor/config"
)

// Message is a plain-text e-mail. The sender address comes from the mailer.
type Message struct {
	To      []string
	Cc      []string
	Subject string
	Body    string
}

// Mailer delivers a message. Implementations must honour ctx and their own timeout.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPMailer sends through the SMTP relay named in credentials.json.
type SMTPMailer struct {
	creds *config.Credentials
	cfg   config.AlertsConfig
}

func NewSMTPMailer(creds *config.Credentials, cfg config.AlertsConfig) *SMTPMailer {
	return &SMTPMailer{creds: creds, cfg: cfg}
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	mm := mail.NewMsg()
	if err := mm.From(m.creds.SMTPSender); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := mm.To(msg.To...); err != nil {
		return fmt.Errorf("set recipients: %w", err)
	}
	if len(msg.Cc) > 0 {
		if err := mm.Cc(msg.Cc...); err != nil {
			return fmt.Errorf("set cc: %w", err)
		}
	}
	mm.Subject(msg.Subject)
	mm.SetBodyString(mail.TypeTextPlain, msg.Body)

	opts := []mail.Option{
		mail.WithPort(int(m.creds.SMTPPort)),
		mail.WithTimeout(m.cfg.SMTPTimeout),
		mail.WithTLSPolicy(mail.TLSOpportunistic),
	}
	if m.creds.UseAuth {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(m.creds.SMTPUsername),
			mail.WithPassword(m.creds.SMTPPassword),
		)
	}
	client, err := mail.NewClient(m.creds.SMTPServer, opts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.SMTPTimeout)
	defer cancel()
	if err := client.DialAndSendWithContext(ctx, mm); err != nil {
		return fmt.Errorf("smtp send via %s:%d: %w", m.creds.SMTPServer, int(m.creds.SMTPPort), err)
	}
	return nil
}
