package mailer

import (
	"context"
	"fmt"

	"github.com/wneessen/go-mail"

	"github.com/rhuss/ribamar/pkg/config"
)

// SMTPSender delivers messages through an SMTP relay. A new connection is
// dialed per message.
type SMTPSender struct {
	cfg config.MailerConfig
}

// NewSMTPSender creates a sender for the relay described by cfg.SMTP.
func NewSMTPSender(cfg config.MailerConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Send builds a multipart HTML message with a plain-text alternative and
// relays it.
func (s *SMTPSender) Send(ctx context.Context, msg *Message) error {
	m := mail.NewMsg()
	if err := m.FromFormat(s.cfg.FromName, s.cfg.FromMail); err != nil {
		return fmt.Errorf("setting sender: %w", err)
	}
	if err := m.To(msg.To); err != nil {
		return fmt.Errorf("setting recipient: %w", err)
	}
	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)
	m.AddAlternativeString(mail.TypeTextPlain, msg.Text)

	client, err := mail.NewClient(s.cfg.SMTP.Host, s.clientOptions()...)
	if err != nil {
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("sending mail: %w", err)
	}
	return nil
}

func (s *SMTPSender) clientOptions() []mail.Option {
	smtp := s.cfg.SMTP
	opts := []mail.Option{mail.WithPort(smtp.Port)}

	switch smtp.TLS {
	case "tls":
		opts = append(opts, mail.WithSSL())
	case "none":
		opts = append(opts, mail.WithTLSPolicy(mail.NoTLS))
	default:
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}

	if smtp.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(smtp.Username),
			mail.WithPassword(smtp.Password),
		)
	}
	return opts
}
