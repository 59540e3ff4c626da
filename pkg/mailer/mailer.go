package mailer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/template"

	"github.com/yuin/goldmark"

	"github.com/rhuss/ribamar/pkg/config"
	"github.com/rhuss/ribamar/pkg/debug"
	"github.com/rhuss/ribamar/pkg/storage"
)

// AccountCollection is the collection holding accounts.
const AccountCollection = "accounts"

// ErrUnknownTemplate is returned when a template name is not configured.
var ErrUnknownTemplate = errors.New("mailer: unknown template")

// Message is a rendered e-mail ready for delivery.
type Message struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html"`
}

// Sender delivers rendered messages.
type Sender interface {
	Send(ctx context.Context, msg *Message) error
}

type mailTemplate struct {
	subject string
	body    *template.Template
}

// Mailer renders templates and mails them to accounts.
type Mailer struct {
	cfg       config.MailerConfig
	store     storage.Store
	sender    Sender
	logger    *slog.Logger
	md        goldmark.Markdown
	templates map[string]mailTemplate
}

// Option configures a Mailer.
type Option func(*Mailer)

// WithSender overrides the SMTP sender. A Mailer with a sender is active
// regardless of SMTP configuration.
func WithSender(s Sender) Option {
	return func(m *Mailer) {
		m.sender = s
	}
}

// WithLogger sets the logger for the mailer.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Mailer) {
		m.logger = logger
	}
}

// New creates a Mailer and loads every configured template into memory.
// A template file that cannot be read or parsed is an error.
func New(cfg config.MailerConfig, store storage.Store, opts ...Option) (*Mailer, error) {
	m := &Mailer{
		cfg:       cfg,
		store:     store,
		logger:    slog.Default(),
		md:        goldmark.New(),
		templates: make(map[string]mailTemplate),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.sender == nil && cfg.SMTP.Host != "" {
		m.sender = NewSMTPSender(cfg)
	}
	if m.sender == nil {
		return m, nil
	}

	for name, tc := range cfg.Templates {
		if tc.Path == "" || tc.Subject == "" {
			return nil, fmt.Errorf("mailer: invalid template definition for %s", name)
		}
		data, err := os.ReadFile(tc.Path)
		if err != nil {
			return nil, fmt.Errorf("mailer: reading template %s: %w", name, err)
		}
		body, err := template.New(name).Parse(string(data))
		if err != nil {
			return nil, fmt.Errorf("mailer: parsing template %s: %w", name, err)
		}
		m.templates[name] = mailTemplate{subject: tc.Subject, body: body}
	}

	return m, nil
}

// Active reports whether the mailer delivers messages.
func (m *Mailer) Active() bool {
	return m.sender != nil
}

// From returns the formatted sender address.
func (m *Mailer) From() string {
	return fmt.Sprintf("%q <%s>", m.cfg.FromName, m.cfg.FromMail)
}

// Mail renders template with data and sends it to recipient. An inactive
// mailer returns (nil, nil). Delivery failures are logged, not returned.
func (m *Mailer) Mail(ctx context.Context, name, recipient string, data map[string]any) (*Message, error) {
	if !m.Active() {
		return nil, nil
	}

	msg, err := m.Render(name, recipient, data)
	if err != nil {
		return nil, err
	}

	if err := m.sender.Send(ctx, msg); err != nil {
		m.logger.Error("mail delivery failed",
			slog.String("template", name),
			slog.String("to", recipient),
			slog.String("error", err.Error()),
		)
		return msg, nil
	}

	m.logger.Info("mail sent", slog.String("template", name), slog.String("to", recipient))
	return msg, nil
}

// Render builds the message for template without sending it.
func (m *Mailer) Render(name, recipient string, data map[string]any) (*Message, error) {
	tpl, ok := m.templates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}
	if data == nil {
		data = map[string]any{}
	}

	var text bytes.Buffer
	if err := tpl.body.Execute(&text, data); err != nil {
		return nil, fmt.Errorf("mailer: rendering %s: %w", name, err)
	}
	body := strings.ReplaceAll(text.String(), "<no value>", "")
	debug.Log(debug.Mailer, "template rendered", "template", name, "to", recipient, "bytes", len(body))

	var html bytes.Buffer
	if err := m.md.Convert([]byte(body), &html); err != nil {
		return nil, fmt.Errorf("mailer: converting %s: %w", name, err)
	}

	return &Message{
		From:    m.From(),
		To:      recipient,
		Subject: tpl.subject,
		Text:    body,
		HTML:    strings.TrimSpace(html.String()),
	}, nil
}

// MailAccount sends template to the address stored in the account owning
// credentialID. It returns (nil, nil) when no account holds the credential
// or the mailer is inactive.
func (m *Mailer) MailAccount(ctx context.Context, name, credentialID string, data map[string]any) (*Message, error) {
	account, err := m.store.Get(ctx, AccountCollection, "credentials.id", credentialID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("mailer: looking up account: %w", err)
	}
	if !m.Active() {
		return nil, nil
	}

	bind := make(map[string]any, len(data)+1)
	for k, v := range data {
		bind[k] = v
	}
	account["key"] = credentialID
	bind["account"] = account

	return m.Mail(ctx, name, m.recipient(account), bind)
}

// Notify is MailAccount reduced to the recipient address, "" when no
// message was rendered.
func (m *Mailer) Notify(ctx context.Context, name, credentialID string, data map[string]any) (string, error) {
	msg, err := m.MailAccount(ctx, name, credentialID, data)
	if err != nil || msg == nil {
		return "", err
	}
	return msg.To, nil
}

// recipient reads the configured address field from the account data,
// falling back to a top-level field of the same name.
func (m *Mailer) recipient(account storage.Document) string {
	field := m.cfg.AccountAddress
	if data, ok := account["data"].(map[string]any); ok {
		if addr, ok := data[field].(string); ok {
			return addr
		}
	}
	addr, _ := account[field].(string)
	return addr
}
