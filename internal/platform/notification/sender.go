// Package notification delivers portal email through a durable outbox.
//
// Messages are written to the barangay's email_outbox table with their body
// sealed, then handed to an EmailSender. Undelivered rows are retried by a
// cron worker with exponential backoff.
package notification

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Email is one outbound plain-text message.
type Email struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

// EmailSender delivers a message or returns why it could not.
type EmailSender interface {
	Name() string
	SendEmail(ctx context.Context, e Email) error
}

// ErrNoSender is returned when no provider is configured.
var ErrNoSender = errors.New("no email provider configured")

// ---------------------------------------------------------------------------
// SMTP
// ---------------------------------------------------------------------------

type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
	StartTLS  bool
	Timeout   time.Duration
}

type SMTPSender struct {
	cfg SMTPConfig
}

func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &SMTPSender{cfg: cfg}
}

func (s *SMTPSender) Name() string { return "smtp" }

func (s *SMTPSender) SendEmail(ctx context.Context, e Email) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	dialer := net.Dialer{Timeout: s.cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("smtp dial %s: %w", addr, err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(s.cfg.Timeout))
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		conn.Close()
		return fmt.Errorf("smtp client: %w", err)
	}
	defer c.Close()

	if s.cfg.StartTLS {
		if ok, _ := c.Extension("STARTTLS"); !ok {
			return fmt.Errorf("smtp: %s does not offer STARTTLS", s.cfg.Host)
		}
		if err := c.StartTLS(&tls.Config{ServerName: s.cfg.Host, MinVersion: tls.VersionTLS12}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if s.cfg.Username != "" {
		auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := c.Mail(s.cfg.FromEmail); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	if err := c.Rcpt(e.To); err != nil {
		return fmt.Errorf("smtp rcpt to: %w", err)
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(buildMessage(s.cfg.FromName, s.cfg.FromEmail, e)); err != nil {
		w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}
	return c.Quit()
}

func buildMessage(fromName, fromEmail string, e Email) []byte {
	var b strings.Builder
	b.WriteString("From: " + formatAddress(fromName, fromEmail) + "\r\n")
	b.WriteString("To: " + formatAddress(e.ToName, e.To) + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", sanitizeHeader(e.Subject)) + "\r\n")
	b.WriteString("Date: " + time.Now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(e.Body, "\n", "\r\n"))
	return []byte(b.String())
}

func formatAddress(name, email string) string {
	name = sanitizeHeader(name)
	if name == "" {
		return "<" + email + ">"
	}
	// Non-ASCII names go out as an RFC 2047 encoded-word, which must not be quoted.
	if encoded := mime.QEncoding.Encode("utf-8", name); encoded != name {
		return encoded + " <" + email + ">"
	}
	return fmt.Sprintf("%q <%s>", name, email)
}

// sanitizeHeader strips CR and LF so values cannot inject headers.
func sanitizeHeader(s string) string {
	return strings.NewReplacer("\r", "", "\n", " ").Replace(s)
}

// ---------------------------------------------------------------------------
// SendGrid
// ---------------------------------------------------------------------------

type SendGridSender struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
}

func NewSendGridSender(apiKey, fromEmail, fromName string) *SendGridSender {
	return &SendGridSender{
		client:    sendgrid.NewSendClient(apiKey),
		fromEmail: fromEmail,
		fromName:  fromName,
	}
}

func (s *SendGridSender) Name() string { return "sendgrid" }

func (s *SendGridSender) SendEmail(ctx context.Context, e Email) error {
	m := mail.NewV3MailInit(
		mail.NewEmail(s.fromName, s.fromEmail),
		e.Subject,
		mail.NewEmail(e.ToName, e.To),
		mail.NewContent("text/plain", e.Body),
	)
	resp, err := s.client.SendWithContext(ctx, m)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid: status %d", resp.StatusCode)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Fallback chain
// ---------------------------------------------------------------------------

// FallbackSender tries each sender in order until one succeeds.
type FallbackSender struct {
	senders []EmailSender
}

func NewFallbackSender(senders ...EmailSender) *FallbackSender {
	var active []EmailSender
	for _, s := range senders {
		if s != nil {
			active = append(active, s)
		}
	}
	return &FallbackSender{senders: active}
}

// Send returns the name of the provider that accepted the message. When all
// fail the errors are joined in order.
func (f *FallbackSender) Send(ctx context.Context, e Email) (string, error) {
	if len(f.senders) == 0 {
		return "", ErrNoSender
	}
	var errs []error
	for _, s := range f.senders {
		if err := s.SendEmail(ctx, e); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		return s.Name(), nil
	}
	return "", errors.Join(errs...)
}

// ---------------------------------------------------------------------------
// Mock sender (test double)
// ---------------------------------------------------------------------------

// MockEmailSender records calls and optionally fails.
type MockEmailSender struct {
	mu         sync.Mutex
	calls      []Email
	SenderName string
	ShouldFail bool
	FailError  string
}

func (m *MockEmailSender) Name() string {
	if m.SenderName == "" {
		return "mock"
	}
	return m.SenderName
}

func (m *MockEmailSender) SendEmail(_ context.Context, e Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, e)
	if m.ShouldFail {
		return errors.New(m.FailError)
	}
	return nil
}

// Calls returns a copy of the recorded messages.
func (m *MockEmailSender) Calls() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Email, len(m.calls))
	copy(out, m.calls)
	return out
}
