package notification

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"

	"github.com/resend/resend-go/v2"
)

// Email is a single HTML message to one recipient.
type Email struct {
	To      string
	Subject string
	HTML    string
}

// EmailSender delivers one email.
type EmailSender interface {
	Send(ctx context.Context, msg Email) error
}

// ResendMailer sends through the Resend HTTP API, keyed by an API key.
type ResendMailer struct {
	client *resend.Client
	from   string
}

// NewResendMailer creates a mailer for the given API key and sender address.
func NewResendMailer(apiKey, from string) *ResendMailer {
	return &ResendMailer{client: resend.NewClient(apiKey), from: from}
}

func (m *ResendMailer) Send(ctx context.Context, msg Email) error {
	_, err := m.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    m.from,
		To:      []string{msg.To},
		Subject: msg.Subject,
		Html:    msg.HTML,
	})
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", msg.To, err)
	}
	return nil
}

// SMTPConfig holds SMTP account settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// SMTPMailer sends through a plain SMTP relay.
type SMTPMailer struct {
	cfg      SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPMailer creates a mailer for the given relay.
func NewSMTPMailer(cfg SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg, sendMail: smtp.SendMail}
}

// Send ignores ctx: net/smtp has no context support.
func (m *SMTPMailer) Send(_ context.Context, msg Email) error {
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s <%s>\r\n", m.cfg.FromName, m.cfg.From)
	fmt.Fprintf(&buf, "To: %s\r\n", msg.To)
	fmt.Fprintf(&buf, "Subject: %s\r\n", msg.Subject)
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(msg.HTML)

	var auth smtp.Auth
	if m.cfg.Username != "" && m.cfg.Password != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	if err := m.sendMail(addr, auth, m.cfg.From, []string{msg.To}, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to send email to %s: %w", msg.To, err)
	}
	return nil
}
