// Package email provides message formatting and SMTP delivery.
package email

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"mime"
	"net/mail"
	"net/smtp"
	"strings"
	"time"
)

// SMTPConfig holds SMTP connection settings.
type SMTPConfig struct {
	Host string
	Port string
	User string
	Pass string
	From string
}

// IsConfigured returns true if SMTP settings are present.
func (c SMTPConfig) IsConfigured() bool {
	return c.Host != "" && c.From != ""
}

// Message is a plain-text email.
type Message struct {
	// From is the header sender, e.g. "Jane Doe (via Advocate) <noreply@example.org>".
	// Empty means the configured sender address.
	From    string
	To      []string
	Cc      []string
	Subject string
	Body    string
}

// Recipients returns every envelope recipient.
func (m Message) Recipients() []string {
	out := make([]string, 0, len(m.To)+len(m.Cc))
	out = append(out, m.To...)
	return append(out, m.Cc...)
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, m Message) error
}

// FromName formats a display-name sender using addr as the mailbox.
func FromName(name, addr string) string {
	a := mail.Address{Name: name, Address: addr}
	return a.String()
}

// Build renders the message headers and body.
func Build(m Message, date time.Time) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "From: %s\r\n", m.From)
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(m.To, ", "))
	if len(m.Cc) > 0 {
		fmt.Fprintf(&buf, "Cc: %s\r\n", strings.Join(m.Cc, ", "))
	}
	fmt.Fprintf(&buf, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", m.Subject))
	fmt.Fprintf(&buf, "Date: %s\r\n", date.Format(time.RFC1123Z))
	buf.WriteString("MIME-Version: 1.0\r\n")
	buf.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	buf.WriteString("\r\n")
	buf.WriteString(strings.ReplaceAll(m.Body, "\n", "\r\n"))

	return buf.Bytes()
}

// SMTPSender sends mail through an SMTP server.
// Supports both port 465 (implicit TLS) and port 587 (STARTTLS).
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender creates an SMTP sender.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{cfg: cfg}
}

// Send delivers m. The envelope sender is always the configured address.
func (s *SMTPSender) Send(_ context.Context, m Message) error {
	if !s.cfg.IsConfigured() {
		return fmt.Errorf("SMTP not configured")
	}
	if len(m.To) == 0 {
		return fmt.Errorf("message has no recipients")
	}
	if m.From == "" {
		m.From = s.cfg.From
	}

	envelopeFrom := s.cfg.From
	if a, err := mail.ParseAddress(s.cfg.From); err == nil {
		envelopeFrom = a.Address
	}

	rcpts := make([]string, 0, len(m.Recipients()))
	for _, r := range m.Recipients() {
		if a, err := mail.ParseAddress(r); err == nil {
			r = a.Address
		}
		rcpts = append(rcpts, r)
	}

	msg := Build(m, time.Now())
	addr := s.cfg.Host + ":" + s.cfg.Port

	if s.cfg.Port == "465" {
		return s.sendImplicitTLS(addr, envelopeFrom, rcpts, msg)
	}
	return s.sendSTARTTLS(addr, envelopeFrom, rcpts, msg)
}

// sendImplicitTLS connects over TLS directly (port 465/SMTPS).
func (s *SMTPSender) sendImplicitTLS(addr, from string, to []string, msg []byte) (err error) {
	tlsCfg := &tls.Config{ServerName: s.cfg.Host}
	conn, err := tls.Dial("tcp", addr, tlsCfg)
	if err != nil {
		return fmt.Errorf("TLS dial: %w", err)
	}

	c, err := smtp.NewClient(conn, s.cfg.Host)
	if err != nil {
		return fmt.Errorf("creating SMTP client: %w", err)
	}
	defer func() {
		if quitErr := c.Quit(); quitErr != nil && err == nil {
			err = fmt.Errorf("quit: %w", quitErr)
		}
	}()

	if s.cfg.User != "" {
		auth := smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, s.cfg.Host)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("auth: %w", err)
		}
	}

	if err := c.Mail(from); err != nil {
		return fmt.Errorf("mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("rcpt to %s: %w", rcpt, err)
		}
	}

	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close data: %w", err)
	}

	return nil
}

// sendSTARTTLS connects plain then upgrades to TLS (port 587).
func (s *SMTPSender) sendSTARTTLS(addr, from string, to []string, msg []byte) error {
	var auth smtp.Auth
	if s.cfg.User != "" {
		auth = smtp.PlainAuth("", s.cfg.User, s.cfg.Pass, s.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, from, to, msg); err != nil {
		return fmt.Errorf("sending email: %w", err)
	}

	return nil
}

// LogSender logs messages instead of sending them. Used in dev mode.
type LogSender struct{}

// Send logs the message.
func (LogSender) Send(_ context.Context, m Message) error {
	slog.Info("[DEV] email",
		"from", m.From,
		"to", strings.Join(m.To, ", "),
		"cc", strings.Join(m.Cc, ", "),
		"subject", m.Subject,
		"body", m.Body,
	)
	return nil
}
