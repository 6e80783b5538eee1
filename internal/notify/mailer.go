package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"

	"backoffice/internal/logger"

	"github.com/domodwyer/mailyak/v3"
)

type Message struct {
	To      string
	Subject string
	Body    string
}

// Mailer delivers plain-text email
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// New returns an SMTP mailer when a host is configured, otherwise a mailer that only logs
func New(cfg SMTPConfig) Mailer {
	if cfg.Host == "" {
		return LogMailer{}
	}
	return &SMTPMailer{cfg: cfg, send: (*mailyak.MailYak).Send}
}

type SMTPMailer struct {
	cfg  SMTPConfig
	send func(*mailyak.MailYak) error
}

func (m *SMTPMailer) Send(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return fmt.Errorf("mail %q: empty recipient", msg.Subject)
	}

	mail := m.compose(msg)
	done := make(chan error, 1)
	go func() {
		done <- m.send(mail)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send mail to %s: %w", msg.To, err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// compose builds the message; mailyak encodes the headers and strips line breaks from them
func (m *SMTPMailer) compose(msg Message) *mailyak.MailYak {
	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}

	mail := mailyak.New(net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port)), auth)
	mail.From(m.cfg.From)
	mail.To(msg.To)
	mail.Subject(msg.Subject)
	mail.Plain().Set(msg.Body)
	return mail
}

// LogMailer writes messages to the log instead of sending them
type LogMailer struct{}

func (LogMailer) Send(ctx context.Context, msg Message) error {
	logger.FromContext(ctx).Info("Email not sent, SMTP is not configured",
		slog.String("to", msg.To),
		slog.String("subject", msg.Subject))
	return nil
}
