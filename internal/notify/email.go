package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	domain "github.com/tarodan/api/internal/domain"
)

// SMTPConfig holds the mail relay settings.
type SMTPConfig struct {
	Host     string
	Port     int
	From     string
	Username string
	Password string
}

// SMTPSender delivers email through a plain SMTP relay.
type SMTPSender struct {
	cfg      SMTPConfig
	sendMail func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender constructs an email sender for the given relay.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	return &SMTPSender{
		cfg:      cfg,
		sendMail: smtp.SendMail,
	}
}

func (s *SMTPSender) Channel() domain.NotificationChannel {
	return domain.ChannelEmail
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if msg.To.Email == "" {
		return fmt.Errorf("%w: no email address for user %s", ErrNoRecipient, msg.To.UserID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if s.cfg.Username != "" {
		auth = smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.Host)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", s.cfg.From)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To.Email)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Title)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	b.WriteString("\r\n")

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	if err := s.sendMail(addr, auth, s.cfg.From, []string{msg.To.Email}, []byte(b.String())); err != nil {
		return fmt.Errorf("smtp send to %s: %w", msg.To.Email, err)
	}
	return nil
}
