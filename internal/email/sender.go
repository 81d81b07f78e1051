package email

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"egharbari/api/internal/config"
	"egharbari/api/internal/utils"
)

// Message is a rendered plain-text email. Tag names the notification kind
// (e.g. "inquiry_received") and is used for logging and mock lookups.
type Message struct {
	To      []string
	Subject string
	Body    string
	Tag     string
}

// Sender defines the interface for sending emails.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// BuildRawMessage formats msg with the headers an SMTP relay expects.
func BuildRawMessage(from string, msg Message) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", strings.Join(msg.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(msg.Body)
	return []byte(b.String())
}

// SMTPSender implements the Sender interface using Go's net/smtp package.
type SMTPSender struct {
	cfg  *config.Config
	auth smtp.Auth
	addr string
}

// NewSMTPSender creates a new SMTPSender.
// It returns Sender so we can easily swap implementations (e.g., for testing).
func NewSMTPSender(cfg *config.Config) Sender {
	if cfg.SmtpHost == "" {
		utils.Logger.Warn("SMTP host not configured, using logging email sender")
		return &LoggingSender{cfg: cfg}
	}

	auth := smtp.PlainAuth(
		"", // identity
		cfg.SmtpUsername,
		cfg.SmtpPassword,
		cfg.SmtpHost,
	)
	addr := fmt.Sprintf("%s:%d", cfg.SmtpHost, cfg.SmtpPort)

	return &SMTPSender{
		cfg:  cfg,
		auth: auth,
		addr: addr,
	}
}

// Send sends an email using SMTP.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return fmt.Errorf("email %q has no recipients", msg.Tag)
	}
	raw := BuildRawMessage(s.cfg.SmtpFromAddress, msg)
	if err := smtp.SendMail(s.addr, s.auth, s.cfg.SmtpFromAddress, msg.To, raw); err != nil {
		utils.Logger.WithError(err).Errorf("Failed to send %s email via SMTP to %v", msg.Tag, msg.To)
		return fmt.Errorf("smtp error: %w", err)
	}
	utils.Logger.Infof("Email %s sent via SMTP to %v (Subject: %s)", msg.Tag, msg.To, msg.Subject)
	return nil
}

// LoggingSender just logs email details.
// Useful for development or when SMTP isn't configured.
type LoggingSender struct {
	cfg *config.Config
}

func NewLoggingSender(cfg *config.Config) *LoggingSender {
	return &LoggingSender{cfg: cfg}
}

// Send logs the email details instead of sending.
func (s *LoggingSender) Send(ctx context.Context, msg Message) error {
	utils.Logger.WithFields(map[string]interface{}{
		"tag":     msg.Tag,
		"to":      strings.Join(msg.To, ", "),
		"from":    s.cfg.SmtpFromAddress,
		"subject": msg.Subject,
	}).Info("Email (logged, not sent)")
	utils.Logger.Debug(msg.Body)
	return nil
}
