package alerting

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/rs/zerolog"

	"txn-anomaly-alerts/internal/config"
)

// SendMailFunc matches smtp.SendMail.
type SendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// EmailNotifier sends plain-text alerts over SMTP.
type EmailNotifier struct {
	cfg    config.EmailConfig
	send   SendMailFunc
	logger zerolog.Logger
}

// NewEmailNotifier builds an SMTP notifier. A nil send uses smtp.SendMail.
func NewEmailNotifier(cfg config.EmailConfig, send SendMailFunc, logger zerolog.Logger) *EmailNotifier {
	if send == nil {
		send = smtp.SendMail
	}
	if cfg.SMTPPort == 0 {
		cfg.SMTPPort = 587
	}
	return &EmailNotifier{
		cfg:    cfg,
		send:   send,
		logger: logger.With().Str("component", "alert_email").Logger(),
	}
}

// Channel implements Notifier.
func (n *EmailNotifier) Channel() string { return "email" }

// Notify sends the alert to every configured recipient. smtp.SendMail has no
// context support, so cancellation abandons the send rather than aborting it.
func (n *EmailNotifier) Notify(ctx context.Context, note Notification) error {
	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.SMTPHost)
	}
	addr := fmt.Sprintf("%s:%d", n.cfg.SMTPHost, n.cfg.SMTPPort)
	msg := renderEmail(n.cfg.From, n.cfg.To, note)

	done := make(chan error, 1)
	go func() {
		done <- n.send(addr, auth, n.cfg.From, n.cfg.To, msg)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("send email: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("send email: %w", err)
		}
	}

	n.logger.Info().Str("notification_id", note.ID).
		Str("status", note.Status).
		Strs("to", n.cfg.To).
		Msg("alert sent (email)")
	return nil
}

func emailSubject(note Notification) string {
	return fmt.Sprintf("ALERTA DE ANOMALIA: Status %s", strings.ToUpper(note.Status))
}

func emailBody(note Notification) string {
	return fmt.Sprintf("Anomaly detected!\n\nTransaction Status: %s\nDetected at: %s\nCurrent count: %d\n\nVerify Monitoring System for more details",
		note.Status, note.DetectedAt, note.Count)
}

func renderEmail(from string, to []string, note Notification) []byte {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("From: %s\r\n", from))
	b.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(to, ", ")))
	b.WriteString(fmt.Sprintf("Subject: %s\r\n", emailSubject(note)))
	b.WriteString(fmt.Sprintf("X-Notification-Id: %s\r\n", note.ID))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(emailBody(note), "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

var _ Notifier = (*EmailNotifier)(nil)
