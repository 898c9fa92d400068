package hitl

import (
	"context"
	"fmt"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/okenna/parentcare/pkg/logging"
)

// Notifier alerts the on-call reviewer about cases that have sat unclaimed
// past the watchdog threshold.
type Notifier interface {
	NotifyStaleCase(ctx context.Context, c Case, pendingFor time.Duration) error
}

// EmailNotifier sends stale-case alerts via SendGrid.
type EmailNotifier struct {
	client    *sendgrid.Client
	fromEmail string
	fromName  string
	toEmail   string
	logger    *logging.Logger
}

// EmailConfig holds configuration for the SendGrid notifier.
type EmailConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	ToEmail   string
}

// NewEmailNotifier creates a SendGrid notifier, or nil when no API key or
// recipient is configured.
func NewEmailNotifier(cfg EmailConfig, logger *logging.Logger) *EmailNotifier {
	if cfg.APIKey == "" || cfg.ToEmail == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = "ParentCare"
	}
	return &EmailNotifier{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		toEmail:   cfg.ToEmail,
		logger:    logger,
	}
}

// NotifyStaleCase emails the reviewer inbox about one overdue case.
func (n *EmailNotifier) NotifyStaleCase(ctx context.Context, c Case, pendingFor time.Duration) error {
	subject := fmt.Sprintf("[%s] escalation case unclaimed for %s", c.Priority, pendingFor.Round(time.Minute))
	body := fmt.Sprintf(
		"Case %s (category %s, priority %s) has been pending since %s.\n\nTrigger message:\n%s\n",
		c.ID, c.Category, c.Priority, c.CreatedAt.Format(time.RFC3339), c.TriggerMessage,
	)

	from := mail.NewEmail(n.fromName, n.fromEmail)
	to := mail.NewEmail("", n.toEmail)
	message := mail.NewSingleEmail(from, subject, to, body, "")

	response, err := n.client.SendWithContext(ctx, message)
	if err != nil {
		n.logger.Error("sendgrid send failed", "error", err, "case_id", c.ID)
		return fmt.Errorf("hitl: sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		n.logger.Error("sendgrid returned error status", "status", response.StatusCode, "case_id", c.ID)
		return fmt.Errorf("hitl: sendgrid returned status %d", response.StatusCode)
	}

	n.logger.Info("stale case alert sent", "case_id", c.ID, "to", n.toEmail)
	return nil
}
