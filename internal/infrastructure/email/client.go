// Package email sends operator run reports through Resend.
package email

import (
	"context"
	"fmt"
	"time"

	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/email/templates"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/cartrecovery-go/internal/infrastructure/recoveryapi"
	"github.com/resendlabs/resend-go"
)

// RunReport summarizes one run-now invocation.
type RunReport struct {
	StartedAt time.Time
	BatchSize int
	Stats     recoveryapi.RunStats
}

// Notifier delivers run reports to the operator.
type Notifier interface {
	Enabled() bool
	SendRunReport(ctx context.Context, report RunReport) error
}

var _ Notifier = (*RunReportNotifier)(nil)

// SendFunc delivers one prepared Resend request.
type SendFunc func(req *resend.SendEmailRequest) error

// RunReportNotifier is the Resend backed Notifier. A notifier without an API
// key or recipient is disabled and silently drops reports.
type RunReportNotifier struct {
	send   SendFunc
	from   string
	to     []string
	logger *logging.ChanneledLogger
}

// NewRunReportNotifier creates the notifier from explicit settings.
func NewRunReportNotifier(apiKey, from string, to []string, logger *logging.ChanneledLogger) *RunReportNotifier {
	n := &RunReportNotifier{from: from, to: to, logger: logger}
	if apiKey != "" {
		client := resend.NewClient(apiKey)
		n.send = func(req *resend.SendEmailRequest) error {
			_, err := client.Emails.Send(req)
			return err
		}
	}
	return n
}

// WithSender replaces the delivery function.
func (n *RunReportNotifier) WithSender(send SendFunc) *RunReportNotifier {
	n.send = send
	return n
}

// Enabled reports whether reports will actually be sent.
func (n *RunReportNotifier) Enabled() bool {
	return n.send != nil && len(n.to) > 0
}

// SendRunReport renders and sends the report. Runs without failures are not
// reported.
func (n *RunReportNotifier) SendRunReport(ctx context.Context, report RunReport) error {
	if !n.Enabled() || report.Stats.Failed == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	stats := report.Stats
	content, err := templates.GetRunReportContent(templates.RunReportProps{
		StartedAt:     report.StartedAt,
		BatchSize:     report.BatchSize,
		Due:           stats.Due,
		Sent:          stats.Sent,
		Skipped:       stats.Skipped,
		Failed:        stats.Failed,
		Recovered:     stats.Recovered,
		Cancelled:     stats.Cancelled,
		Expired:       stats.Expired,
		FailedReasons: stats.FailedReasons,
	})
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("Recovery run: %d of %d attempts failed", stats.Failed, stats.Due)
	html, err := templates.GetEmailLayout(templates.EmailLayoutProps{
		Preheader: subject,
		Title:     subject,
		Content:   content,
	})
	if err != nil {
		return err
	}

	start := time.Now()
	if err := n.send(&resend.SendEmailRequest{
		From:    n.from,
		To:      n.to,
		Subject: subject,
		Html:    html,
	}); err != nil {
		n.logger.Email().Error("Run report delivery failed", "error", err.Error(), "failed", stats.Failed)
		return fmt.Errorf("failed to send run report via Resend: %w", err)
	}

	n.logger.Email().Info("Run report sent", "recipients", len(n.to), "failed", stats.Failed, "duration", time.Since(start))
	return nil
}
