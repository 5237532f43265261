package notifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/botnev/botnev-auth/jobs"
)

// QueueNotifier hands delivery to the background worker through the
// job queue, keeping SMTP latency out of the request path.
type QueueNotifier struct {
	client *jobs.Client
}

// NewQueueNotifier constructs a queue-backed notifier.
func NewQueueNotifier(client *jobs.Client) *QueueNotifier {
	return &QueueNotifier{client: client}
}

// SendVerificationCode implements Notifier.
func (n *QueueNotifier) SendVerificationCode(ctx context.Context, email, username, code string) error {
	if n.client == nil {
		return errors.New("notifier: queue client not configured")
	}
	subject, body := VerificationMessage(username, code)
	if _, err := n.client.EnqueueSendEmail(ctx, jobs.SendEmailPayload{
		To:      email,
		Subject: subject,
		Body:    body,
	}); err != nil {
		return fmt.Errorf("notifier: enqueue: %w", err)
	}
	return nil
}

var _ Notifier = (*QueueNotifier)(nil)
