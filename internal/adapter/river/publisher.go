package river

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"

	"github.com/hostedraids/muster/internal/domain"
)

// Compile-time checks against the domain ports.
var (
	_ domain.Notifier              = (*Notifier)(nil)
	_ domain.ConfirmationScheduler = (*Scheduler)(nil)
)

// Notifier implements domain.Notifier by enqueuing delivery jobs. The
// queue decouples callers from delivery latency and retries transient
// failures.
type Notifier struct {
	client *Client
}

// NewNotifier creates a notifier backed by the given River client.
func NewNotifier(client *Client) *Notifier {
	return &Notifier{client: client}
}

// Notify enqueues one direct message for asynchronous delivery.
func (n *Notifier) Notify(ctx context.Context, playerID, message string) error {
	_, err := n.client.Insert(ctx, NotificationArgs{
		PlayerID: playerID,
		Message:  message,
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing notification job: %w", err)
	}
	return nil
}

// Scheduler implements domain.ConfirmationScheduler with delayed River
// jobs. The job row lives in the shared SQLite database, so a scheduled
// timeout survives process restarts.
type Scheduler struct {
	client *Client
}

// NewScheduler creates a scheduler backed by the given River client.
func NewScheduler(client *Client) *Scheduler {
	return &Scheduler{client: client}
}

// ScheduleTimeout enqueues a confirmation timeout job to run at the
// deadline.
func (s *Scheduler) ScheduleTimeout(ctx context.Context, eventID string, at time.Time) error {
	_, err := s.client.Insert(ctx, ConfirmTimeoutArgs{EventID: eventID}, &river.InsertOpts{
		ScheduledAt: at,
	})
	if err != nil {
		return fmt.Errorf("enqueuing confirmation timeout job: %w", err)
	}
	return nil
}
