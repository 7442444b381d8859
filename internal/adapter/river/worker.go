package river

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"
)

// Lifecycle is the slice of the application layer the workers drive.
type Lifecycle interface {
	Sweep(ctx context.Context) error
	ExpireConfirmation(ctx context.Context, eventID string) error
}

// SweepWorker runs the hourly retirement scan. Its lifecycle field is set
// via Runner.Bind before the client starts, which breaks the construction
// cycle between the client and the services that enqueue jobs on it.
type SweepWorker struct {
	river.WorkerDefaults[SweepArgs]

	lifecycle Lifecycle
}

func (w *SweepWorker) Work(ctx context.Context, job *river.Job[SweepArgs]) error {
	slog.InfoContext(ctx, "running retirement sweep", "job_id", job.ID, "attempt", job.Attempt)
	if err := w.lifecycle.Sweep(ctx); err != nil {
		return fmt.Errorf("retirement sweep: %w", err)
	}
	return nil
}

// ConfirmTimeoutWorker closes a confirmation window that the host let lapse.
type ConfirmTimeoutWorker struct {
	river.WorkerDefaults[ConfirmTimeoutArgs]

	lifecycle Lifecycle
}

func (w *ConfirmTimeoutWorker) Work(ctx context.Context, job *river.Job[ConfirmTimeoutArgs]) error {
	slog.InfoContext(ctx, "processing confirmation timeout",
		"event_id", job.Args.EventID,
		"job_id", job.ID,
		"attempt", job.Attempt,
	)
	if err := w.lifecycle.ExpireConfirmation(ctx, job.Args.EventID); err != nil {
		return fmt.Errorf("expiring confirmation for event %s: %w", job.Args.EventID, err)
	}
	return nil
}

// NotificationWorker delivers queued direct messages. For now it logs the
// delivery; future versions will dispatch to the chat platform gateway.
type NotificationWorker struct {
	river.WorkerDefaults[NotificationArgs]
}

func (w *NotificationWorker) Work(ctx context.Context, job *river.Job[NotificationArgs]) error {
	slog.InfoContext(ctx, "delivering notification",
		"player_id", job.Args.PlayerID,
		"message", job.Args.Message,
		"job_id", job.ID,
		"attempt", job.Attempt,
	)
	return nil
}
