package river

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riversqlite"
	"github.com/riverqueue/river/rivermigrate"
)

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Runner owns the River client and the workers whose lifecycle dependency
// is injected after construction. Jobs only run once Start is called, so
// assigning worker fields in Bind before Start is race-free.
type Runner struct {
	client  *Client
	sweep   *SweepWorker
	timeout *ConfirmTimeoutWorker
}

// Setup creates a River client with the sweep, confirmation timeout, and
// notification workers registered, runs River's internal migrations, and
// installs the hourly sweep as a periodic job. The caller must Bind the
// lifecycle and then Start the runner.
func Setup(ctx context.Context, db *sql.DB) (*Runner, error) {
	driver := riversqlite.New(db)

	// Run River's own migrations (creates river_job, river_leader, etc.).
	// These are separate from the app's goose migrations.
	migrator, err := rivermigrate.New(driver, nil)
	if err != nil {
		return nil, fmt.Errorf("creating river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return nil, fmt.Errorf("running river migrations: %w", err)
	}

	sweep := &SweepWorker{}
	timeout := &ConfirmTimeoutWorker{}

	workers := river.NewWorkers()
	river.AddWorker(workers, sweep)
	river.AddWorker(workers, timeout)
	river.AddWorker(workers, &NotificationWorker{})

	client, err := river.NewClient(driver, &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 2},
		},
		Workers: workers,
		PeriodicJobs: []*river.PeriodicJob{
			river.NewPeriodicJob(
				hourSchedule{},
				func() (river.JobArgs, *river.InsertOpts) {
					return SweepArgs{}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: false},
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating river client: %w", err)
	}

	return &Runner{client: client, sweep: sweep, timeout: timeout}, nil
}

// Bind wires the application lifecycle into the workers. Must be called
// before Start.
func (r *Runner) Bind(lifecycle Lifecycle) {
	r.sweep.lifecycle = lifecycle
	r.timeout.lifecycle = lifecycle
}

// Client exposes the underlying River client for enqueuing jobs.
func (r *Runner) Client() *Client {
	return r.client
}

// Start begins background job processing.
func (r *Runner) Start(ctx context.Context) error {
	return r.client.Start(ctx)
}

// Stop drains in-flight jobs and shuts the client down.
func (r *Runner) Stop(ctx context.Context) error {
	return r.client.Stop(ctx)
}
