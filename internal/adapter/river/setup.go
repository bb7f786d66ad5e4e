package river

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riversqlite"
	"github.com/riverqueue/river/rivermigrate"
)

// Options tunes the background workers registered on the client.
type Options struct {
	// Service is resolved lazily. The orchestration service publishes
	// through a client that does not exist yet when Setup runs, so the
	// closure is only invoked once jobs start flowing, after the caller
	// has wired everything and called client.Start().
	Service func() CommandService

	// NewID mints command IDs for inbound messages that arrive without one.
	NewID func() string

	// CompactionMinTail is the event-tail length past which a user gets a
	// fresh snapshot. Zero disables the periodic sweep.
	CompactionMinTail int

	// CompactionInterval is how often the sweep runs.
	CompactionInterval time.Duration
}

// Setup creates a River client with the user-service workers registered and
// runs River's internal migrations. The caller must call client.Start() to
// begin processing jobs and client.Stop() for graceful shutdown.
func Setup(ctx context.Context, db *sql.DB, opts Options) (*Client, error) {
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

	workers := river.NewWorkers()
	river.AddWorker(workers, &NotificationWorker{})
	river.AddWorker(workers, &TenancyConfirmedWorker{service: opts.Service, ids: opts.NewID})
	river.AddWorker(workers, &SnapshotCompactionWorker{service: opts.Service})

	cfg := &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: 2},
		},
		Workers: workers,
	}

	if opts.CompactionMinTail > 0 && opts.CompactionInterval > 0 {
		cfg.PeriodicJobs = []*river.PeriodicJob{
			river.NewPeriodicJob(
				river.PeriodicInterval(opts.CompactionInterval),
				func() (river.JobArgs, *river.InsertOpts) {
					return SnapshotCompactionArgs{MinTail: opts.CompactionMinTail}, nil
				},
				&river.PeriodicJobOpts{RunOnStart: true},
			),
		}
	}

	client, err := river.NewClient(driver, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating river client: %w", err)
	}

	return client, nil
}
