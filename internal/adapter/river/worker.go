package river

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/useriq/internal/domain"
)

// CommandService is the slice of the application service the workers need.
// It is resolved lazily because the service itself is constructed with a
// publisher backed by the same River client.
type CommandService interface {
	ApplyCommand(ctx context.Context, cmd domain.Command) (domain.User, error)
	CompactSnapshots(ctx context.Context, minTail int) (int, error)
}

// NotificationWorker delivers outbound notification jobs. For now it logs
// the delivery; the transport binding (exchange publication, webhooks)
// hangs off this worker.
type NotificationWorker struct {
	river.WorkerDefaults[NotificationJobArgs]
}

// Work processes a single notification job.
func (w *NotificationWorker) Work(ctx context.Context, job *river.Job[NotificationJobArgs]) error {
	slog.InfoContext(ctx, "delivering notification",
		"routing_key", job.Args.RoutingKey,
		"event_id", job.Args.Event.ID,
		"user_id", job.Args.User.ID,
		"version", job.Args.Event.Version,
		"job_id", job.ID,
		"attempt", job.Attempt,
	)
	return nil
}

// TenancyConfirmedArgs is the inbound message announcing a newly confirmed
// tenancy whose first admin user must be created.
type TenancyConfirmedArgs struct {
	TenancyID      string `json:"tenancy_id"`
	Domain         string `json:"domain"`
	AdminFirstName string `json:"admin_first_name"`
	AdminLastName  string `json:"admin_last_name"`
	AdminEmail     string `json:"admin_email"`
	CommandID      string `json:"command_id"`
}

func (TenancyConfirmedArgs) Kind() string { return "tenancy.confirmed" }

// TenancyConfirmedWorker creates the admin user for a confirmed tenancy by
// submitting a create command through the orchestration service.
type TenancyConfirmedWorker struct {
	river.WorkerDefaults[TenancyConfirmedArgs]
	service func() CommandService
	ids     func() string
}

// Work handles one tenancy confirmation.
func (w *TenancyConfirmedWorker) Work(ctx context.Context, job *river.Job[TenancyConfirmedArgs]) error {
	commandID := job.Args.CommandID
	if commandID == "" {
		commandID = w.ids()
	}

	u, err := w.service().ApplyCommand(ctx, domain.CreateCommand{
		CommandMeta: domain.CommandMeta{ID: commandID, At: time.Now().UTC()},
		TenancyID:   job.Args.TenancyID,
		FirstName:   job.Args.AdminFirstName,
		LastName:    job.Args.AdminLastName,
		Email:       job.Args.AdminEmail,
		Domain:      job.Args.Domain,
		IsAdmin:     true,
	})
	if err != nil {
		return fmt.Errorf("creating admin user for tenancy %s: %w", job.Args.TenancyID, err)
	}

	slog.InfoContext(ctx, "tenancy admin user created",
		"tenancy_id", job.Args.TenancyID,
		"user_id", u.ID,
		"job_id", job.ID,
	)
	return nil
}

// SnapshotCompactionArgs triggers a sweep of users whose event tail has
// grown past the threshold. Scheduled periodically; safe to run at any time.
type SnapshotCompactionArgs struct {
	MinTail int `json:"min_tail"`
}

func (SnapshotCompactionArgs) Kind() string { return "snapshot.compaction" }

// SnapshotCompactionWorker runs the re-snapshotting optimization pass.
type SnapshotCompactionWorker struct {
	river.WorkerDefaults[SnapshotCompactionArgs]
	service func() CommandService
}

// Work performs one compaction sweep.
func (w *SnapshotCompactionWorker) Work(ctx context.Context, job *river.Job[SnapshotCompactionArgs]) error {
	n, err := w.service().CompactSnapshots(ctx, job.Args.MinTail)
	if err != nil {
		return err
	}
	if n > 0 {
		slog.InfoContext(ctx, "snapshot compaction sweep finished",
			"compacted", n,
			"min_tail", job.Args.MinTail,
			"job_id", job.ID,
		)
	}
	return nil
}
