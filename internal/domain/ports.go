package domain

import "context"

// SnapshotStore defines the persistence contract for user snapshots. The
// latest snapshot is the one with the highest ToVersion for a user.
type SnapshotStore interface {
	LatestSnapshot(ctx context.Context, userID string) (Snapshot, error)
	InsertSnapshot(ctx context.Context, snap Snapshot) error
}

// EventLog defines the append-only, per-user versioned event sequence.
// AppendEvent must refuse to overwrite an existing version, returning a
// VersionConflictError when the target version is already taken.
type EventLog interface {
	EventsSince(ctx context.Context, userID string, fromVersion int) ([]Event, error)
	AppendEvent(ctx context.Context, event Event) error
}

// CommandLog is the append-only audit record of every submitted command,
// written regardless of execution outcome. A failure to record must abort
// the whole command.
type CommandLog interface {
	RecordCommand(ctx context.Context, cmd Command) error
}

// Store is the full persistence contract the orchestration service owns.
// AdminUserIDs lists the admin users of a tenancy so the sole-admin guard
// can count them against their current projections. CompactionCandidates
// lists users whose event tail past the latest snapshot has reached
// minEvents, for periodic re-snapshotting.
type Store interface {
	SnapshotStore
	EventLog
	CommandLog
	AdminUserIDs(ctx context.Context, tenancyID string) ([]string, error)
	CompactionCandidates(ctx context.Context, minEvents int) ([]string, error)
}

// TransitionValidator checks a command against the tenant-status state
// machine, returning the destination status when the transition is allowed.
type TransitionValidator interface {
	Apply(ctx context.Context, current TenantStatus, cmd CommandKind) (TenantStatus, error)
}

// AdminCounter reports how many admin users a tenancy currently has.
type AdminCounter interface {
	AdminCount(ctx context.Context, tenancyID string) (int, error)
}

// NotificationPublisher emits the outbound notification for a persisted
// event: the resulting projection bundled with the event, on the event's
// routing key.
type NotificationPublisher interface {
	Publish(ctx context.Context, user User, event Event) error
}

// IdentityProvider provisions the external identity for a confirmed user.
// A failure leaves the provider in an unknown state; callers must not
// assume the call can be safely retried.
type IdentityProvider interface {
	CreateIdentity(ctx context.Context, user User, initialPassword string) error
}
