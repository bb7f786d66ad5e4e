package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/neomorfeo/useriq/internal/domain"
)

// UserService orchestrates the event-sourced user lifecycle: it owns the
// snapshot store and event log, replays projections, re-checks command
// preconditions against fresh state, and guarantees one persisted event
// and one outbound notification per successful command.
type UserService struct {
	store         domain.Store
	publisher     domain.NotificationPublisher
	validator     domain.TransitionValidator
	idp           domain.IdentityProvider
	confirmWindow time.Duration

	ids   *idGenerator
	locks *userLocks
}

// Compile-time check: UserService provides the admin census for delete
// preconditions.
var _ domain.AdminCounter = (*UserService)(nil)

// NewUserService creates a service with the given adapters. confirmWindow
// is how long a new user has to confirm before its invitation expires.
func NewUserService(store domain.Store, publisher domain.NotificationPublisher, validator domain.TransitionValidator, idp domain.IdentityProvider, confirmWindow time.Duration) *UserService {
	return &UserService{
		store:         store,
		publisher:     publisher,
		validator:     validator,
		idp:           idp,
		confirmWindow: confirmWindow,
		ids:           newIDGenerator(),
		locks:         newUserLocks(),
	}
}

// NewCommandID mints an identifier for an inbound command. Boundaries that
// receive commands without an id (HTTP, queue consumers) use this so the
// audit log always has one.
func (s *UserService) NewCommandID() string {
	return s.ids.New()
}

func (s *UserService) guard() domain.Guard {
	return domain.Guard{Transitions: s.validator, Admins: s}
}

// materializeSnapshot loads the latest snapshot for a user and folds every
// later event over it, returning the up-to-date snapshot.
func (s *UserService) materializeSnapshot(ctx context.Context, userID string) (domain.Snapshot, error) {
	snap, err := s.store.LatestSnapshot(ctx, userID)
	if err != nil {
		return domain.Snapshot{}, err
	}

	events, err := s.store.EventsSince(ctx, userID, snap.ToVersion)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("loading events for user %s: %w", userID, err)
	}

	return domain.Fold(snap, events)
}

// Materialize replays a user's current projection from its latest snapshot
// and all subsequent events.
func (s *UserService) Materialize(ctx context.Context, userID string) (domain.User, error) {
	snap, err := s.materializeSnapshot(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	return snap.Project(), nil
}

// CheckCommand runs a command's preconditions against the current
// projection without executing it. Advisory only: ApplyCommand re-checks
// against a fresh replay before persisting anything.
func (s *UserService) CheckCommand(ctx context.Context, cmd domain.Command) error {
	var u domain.User
	if _, ok := cmd.(domain.CreateCommand); !ok {
		var err error
		u, err = s.Materialize(ctx, cmd.Meta().UserID)
		if err != nil {
			return err
		}
	}
	return cmd.Check(ctx, u, s.guard())
}

// ApplyCommand executes a state transition command. The command is logged
// unconditionally first; preconditions are then re-checked against a fresh
// replay under the user's lock, external side effects run before the event
// is persisted, and exactly one event and one notification follow.
func (s *UserService) ApplyCommand(ctx context.Context, cmd domain.Command) (domain.User, error) {
	// The audit trail must survive even if every later step fails; a
	// failure to record aborts the whole command.
	if err := s.store.RecordCommand(ctx, cmd); err != nil {
		return domain.User{}, fmt.Errorf("recording command: %w", err)
	}

	if create, ok := cmd.(domain.CreateCommand); ok {
		return s.createUser(ctx, create)
	}

	meta := cmd.Meta()
	mu := s.locks.lock(meta.UserID)
	defer mu.Unlock()

	snap, err := s.materializeSnapshot(ctx, meta.UserID)
	if err != nil {
		return domain.User{}, err
	}
	u := snap.Project()

	// Never trust state supplied by the caller: preconditions are checked
	// against the projection replayed moments ago, under the lock.
	if err := cmd.Check(ctx, u, s.guard()); err != nil {
		return domain.User{}, err
	}

	// Side effects that must precede durability. If provisioning fails the
	// command log entry remains as evidence, but no event is created.
	if confirm, ok := cmd.(domain.ConfirmCommand); ok {
		if err := s.idp.CreateIdentity(ctx, u, confirm.InitialPassword); err != nil {
			return domain.User{}, &domain.ProvisioningError{UserID: u.ID, Err: err}
		}
	}

	now := time.Now().UTC()
	evt := cmd.NewEvent(s.ids.New(), u, now)

	if err := s.store.AppendEvent(ctx, evt); err != nil {
		return domain.User{}, fmt.Errorf("appending %s event for user %s: %w", evt.Kind(), u.ID, err)
	}

	next, err := domain.ApplyEvent(snap, evt)
	if err != nil {
		return domain.User{}, err
	}
	result := next.Project()

	// The event is already durable; a publish failure is operational and
	// must not roll it back.
	if err := s.publisher.Publish(ctx, result, evt); err != nil {
		slog.ErrorContext(ctx, "notification publish failed after durable event",
			"event_id", evt.Meta().ID,
			"user_id", u.ID,
			"kind", evt.Kind(),
			"error", err,
		)
		return domain.User{}, &domain.PublishError{EventID: evt.Meta().ID, Err: err}
	}

	slog.InfoContext(ctx, "command applied",
		"command_id", meta.ID,
		"kind", cmd.Kind(),
		"user_id", u.ID,
		"version", result.Version,
	)
	return result, nil
}

// createUser materializes nothing: it mints the user's identity, writes the
// version-1 snapshot and the created event, and publishes the notification.
func (s *UserService) createUser(ctx context.Context, cmd domain.CreateCommand) (domain.User, error) {
	if err := cmd.Check(ctx, domain.User{}, s.guard()); err != nil {
		return domain.User{}, err
	}

	token, err := newConfirmToken()
	if err != nil {
		return domain.User{}, fmt.Errorf("generating confirmation token: %w", err)
	}

	now := time.Now().UTC()
	snap := domain.NewSnapshot(
		s.ids.New(), s.ids.New(), cmd.TenancyID,
		cmd.FirstName, cmd.LastName, cmd.Email, cmd.Domain,
		token, cmd.IsAdmin,
		now, now.Add(s.confirmWindow),
	)

	if err := s.store.InsertSnapshot(ctx, snap); err != nil {
		return domain.User{}, fmt.Errorf("inserting snapshot for user %s: %w", snap.UserID, err)
	}

	result := snap.Project()
	evt := cmd.NewEvent(s.ids.New(), result, now)

	if err := s.store.AppendEvent(ctx, evt); err != nil {
		return domain.User{}, fmt.Errorf("appending created event for user %s: %w", snap.UserID, err)
	}

	if err := s.publisher.Publish(ctx, result, evt); err != nil {
		slog.ErrorContext(ctx, "notification publish failed after durable event",
			"event_id", evt.Meta().ID,
			"user_id", snap.UserID,
			"kind", evt.Kind(),
			"error", err,
		)
		return domain.User{}, &domain.PublishError{EventID: evt.Meta().ID, Err: err}
	}

	slog.InfoContext(ctx, "user created",
		"command_id", cmd.ID,
		"user_id", snap.UserID,
		"tenancy_id", snap.TenancyID,
		"admin", snap.IsAdmin,
	)
	return result, nil
}

// ConfirmationRead returns a user for the purposes of a confirm/reject
// decision. The checks run in a fixed order: eligibility by status, then
// token match, then the confirmation window.
func (s *UserService) ConfirmationRead(ctx context.Context, userID, token string) (domain.User, error) {
	u, err := s.Materialize(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}

	if u.TenantStatus != domain.TenantUnconfirmed {
		return domain.User{}, &domain.ConfirmationError{UserID: userID, Reason: fmt.Sprintf("tenant status is %q", u.TenantStatus)}
	}
	if u.ProviderStatus != domain.ProviderActive {
		return domain.User{}, &domain.ConfirmationError{UserID: userID, Reason: fmt.Sprintf("provider status is %q", u.ProviderStatus)}
	}
	if u.ConfirmToken != token {
		// Repeated mismatches may indicate someone probing confirmation
		// links; log them at warn.
		slog.WarnContext(ctx, "confirmation token mismatch", "user_id", userID)
		return domain.User{}, &domain.ConfirmationError{UserID: userID, Reason: "confirmation token does not match"}
	}
	if time.Now().UTC().After(u.Expiry) {
		return domain.User{}, &domain.ConfirmationError{UserID: userID, Reason: fmt.Sprintf("confirmation window expired at %s", u.Expiry.Format(time.RFC3339))}
	}

	return u, nil
}

// AdminCount reports how many admins a tenancy currently has, counting
// against current projections rather than stored snapshots: an admin only
// counts while confirmed and active.
func (s *UserService) AdminCount(ctx context.Context, tenancyID string) (int, error) {
	ids, err := s.store.AdminUserIDs(ctx, tenancyID)
	if err != nil {
		return 0, fmt.Errorf("listing tenancy admins: %w", err)
	}

	count := 0
	for _, id := range ids {
		u, err := s.Materialize(ctx, id)
		if err != nil {
			if errors.Is(err, domain.ErrUserNotFound) {
				continue
			}
			return 0, err
		}
		if u.IsAdmin && u.TenantStatus == domain.TenantConfirmed && u.ProviderStatus == domain.ProviderActive {
			count++
		}
	}
	return count, nil
}

// CompactSnapshots rewrites the stored snapshot for every user whose event
// tail has reached minTail events. Pure optimization: projections are
// byte-identical before and after. Returns the number of users compacted.
func (s *UserService) CompactSnapshots(ctx context.Context, minTail int) (int, error) {
	ids, err := s.store.CompactionCandidates(ctx, minTail)
	if err != nil {
		return 0, fmt.Errorf("listing compaction candidates: %w", err)
	}

	compacted := 0
	for _, id := range ids {
		if err := s.compactUser(ctx, id); err != nil {
			slog.ErrorContext(ctx, "snapshot compaction failed", "user_id", id, "error", err)
			continue
		}
		compacted++
	}
	return compacted, nil
}

func (s *UserService) compactUser(ctx context.Context, userID string) error {
	mu := s.locks.lock(userID)
	defer mu.Unlock()

	snap, err := s.materializeSnapshot(ctx, userID)
	if err != nil {
		return err
	}

	snap.ID = s.ids.New()
	if err := s.store.InsertSnapshot(ctx, snap); err != nil {
		return fmt.Errorf("inserting compacted snapshot: %w", err)
	}

	slog.InfoContext(ctx, "snapshot compacted", "user_id", userID, "to_version", snap.ToVersion)
	return nil
}
