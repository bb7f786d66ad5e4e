package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for simple conditions without extra context.
var (
	ErrUserNotFound = errors.New("user not found")
)

// PreconditionError is returned when a command's required source state does
// not hold. It is a client error; no retry is implied.
type PreconditionError struct {
	Command CommandKind
	UserID  string
	Reason  string
}

func (e *PreconditionError) Error() string {
	if e.UserID == "" {
		return fmt.Sprintf("cannot %s user: %s", e.Command, e.Reason)
	}
	return fmt.Sprintf("cannot %s user %s: %s", e.Command, e.UserID, e.Reason)
}

// TransitionError is returned when the tenant-status state machine forbids
// a command from the current status.
type TransitionError struct {
	Command CommandKind
	Current TenantStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("command %q is not valid from tenant status %q", e.Command, e.Current)
}

// ConfirmationError is returned when a confirmation read is refused: wrong
// token, expired window, or a user no longer eligible for confirmation.
type ConfirmationError struct {
	UserID string
	Reason string
}

func (e *ConfirmationError) Error() string {
	return fmt.Sprintf("cannot confirm user %s: %s", e.UserID, e.Reason)
}

// VersionGapError is returned when replay encounters an event that does not
// contiguously extend the snapshot. The event log contract guarantees this
// never happens; seeing one means the log is corrupt.
type VersionGapError struct {
	UserID string
	Have   int
	Got    int
}

func (e *VersionGapError) Error() string {
	return fmt.Sprintf("event log for user %s has a version gap: at %d, next event is %d", e.UserID, e.Have, e.Got)
}

// VersionConflictError is returned when an event append loses a race: the
// target version was taken by a concurrent command for the same user.
type VersionConflictError struct {
	UserID  string
	Version int
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version %d already exists for user %s", e.Version, e.UserID)
}

// ProvisioningError is returned when the external identity provider failed
// before the domain event became durable. The command remains in the audit
// log but no event is created; the provider's state is unknown.
type ProvisioningError struct {
	UserID string
	Err    error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning identity for user %s: %v", e.UserID, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// PublishError is returned when the domain event is durable but the
// outbound notification failed. The event must not be rolled back; this is
// an operational error requiring out-of-band reconciliation.
type PublishError struct {
	EventID string
	Err     error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("publishing notification for event %s: %v", e.EventID, e.Err)
}

func (e *PublishError) Unwrap() error { return e.Err }
