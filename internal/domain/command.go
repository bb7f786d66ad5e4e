package domain

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// CommandKind identifies a command variant.
type CommandKind string

const (
	CommandCreate  CommandKind = "create"
	CommandConfirm CommandKind = "confirm"
	CommandReject  CommandKind = "reject"
	CommandDelete  CommandKind = "delete"
)

// CommandMeta carries the fields common to every command. UserID is empty
// for creation, where no target exists yet.
type CommandMeta struct {
	ID     string
	At     time.Time
	UserID string
}

// Guard bundles the collaborators a precondition check may consult: the
// tenant-status state machine and the tenancy admin census used by delete.
type Guard struct {
	Transitions TransitionValidator
	Admins      AdminCounter
}

// Command is a request to transition a user's state. Like Event it is a
// closed set; the sealed method keeps variants confined to this package.
type Command interface {
	Meta() CommandMeta
	Kind() CommandKind

	// Check evaluates this command's preconditions against the current
	// projection. A nil error means the transition is allowed.
	Check(ctx context.Context, u User, g Guard) error

	// NewEvent constructs the event this command produces, targeting the
	// version after the given projection's.
	NewEvent(eventID string, u User, now time.Time) Event

	sealed()
}

// checkTransition applies the shared tenant-status and provider-status
// preconditions for patch-style commands.
func checkTransition(ctx context.Context, kind CommandKind, u User, g Guard) error {
	if u.ProviderStatus != ProviderActive {
		return &PreconditionError{
			Command: kind,
			UserID:  u.ID,
			Reason:  fmt.Sprintf("provider status is %q, must be %q", u.ProviderStatus, ProviderActive),
		}
	}
	if _, err := g.Transitions.Apply(ctx, u.TenantStatus, kind); err != nil {
		return err
	}
	return nil
}

// CreateCommand requests creation of a new user within a tenancy.
type CreateCommand struct {
	CommandMeta
	TenancyID string
	FirstName string
	LastName  string
	Email     string
	Domain    string
	IsAdmin   bool
}

func (c CreateCommand) Meta() CommandMeta { return c.CommandMeta }
func (c CreateCommand) Kind() CommandKind { return CommandCreate }
func (c CreateCommand) sealed()           {}

// Check validates structural input only; creation has no state
// preconditions.
func (c CreateCommand) Check(_ context.Context, _ User, _ Guard) error {
	switch {
	case c.TenancyID == "":
		return &PreconditionError{Command: CommandCreate, Reason: "tenancy id is required"}
	case c.FirstName == "" || c.LastName == "":
		return &PreconditionError{Command: CommandCreate, Reason: "first and last name are required"}
	case !strings.Contains(c.Email, "@"):
		return &PreconditionError{Command: CommandCreate, Reason: fmt.Sprintf("%q is not a valid email address", c.Email)}
	case c.Domain == "":
		return &PreconditionError{Command: CommandCreate, Reason: "domain is required"}
	}
	return nil
}

func (c CreateCommand) NewEvent(eventID string, u User, now time.Time) Event {
	return CreatedEvent{
		EventMeta: EventMeta{
			ID:        eventID,
			CommandID: c.ID,
			UserID:    u.ID,
			Version:   1,
			At:        now,
		},
		Expiry: u.Expiry,
	}
}

// ConfirmCommand requests confirmation of an unconfirmed user. The initial
// password is forwarded to the identity provider and never persisted.
type ConfirmCommand struct {
	CommandMeta
	InitialPassword string
}

func (c ConfirmCommand) Meta() CommandMeta { return c.CommandMeta }
func (c ConfirmCommand) Kind() CommandKind { return CommandConfirm }
func (c ConfirmCommand) sealed()           {}

func (c ConfirmCommand) Check(ctx context.Context, u User, g Guard) error {
	return checkTransition(ctx, CommandConfirm, u, g)
}

func (c ConfirmCommand) NewEvent(eventID string, u User, now time.Time) Event {
	return ConfirmedEvent{EventMeta: EventMeta{
		ID:        eventID,
		CommandID: c.ID,
		UserID:    u.ID,
		Version:   u.Version + 1,
		At:        now,
	}}
}

// RejectCommand requests rejection of an unconfirmed user. Same source
// state as confirm.
type RejectCommand struct {
	CommandMeta
}

func (c RejectCommand) Meta() CommandMeta { return c.CommandMeta }
func (c RejectCommand) Kind() CommandKind { return CommandReject }
func (c RejectCommand) sealed()           {}

func (c RejectCommand) Check(ctx context.Context, u User, g Guard) error {
	return checkTransition(ctx, CommandReject, u, g)
}

func (c RejectCommand) NewEvent(eventID string, u User, now time.Time) Event {
	return RejectedEvent{EventMeta: EventMeta{
		ID:        eventID,
		CommandID: c.ID,
		UserID:    u.ID,
		Version:   u.Version + 1,
		At:        now,
	}}
}

// DeleteCommand requests removal of a confirmed user.
type DeleteCommand struct {
	CommandMeta
}

func (c DeleteCommand) Meta() CommandMeta { return c.CommandMeta }
func (c DeleteCommand) Kind() CommandKind { return CommandDelete }
func (c DeleteCommand) sealed()           {}

func (c DeleteCommand) Check(ctx context.Context, u User, g Guard) error {
	if err := checkTransition(ctx, CommandDelete, u, g); err != nil {
		return err
	}

	// The sole admin of a tenancy cannot be deleted: the tenancy would be
	// left with nobody able to administer it, and no way to recover.
	if u.IsAdmin {
		n, err := g.Admins.AdminCount(ctx, u.TenancyID)
		if err != nil {
			return fmt.Errorf("counting tenancy admins: %w", err)
		}
		if n <= 1 {
			return &PreconditionError{
				Command: CommandDelete,
				UserID:  u.ID,
				Reason:  "user is the only admin of its tenancy",
			}
		}
	}
	return nil
}

func (c DeleteCommand) NewEvent(eventID string, u User, now time.Time) Event {
	return DeletedEvent{EventMeta: EventMeta{
		ID:        eventID,
		CommandID: c.ID,
		UserID:    u.ID,
		Version:   u.Version + 1,
		At:        now,
	}}
}
