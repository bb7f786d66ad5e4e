package domain

import "time"

// EventKind identifies an event variant.
type EventKind string

const (
	EventCreated   EventKind = "created"
	EventConfirmed EventKind = "confirmed"
	EventRejected  EventKind = "rejected"
	EventDeleted   EventKind = "deleted"
)

// EventMeta carries the fields common to every event: identity, the command
// that produced it, the owning user, the target version (previous version
// plus one) and the wall-clock time the event was generated.
type EventMeta struct {
	ID        string
	CommandID string
	UserID    string
	Version   int
	At        time.Time
}

// Event is an immutable fact recording a state transition. It is a closed
// set: the apply method is unexported, so only the variants in this package
// satisfy the interface and every switch over Kind can be exhaustive.
type Event interface {
	Meta() EventMeta
	Kind() EventKind
	// RoutingKey is the outbound notification topic for this event kind.
	RoutingKey() string

	// apply is the pure state transform for this event kind. It touches
	// only the domain fields relevant to the kind; the shared post-step
	// (LastUpdate, ToVersion) belongs to the replay fold, not here.
	apply(Snapshot) Snapshot
}

// CreatedEvent records the creation of a user and the close of its
// confirmation window.
type CreatedEvent struct {
	EventMeta
	Expiry time.Time
}

func (e CreatedEvent) Meta() EventMeta    { return e.EventMeta }
func (e CreatedEvent) Kind() EventKind    { return EventCreated }
func (e CreatedEvent) RoutingKey() string { return "user.created" }

func (e CreatedEvent) apply(s Snapshot) Snapshot {
	s.TenantStatus = TenantUnconfirmed
	s.ProviderStatus = ProviderActive
	s.Expiry = e.Expiry
	return s
}

// ConfirmedEvent records that the user accepted its invitation.
type ConfirmedEvent struct {
	EventMeta
}

func (e ConfirmedEvent) Meta() EventMeta    { return e.EventMeta }
func (e ConfirmedEvent) Kind() EventKind    { return EventConfirmed }
func (e ConfirmedEvent) RoutingKey() string { return "user.confirmed" }

func (e ConfirmedEvent) apply(s Snapshot) Snapshot {
	s.TenantStatus = TenantConfirmed
	return s
}

// RejectedEvent records that the user declined its invitation.
type RejectedEvent struct {
	EventMeta
}

func (e RejectedEvent) Meta() EventMeta    { return e.EventMeta }
func (e RejectedEvent) Kind() EventKind    { return EventRejected }
func (e RejectedEvent) RoutingKey() string { return "user.rejected" }

func (e RejectedEvent) apply(s Snapshot) Snapshot {
	s.TenantStatus = TenantRejected
	return s
}

// DeletedEvent records removal of a confirmed user from its tenancy.
type DeletedEvent struct {
	EventMeta
}

func (e DeletedEvent) Meta() EventMeta    { return e.EventMeta }
func (e DeletedEvent) Kind() EventKind    { return EventDeleted }
func (e DeletedEvent) RoutingKey() string { return "user.deleted" }

func (e DeletedEvent) apply(s Snapshot) Snapshot {
	s.TenantStatus = TenantDeleted
	return s
}

// ApplyEvent folds one event over a snapshot: the kind-specific transform
// runs first, then the shared post-step stamps LastUpdate and ToVersion
// from the event. Returns a VersionGapError if the event does not extend
// the snapshot contiguously.
func ApplyEvent(s Snapshot, e Event) (Snapshot, error) {
	m := e.Meta()
	if m.Version != s.ToVersion+1 {
		return Snapshot{}, &VersionGapError{
			UserID: s.UserID,
			Have:   s.ToVersion,
			Got:    m.Version,
		}
	}

	next := e.apply(s)
	next.LastUpdate = m.At
	next.ToVersion = m.Version
	return next, nil
}

// Fold advances a snapshot through an ordered event sequence.
func Fold(s Snapshot, events []Event) (Snapshot, error) {
	working := s
	for _, e := range events {
		next, err := ApplyEvent(working, e)
		if err != nil {
			return Snapshot{}, err
		}
		working = next
	}
	return working, nil
}

// Replay folds an ordered event sequence over a snapshot and returns the
// resulting projection. It is deterministic: the same snapshot and events
// always yield an identical User.
func Replay(s Snapshot, events []Event) (User, error) {
	folded, err := Fold(s, events)
	if err != nil {
		return User{}, err
	}
	return folded.Project(), nil
}
