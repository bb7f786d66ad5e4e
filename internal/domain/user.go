package domain

import "time"

// TenantStatus is the business lifecycle state of a user within its tenancy.
type TenantStatus string

const (
	TenantUnconfirmed TenantStatus = "unconfirmed"
	TenantConfirmed   TenantStatus = "confirmed"
	TenantRejected    TenantStatus = "rejected"
	TenantDeleted     TenantStatus = "deleted"
)

// ProviderStatus is the account's standing with the external identity
// provider. Only an active account permits tenant-status transitions.
type ProviderStatus string

const (
	ProviderActive    ProviderStatus = "active"
	ProviderSuspended ProviderStatus = "suspended"
	ProviderStopped   ProviderStatus = "stopped"
)

// Transition defines a valid tenant-status change: a command moves a user
// from Src to Dst.
type Transition struct {
	Command CommandKind
	Src     TenantStatus
	Dst     TenantStatus
}

// Transitions defines all valid tenant-status changes. Rejected and deleted
// are terminal. This is domain knowledge consumed by the FSM adapter.
var Transitions = []Transition{
	{Command: CommandConfirm, Src: TenantUnconfirmed, Dst: TenantConfirmed},
	{Command: CommandReject, Src: TenantUnconfirmed, Dst: TenantRejected},
	{Command: CommandDelete, Src: TenantConfirmed, Dst: TenantDeleted},
}

// Snapshot is a raw materialization of a user covering the version range
// [FromVersion, ToVersion]. It holds no derived fields and no business
// logic: to obtain the current user, all events past ToVersion must be
// folded over it. A snapshot is a cache, never a source of truth.
type Snapshot struct {
	ID             string
	UserID         string
	TenancyID      string
	FirstName      string
	LastName       string
	Email          string
	IsAdmin        bool
	FromVersion    int
	ToVersion      int
	LastUpdate     time.Time
	TenantStatus   TenantStatus
	ProviderStatus ProviderStatus
	Domain         string
	ConfirmToken   string
	Expiry         time.Time
	CreatedAt      time.Time
}

// NewSnapshot builds the version-1 snapshot for a freshly created user.
// The confirmation window closes at expiry; confirmToken is the opaque
// nonce the confirmation request must present.
func NewSnapshot(snapshotID, userID, tenancyID, firstName, lastName, email, dom, confirmToken string, isAdmin bool, now, expiry time.Time) Snapshot {
	return Snapshot{
		ID:             snapshotID,
		UserID:         userID,
		TenancyID:      tenancyID,
		FirstName:      firstName,
		LastName:       lastName,
		Email:          email,
		IsAdmin:        isAdmin,
		FromVersion:    1,
		ToVersion:      1,
		LastUpdate:     now,
		TenantStatus:   TenantUnconfirmed,
		ProviderStatus: ProviderActive,
		Domain:         dom,
		ConfirmToken:   confirmToken,
		Expiry:         expiry,
		CreatedAt:      now,
	}
}

// User is the read-only projection of a user: a snapshot folded with all
// subsequent events. Only the replay engine constructs one; callers must
// never hand-build a projection, since that bypasses version and state
// invariants.
type User struct {
	ID             string
	TenancyID      string
	FirstName      string
	LastName       string
	Email          string
	IsAdmin        bool
	Version        int
	LastUpdate     time.Time
	TenantStatus   TenantStatus
	ProviderStatus ProviderStatus
	Domain         string
	ConfirmToken   string
	CreatedAt      time.Time
	Expiry         time.Time
}

// Project converts a snapshot into the read-only User projection.
func (s Snapshot) Project() User {
	return User{
		ID:             s.UserID,
		TenancyID:      s.TenancyID,
		FirstName:      s.FirstName,
		LastName:       s.LastName,
		Email:          s.Email,
		IsAdmin:        s.IsAdmin,
		Version:        s.ToVersion,
		LastUpdate:     s.LastUpdate,
		TenantStatus:   s.TenantStatus,
		ProviderStatus: s.ProviderStatus,
		Domain:         s.Domain,
		ConfirmToken:   s.ConfirmToken,
		CreatedAt:      s.CreatedAt,
		Expiry:         s.Expiry,
	}
}
