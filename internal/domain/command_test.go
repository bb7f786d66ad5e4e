package domain_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/neomorfeo/useriq/internal/domain"
)

// tableValidator applies domain.Transitions directly, without the FSM
// adapter, keeping this package's tests dependency-free.
type tableValidator struct{}

func (tableValidator) Apply(_ context.Context, current domain.TenantStatus, cmd domain.CommandKind) (domain.TenantStatus, error) {
	for _, tr := range domain.Transitions {
		if tr.Command == cmd && tr.Src == current {
			return tr.Dst, nil
		}
	}
	return "", &domain.TransitionError{Command: cmd, Current: current}
}

type fixedAdminCount int

func (n fixedAdminCount) AdminCount(_ context.Context, _ string) (int, error) {
	return int(n), nil
}

func guardWith(admins int) domain.Guard {
	return domain.Guard{Transitions: tableValidator{}, Admins: fixedAdminCount(admins)}
}

func testUser(tenant domain.TenantStatus, provider domain.ProviderStatus, isAdmin bool) domain.User {
	snap := domain.NewSnapshot("s-1", "u-1", "t-1", "Ada", "Lovelace", "ada@acme.test", "acme.test", "tok-1", isAdmin, testNow, testNow.Add(72*time.Hour))
	snap.TenantStatus = tenant
	snap.ProviderStatus = provider
	return snap.Project()
}

func TestConfirmCommand_Check(t *testing.T) {
	cmd := domain.ConfirmCommand{
		CommandMeta:     domain.CommandMeta{ID: "c-1", At: testNow, UserID: "u-1"},
		InitialPassword: "hunter2",
	}

	cases := []struct {
		name     string
		tenant   domain.TenantStatus
		provider domain.ProviderStatus
		wantErr  bool
	}{
		{"unconfirmed active", domain.TenantUnconfirmed, domain.ProviderActive, false},
		{"already confirmed", domain.TenantConfirmed, domain.ProviderActive, true},
		{"already rejected", domain.TenantRejected, domain.ProviderActive, true},
		{"provider suspended", domain.TenantUnconfirmed, domain.ProviderSuspended, true},
		{"provider stopped", domain.TenantUnconfirmed, domain.ProviderStopped, true},
	}

	for _, tc := range cases {
		err := cmd.Check(context.Background(), testUser(tc.tenant, tc.provider, false), guardWith(1))
		if tc.wantErr && err == nil {
			t.Errorf("%s: expected error, got nil", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("%s: unexpected error: %v", tc.name, err)
		}
	}
}

func TestRejectCommand_SameSourceStateAsConfirm(t *testing.T) {
	cmd := domain.RejectCommand{CommandMeta: domain.CommandMeta{ID: "c-1", At: testNow, UserID: "u-1"}}

	if err := cmd.Check(context.Background(), testUser(domain.TenantUnconfirmed, domain.ProviderActive, false), guardWith(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := cmd.Check(context.Background(), testUser(domain.TenantRejected, domain.ProviderActive, false), guardWith(1))
	var trErr *domain.TransitionError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}
	if trErr.Current != domain.TenantRejected {
		t.Errorf("current = %q, want %q", trErr.Current, domain.TenantRejected)
	}
}

func TestDeleteCommand_RequiresConfirmed(t *testing.T) {
	cmd := domain.DeleteCommand{CommandMeta: domain.CommandMeta{ID: "c-1", At: testNow, UserID: "u-1"}}

	err := cmd.Check(context.Background(), testUser(domain.TenantUnconfirmed, domain.ProviderActive, false), guardWith(2))
	var trErr *domain.TransitionError
	if !errors.As(err, &trErr) {
		t.Fatalf("expected TransitionError, got %v", err)
	}

	if err := cmd.Check(context.Background(), testUser(domain.TenantConfirmed, domain.ProviderActive, false), guardWith(2)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDeleteCommand_SoleAdmin(t *testing.T) {
	cmd := domain.DeleteCommand{CommandMeta: domain.CommandMeta{ID: "c-1", At: testNow, UserID: "u-1"}}
	admin := testUser(domain.TenantConfirmed, domain.ProviderActive, true)

	err := cmd.Check(context.Background(), admin, guardWith(1))
	var preErr *domain.PreconditionError
	if !errors.As(err, &preErr) {
		t.Fatalf("expected PreconditionError, got %v", err)
	}

	// A second admin makes deletion legal again.
	if err := cmd.Check(context.Background(), admin, guardWith(2)); err != nil {
		t.Fatalf("unexpected error with two admins: %v", err)
	}
}

func TestDeleteCommand_NonAdminSkipsCensus(t *testing.T) {
	cmd := domain.DeleteCommand{CommandMeta: domain.CommandMeta{ID: "c-1", At: testNow, UserID: "u-1"}}

	// Admin count of 1 is irrelevant for a non-admin target.
	if err := cmd.Check(context.Background(), testUser(domain.TenantConfirmed, domain.ProviderActive, false), guardWith(1)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateCommand_StructuralValidation(t *testing.T) {
	base := domain.CreateCommand{
		CommandMeta: domain.CommandMeta{ID: "c-1", At: testNow},
		TenancyID:   "t-1",
		FirstName:   "Ada",
		LastName:    "Lovelace",
		Email:       "ada@acme.test",
		Domain:      "acme.test",
		IsAdmin:     true,
	}

	if err := base.Check(context.Background(), domain.User{}, guardWith(0)); err != nil {
		t.Fatalf("valid command rejected: %v", err)
	}

	broken := []domain.CreateCommand{}
	c := base
	c.TenancyID = ""
	broken = append(broken, c)
	c = base
	c.FirstName = ""
	broken = append(broken, c)
	c = base
	c.Email = "not-an-email"
	broken = append(broken, c)
	c = base
	c.Domain = ""
	broken = append(broken, c)

	for i, bc := range broken {
		err := bc.Check(context.Background(), domain.User{}, guardWith(0))
		var preErr *domain.PreconditionError
		if !errors.As(err, &preErr) {
			t.Errorf("case %d: expected PreconditionError, got %v", i, err)
		}
	}
}

func TestCommands_NewEvent(t *testing.T) {
	u := testUser(domain.TenantUnconfirmed, domain.ProviderActive, false)
	at := testNow.Add(time.Minute)

	confirm := domain.ConfirmCommand{CommandMeta: domain.CommandMeta{ID: "c-9", At: testNow, UserID: u.ID}}
	evt := confirm.NewEvent("e-9", u, at)

	if evt.Kind() != domain.EventConfirmed {
		t.Errorf("Kind = %q, want %q", evt.Kind(), domain.EventConfirmed)
	}
	m := evt.Meta()
	if m.CommandID != "c-9" {
		t.Errorf("CommandID = %q, want %q", m.CommandID, "c-9")
	}
	if m.Version != u.Version+1 {
		t.Errorf("Version = %d, want %d", m.Version, u.Version+1)
	}
	if m.UserID != u.ID {
		t.Errorf("UserID = %q, want %q", m.UserID, u.ID)
	}
	if !m.At.Equal(at) {
		t.Errorf("At = %v, want %v", m.At, at)
	}

	create := domain.CreateCommand{CommandMeta: domain.CommandMeta{ID: "c-1", At: testNow}}
	created := create.NewEvent("e-1", u, at)
	if created.Meta().Version != 1 {
		t.Errorf("created Version = %d, want 1", created.Meta().Version)
	}
	ce, ok := created.(domain.CreatedEvent)
	if !ok {
		t.Fatalf("expected CreatedEvent, got %T", created)
	}
	if !ce.Expiry.Equal(u.Expiry) {
		t.Errorf("Expiry = %v, want %v", ce.Expiry, u.Expiry)
	}
}
