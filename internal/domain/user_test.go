package domain_test

import (
	"testing"
	"time"

	"github.com/neomorfeo/useriq/internal/domain"
)

func TestNewSnapshot(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	expiry := now.Add(72 * time.Hour)

	snap := domain.NewSnapshot("s-1", "u-1", "t-1", "Ada", "Lovelace", "ada@acme.test", "acme.test", "tok-1", true, now, expiry)

	if snap.FromVersion != 1 || snap.ToVersion != 1 {
		t.Errorf("version range = [%d, %d], want [1, 1]", snap.FromVersion, snap.ToVersion)
	}
	if snap.TenantStatus != domain.TenantUnconfirmed {
		t.Errorf("TenantStatus = %q, want %q", snap.TenantStatus, domain.TenantUnconfirmed)
	}
	if snap.ProviderStatus != domain.ProviderActive {
		t.Errorf("ProviderStatus = %q, want %q", snap.ProviderStatus, domain.ProviderActive)
	}
	if !snap.Expiry.Equal(expiry) {
		t.Errorf("Expiry = %v, want %v", snap.Expiry, expiry)
	}
	if !snap.LastUpdate.Equal(now) || !snap.CreatedAt.Equal(now) {
		t.Errorf("LastUpdate/CreatedAt = %v/%v, want both %v", snap.LastUpdate, snap.CreatedAt, now)
	}
	if !snap.IsAdmin {
		t.Error("IsAdmin should be true")
	}
}

func TestSnapshot_Project(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	snap := domain.NewSnapshot("s-1", "u-1", "t-1", "Ada", "Lovelace", "ada@acme.test", "acme.test", "tok-1", false, now, now.Add(time.Hour))
	snap.ToVersion = 3
	snap.TenantStatus = domain.TenantConfirmed

	u := snap.Project()

	if u.ID != "u-1" {
		t.Errorf("ID = %q, want %q", u.ID, "u-1")
	}
	if u.TenancyID != "t-1" {
		t.Errorf("TenancyID = %q, want %q", u.TenancyID, "t-1")
	}
	if u.Version != 3 {
		t.Errorf("Version = %d, want 3", u.Version)
	}
	if u.TenantStatus != domain.TenantConfirmed {
		t.Errorf("TenantStatus = %q, want %q", u.TenantStatus, domain.TenantConfirmed)
	}
	if u.Email != "ada@acme.test" {
		t.Errorf("Email = %q, want %q", u.Email, "ada@acme.test")
	}
	if u.ConfirmToken != "tok-1" {
		t.Errorf("ConfirmToken = %q, want %q", u.ConfirmToken, "tok-1")
	}
}

func TestTransitions_TerminalStates(t *testing.T) {
	// No transition may leave rejected or deleted.
	for _, tr := range domain.Transitions {
		if tr.Src == domain.TenantRejected || tr.Src == domain.TenantDeleted {
			t.Errorf("unexpected transition %q out of terminal state %q", tr.Command, tr.Src)
		}
	}
}

func TestTransitions_ValidPaths(t *testing.T) {
	cases := []struct {
		cmd domain.CommandKind
		src domain.TenantStatus
		dst domain.TenantStatus
	}{
		{domain.CommandConfirm, domain.TenantUnconfirmed, domain.TenantConfirmed},
		{domain.CommandReject, domain.TenantUnconfirmed, domain.TenantRejected},
		{domain.CommandDelete, domain.TenantConfirmed, domain.TenantDeleted},
	}

	for _, tc := range cases {
		found := false
		for _, tr := range domain.Transitions {
			if tr.Command == tc.cmd && tr.Src == tc.src && tr.Dst == tc.dst {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("missing transition: %q from %q → %q", tc.cmd, tc.src, tc.dst)
		}
	}
}

func TestTransitions_InvalidPaths(t *testing.T) {
	// These transitions must NOT exist.
	invalid := []struct {
		cmd domain.CommandKind
		src domain.TenantStatus
	}{
		{domain.CommandConfirm, domain.TenantConfirmed},
		{domain.CommandConfirm, domain.TenantRejected},
		{domain.CommandReject, domain.TenantConfirmed},
		{domain.CommandDelete, domain.TenantUnconfirmed},
		{domain.CommandDelete, domain.TenantDeleted},
	}

	for _, tc := range invalid {
		for _, tr := range domain.Transitions {
			if tr.Command == tc.cmd && tr.Src == tc.src {
				t.Errorf("unexpected transition: %q from %q should not exist", tc.cmd, tc.src)
			}
		}
	}
}
