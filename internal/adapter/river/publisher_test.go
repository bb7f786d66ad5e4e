package river_test

import (
	"context"
	"database/sql"
	"strings"
	"testing"
	"time"

	goriver "github.com/riverqueue/river"

	_ "modernc.org/sqlite"

	riveradapter "github.com/neomorfeo/useriq/internal/adapter/river"
	"github.com/neomorfeo/useriq/internal/domain"
)

type stubService struct{}

func (stubService) ApplyCommand(ctx context.Context, cmd domain.Command) (domain.User, error) {
	return domain.User{}, nil
}

func (stubService) CompactSnapshots(ctx context.Context, minTail int) (int, error) {
	return 0, nil
}

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()

	dbPath := t.TempDir() + "/river_test.db"
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		t.Fatalf("setting WAL: %v", err)
	}

	return db
}

func setupClient(t *testing.T, db *sql.DB) *riveradapter.Client {
	t.Helper()

	client, err := riveradapter.Setup(context.Background(), db, riveradapter.Options{
		Service: func() riveradapter.CommandService { return stubService{} },
		NewID:   func() string { return "cmd-test" },
	})
	if err != nil {
		t.Fatalf("river setup: %v", err)
	}

	return client
}

func startClient(t *testing.T, client *riveradapter.Client) {
	t.Helper()

	if err := client.Start(context.Background()); err != nil {
		t.Fatalf("river start: %v", err)
	}
	t.Cleanup(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Stop(stopCtx); err != nil {
			t.Errorf("river stop: %v", err)
		}
	})
}

func TestPublisher_Publish_EnqueuesJob(t *testing.T) {
	db := setupTestDB(t)
	client := setupClient(t, db)
	ctx := context.Background()

	// Subscribe to job completions before starting so we don't miss events.
	subscribeChan, subscribeCancel := client.Subscribe(goriver.EventKindJobCompleted)
	defer subscribeCancel()

	startClient(t, client)

	pub := riveradapter.NewPublisher(client, "")
	user := domain.Snapshot{
		ID:             "s-1",
		UserID:         "u-1",
		TenancyID:      "t-1",
		Email:          "ada@example.test",
		TenantStatus:   domain.TenantConfirmed,
		ProviderStatus: domain.ProviderActive,
		ToVersion:      2,
	}.Project()
	event := domain.ConfirmedEvent{EventMeta: domain.EventMeta{
		ID: "e-1", CommandID: "c-1", UserID: "u-1", Version: 2, At: time.Now().UTC(),
	}}

	if err := pub.Publish(ctx, user, event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	// Wait for the worker to process the job.
	select {
	case ev := <-subscribeChan:
		if ev.Job.Kind != "user.notification" {
			t.Errorf("job kind = %q, want %q", ev.Job.Kind, "user.notification")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for job completion")
	}
}

func TestPublisher_Publish_RoutingKeyAndPayload(t *testing.T) {
	db := setupTestDB(t)
	client := setupClient(t, db)
	ctx := context.Background()

	subscribeChan, subscribeCancel := client.Subscribe(goriver.EventKindJobCompleted)
	defer subscribeCancel()

	startClient(t, client)

	pub := riveradapter.NewPublisher(client, "useriq")
	user := domain.Snapshot{
		ID:             "s-42",
		UserID:         "u-42",
		TenancyID:      "t-9",
		Email:          "grace@example.test",
		TenantStatus:   domain.TenantRejected,
		ProviderStatus: domain.ProviderActive,
		ToVersion:      2,
	}.Project()
	event := domain.RejectedEvent{EventMeta: domain.EventMeta{
		ID: "e-2", CommandID: "c-2", UserID: "u-42", Version: 2, At: time.Now().UTC(),
	}}

	if err := pub.Publish(ctx, user, event); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case ev := <-subscribeChan:
		// The args are stored as JSON; verify key fields are present.
		argsStr := string(ev.Job.EncodedArgs)
		for _, want := range []string{
			`"routing_key":"useriq.user.rejected"`,
			`"id":"u-42"`,
			`"tenancy_id":"t-9"`,
			`"id":"e-2"`,
			`"version":2`,
		} {
			if !strings.Contains(argsStr, want) {
				t.Errorf("encoded args missing %s, got: %s", want, argsStr)
			}
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for job completion")
	}
}

func TestTenancyConfirmedWorker_CreatesAdmin(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	applied := make(chan domain.Command, 1)
	svc := &capturingService{applied: applied}

	client, err := riveradapter.Setup(ctx, db, riveradapter.Options{
		Service: func() riveradapter.CommandService { return svc },
		NewID:   func() string { return "cmd-minted" },
	})
	if err != nil {
		t.Fatalf("river setup: %v", err)
	}

	startClient(t, client)

	_, err = client.Insert(ctx, riveradapter.TenancyConfirmedArgs{
		TenancyID:      "t-7",
		Domain:         "acme.example.test",
		AdminFirstName: "Ada",
		AdminLastName:  "Lovelace",
		AdminEmail:     "ada@acme.example.test",
	}, nil)
	if err != nil {
		t.Fatalf("inserting job: %v", err)
	}

	select {
	case cmd := <-applied:
		create, ok := cmd.(domain.CreateCommand)
		if !ok {
			t.Fatalf("applied command type = %T, want CreateCommand", cmd)
		}
		if !create.IsAdmin {
			t.Error("expected admin user creation")
		}
		if create.TenancyID != "t-7" {
			t.Errorf("tenancy = %q, want t-7", create.TenancyID)
		}
		if create.Meta().ID != "cmd-minted" {
			t.Errorf("command id = %q, want minted id", create.Meta().ID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for command")
	}
}

type capturingService struct {
	applied chan domain.Command
}

func (s *capturingService) ApplyCommand(ctx context.Context, cmd domain.Command) (domain.User, error) {
	s.applied <- cmd
	return domain.User{ID: "u-new"}, nil
}

func (s *capturingService) CompactSnapshots(ctx context.Context, minTail int) (int, error) {
	return 0, nil
}
