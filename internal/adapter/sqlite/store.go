package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/neomorfeo/useriq/internal/domain"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite" // Register SQLite driver.
)

//go:embed migrations/*.sql
var migrations embed.FS

// Compile-time check: UserStore implements domain.Store.
var _ domain.Store = (*UserStore)(nil)

// UserStore implements the snapshot store, event log and command log on a
// single SQLite database. The UNIQUE (user_id, version) constraint on the
// event log doubles as a conditional append: a losing racer gets a
// VersionConflictError instead of silently misordering events.
type UserStore struct {
	db *sql.DB
}

// New opens a SQLite database, runs migrations, and returns a ready store.
func New(dataSourceName string) (*UserStore, error) {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("setting WAL mode: %w", err)
	}

	// Enable foreign keys (off by default in SQLite).
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return NewFromDB(db)
}

// NewFromDB wraps an existing database connection, runs migrations, and
// returns a ready store. Use this when the *sql.DB has been pre-configured
// (e.g., with otelsql instrumentation).
func NewFromDB(db *sql.DB) (*UserStore, error) {
	if err := runMigrations(db); err != nil {
		return nil, err
	}

	return &UserStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *UserStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection for use by other adapters
// (e.g., river).
func (s *UserStore) DB() *sql.DB {
	return s.db
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}

	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}

const timeFormat = time.RFC3339Nano

// --- Snapshot store ---

func (s *UserStore) LatestSnapshot(ctx context.Context, userID string) (domain.Snapshot, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, tenancy_id, first_name, last_name, email, is_admin,
		        from_version, to_version, last_update, tenant_status, provider_status,
		        domain, confirm_token, expiry, created_at
		 FROM user_snapshots WHERE user_id = ?
		 ORDER BY to_version DESC LIMIT 1`, userID,
	)

	var snap domain.Snapshot
	var tenantStatus, providerStatus, lastUpdate, expiry, createdAt string

	err := row.Scan(&snap.ID, &snap.UserID, &snap.TenancyID, &snap.FirstName, &snap.LastName,
		&snap.Email, &snap.IsAdmin, &snap.FromVersion, &snap.ToVersion, &lastUpdate,
		&tenantStatus, &providerStatus, &snap.Domain, &snap.ConfirmToken, &expiry, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return domain.Snapshot{}, domain.ErrUserNotFound
		}
		return domain.Snapshot{}, fmt.Errorf("scanning snapshot: %w", err)
	}

	snap.TenantStatus = domain.TenantStatus(tenantStatus)
	snap.ProviderStatus = domain.ProviderStatus(providerStatus)
	snap.LastUpdate, _ = time.Parse(timeFormat, lastUpdate)
	snap.Expiry, _ = time.Parse(timeFormat, expiry)
	snap.CreatedAt, _ = time.Parse(timeFormat, createdAt)

	return snap, nil
}

func (s *UserStore) InsertSnapshot(ctx context.Context, snap domain.Snapshot) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_snapshots (id, user_id, tenancy_id, first_name, last_name, email,
		    is_admin, from_version, to_version, last_update, tenant_status, provider_status,
		    domain, confirm_token, expiry, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.UserID, snap.TenancyID, snap.FirstName, snap.LastName, snap.Email,
		snap.IsAdmin, snap.FromVersion, snap.ToVersion,
		snap.LastUpdate.UTC().Format(timeFormat),
		string(snap.TenantStatus), string(snap.ProviderStatus),
		snap.Domain, snap.ConfirmToken,
		snap.Expiry.UTC().Format(timeFormat),
		snap.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting snapshot: %w", err)
	}
	return nil
}

// --- Event log ---

// createdPayload is the kind-specific column payload of a created event.
type createdPayload struct {
	Expiry time.Time `json:"expiry"`
}

func (s *UserStore) EventsSince(ctx context.Context, userID string, fromVersion int) ([]domain.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, command_id, user_id, version, event_time, kind, payload
		 FROM user_events WHERE user_id = ? AND version > ?
		 ORDER BY version ASC`, userID, fromVersion,
	)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

func (s *UserStore) AppendEvent(ctx context.Context, event domain.Event) error {
	m := event.Meta()

	payload := "{}"
	if created, ok := event.(domain.CreatedEvent); ok {
		raw, err := json.Marshal(createdPayload{Expiry: created.Expiry.UTC()})
		if err != nil {
			return fmt.Errorf("encoding event payload: %w", err)
		}
		payload = string(raw)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_events (id, command_id, user_id, version, event_time, kind, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.CommandID, m.UserID, m.Version,
		m.At.UTC().Format(timeFormat), string(event.Kind()), payload,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return &domain.VersionConflictError{UserID: m.UserID, Version: m.Version}
		}
		return fmt.Errorf("inserting event: %w", err)
	}
	return nil
}

func scanEvent(rows *sql.Rows) (domain.Event, error) {
	var m domain.EventMeta
	var eventTime, kind, payload string

	if err := rows.Scan(&m.ID, &m.CommandID, &m.UserID, &m.Version, &eventTime, &kind, &payload); err != nil {
		return nil, fmt.Errorf("scanning event row: %w", err)
	}
	m.At, _ = time.Parse(timeFormat, eventTime)

	switch domain.EventKind(kind) {
	case domain.EventCreated:
		var p createdPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			return nil, fmt.Errorf("decoding created payload: %w", err)
		}
		return domain.CreatedEvent{EventMeta: m, Expiry: p.Expiry}, nil
	case domain.EventConfirmed:
		return domain.ConfirmedEvent{EventMeta: m}, nil
	case domain.EventRejected:
		return domain.RejectedEvent{EventMeta: m}, nil
	case domain.EventDeleted:
		return domain.DeletedEvent{EventMeta: m}, nil
	default:
		return nil, fmt.Errorf("unknown event kind %q for event %s", kind, m.ID)
	}
}

// --- Command log ---

// commandPayload captures the kind-specific command fields for the audit
// record. Secrets never land here: the confirm command's initial password
// is deliberately excluded.
type commandPayload struct {
	TenancyID string `json:"tenancy_id,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Email     string `json:"email,omitempty"`
	Domain    string `json:"domain,omitempty"`
	IsAdmin   bool   `json:"is_admin,omitempty"`
}

func (s *UserStore) RecordCommand(ctx context.Context, cmd domain.Command) error {
	m := cmd.Meta()

	var p commandPayload
	if create, ok := cmd.(domain.CreateCommand); ok {
		p = commandPayload{
			TenancyID: create.TenancyID,
			FirstName: create.FirstName,
			LastName:  create.LastName,
			Email:     create.Email,
			Domain:    create.Domain,
			IsAdmin:   create.IsAdmin,
		}
	}
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding command payload: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO user_commands (id, submitted_at, kind, user_id, payload)
		 VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.At.UTC().Format(timeFormat), string(cmd.Kind()), m.UserID, string(raw),
	)
	if err != nil {
		return fmt.Errorf("inserting command: %w", err)
	}
	return nil
}

// CommandCount reports the number of audit entries, optionally scoped to a
// user. Used by operators checking the audit trail.
func (s *UserStore) CommandCount(ctx context.Context, userID string) (int, error) {
	query := `SELECT COUNT(*) FROM user_commands`
	var args []any
	if userID != "" {
		query += ` WHERE user_id = ?`
		args = append(args, userID)
	}

	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting commands: %w", err)
	}
	return n, nil
}

// --- Census and compaction queries ---

func (s *UserStore) AdminUserIDs(ctx context.Context, tenancyID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM user_snapshots
		 WHERE tenancy_id = ? AND is_admin = 1`, tenancyID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying tenancy admins: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning admin id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *UserStore) CompactionCandidates(ctx context.Context, minEvents int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT e.user_id
		 FROM user_events e
		 JOIN (SELECT user_id, MAX(to_version) AS to_version
		       FROM user_snapshots GROUP BY user_id) latest
		   ON latest.user_id = e.user_id
		 WHERE e.version > latest.to_version
		 GROUP BY e.user_id
		 HAVING COUNT(*) >= ?`, minEvents,
	)
	if err != nil {
		return nil, fmt.Errorf("querying compaction candidates: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning candidate id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
