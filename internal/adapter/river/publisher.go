package river

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/riverqueue/river"

	"github.com/neomorfeo/useriq/internal/domain"
)

// Compile-time check: Publisher implements domain.NotificationPublisher.
var _ domain.NotificationPublisher = (*Publisher)(nil)

// UserPayload is the projection as it appears in outbound notifications.
type UserPayload struct {
	ID             string    `json:"id"`
	TenancyID      string    `json:"tenancy_id"`
	FirstName      string    `json:"first_name"`
	LastName       string    `json:"last_name"`
	Email          string    `json:"email"`
	IsAdmin        bool      `json:"is_admin"`
	Version        int       `json:"version"`
	TenantStatus   string    `json:"tenant_status"`
	ProviderStatus string    `json:"provider_status"`
	Domain         string    `json:"domain"`
	LastUpdate     time.Time `json:"last_update"`
	CreatedAt      time.Time `json:"created_at"`
	Expiry         time.Time `json:"expiry"`
}

// EventPayload is the durable event as it appears in outbound notifications.
type EventPayload struct {
	ID        string    `json:"id"`
	CommandID string    `json:"command_id"`
	UserID    string    `json:"user_id"`
	Version   int       `json:"version"`
	At        time.Time `json:"at"`
	Kind      string    `json:"kind"`
}

// NotificationJobArgs carries one outbound notification: the projection that
// resulted from a command bundled with the event that produced it, addressed
// by the event kind's routing key. River serializes this as JSON into its
// job queue table, so the worker never needs to query the event log.
type NotificationJobArgs struct {
	RoutingKey string       `json:"routing_key"`
	User       UserPayload  `json:"user"`
	Event      EventPayload `json:"event"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (NotificationJobArgs) Kind() string { return "user.notification" }

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Publisher implements domain.NotificationPublisher by enqueuing River
// jobs. An optional topic prefix (e.g. an exchange namespace) is applied
// to every routing key.
type Publisher struct {
	client *Client
	prefix string
}

// NewPublisher creates a publisher backed by the given River client.
func NewPublisher(client *Client, topicPrefix string) *Publisher {
	return &Publisher{client: client, prefix: topicPrefix}
}

// Publish enqueues the notification for a durable event.
func (p *Publisher) Publish(ctx context.Context, u domain.User, event domain.Event) error {
	key := event.RoutingKey()
	if p.prefix != "" {
		key = p.prefix + "." + key
	}
	m := event.Meta()

	_, err := p.client.Insert(ctx, NotificationJobArgs{
		RoutingKey: key,
		User: UserPayload{
			ID:             u.ID,
			TenancyID:      u.TenancyID,
			FirstName:      u.FirstName,
			LastName:       u.LastName,
			Email:          u.Email,
			IsAdmin:        u.IsAdmin,
			Version:        u.Version,
			TenantStatus:   string(u.TenantStatus),
			ProviderStatus: string(u.ProviderStatus),
			Domain:         u.Domain,
			LastUpdate:     u.LastUpdate,
			CreatedAt:      u.CreatedAt,
			Expiry:         u.Expiry,
		},
		Event: EventPayload{
			ID:        m.ID,
			CommandID: m.CommandID,
			UserID:    m.UserID,
			Version:   m.Version,
			At:        m.At,
			Kind:      string(event.Kind()),
		},
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing notification job: %w", err)
	}
	return nil
}
