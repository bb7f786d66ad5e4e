package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/useriq/internal/domain"
)

const tracerName = "github.com/neomorfeo/useriq/internal/adapter/otel"

// TracingStore wraps a domain.Store with OpenTelemetry tracing. Each
// method creates a span with semantic attributes and records errors.
type TracingStore struct {
	next   domain.Store
	tracer trace.Tracer
}

// Compile-time check: TracingStore implements domain.Store.
var _ domain.Store = (*TracingStore)(nil)

// NewTracingStore creates a tracing decorator around the given store.
func NewTracingStore(next domain.Store) *TracingStore {
	return &TracingStore{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (s *TracingStore) LatestSnapshot(ctx context.Context, userID string) (domain.Snapshot, error) {
	ctx, span := s.tracer.Start(ctx, "Store.LatestSnapshot",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	snap, err := s.next.LatestSnapshot(ctx, userID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("snapshot.to_version", snap.ToVersion))
	}
	return snap, err
}

func (s *TracingStore) InsertSnapshot(ctx context.Context, snap domain.Snapshot) error {
	ctx, span := s.tracer.Start(ctx, "Store.InsertSnapshot",
		trace.WithAttributes(
			attribute.String("user.id", snap.UserID),
			attribute.Int("snapshot.to_version", snap.ToVersion),
		),
	)
	defer span.End()

	err := s.next.InsertSnapshot(ctx, snap)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *TracingStore) EventsSince(ctx context.Context, userID string, fromVersion int) ([]domain.Event, error) {
	ctx, span := s.tracer.Start(ctx, "Store.EventsSince",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("from_version", fromVersion),
		),
	)
	defer span.End()

	events, err := s.next.EventsSince(ctx, userID, fromVersion)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("result.count", len(events)))
	}
	return events, err
}

func (s *TracingStore) AppendEvent(ctx context.Context, event domain.Event) error {
	m := event.Meta()
	ctx, span := s.tracer.Start(ctx, "Store.AppendEvent",
		trace.WithAttributes(
			attribute.String("user.id", m.UserID),
			attribute.String("event.kind", string(event.Kind())),
			attribute.Int("event.version", m.Version),
		),
	)
	defer span.End()

	err := s.next.AppendEvent(ctx, event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *TracingStore) RecordCommand(ctx context.Context, cmd domain.Command) error {
	ctx, span := s.tracer.Start(ctx, "Store.RecordCommand",
		trace.WithAttributes(
			attribute.String("command.id", cmd.Meta().ID),
			attribute.String("command.kind", string(cmd.Kind())),
		),
	)
	defer span.End()

	err := s.next.RecordCommand(ctx, cmd)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *TracingStore) AdminUserIDs(ctx context.Context, tenancyID string) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "Store.AdminUserIDs",
		trace.WithAttributes(attribute.String("tenancy.id", tenancyID)),
	)
	defer span.End()

	ids, err := s.next.AdminUserIDs(ctx, tenancyID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("result.count", len(ids)))
	}
	return ids, err
}

func (s *TracingStore) CompactionCandidates(ctx context.Context, minEvents int) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "Store.CompactionCandidates",
		trace.WithAttributes(attribute.Int("min_events", minEvents)),
	)
	defer span.End()

	ids, err := s.next.CompactionCandidates(ctx, minEvents)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("result.count", len(ids)))
	}
	return ids, err
}
