package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/neomorfeo/useriq/internal/domain"
)

// TracingPublisher wraps a domain.NotificationPublisher with OpenTelemetry tracing.
type TracingPublisher struct {
	next   domain.NotificationPublisher
	tracer trace.Tracer
}

// Compile-time check: TracingPublisher implements domain.NotificationPublisher.
var _ domain.NotificationPublisher = (*TracingPublisher)(nil)

// NewTracingPublisher creates a tracing decorator around the given publisher.
func NewTracingPublisher(next domain.NotificationPublisher) *TracingPublisher {
	return &TracingPublisher{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (p *TracingPublisher) Publish(ctx context.Context, user domain.User, event domain.Event) error {
	ctx, span := p.tracer.Start(ctx, "NotificationPublisher.Publish",
		trace.WithAttributes(
			attribute.String("event.kind", string(event.Kind())),
			attribute.String("event.routing_key", event.RoutingKey()),
			attribute.String("user.id", user.ID),
			attribute.Int("event.version", event.Meta().Version),
		),
	)
	defer span.End()

	err := p.next.Publish(ctx, user, event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
