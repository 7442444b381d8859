package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/hostedraids/muster/internal/domain"
)

const tracerName = "github.com/hostedraids/muster/internal/adapter/otel"

// TracingStore wraps a domain.EventStore with OpenTelemetry tracing.
// Each method creates a span with semantic attributes and records errors.
type TracingStore struct {
	next   domain.EventStore
	tracer trace.Tracer
}

// Compile-time check: TracingStore implements domain.EventStore.
var _ domain.EventStore = (*TracingStore)(nil)

// NewTracingStore creates a tracing decorator around the given store.
func NewTracingStore(next domain.EventStore) *TracingStore {
	return &TracingStore{
		next:   next,
		tracer: otel.Tracer(tracerName),
	}
}

func (s *TracingStore) CreateEvent(ctx context.Context, event domain.Event) error {
	ctx, span := s.tracer.Start(ctx, "EventStore.CreateEvent",
		trace.WithAttributes(
			attribute.String("event.id", event.ID),
			attribute.String("guild.id", event.GuildID),
		),
	)
	defer span.End()

	err := s.next.CreateEvent(ctx, event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *TracingStore) GetEvent(ctx context.Context, id string) (domain.Event, error) {
	ctx, span := s.tracer.Start(ctx, "EventStore.GetEvent",
		trace.WithAttributes(attribute.String("event.id", id)),
	)
	defer span.End()

	event, err := s.next.GetEvent(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return event, err
}

func (s *TracingStore) UpdateEvent(ctx context.Context, event domain.Event) error {
	ctx, span := s.tracer.Start(ctx, "EventStore.UpdateEvent",
		trace.WithAttributes(
			attribute.String("event.id", event.ID),
			attribute.String("event.retirement", string(event.Retirement)),
		),
	)
	defer span.End()

	err := s.next.UpdateEvent(ctx, event)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *TracingStore) DeleteEvent(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "EventStore.DeleteEvent",
		trace.WithAttributes(attribute.String("event.id", id)),
	)
	defer span.End()

	err := s.next.DeleteEvent(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *TracingStore) ListEvents(ctx context.Context, filter domain.ListFilter) ([]domain.Event, error) {
	ctx, span := s.tracer.Start(ctx, "EventStore.ListEvents")
	defer span.End()

	if filter.GuildID != "" {
		span.SetAttributes(attribute.String("filter.guild_id", filter.GuildID))
	}
	if filter.Retirement != nil {
		span.SetAttributes(attribute.String("filter.retirement", string(*filter.Retirement)))
	}

	events, err := s.next.ListEvents(ctx, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("result.count", len(events)))
	}
	return events, err
}

func (s *TracingStore) InsertSignup(ctx context.Context, signup domain.Signup) error {
	ctx, span := s.tracer.Start(ctx, "EventStore.InsertSignup",
		trace.WithAttributes(
			attribute.String("event.id", signup.EventID),
			attribute.String("player.id", signup.PlayerID),
			attribute.String("signup.role", string(signup.Role)),
		),
	)
	defer span.End()

	err := s.next.InsertSignup(ctx, signup)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (s *TracingStore) ListSignups(ctx context.Context, eventID string, role *domain.RoleKind) ([]domain.Signup, error) {
	ctx, span := s.tracer.Start(ctx, "EventStore.ListSignups",
		trace.WithAttributes(attribute.String("event.id", eventID)),
	)
	defer span.End()

	if role != nil {
		span.SetAttributes(attribute.String("signup.role", string(*role)))
	}

	signups, err := s.next.ListSignups(ctx, eventID, role)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("result.count", len(signups)))
	}
	return signups, err
}

func (s *TracingStore) DeleteSignups(ctx context.Context, eventID, playerID string, role *domain.RoleKind) (int64, error) {
	ctx, span := s.tracer.Start(ctx, "EventStore.DeleteSignups",
		trace.WithAttributes(
			attribute.String("event.id", eventID),
			attribute.String("player.id", playerID),
		),
	)
	defer span.End()

	if role != nil {
		span.SetAttributes(attribute.String("signup.role", string(*role)))
	}

	removed, err := s.next.DeleteSignups(ctx, eventID, playerID, role)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int64("result.removed", removed))
	}
	return removed, err
}

func (s *TracingStore) DeleteMostRecentSignups(ctx context.Context, eventID string, role domain.RoleKind, n int) ([]domain.Signup, error) {
	ctx, span := s.tracer.Start(ctx, "EventStore.DeleteMostRecentSignups",
		trace.WithAttributes(
			attribute.String("event.id", eventID),
			attribute.String("signup.role", string(role)),
			attribute.Int("evict.count", n),
		),
	)
	defer span.End()

	evicted, err := s.next.DeleteMostRecentSignups(ctx, eventID, role, n)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("result.count", len(evicted)))
	}
	return evicted, err
}

func (s *TracingStore) DistinctSignupPlayers(ctx context.Context, eventID string) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "EventStore.DistinctSignupPlayers",
		trace.WithAttributes(attribute.String("event.id", eventID)),
	)
	defer span.End()

	players, err := s.next.DistinctSignupPlayers(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("result.count", len(players)))
	}
	return players, err
}

func (s *TracingStore) ListPlayerEvents(ctx context.Context, guildID, playerID string) ([]domain.Event, error) {
	ctx, span := s.tracer.Start(ctx, "EventStore.ListPlayerEvents",
		trace.WithAttributes(
			attribute.String("guild.id", guildID),
			attribute.String("player.id", playerID),
		),
	)
	defer span.End()

	events, err := s.next.ListPlayerEvents(ctx, guildID, playerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("result.count", len(events)))
	}
	return events, err
}
