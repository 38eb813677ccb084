package events

import (
	"context"
	"log/slog"

	platformevents "lead_distribution_backend/platform/events"
	"lead_distribution_backend/platform/logger"

	"github.com/google/uuid"
)

// InMemoryBus is a type alias to the platform InMemoryBus
type InMemoryBus = platformevents.InMemoryBus

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return platformevents.NewInMemoryBus(log)
}

// SubscribeAll registers handler for every name.
func SubscribeAll(bus Bus, names []string, handler Handler) {
	for _, name := range names {
		bus.Subscribe(name, handler)
	}
}

// AuditLogger returns a handler that writes every event to the log as a
// structured line. It is the default subscriber in both processes.
func AuditLogger(log *logger.Logger) Handler {
	return HandlerFunc(func(ctx context.Context, event Event) error {
		attrs := []any{
			slog.String("event", event.EventName()),
			slog.Time("occurred_at", event.OccurredAt()),
		}
		if ided, ok := event.(interface{ EventID() uuid.UUID }); ok {
			attrs = append(attrs, slog.String("event_id", ided.EventID().String()))
		}
		attrs = append(attrs, slog.Any("payload", event))
		log.WithContext(ctx).Info("domain_event", attrs...)
		return nil
	})
}
