package audit

import (
	"context"
	"time"

	"github.com/shiftdeck/shiftdeck/pkg/contextkeys"
)

// Logger is the interface for the audit sink. Recording is fire-and-forget
// from the caller's perspective: a mutation that succeeds must not be rolled
// back or failed because its audit record could not be written.
type Logger interface {
	// Record submits an audit event
	Record(ctx context.Context, event *Event) error

	// Close flushes buffered events and stops the logger
	Close() error
}

// WithLogger adds an audit logger to the context
func WithLogger(ctx context.Context, logger Logger) context.Context {
	return contextkeys.WithAuditLogger(ctx, logger)
}

// FromContext retrieves the audit logger from context, or a no-op logger
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(contextkeys.AuditLoggerKey).(Logger); ok {
		return logger
	}
	return NopLogger{}
}

// NopLogger discards all events. Used when no sink is configured and in tests.
type NopLogger struct{}

func (NopLogger) Record(ctx context.Context, event *Event) error { return nil }
func (NopLogger) Close() error                                   { return nil }

// NewEvent builds an event with the timestamp and request ID filled in
func NewEvent(ctx context.Context, eventType EventType, status EventStatus) *Event {
	return &Event{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		Status:    status,
		RequestID: contextkeys.GetRequestID(ctx),
	}
}

// Mutation records a successful data mutation performed by actorID
func Mutation(ctx context.Context, logger Logger, eventType EventType, actorID int64, resourceType ResourceType, resourceID string, changes *ChangeDetails) {
	event := NewEvent(ctx, eventType, EventStatusSuccess)
	event.ActorID = &actorID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Changes = changes
	_ = logger.Record(ctx, event)
}

// Denied records an access-denied decision
func Denied(ctx context.Context, logger Logger, actorID int64, resourceType ResourceType, resourceID string, message string) {
	event := NewEvent(ctx, EventTypeAuthzAccessDenied, EventStatusDenied)
	event.ActorID = &actorID
	event.ResourceType = resourceType
	event.ResourceID = resourceID
	event.Message = message
	_ = logger.Record(ctx, event)
}
