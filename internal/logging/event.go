package logging

import (
	"context"

	"github.com/rs/zerolog"
)

// EventLogger provides logging for the optional progress event bus
// (NATS/Watermill publisher in internal/eventbus).
type EventLogger struct {
	logger zerolog.Logger
}

// NewEventLogger creates a logger configured for event-bus activity.
func NewEventLogger() *EventLogger {
	return &EventLogger{
		logger: WithComponent("eventbus"),
	}
}

// InfoContext logs an info message with correlation fields from ctx.
func (e *EventLogger) InfoContext(ctx context.Context, msg string, fields ...interface{}) {
	event := e.loggerWithContext(ctx).Info()
	addFieldPairs(event, fields).Msg(msg)
}

// WarnContext logs a warning message with correlation fields from ctx.
func (e *EventLogger) WarnContext(ctx context.Context, msg string, fields ...interface{}) {
	event := e.loggerWithContext(ctx).Warn()
	addFieldPairs(event, fields).Msg(msg)
}

func (e *EventLogger) loggerWithContext(ctx context.Context) zerolog.Logger {
	logCtx := e.logger.With()
	if correlationID := CorrelationIDFromContext(ctx); correlationID != "" {
		logCtx = logCtx.Str("correlation_id", correlationID)
	}
	return logCtx.Logger()
}

// LogEventPublished logs a successful publish to the event bus.
func (e *EventLogger) LogEventPublished(ctx context.Context, stage, subject string) {
	e.InfoContext(ctx, "progress event published",
		"stage", stage,
		"subject", subject,
	)
}

// LogPublishFailed logs a publish failure. Publish failures never abort
// the download; they are observability gaps only.
func (e *EventLogger) LogPublishFailed(ctx context.Context, stage string, err error) {
	logger := e.loggerWithContext(ctx)
	logger.Warn().Str("stage", stage).Err(err).Msg("progress event publish failed")
}

// addFieldPairs adds alternating key/value pairs to a zerolog event.
func addFieldPairs(e *zerolog.Event, fields []interface{}) *zerolog.Event {
	for i := 0; i < len(fields); i += 2 {
		if i+1 < len(fields) {
			key, ok := fields[i].(string)
			if !ok {
				continue
			}
			e = e.Interface(key, fields[i+1])
		}
	}
	return e
}
