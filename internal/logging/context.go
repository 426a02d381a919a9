package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent names the subsystem emitting the record.
	FieldComponent = "component"
	// FieldBatchID identifies the batch being processed.
	FieldBatchID = "batch_id"
	// FieldItem is the display name of the item being processed.
	FieldItem = "item"
	// FieldPhase is the batch phase (transcribing, embedding).
	FieldPhase = "phase"
	// FieldEventType classifies warnings and errors for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint tells the operator what to do next.
	FieldErrorHint = "error_hint"
	// FieldImpact is the user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldCorrelationID ties log lines to an HTTP request.
	FieldCorrelationID = "correlation_id"
)

type contextKey string

const (
	batchKey   contextKey = "batch_id"
	itemKey    contextKey = "item"
	phaseKey   contextKey = "phase"
	requestKey contextKey = "request_id"
)

// WithBatch annotates ctx with the batch identifier.
func WithBatch(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, batchKey, id)
}

// WithItem annotates ctx with the item display name.
func WithItem(ctx context.Context, name string) context.Context {
	if name == "" {
		return ctx
	}
	return context.WithValue(ctx, itemKey, name)
}

// WithPhase annotates ctx with the batch phase.
func WithPhase(ctx context.Context, phase string) context.Context {
	if phase == "" {
		return ctx
	}
	return context.WithValue(ctx, phaseKey, phase)
}

// WithRequestID annotates ctx with an HTTP correlation id.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestKey, id)
}

// ContextFields extracts standardized attributes from ctx.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	for _, entry := range []struct {
		key   contextKey
		field string
	}{
		{batchKey, FieldBatchID},
		{itemKey, FieldItem},
		{phaseKey, FieldPhase},
		{requestKey, FieldCorrelationID},
	} {
		if v, ok := ctx.Value(entry.key).(string); ok && v != "" {
			fields = append(fields, slog.String(entry.field, v))
		}
	}
	return fields
}

// WithContext returns a logger augmented with the fields carried by ctx.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
