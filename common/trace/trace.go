// Package trace carries a per-interaction correlation id through
// context.Context so that every log line emitted while processing one
// exchange can be grouped.
package trace

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"
)

type traceKey struct{}

// NewID returns a fresh interaction id ("ix_" + UUIDv4, dashes removed).
func NewID() string {
	return "ix_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// WithID returns a child context carrying id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, traceKey{}, id)
}

// Ensure returns ctx unchanged when it already carries an id, otherwise a
// child context with a new one.
func Ensure(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := NewID()
	return WithID(ctx, id), id
}

// FromContext returns the id stored in ctx, or "".
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok {
		return v
	}
	return ""
}

// Logger returns base (or slog.Default when nil) annotated with the trace id
// from ctx, if any.
func Logger(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	if id := FromContext(ctx); id != "" {
		return base.With("trace_id", id)
	}
	return base
}
