// Package correlation carries per-request identifiers through context so
// that every log line written while serving a request can be joined up.
package correlation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
)

type key int

const (
	idKey key = iota
	actorKey
)

// attrNames maps each context key to the log attribute it becomes, in
// output order.
var attrNames = [...]string{
	idKey:    "correlation_id",
	actorKey: "actor_id",
}

// NewID generates an 8-character hex correlation ID (4 random bytes).
func NewID() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, idKey, id)
}

// ID extracts the correlation ID from ctx, returning ("", false) if not present.
func ID(ctx context.Context) (string, bool) {
	return lookup(ctx, idKey)
}

// WithActor records the caller's opaque actor id for logging.
func WithActor(ctx context.Context, actorID string) context.Context {
	return context.WithValue(ctx, actorKey, actorID)
}

func Actor(ctx context.Context) (string, bool) {
	return lookup(ctx, actorKey)
}

func lookup(ctx context.Context, k key) (string, bool) {
	v, ok := ctx.Value(k).(string)
	return v, ok && v != ""
}

// Handler is an slog.Handler that copies the identifiers found in a
// record's context onto the record.
type Handler struct {
	inner slog.Handler
}

func NewHandler(inner slog.Handler) *Handler {
	return &Handler{inner: inner}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	for k, name := range attrNames {
		if v, ok := lookup(ctx, key(k)); ok {
			r.AddAttrs(slog.String(name, v))
		}
	}
	if err := h.inner.Handle(ctx, r); err != nil {
		return fmt.Errorf("correlation handler: %w", err)
	}
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return NewHandler(h.inner.WithAttrs(attrs))
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return NewHandler(h.inner.WithGroup(name))
}
