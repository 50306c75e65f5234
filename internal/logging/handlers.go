package logging

import (
	"context"
	"errors"
	"log/slog"
)

// ContextProvider returns process-wide attributes stamped onto every record,
// such as the storage driver and the default identity.
type ContextProvider func() []slog.Attr

type ctxAttrsKey struct{}

// With returns a context that carries attrs. Records logged with that
// context (InfoContext and friends) get them appended, which is how
// request scoped fields like the route or record id reach every sink.
func With(ctx context.Context, attrs ...slog.Attr) context.Context {
	if len(attrs) == 0 {
		return ctx
	}
	prev := attrsFrom(ctx)
	merged := make([]slog.Attr, 0, len(prev)+len(attrs))
	merged = append(merged, prev...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, ctxAttrsKey{}, merged)
}

func attrsFrom(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	attrs, _ := ctx.Value(ctxAttrsKey{}).([]slog.Attr)
	return attrs
}

// stampHandler adds provider and context attributes before delegating.
type stampHandler struct {
	inner    slog.Handler
	provider ContextProvider
}

func (h *stampHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *stampHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.provider != nil {
		r.AddAttrs(h.provider()...)
	}
	r.AddAttrs(attrsFrom(ctx)...)
	return h.inner.Handle(ctx, r)
}

func (h *stampHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &stampHandler{inner: h.inner.WithAttrs(attrs), provider: h.provider}
}

func (h *stampHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &stampHandler{inner: h.inner.WithGroup(name), provider: h.provider}
}

// teeHandler hands each record to every sink that accepts its level.
// One failing sink does not starve the others; their errors are joined.
type teeHandler []slog.Handler

func newTee(handlers ...slog.Handler) teeHandler {
	t := make(teeHandler, 0, len(handlers))
	for _, h := range handlers {
		if h != nil {
			t = append(t, h)
		}
	}
	return t
}

func (t teeHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (t teeHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t teeHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t teeHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return t
	}
	out := make(teeHandler, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}
