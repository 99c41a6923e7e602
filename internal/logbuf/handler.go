package logbuf

import (
	"context"
	"log/slog"
	"maps"
)

// Handler is an slog.Handler that mirrors every record into a Buffer and
// then passes it to an inner handler.
type Handler struct {
	inner  slog.Handler
	buf    *Buffer
	bound  map[string]any // WithAttrs values, keys already qualified
	prefix string         // open groups joined with "."
}

// NewHandler creates a handler that writes to both buf and inner.
func NewHandler(inner slog.Handler, buf *Buffer) *Handler {
	return &Handler{inner: inner, buf: buf}
}

// Enabled always reports true: the buffer keeps every level and the inner
// handler applies its own filter in Handle.
func (h *Handler) Enabled(context.Context, slog.Level) bool {
	return true
}

func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	entry := Entry{Time: r.Time, Level: r.Level.String(), Message: r.Message}

	if n := len(h.bound) + r.NumAttrs(); n > 0 {
		attrs := make(map[string]any, n)
		maps.Copy(attrs, h.bound)
		r.Attrs(func(a slog.Attr) bool {
			flatten(attrs, h.prefix, a)
			return true
		})
		entry.Attrs = attrs
		entry.SessionID, _ = attrs[SessionKey].(string)
	}
	h.buf.Write(entry)

	if !h.inner.Enabled(ctx, r.Level) {
		return nil
	}
	return h.inner.Handle(ctx, r)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := make(map[string]any, len(h.bound)+len(attrs))
	maps.Copy(bound, h.bound)
	for _, a := range attrs {
		flatten(bound, h.prefix, a)
	}
	return &Handler{inner: h.inner.WithAttrs(attrs), buf: h.buf, bound: bound, prefix: h.prefix}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &Handler{inner: h.inner.WithGroup(name), buf: h.buf, bound: h.bound, prefix: qualify(h.prefix, name)}
}

// flatten stores a in dst under its dotted key. Group values are expanded
// and errors are kept as their message so entries marshal to readable JSON.
func flatten(dst map[string]any, prefix string, a slog.Attr) {
	v := a.Value.Resolve()
	if v.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix = qualify(prefix, a.Key)
		}
		for _, ga := range v.Group() {
			flatten(dst, prefix, ga)
		}
		return
	}
	if a.Key == "" {
		return
	}
	raw := v.Any()
	if err, ok := raw.(error); ok {
		raw = err.Error()
	}
	dst[qualify(prefix, a.Key)] = raw
}

func qualify(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
