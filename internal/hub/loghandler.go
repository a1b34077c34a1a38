package hub

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
)

// DefaultOrigin tags records that carry no "origin" attribute.
const DefaultOrigin = "cae"

// LogHandler tees every record into the hub as a log pane line before
// passing it to the base handler. The "origin" attribute selects the pane
// origin and is not repeated in the line text.
type LogHandler struct {
	base   slog.Handler
	hub    *Hub
	prefix string
	attrs  []slog.Attr
}

func NewLogHandler(base slog.Handler, hub *Hub) *LogHandler {
	return &LogHandler{base: base, hub: hub}
}

func (h *LogHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.base.Enabled(ctx, level)
}

func (h *LogHandler) Handle(ctx context.Context, r slog.Record) error {
	origin := DefaultOrigin
	var b strings.Builder
	b.WriteString(r.Message)

	add := func(a slog.Attr, prefix string) {
		if prefix == "" && a.Key == "origin" {
			origin = a.Value.String()
			return
		}
		appendAttr(&b, prefix, a)
	}
	for _, a := range h.attrs {
		add(a, "")
	}
	r.Attrs(func(a slog.Attr) bool {
		add(a, h.prefix)
		return true
	})

	h.hub.BroadcastLog(LogMessage{
		Level:  strings.ToLower(r.Level.String()),
		Origin: origin,
		Text:   b.String(),
		Ts:     r.Time.UnixMilli(),
	})
	return h.base.Handle(ctx, r)
}

func (h *LogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.base = h.base.WithAttrs(attrs)
	next.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		next.attrs = append(next.attrs, a)
	}
	return &next
}

func (h *LogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	next.base = h.base.WithGroup(name)
	next.prefix = h.prefix + name + "."
	return &next
}

func appendAttr(b *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			appendAttr(b, p, ga)
		}
		return
	}
	v := a.Value.String()
	if v == "" || strings.ContainsAny(v, " \t\"=") {
		v = strconv.Quote(v)
	}
	b.WriteByte(' ')
	b.WriteString(prefix + a.Key)
	b.WriteByte('=')
	b.WriteString(v)
}
