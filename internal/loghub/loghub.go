// Package loghub tees slog records into a bounded in-memory ring (served by
// the logs API) and to a publish callback (pushed to subscribers as
// log_update events), while delegating to the wrapped handler for normal
// output.
package loghub

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Entry is one captured log record.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

// Ring is a fixed-capacity circular log buffer.
type Ring struct {
	mu      sync.RWMutex
	entries []Entry
	next    int
	full    bool
}

// NewRing creates a ring holding up to capacity entries.
func NewRing(capacity int) *Ring {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring{entries: make([]Entry, capacity)}
}

// Add records an entry, evicting the oldest when full.
func (r *Ring) Add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

// Entries returns the buffered entries in chronological order.
func (r *Ring) Entries() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if !r.full {
		out := make([]Entry, r.next)
		copy(out, r.entries[:r.next])
		return out
	}
	out := make([]Entry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	out = append(out, r.entries[:r.next]...)
	return out
}

// Handler is a slog.Handler that captures records into a Ring and forwards
// them to a publish callback before delegating to the inner handler.
type Handler struct {
	inner   slog.Handler
	ring    *Ring
	publish func(Entry)
}

// NewHandler wraps inner. ring and publish may be nil to disable either sink.
func NewHandler(inner slog.Handler, ring *Ring, publish func(Entry)) *Handler {
	return &Handler{inner: inner, ring: ring, publish: publish}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *Handler) Handle(ctx context.Context, rec slog.Record) error {
	ts := rec.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	var b strings.Builder
	b.WriteString(rec.Message)
	rec.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&b, " %s=%v", a.Key, a.Value.Any())
		return true
	})

	e := Entry{Timestamp: ts, Level: rec.Level.String(), Message: b.String()}
	if h.ring != nil {
		h.ring.Add(e)
	}
	if h.publish != nil {
		h.publish(e)
	}
	return h.inner.Handle(ctx, rec)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{inner: h.inner.WithAttrs(attrs), ring: h.ring, publish: h.publish}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name), ring: h.ring, publish: h.publish}
}
