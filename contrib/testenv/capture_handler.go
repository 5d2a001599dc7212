package testenv

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Entry is one captured log record.
type Entry struct {
	Level   slog.Level
	Message string
	Attrs   map[string]any

	line string
}

// String renders the entry without a timestamp, as "LEVEL: message k=v, k=v".
// Attributes are rendered in the order they were logged.
func (e Entry) String() string {
	return e.line
}

// CaptureHandler is a slog.Handler that records every record in memory so tests can
// assert on what was logged. It is safe for concurrent use; handlers derived with
// WithAttrs and WithGroup record into the same store.
type CaptureHandler struct {
	store  *captureStore
	attrs  []slog.Attr
	groups []string
	level  slog.Level
}

type captureStore struct {
	mu      sync.Mutex
	entries []Entry
}

func NewCaptureHandler() *CaptureHandler {
	return &CaptureHandler{store: &captureStore{}, level: slog.LevelDebug}
}

// NewCaptureHandlerAt ignores records below level.
func NewCaptureHandlerAt(level slog.Level) *CaptureHandler {
	h := NewCaptureHandler()
	h.level = level
	return h
}

func (h *CaptureHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

//nolint:gocritic
func (h *CaptureHandler) Handle(_ context.Context, r slog.Record) error {
	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}

	e := Entry{Level: r.Level, Message: r.Message, Attrs: make(map[string]any)}
	var parts []string
	add := func(key string, a slog.Attr) {
		e.Attrs[key] = a.Value.Any()
		parts = append(parts, fmt.Sprintf("%s=%v", key, a.Value))
	}

	for _, a := range h.attrs {
		add(a.Key, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		add(prefix+a.Key, a)
		return true
	})

	e.line = fmt.Sprintf("%s: %s", r.Level, r.Message)
	if len(parts) > 0 {
		e.line += " " + strings.Join(parts, ", ")
	}

	h.store.mu.Lock()
	h.store.entries = append(h.store.entries, e)
	h.store.mu.Unlock()
	return nil
}

func (h *CaptureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefix := ""
	if len(h.groups) > 0 {
		prefix = strings.Join(h.groups, ".") + "."
	}
	next := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next = append(next, h.attrs...)
	for _, a := range attrs {
		next = append(next, slog.Attr{Key: prefix + a.Key, Value: a.Value})
	}
	return &CaptureHandler{store: h.store, attrs: next, groups: h.groups, level: h.level}
}

func (h *CaptureHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &CaptureHandler{
		store:  h.store,
		attrs:  h.attrs,
		groups: append(h.groups[:len(h.groups):len(h.groups)], name),
		level:  h.level,
	}
}

// Entries returns a copy of everything captured so far.
func (h *CaptureHandler) Entries() []Entry {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	return append([]Entry(nil), h.store.entries...)
}

// Lines returns the entries rendered as "[index] LEVEL: message attrs".
func (h *CaptureHandler) Lines() []string {
	entries := h.Entries()
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = fmt.Sprintf("[%d] %s", i, e)
	}
	return lines
}

// Has reports whether any entry carries exactly this message.
func (h *CaptureHandler) Has(message string) bool {
	return len(h.Find(message)) > 0
}

// Find returns the entries carrying exactly this message.
func (h *CaptureHandler) Find(message string) []Entry {
	var out []Entry
	for _, e := range h.Entries() {
		if e.Message == message {
			out = append(out, e)
		}
	}
	return out
}

// Count returns the number of entries at level.
func (h *CaptureHandler) Count(level slog.Level) int {
	n := 0
	for _, e := range h.Entries() {
		if e.Level == level {
			n++
		}
	}
	return n
}

// Reset drops everything captured so far.
func (h *CaptureHandler) Reset() {
	h.store.mu.Lock()
	defer h.store.mu.Unlock()

	h.store.entries = nil
}
