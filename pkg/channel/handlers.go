package channel

import (
	"sort"
	"sync"
)

// Handlers is a concurrency-safe registry of event handlers.
// Transports embed it to implement On and Off.
type Handlers struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
}

func (h *Handlers) On(event string, handler Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.handlers == nil {
		h.handlers = make(map[string][]Handler)
	}
	h.handlers[event] = append(h.handlers[event], handler)
}

func (h *Handlers) Off(event string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.handlers, event)
}

// Dispatch invokes the handlers of msg.Event in registration order
// and reports whether any were registered.
func (h *Handlers) Dispatch(msg *Message) bool {
	h.mu.RLock()
	list := h.handlers[msg.Event]
	h.mu.RUnlock()

	for _, handler := range list {
		handler(msg)
	}
	return len(list) > 0
}

// Events returns the events that currently have handlers, sorted.
func (h *Handlers) Events() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	events := make([]string, 0, len(h.handlers))
	for event := range h.handlers {
		events = append(events, event)
	}
	sort.Strings(events)
	return events
}

// CopyTo registers every handler of h on dst, preserving order per event.
func (h *Handlers) CopyTo(dst Channel) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for event, list := range h.handlers {
		for _, handler := range list {
			dst.On(event, handler)
		}
	}
}
