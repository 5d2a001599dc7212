package collab

import (
	"context"

	"github.com/jonboulle/clockwork"
)

// pendingWrite is a debounced field write waiting for its timer.
type pendingWrite struct {
	timer  clockwork.Timer
	gen    uint64
	value  any
	cursor int
}

// schedule replaces the pending write of field. Must be called with mu held.
func (c *Coordinator) schedule(field string, value any, cursor int) {
	if p, ok := c.pending[field]; ok {
		p.timer.Stop()
	}

	c.generation++
	gen := c.generation
	c.pending[field] = &pendingWrite{
		gen:    gen,
		value:  value,
		cursor: cursor,
		timer: c.clock.AfterFunc(c.window, func() {
			c.fire(field, gen)
		}),
	}
}

// fire persists the write of field if it is still the one scheduled as gen.
// A timer that lost the race with Stop finds a newer generation, or none, and does nothing.
func (c *Coordinator) fire(field string, gen uint64) {
	c.mu.Lock()
	p, ok := c.pending[field]
	if !ok || p.gen != gen {
		c.mu.Unlock()
		return
	}
	delete(c.pending, field)
	documentID := c.documentID
	c.inflight.Add(1)
	c.mu.Unlock()

	defer c.inflight.Done()

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()
	c.persist(ctx, documentID, field, p.value, p.cursor)
}

// persist writes one field. Failures are logged and swallowed; the in-memory value stays
// authoritative until the next remote update or reload.
func (c *Coordinator) persist(ctx context.Context, documentID, field string, value any, cursor int) {
	version, err := c.store.UpdateField(ctx, documentID, field, value, cursor)
	c.metrics.persist(err)
	if err != nil {
		c.logger.Error("failed to persist field", "document_id", documentID, "field", field, "error", err)
		return
	}

	c.logger.Debug("persisted field", "document_id", documentID, "field", field, "version", version)

	if version == 0 {
		return
	}
	c.mu.Lock()
	if version > c.versions[field] {
		c.versions[field] = version
	}
	c.mu.Unlock()
}

// flush persists every pending write now, in field order. Best-effort, like the timers.
func (c *Coordinator) flush(ctx context.Context) {
	c.mu.Lock()
	writes := make(map[string]*pendingWrite, len(c.pending))
	for field, p := range c.pending {
		p.timer.Stop()
		writes[field] = p
	}
	c.pending = make(map[string]*pendingWrite)
	documentID := c.documentID
	c.inflight.Add(1)
	c.mu.Unlock()

	defer c.inflight.Done()

	for _, field := range sortedKeys(writes) {
		p := writes[field]
		c.persist(ctx, documentID, field, p.value, p.cursor)
	}
}

// stopTimers cancels every pending write. Must be called with mu held.
func (c *Coordinator) stopTimers() {
	for field, p := range c.pending {
		p.timer.Stop()
		delete(c.pending, field)
	}
}

// waitInflight blocks until every persist already sent has returned, or ctx is done.
func (c *Coordinator) waitInflight(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		c.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
	}
}
