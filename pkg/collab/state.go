package collab

import (
	"sort"

	"github.com/greendrive/impactboard/pkg/models"
)

// Participants returns the remote users in the room, in arrival order.
// The local user is never included.
func (c *Coordinator) Participants() []models.Participant {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]models.Participant(nil), c.roster...)
}

// FocusClaims returns the current claim of every field someone else is editing.
func (c *Coordinator) FocusClaims() map[string]models.FocusClaim {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]models.FocusClaim, len(c.claims))
	for field, claim := range c.claims {
		out[field] = claim
	}
	return out
}

func (c *Coordinator) FocusClaim(field string) (models.FocusClaim, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	claim, ok := c.claims[field]
	return claim, ok
}

// Cursors returns the last known cursor of every remote user, keyed by user id.
func (c *Coordinator) Cursors() map[string]models.CursorMarker {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]models.CursorMarker, len(c.cursors))
	for userID, marker := range c.cursors {
		out[userID] = marker
	}
	return out
}

func (c *Coordinator) Cursor(userID string) (models.CursorMarker, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	marker, ok := c.cursors[userID]
	return marker, ok
}

// Fields returns a copy of the current field values, local edits included.
func (c *Coordinator) Fields() models.Fields {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.fields.Clone()
}

func (c *Coordinator) Field(name string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.fields[name]
	return v, ok
}

// Version returns the last known store version of field, 0 if unversioned.
func (c *Coordinator) Version(field string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.versions[field]
}

// PendingWrites returns the fields with a debounced write not yet sent, sorted.
func (c *Coordinator) PendingWrites() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return sortedKeys(c.pending)
}

func (c *Coordinator) IsFinalized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.finalized
}

// Summary returns the summary generated by a local Finalize, "" otherwise.
func (c *Coordinator) Summary() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.summary
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
