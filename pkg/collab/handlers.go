package collab

import (
	"context"

	"github.com/greendrive/impactboard/pkg/channel"
	"github.com/greendrive/impactboard/pkg/constants"
	"github.com/greendrive/impactboard/pkg/models"
)

const (
	outcomeDuplicate = "duplicate"
	outcomeUnmatched = "unmatched"
)

// handle decodes the payload of event into T and applies it under the lock.
// apply returns the change to report and the outcome to count; only applied events are reported.
func handle[T any](c *Coordinator, event string, apply func(payload *T) (Change, string)) channel.Handler {
	return func(msg *channel.Message) {
		var payload T
		if err := msg.Decode(&payload); err != nil {
			c.logger.Warn("dropping invalid event", "event", event, "error", err)
			c.metrics.event(event, outcomeInvalid)
			return
		}

		c.mu.Lock()
		if !c.active() {
			c.mu.Unlock()
			c.metrics.event(event, outcomeInactive)
			return
		}
		change, outcome := apply(&payload)
		c.mu.Unlock()

		c.metrics.event(event, outcome)
		if outcome != outcomeApplied {
			c.logger.Debug("ignored event", "event", event, "outcome", outcome)
			return
		}
		c.logger.Debug("applied event", "event", event, "user_id", change.UserID, "field", change.Field)
		c.notify(change)
	}
}

func (c *Coordinator) subscribe() {
	handlers := map[string]channel.Handler{
		constants.EventActiveUsers:    handle(c, constants.EventActiveUsers, c.applyRoster),
		constants.EventUserJoined:     handle(c, constants.EventUserJoined, c.applyUserJoined),
		constants.EventUserLeft:       handle(c, constants.EventUserLeft, c.applyUserLeft),
		constants.EventBoardUpdate:    handle(c, constants.EventBoardUpdate, c.applyBoardUpdate),
		constants.EventFieldFocused:   handle(c, constants.EventFieldFocused, c.applyFieldFocused),
		constants.EventFieldBlurred:   handle(c, constants.EventFieldBlurred, c.applyFieldBlurred),
		constants.EventRemoteCursor:   handle(c, constants.EventRemoteCursor, c.applyRemoteCursor),
		constants.EventBoardFinalized: handle(c, constants.EventBoardFinalized, c.applyBoardFinalized),
	}

	c.mu.Lock()
	c.registered = c.registered[:0]
	for event := range handlers {
		c.registered = append(c.registered, event)
	}
	hookNeeded := !c.reconnectOn
	c.reconnectOn = true
	c.mu.Unlock()

	for event, h := range handlers {
		c.ch.On(event, h)
	}

	if r, ok := c.ch.(channel.Reconnector); ok && hookNeeded {
		r.OnReconnect(c.resync)
	}
}

func (c *Coordinator) unsubscribe() {
	c.mu.Lock()
	events := append([]string(nil), c.registered...)
	c.registered = nil
	c.mu.Unlock()

	for _, event := range events {
		c.ch.Off(event)
	}
}

// sender is one session of a remote user. Each session numbers its events from 1.
type sender struct {
	userID  string
	session string
}

// acceptSeq drops events from a sender session that are not newer than the last one applied.
// Events without a sequence number are always accepted. Must be called with mu held.
func (c *Coordinator) acceptSeq(userID, session string, seq uint64) bool {
	if seq == 0 {
		return true
	}
	from := sender{userID: userID, session: session}
	if seq <= c.lastSeq[from] {
		return false
	}
	c.lastSeq[from] = seq
	return true
}

// forgetSeq drops the sequence state of every session of userID. Must be called with mu held.
func (c *Coordinator) forgetSeq(userID string) {
	for from := range c.lastSeq {
		if from.userID == userID {
			delete(c.lastSeq, from)
		}
	}
}

func (c *Coordinator) isSelf(userID string) bool {
	return userID == c.identity.UserID
}

// applyRoster replaces the participant set wholesale. The local user is filtered out here,
// and claims and cursors of users no longer present are dropped.
func (c *Coordinator) applyRoster(list *[]models.Participant) (Change, string) {
	present := make(map[string]bool, len(*list))
	roster := make([]models.Participant, 0, len(*list))
	for _, p := range *list {
		if p.UserID == "" || c.isSelf(p.UserID) || present[p.UserID] {
			continue
		}
		present[p.UserID] = true
		roster = append(roster, p)
	}
	c.roster = roster

	for field, claim := range c.claims {
		if !present[claim.UserID] {
			delete(c.claims, field)
		}
	}
	for userID := range c.cursors {
		if !present[userID] {
			delete(c.cursors, userID)
		}
	}
	for from := range c.lastSeq {
		if !present[from.userID] {
			delete(c.lastSeq, from)
		}
	}

	c.metrics.setParticipants(len(roster))
	return Change{Kind: ChangeRoster}, outcomeApplied
}

func (c *Coordinator) applyUserJoined(ev *models.UserJoinedEvent) (Change, string) {
	if c.isSelf(ev.UserID) {
		return Change{}, outcomeSelf
	}
	if ev.UserID == "" {
		return Change{}, outcomeInvalid
	}
	for _, p := range c.roster {
		if p.UserID == ev.UserID {
			return Change{}, outcomeDuplicate
		}
	}

	c.roster = append(c.roster, models.Participant{UserID: ev.UserID, UserName: ev.UserName})
	// a (re)joining user starts a new sequence
	c.forgetSeq(ev.UserID)

	c.metrics.setParticipants(len(c.roster))
	return Change{Kind: ChangeRoster, UserID: ev.UserID}, outcomeApplied
}

func (c *Coordinator) applyUserLeft(ev *models.UserLeftEvent) (Change, string) {
	if c.isSelf(ev.UserID) {
		return Change{}, outcomeSelf
	}

	roster := c.roster[:0]
	for _, p := range c.roster {
		if p.UserID != ev.UserID {
			roster = append(roster, p)
		}
	}
	c.roster = roster

	for field, claim := range c.claims {
		if claim.UserID == ev.UserID {
			delete(c.claims, field)
		}
	}
	delete(c.cursors, ev.UserID)
	c.forgetSeq(ev.UserID)

	c.metrics.setParticipants(len(c.roster))
	return Change{Kind: ChangeRoster, UserID: ev.UserID}, outcomeApplied
}

func (c *Coordinator) applyBoardUpdate(ev *models.BoardUpdateEvent) (Change, string) {
	switch {
	case c.isSelf(ev.UserID):
		return Change{}, outcomeSelf
	case c.finalized:
		return Change{}, outcomeFinalized
	case ev.Field == "":
		return Change{}, outcomeInvalid
	}

	if ev.Version > 0 {
		if ev.Version <= c.versions[ev.Field] {
			return Change{}, outcomeStale
		}
		c.versions[ev.Field] = ev.Version
	}
	c.fields[ev.Field] = ev.Value

	return Change{Kind: ChangeField, Field: ev.Field, UserID: ev.UserID}, outcomeApplied
}

func (c *Coordinator) applyFieldFocused(ev *models.FieldFocusedEvent) (Change, string) {
	switch {
	case c.isSelf(ev.UserID):
		return Change{}, outcomeSelf
	case c.finalized:
		return Change{}, outcomeFinalized
	case ev.Field == "":
		return Change{}, outcomeInvalid
	case !c.acceptSeq(ev.UserID, ev.Session, ev.Seq):
		return Change{}, outcomeStale
	}

	c.claims[ev.Field] = models.FocusClaim{FieldName: ev.Field, UserID: ev.UserID, UserName: ev.UserName}
	return Change{Kind: ChangeFocus, Field: ev.Field, UserID: ev.UserID}, outcomeApplied
}

func (c *Coordinator) applyFieldBlurred(ev *models.FieldBlurredEvent) (Change, string) {
	switch {
	case c.isSelf(ev.UserID):
		return Change{}, outcomeSelf
	case c.finalized:
		return Change{}, outcomeFinalized
	case !c.acceptSeq(ev.UserID, ev.Session, ev.Seq):
		return Change{}, outcomeStale
	}

	claim, ok := c.claims[ev.Field]
	if !ok || claim.UserID != ev.UserID {
		return Change{}, outcomeUnmatched
	}
	delete(c.claims, ev.Field)
	return Change{Kind: ChangeFocus, Field: ev.Field, UserID: ev.UserID}, outcomeApplied
}

func (c *Coordinator) applyRemoteCursor(ev *models.RemoteCursorEvent) (Change, string) {
	switch {
	case c.isSelf(ev.UserID):
		return Change{}, outcomeSelf
	case c.finalized:
		return Change{}, outcomeFinalized
	case ev.UserID == "":
		return Change{}, outcomeInvalid
	case !c.acceptSeq(ev.UserID, ev.Session, ev.Seq):
		return Change{}, outcomeStale
	}

	c.cursors[ev.UserID] = models.CursorMarker{
		FieldName:      ev.Field,
		UserID:         ev.UserID,
		UserName:       ev.UserName,
		CursorPosition: ev.CursorPosition,
	}
	return Change{Kind: ChangeCursor, Field: ev.Field, UserID: ev.UserID}, outcomeApplied
}

func (c *Coordinator) applyBoardFinalized(ev *models.BoardFinalizedEvent) (Change, string) {
	switch {
	case ev.DriveID != "" && ev.DriveID != c.documentID:
		return Change{}, outcomeOtherDocument
	case c.finalized:
		return Change{}, outcomeFinalized
	}

	if n := len(c.pending); n > 0 {
		c.logger.Warn("board finalized with unsaved edits", "document_id", c.documentID, "pending", n)
	}
	c.markFinalized()
	return Change{Kind: ChangeFinalized}, outcomeApplied
}

// resync runs after the channel reconnects. Local deltas may be stale, so the snapshot is
// fetched again, presence is dropped, and the join is re-announced so the server pushes a
// fresh roster. Fields with a pending local write keep their local value.
// Once the local user has left the room, through Leave or Finalize, nothing is re-announced.
func (c *Coordinator) resync(ctx context.Context) {
	c.mu.Lock()
	if !c.active() || c.leaveSent {
		c.mu.Unlock()
		return
	}
	documentID := c.documentID
	c.mu.Unlock()

	c.logger.Info("resynchronizing board after reconnect", "document_id", documentID)

	drive, err := c.store.GetDocument(ctx, documentID)
	if err != nil {
		c.logger.Error("failed to reload board after reconnect", "document_id", documentID, "error", err)
	}

	c.mu.Lock()
	if !c.active() || c.leaveSent {
		c.mu.Unlock()
		return
	}
	if drive != nil {
		c.applySnapshot(drive, true)
	}
	c.roster = nil
	c.claims = make(map[string]models.FocusClaim)
	c.cursors = make(map[string]models.CursorMarker)
	c.lastSeq = make(map[sender]uint64)
	c.metrics.setParticipants(0)
	c.mu.Unlock()

	c.notify(Change{Kind: ChangeSnapshot})

	_ = c.emit(ctx, constants.EventJoinBoard, models.JoinBoardEvent{
		DriveID:  documentID,
		UserID:   c.identity.UserID,
		UserName: c.identity.UserName,
	})
}
