package collab

import (
	"context"

	"github.com/greendrive/impactboard/pkg/constants"
	"github.com/greendrive/impactboard/pkg/models"
)

// OnFieldChange applies a local edit immediately and schedules its persist after the
// debounce window. A later edit of the same field within the window replaces the pending
// write; edits of other fields are unaffected.
//
// With BroadcastEdits the edit is also emitted right away; the returned error is then the
// emit error. Without it, nothing is emitted and the persist outcome is only logged.
func (c *Coordinator) OnFieldChange(field string, value any, cursorPosition int) error {
	if field == "" {
		return constants.ErrUnknownField
	}

	c.mu.Lock()
	if err := c.editableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.fields[field] = value
	c.schedule(field, value, cursorPosition)
	documentID := c.documentID
	c.mu.Unlock()

	c.notify(Change{Kind: ChangeField, Field: field, UserID: c.identity.UserID})

	if !c.live {
		return nil
	}
	return c.emit(context.Background(), constants.EventFieldEdit, models.FieldEditEvent{
		DriveID:  documentID,
		Field:    field,
		Value:    value,
		UserID:   c.identity.UserID,
		UserName: c.identity.UserName,
	})
}

// OnFieldFocus announces that the local user started editing field.
func (c *Coordinator) OnFieldFocus(field string, cursorPosition int) error {
	if field == "" {
		return constants.ErrUnknownField
	}

	c.mu.Lock()
	if err := c.editableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.localSeq++
	ev := models.FieldFocusEvent{
		DriveID:        c.documentID,
		Field:          field,
		UserID:         c.identity.UserID,
		UserName:       c.identity.UserName,
		CursorPosition: cursorPosition,
		Seq:            c.localSeq,
		Session:        c.session,
	}
	c.mu.Unlock()

	return c.emit(context.Background(), constants.EventFieldFocus, ev)
}

// OnFieldBlur announces that the local user stopped editing field.
func (c *Coordinator) OnFieldBlur(field string) error {
	if field == "" {
		return constants.ErrUnknownField
	}

	c.mu.Lock()
	if err := c.editableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.localSeq++
	ev := models.FieldBlurEvent{
		DriveID: c.documentID,
		Field:   field,
		UserID:  c.identity.UserID,
		Seq:     c.localSeq,
		Session: c.session,
	}
	c.mu.Unlock()

	return c.emit(context.Background(), constants.EventFieldBlur, ev)
}

// OnCursorMove shares the local cursor position. Delivery is best-effort.
func (c *Coordinator) OnCursorMove(field string, cursorPosition int) error {
	if field == "" {
		return constants.ErrUnknownField
	}

	c.mu.Lock()
	if err := c.editableLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.localSeq++
	ev := models.CursorPositionEvent{
		DriveID:        c.documentID,
		Field:          field,
		UserID:         c.identity.UserID,
		UserName:       c.identity.UserName,
		CursorPosition: cursorPosition,
		Seq:            c.localSeq,
		Session:        c.session,
	}
	c.mu.Unlock()

	return c.emit(context.Background(), constants.EventCursorPosition, ev)
}
