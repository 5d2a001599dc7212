// Package channel defines the real-time event channel the coordinator talks to,
// independent of the transport that carries it.
package channel

import (
	"context"
	"fmt"

	"github.com/greendrive/impactboard/internal/codec"
	"github.com/greendrive/impactboard/pkg/constants"
)

// Handler receives one inbound event.
// Handlers for a connection are invoked one at a time, in arrival order.
type Handler func(msg *Message)

// Channel is a named-event pub/sub connection scoped to one session.
type Channel interface {
	// Emit sends event with payload. It is fire-and-forget: a nil error means the frame was
	// written, not that anyone received it.
	Emit(ctx context.Context, event string, payload any) error
	// On adds h to the handlers of event.
	On(event string, h Handler)
	// Off removes every handler of event.
	Off(event string)
}

// Reconnector is implemented by channels that survive transport drops.
// Hooks run after the transport is re-established and handlers are re-attached.
type Reconnector interface {
	OnReconnect(hook func(ctx context.Context))
}

// WebSocketConnection is a Channel with an explicit connection lifecycle.
type WebSocketConnection interface {
	Channel

	Connect(ctx context.Context) error
	Close(ctx context.Context) error
	IsClosed() bool
}

// Message is an inbound event whose payload has not been decoded yet.
type Message struct {
	Event   string
	Payload []byte

	unmarshaler codec.Unmarshaler
}

func NewMessage(event string, payload []byte, u codec.Unmarshaler) *Message {
	return &Message{Event: event, Payload: payload, unmarshaler: u}
}

// Decode unmarshals the payload into v.
func (m *Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%w: %s has no data", constants.ErrInvalidFrame, m.Event)
	}
	if m.unmarshaler == nil {
		return constants.ErrNoCodec
	}
	if err := m.unmarshaler.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("%w: %s: %v", constants.ErrInvalidFrame, m.Event, err)
	}
	return nil
}
