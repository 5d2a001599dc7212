// Package codec encodes and decodes the {event, data} frames exchanged over the channel.
package codec

type Marshaler interface {
	Marshal(v any) ([]byte, error)
}

type Unmarshaler interface {
	Unmarshal(data []byte, dst any) error
}

// Codec is a frame format negotiated as a websocket subprotocol.
type Codec interface {
	Marshaler
	Unmarshaler

	// Name is the subprotocol name, e.g. "json" or "cbor".
	Name() string
	// Binary reports whether frames are sent as binary websocket messages.
	Binary() bool
	// EncodeFrame wraps payload into a frame for event.
	EncodeFrame(event string, payload any) ([]byte, error)
	// DecodeFrame splits a frame into its event name and the still-encoded payload.
	// payload is nil when the frame carries no data.
	DecodeFrame(data []byte) (event string, payload []byte, err error)
}

// ByName returns the codec registered under name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "", "json":
		return NewJSON(), true
	case "cbor":
		return NewCBOR(), true
	default:
		return nil, false
	}
}
