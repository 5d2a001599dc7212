package codec

import (
	"fmt"
	"reflect"

	"github.com/fxamacker/cbor/v2"

	"github.com/greendrive/impactboard/pkg/constants"
)

type cborFrame struct {
	Event string `cbor:"event"`
	Data  any    `cbor:"data,omitempty"`
}

type cborRawFrame struct {
	Event string          `cbor:"event"`
	Data  cbor.RawMessage `cbor:"data"`
}

// CBOR is the binary codec. Payload structs keep their json tags; cbor falls back to them.
type CBOR struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

func NewCBOR() *CBOR {
	enc, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("BUG: invalid cbor encoding options: %v", err))
	}
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("BUG: invalid cbor decoding options: %v", err))
	}
	return &CBOR{enc: enc, dec: dec}
}

func (*CBOR) Name() string { return "cbor" }

func (*CBOR) Binary() bool { return true }

func (c *CBOR) Marshal(v any) ([]byte, error) {
	return c.enc.Marshal(v)
}

func (c *CBOR) Unmarshal(data []byte, dst any) error {
	return c.dec.Unmarshal(data, dst)
}

func (c *CBOR) EncodeFrame(event string, payload any) ([]byte, error) {
	return c.enc.Marshal(cborFrame{Event: event, Data: payload})
}

func (c *CBOR) DecodeFrame(data []byte) (string, []byte, error) {
	var f cborRawFrame
	if err := c.dec.Unmarshal(data, &f); err != nil {
		return "", nil, fmt.Errorf("%w: %v", constants.ErrInvalidFrame, err)
	}
	if f.Event == "" {
		return "", nil, fmt.Errorf("%w: empty event name", constants.ErrInvalidFrame)
	}
	if len(f.Data) == 0 {
		return f.Event, nil, nil
	}
	return f.Event, f.Data, nil
}
