package codec

import (
	"fmt"

	"github.com/buger/jsonparser"
	"github.com/goccy/go-json"

	"github.com/greendrive/impactboard/pkg/constants"
)

type jsonFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// JSON is the default text codec.
type JSON struct{}

func NewJSON() *JSON {
	return &JSON{}
}

func (*JSON) Name() string { return "json" }

func (*JSON) Binary() bool { return false }

func (*JSON) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (*JSON) Unmarshal(data []byte, dst any) error {
	return json.Unmarshal(data, dst)
}

func (*JSON) EncodeFrame(event string, payload any) ([]byte, error) {
	return json.Marshal(jsonFrame{Event: event, Data: payload})
}

// DecodeFrame peeks the two top-level keys without decoding the payload,
// so handlers decode straight into their own payload types.
func (*JSON) DecodeFrame(data []byte) (string, []byte, error) {
	event, err := jsonparser.GetString(data, "event")
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", constants.ErrInvalidFrame, err)
	}
	if event == "" {
		return "", nil, fmt.Errorf("%w: empty event name", constants.ErrInvalidFrame)
	}

	value, dataType, offset, err := jsonparser.Get(data, "data")
	switch {
	case dataType == jsonparser.NotExist, dataType == jsonparser.Null:
		return event, nil, nil
	case err != nil:
		return "", nil, fmt.Errorf("%w: %v", constants.ErrInvalidFrame, err)
	case dataType == jsonparser.String:
		// jsonparser strips the quotes of string values; hand back the raw literal.
		return event, data[offset-len(value)-2 : offset], nil
	default:
		return event, value, nil
	}
}
