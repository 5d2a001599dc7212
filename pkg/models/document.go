package models

// Fields maps field names to scalar values (strings or numbers).
type Fields map[string]any

// Clone returns a shallow copy; values are scalars so the copy is independent.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Empty reports whether every field is unset, nil or an empty string.
func (f Fields) Empty() bool {
	for _, v := range f {
		switch v := v.(type) {
		case nil:
		case string:
			if v != "" {
				return false
			}
		default:
			return false
		}
	}
	return true
}

// Drive is the board document as served by GET /impactBoard/{id}.
type Drive struct {
	ID          string            `json:"_id"`
	Heading     string            `json:"heading,omitempty"`
	Description string            `json:"description,omitempty"`
	CreatedBy   string            `json:"createdBy,omitempty"`
	ImpactData  Fields            `json:"impactData"`
	IsFinalized bool              `json:"isFinalized"`
	Summary     string            `json:"summary,omitempty"`
	Versions    map[string]uint64 `json:"fieldVersions,omitempty"`
}

// DocumentResponse is the body of GET /impactBoard/{id}.
type DocumentResponse struct {
	Drive Drive `json:"drive"`
}

// FieldUpdateRequest is the body of PUT /impactBoard/{id}.
type FieldUpdateRequest struct {
	Field          string `json:"field"`
	Value          any    `json:"value"`
	CursorPosition int    `json:"cursorPosition"`
}

// FieldUpdateResponse is the body returned by PUT /impactBoard/{id}.
// Version is the per-field version the store assigned to the write, 0 when the store
// does not version fields.
type FieldUpdateResponse struct {
	Field   string `json:"field"`
	Version uint64 `json:"version,omitempty"`
}

// FinalizeResponse is the body returned by POST /finishImpactBoard/{id}.
type FinalizeResponse struct {
	Message string `json:"message,omitempty"`
	Summary string `json:"summary"`
}

// ErrorResponse is the error body the backend returns on non-2xx responses.
type ErrorResponse struct {
	Error string `json:"error"`
}
