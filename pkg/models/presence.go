package models

// Participant is a user currently present in a board room.
type Participant struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

// FocusClaim marks the remote user currently editing a field.
type FocusClaim struct {
	FieldName string `json:"field"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
}

// CursorMarker is the last known cursor position of a remote user.
type CursorMarker struct {
	FieldName      string `json:"field"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName"`
	CursorPosition int    `json:"cursorPosition"`
}
