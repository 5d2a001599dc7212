package models

// Payloads received from the channel.
//
// Seq orders the presence events of one sender session; Session identifies that session,
// since one user may be on the board from several tabs.

type BoardUpdateEvent struct {
	Field   string `json:"field"`
	Value   any    `json:"value"`
	UserID  string `json:"userId"`
	Version uint64 `json:"version,omitempty"`
}

type UserJoinedEvent struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type UserLeftEvent struct {
	UserID string `json:"userId"`
}

type FieldFocusedEvent struct {
	Field    string `json:"field"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
	Seq      uint64 `json:"seq,omitempty"`
	Session  string `json:"session,omitempty"`
}

type FieldBlurredEvent struct {
	Field   string `json:"field"`
	UserID  string `json:"userId"`
	Seq     uint64 `json:"seq,omitempty"`
	Session string `json:"session,omitempty"`
}

type RemoteCursorEvent struct {
	Field          string `json:"field"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName"`
	CursorPosition int    `json:"cursorPosition"`
	Seq            uint64 `json:"seq,omitempty"`
	Session        string `json:"session,omitempty"`
}

type BoardFinalizedEvent struct {
	DriveID string `json:"driveId"`
}

// Payloads emitted to the channel.

type JoinBoardEvent struct {
	DriveID  string `json:"driveId"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}

type LeaveBoardEvent struct {
	DriveID string `json:"driveId"`
	UserID  string `json:"userId"`
}

type FieldFocusEvent struct {
	DriveID        string `json:"driveId"`
	Field          string `json:"field"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName"`
	CursorPosition int    `json:"cursorPosition"`
	Seq            uint64 `json:"seq,omitempty"`
	Session        string `json:"session,omitempty"`
}

type FieldBlurEvent struct {
	DriveID string `json:"driveId"`
	Field   string `json:"field"`
	UserID  string `json:"userId"`
	Seq     uint64 `json:"seq,omitempty"`
	Session string `json:"session,omitempty"`
}

type CursorPositionEvent struct {
	DriveID        string `json:"driveId"`
	Field          string `json:"field"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName"`
	CursorPosition int    `json:"cursorPosition"`
	Seq            uint64 `json:"seq,omitempty"`
	Session        string `json:"session,omitempty"`
}

type FieldEditEvent struct {
	DriveID  string `json:"driveId"`
	Field    string `json:"field"`
	Value    any    `json:"value"`
	UserID   string `json:"userId"`
	UserName string `json:"userName"`
}
