package constants

import "time"

// Events pushed by the server and consumed by the coordinator.
const (
	EventActiveUsers    = "activeImpactUsers"
	EventUserJoined     = "userJoinedImpactBoard"
	EventUserLeft       = "userLeftImpactBoard"
	EventBoardUpdate    = "impactBoardUpdate"
	EventFieldFocused   = "userFocusedField"
	EventFieldBlurred   = "userBlurredField"
	EventRemoteCursor   = "remoteCursorUpdate"
	EventBoardFinalized = "impactBoardFinished"
)

// Events emitted by the coordinator.
const (
	EventJoinBoard      = "joinImpactBoard"
	EventLeaveBoard     = "leaveImpactBoard"
	EventFieldFocus     = "impactFieldFocus"
	EventFieldBlur      = "impactFieldBlur"
	EventCursorPosition = "cursorPositionUpdate"
	// EventFieldEdit is only emitted when live edit broadcasting is enabled.
	EventFieldEdit = "impactFieldUpdate"
)

const (
	DefaultDebounceWindow    = 500 * time.Millisecond
	DefaultReconnectInterval = 5 * time.Second
	DefaultRequestTimeout    = 30 * time.Second
	DefaultWriteTimeout      = 10 * time.Second

	// DefaultSocketPath is where the channel endpoint lives relative to the API host.
	DefaultSocketPath = "/socket"

	// CloseMessageCode is the websocket close code sent on a clean Close.
	CloseMessageCode = 1000
)

var (
	WebsocketScheme       = "ws"
	WebsocketSecureScheme = "wss"
	HTTPScheme            = "http"
	HTTPSecureScheme      = "https"
)
