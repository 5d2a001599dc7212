package constants

import "errors"

// Coordinator errors
var (
	ErrNoIdentity     = errors.New("no local identity")
	ErrNoChannel      = errors.New("no channel connection")
	ErrNoStore        = errors.New("no document store")
	ErrAlreadyJoined  = errors.New("already joined")
	ErrNotJoined      = errors.New("not joined")
	ErrFinalized      = errors.New("document is finalized")
	ErrEmptyDocument  = errors.New("document has no content to finalize")
	ErrUnknownField   = errors.New("field name is empty")
	ErrDocumentNotSet = errors.New("document id is empty")
)

// Transport errors
var (
	ErrNoBaseURL        = errors.New("base url not set")
	ErrNoCodec          = errors.New("codec is not set")
	ErrConnectionClosed = errors.New("connection is closed")
	ErrInvalidFrame     = errors.New("invalid frame")
	ErrHandshakeDenied  = errors.New("socket handshake denied")
)

// Credential errors
var (
	ErrNoToken      = errors.New("no credential")
	ErrInvalidToken = errors.New("invalid credential")
	ErrTokenExpired = errors.New("credential expired")
)
