package docstore

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/greendrive/impactboard/pkg/models"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not found")
)

// StatusError is a non-2xx response from the store.
type StatusError struct {
	StatusCode int
	// Message is the "error" field of the response body, or the raw body when it is not JSON.
	Message string
}

func newStatusError(status int, body []byte) *StatusError {
	var res models.ErrorResponse
	if err := json.Unmarshal(body, &res); err == nil && res.Error != "" {
		return &StatusError{StatusCode: status, Message: res.Error}
	}
	return &StatusError{StatusCode: status, Message: strings.TrimSpace(string(body))}
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("docstore: status=%d", e.StatusCode)
	}
	return fmt.Sprintf("docstore: status=%d: %s", e.StatusCode, e.Message)
}

func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}
