// Package docstore is the HTTP client of the board Document Store.
//
// Every request carries the bearer credential set with SetAuthToken. Non-2xx responses are
// returned as *StatusError, which matches ErrUnauthorized, ErrForbidden and ErrNotFound
// with errors.Is:
//
//	c := docstore.NewClient("http://localhost:8080/api")
//	c.SetAuthToken(token)
//
//	drive, err := c.GetDocument(ctx, driveID)
//	if errors.Is(err, docstore.ErrNotFound) {
//		// no board for this drive
//	}
package docstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/goccy/go-json"

	"github.com/greendrive/impactboard/pkg/constants"
	"github.com/greendrive/impactboard/pkg/logger"
	"github.com/greendrive/impactboard/pkg/models"
)

// Client is safe for concurrent use. The credential may be replaced while requests are in flight.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     logger.Logger

	mu        sync.RWMutex
	authToken string
}

// NewClient creates a client for the API rooted at baseURL, e.g. "http://localhost:8080/api".
// A trailing slash is ignored. Requests time out after constants.DefaultRequestTimeout.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: constants.DefaultRequestTimeout,
		},
		logger: logger.Nop(),
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

func (c *Client) WithLogger(l logger.Logger) *Client {
	c.logger = l
	return c
}

func (c *Client) SetAuthToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.authToken = token
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.authToken
}

// GetDocument fetches the board of a drive.
func (c *Client) GetDocument(ctx context.Context, driveID string) (*models.Drive, error) {
	if driveID == "" {
		return nil, constants.ErrDocumentNotSet
	}

	resp, err := c.doRequest(ctx, http.MethodGet, "/impactBoard/"+url.PathEscape(driveID), nil)
	if err != nil {
		return nil, fmt.Errorf("get document request failed: %w", err)
	}

	var result models.DocumentResponse
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}
	if result.Drive.ImpactData == nil {
		result.Drive.ImpactData = models.Fields{}
	}

	return &result.Drive, nil
}

// UpdateField writes one field and returns the version the store assigned to it.
func (c *Client) UpdateField(ctx context.Context, driveID, field string, value any, cursorPosition int) (uint64, error) {
	if driveID == "" {
		return 0, constants.ErrDocumentNotSet
	}
	if field == "" {
		return 0, constants.ErrUnknownField
	}

	req := models.FieldUpdateRequest{
		Field:          field,
		Value:          value,
		CursorPosition: cursorPosition,
	}
	resp, err := c.doRequest(ctx, http.MethodPut, "/impactBoard/"+url.PathEscape(driveID), req)
	if err != nil {
		return 0, fmt.Errorf("update field request failed: %w", err)
	}

	var result models.FieldUpdateResponse
	if err := decodeResponse(resp, &result); err != nil {
		return 0, err
	}

	return result.Version, nil
}

// Finalize closes the board and returns the generated summary.
// Only the drive's creator may finalize; anyone else gets ErrForbidden.
func (c *Client) Finalize(ctx context.Context, driveID string) (*models.FinalizeResponse, error) {
	if driveID == "" {
		return nil, constants.ErrDocumentNotSet
	}

	resp, err := c.doRequest(ctx, http.MethodPost, "/finishImpactBoard/"+url.PathEscape(driveID), nil)
	if err != nil {
		return nil, fmt.Errorf("finalize request failed: %w", err)
	}

	var result models.FinalizeResponse
	if err := decodeResponse(resp, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	if c.baseURL == "" {
		return nil, constants.ErrNoBaseURL
	}

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	c.logger.Debug("docstore request", "method", method, "path", path)

	return c.httpClient.Do(req)
}

func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return newStatusError(resp.StatusCode, body)
	}

	if target != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
