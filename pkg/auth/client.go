package auth

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/greendrive/impactboard/pkg/constants"
)

// RefreshPath is the endpoint that exchanges a live credential for a fresh one.
const RefreshPath = "/auth/refresh-token"

type refreshResponse struct {
	Token string `json:"token"`
}

// Client calls the credential endpoints of the API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: constants.DefaultRequestTimeout,
		},
	}
}

// RefreshToken exchanges token for a new credential.
func (c *Client) RefreshToken(ctx context.Context, token string) (string, error) {
	if c.baseURL == "" {
		return "", constants.ErrNoBaseURL
	}
	if token == "" {
		return "", constants.ErrNoToken
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+RefreshPath, bytes.NewReader([]byte("{}")))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("refresh request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return "", fmt.Errorf("refresh failed: status=%d, body=%s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var res refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("failed to decode refresh response: %w", err)
	}
	if res.Token == "" {
		return "", fmt.Errorf("%w: refresh response carried no token", constants.ErrInvalidToken)
	}
	return res.Token, nil
}
