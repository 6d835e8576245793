package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	trackerr "github.com/claude/tulog/internal/errors"
)

const target = "vision service"

const maxBody = 4 << 20

// Question asks the vision service about an image.
type Question struct {
	ImageURL string `json:"image_url"`
	Question string `json:"question"`
}

// Validate reports INVALID_REQUEST when either field is blank.
func (q Question) Validate() error {
	if q.ImageURL == "" || q.Question == "" {
		return trackerr.NewInvalidRequest("image_url and question are required")
	}
	return nil
}

// Client forwards image questions to a vision-QA API with bearer auth.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a vision client for endpoint.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// Validate reports a CONFIGURATION error when the endpoint or key is missing.
func (c *Client) Validate() error {
	if c.endpoint == "" {
		return trackerr.NewConfiguration("proxy.vision_url", "vision endpoint is not set")
	}
	if c.apiKey == "" {
		return trackerr.NewConfiguration("proxy.vision_api_key", "vision API key is not set")
	}
	return nil
}

// Ask posts q upstream and returns the JSON response body unchanged.
// It is not retried.
func (c *Client) Ask(ctx context.Context, q Question) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := q.Validate(); err != nil {
		return nil, err
	}

	data, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("marshaling question: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, trackerr.NewNetworkUnavailable(target, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, trackerr.NewNetworkUnavailable(target, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, trackerr.FromHTTPStatus(target, resp.StatusCode, string(body))
	}
	return body, nil
}
