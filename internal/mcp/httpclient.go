package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	trackerr "github.com/claude/tulog/internal/errors"
	"github.com/claude/tulog/internal/tracker"
)

const remoteTarget = "tulog server"

// HTTPClient implements DataSource by calling the tulog REST API.
// Used for remote MCP mode where the binary runs locally (stdio) but
// the exercise table lives on the server (accessed over Tailscale).
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

var _ DataSource = (*HTTPClient)(nil)

// NewHTTPClient creates an HTTPClient targeting the given base URL. apiKey
// is sent as X-API-Key when non-empty.
func NewHTTPClient(baseURL, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *HTTPClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("httpclient: create request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return trackerr.NewNetworkUnavailable(remoteTarget, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("httpclient: read body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return trackerr.FromHTTPStatus(remoteTarget, resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("httpclient: decode %s: %w", path, err)
	}
	return nil
}

func (c *HTTPClient) ListExercises(ctx context.Context, _ int) ([]tracker.Row, error) {
	var rows []tracker.Row
	if err := c.get(ctx, "/api/v1/exercises", &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *HTTPClient) GetExercise(ctx context.Context, _ int, name string) (tracker.Row, error) {
	var row tracker.Row
	if err := c.get(ctx, "/api/v1/exercises/"+url.PathEscape(name), &row); err != nil {
		if tErr, ok := trackerr.As(err); ok && tErr.Details["upstream_status"] == http.StatusNotFound {
			return tracker.Row{}, trackerr.NewNotFound(name)
		}
		return tracker.Row{}, err
	}
	return row, nil
}

func (c *HTTPClient) TimerStatus(ctx context.Context, _ int) (tracker.TimerView, error) {
	var view tracker.TimerView
	if err := c.get(ctx, "/api/v1/timer", &view); err != nil {
		return tracker.TimerView{}, err
	}
	return view, nil
}
