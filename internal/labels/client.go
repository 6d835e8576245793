package labels

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	trackerr "github.com/claude/tulog/internal/errors"
	"github.com/claude/tulog/internal/retry"
)

// DefaultBaseURL is the public supplement label database API.
const DefaultBaseURL = "https://api.ods.od.nih.gov/dsld/v9"

const target = "label service"

// maxBody caps how much of an upstream response is read.
const maxBody = 8 << 20

// Client talks to the supplement label API with a server-held key.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	policy     retry.Policy
}

// NewClient creates a label API client. An empty baseURL uses DefaultBaseURL.
func NewClient(baseURL, apiKey string, policy retry.Policy) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		policy: policy,
	}
}

// Validate reports a CONFIGURATION error when the API key is missing.
func (c *Client) Validate() error {
	if c.apiKey == "" {
		return trackerr.NewConfiguration("proxy.labels_api_key", "label API key is not set")
	}
	return nil
}

// Search returns the upstream search response body verbatim.
func (c *Client) Search(ctx context.Context, query string) ([]byte, error) {
	return c.get(ctx, "/search-filter", url.Values{"q": {query}})
}

// Label returns one label by its upstream ID, verbatim.
func (c *Client) Label(ctx context.Context, id string) ([]byte, error) {
	return c.get(ctx, "/label/"+url.PathEscape(id), url.Values{})
}

// SearchLabels searches and normalizes the result.
func (c *Client) SearchLabels(ctx context.Context, query string) ([]Label, error) {
	body, err := c.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	return Normalize(body)
}

func (c *Client) get(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	params.Set("api_key", c.apiKey)
	endpoint := c.baseURL + path + "?" + params.Encode()

	var body []byte
	err := retry.Do(ctx, c.policy, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("building request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return trackerr.NewNetworkUnavailable(target, err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
		if err != nil {
			return trackerr.NewNetworkUnavailable(target, err)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return trackerr.FromHTTPStatus(target, resp.StatusCode, string(data))
		}
		body = data
		return nil
	})
	return body, err
}
