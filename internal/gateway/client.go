package gateway

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"hemlock/internal/wire"
)

const (
	defaultUserAgent = "hemlock/0.1"
	requestTimeout   = 30 * time.Second
)

// Client dispatches gateway calls against one library's base endpoint.
// It is safe for concurrent use. It does not retry; the session layer
// owns the retry policy.
type Client struct {
	BaseURL    string
	Registry   *wire.Registry
	HTTPClient *http.Client
	UserAgent  string
}

// NewClient builds a Client for the given base URL. reg may be nil when
// no class-tagged payloads are expected.
func NewClient(baseURL string, reg *wire.Registry) *Client {
	return &Client{
		BaseURL:    baseURL,
		Registry:   reg,
		HTTPClient: &http.Client{Timeout: requestTimeout},
		UserAgent:  defaultUserAgent,
	}
}

// Request performs one gateway call and decodes the envelope. The
// returned error covers transport-level failures only; protocol-level
// failures are classified on the Response.
func (c *Client) Request(ctx context.Context, service, method string, args ...any) (*Response, error) {
	reqURL := BuildURL(c.BaseURL, service, method, args)
	if reqURL == "" {
		return nil, fmt.Errorf("no gateway base URL configured")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.UserAgent)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, &TransportError{Err: fmt.Errorf("gateway returned HTTP %d", resp.StatusCode)}
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Err: err}
	}
	return DecodeResponse(body, c.Registry), nil
}
