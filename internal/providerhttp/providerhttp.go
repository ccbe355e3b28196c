// Package providerhttp implements a generic JSON-over-HTTP provider
// handler satisfying router.Handler, plus a local/offline echo handler
// used by the router's total-failure fallback path. Neither carries a
// vendor SDK: every provider is addressed purely by endpoint URL and
// JSON request/response shape.
package providerhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/relaycore/relaycore/internal/router"
)

// Client posts the task payload as a JSON body to endpoint and decodes
// the JSON response body. It is the default handler wired for any
// provider configured with an endpoint URL.
type Client struct {
	Endpoint string
	HTTP     *http.Client
}

// NewClient constructs a Client with a sane default transport timeout;
// the router's own per-attempt context deadline (derived from
// ProviderConfig.TimeoutSeconds) takes precedence when shorter.
func NewClient(endpoint string) *Client {
	return &Client{Endpoint: endpoint, HTTP: &http.Client{Timeout: 30 * time.Second}}
}

// Handler adapts the Client into a router.Handler.
func (c *Client) Handler() router.Handler {
	return func(ctx context.Context, payload map[string]any) (map[string]any, error) {
		body, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("providerhttp: encode payload: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("providerhttp: build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.HTTP.Do(req)
		if err != nil {
			return nil, fmt.Errorf("providerhttp: request failed: %w", err)
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
		if err != nil {
			return nil, fmt.Errorf("providerhttp: read response: %w", err)
		}
		if resp.StatusCode >= 300 {
			return nil, fmt.Errorf("providerhttp: provider returned status %d: %s", resp.StatusCode, raw)
		}

		var out map[string]any
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, fmt.Errorf("providerhttp: decode response: %w", err)
		}
		return out, nil
	}
}

// LocalEcho is the fallback provider handler: it never fails and
// simply echoes the inbound payload back, tagged with its own name so
// callers can distinguish a genuine response from a total-failure
// fallback.
func LocalEcho(ctx context.Context, payload map[string]any) (map[string]any, error) {
	return map[string]any{"provider": "local", "echo": payload}, nil
}
