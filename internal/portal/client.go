package portal

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"co2-bank-monitor/config"
	"co2-bank-monitor/internal/model"
)

const maxCSVBytes = 8 << 20

// Client downloads the manifold CSV from the data endpoint.
type Client struct {
	http    *http.Client
	dataURL string
	headers map[string]string
}

func NewClient(cfg config.PortalConfig, transport http.RoundTripper) *Client {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
		dataURL: cfg.DataURL,
		headers: cfg.Headers,
	}
}

// FetchSnapshot requests the CSV with the browser header set and the bearer token.
// Any failure is a *FetchError.
func (c *Client) FetchSnapshot(ctx context.Context, token *Token) (*model.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.dataURL, nil)
	if err != nil {
		return nil, &FetchError{Cause: fmt.Errorf("create request: %w", err)}
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}
	req.Header.Set("Authorization", "Bearer "+token.Value)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &FetchError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxCSVBytes))
		return nil, &FetchError{Status: resp.StatusCode}
	}

	snap, err := DecodeSnapshot(io.LimitReader(resp.Body, maxCSVBytes))
	if err != nil {
		return nil, &FetchError{Cause: err}
	}
	return snap, nil
}
