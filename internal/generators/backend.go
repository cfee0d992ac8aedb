package generators

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	maxJSONBytes     = 1 << 20
	maxArtifactBytes = 256 << 20
)

// backendClient wraps the small amount of HTTP plumbing the generation backends share.
type backendClient struct {
	http    *http.Client
	headers map[string]string
}

func (c backendClient) doJSON(ctx context.Context, op, method, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%s: encode request: %w", op, err)
		}
		reader = bytes.NewReader(encoded)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("%s: new request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	c.applyHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxJSONBytes))
	if err != nil {
		return fmt.Errorf("%s: read response: %w", op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &BackendError{Op: op, StatusCode: resp.StatusCode, Body: snippet(raw)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", op, err)
	}
	return nil
}

// download fetches an artifact. Backend headers are only attached when authenticated
// is set; artifact links handed out by backends are usually pre-signed.
func (c backendClient) download(ctx context.Context, op, url string, authenticated bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: new request: %w", op, err)
	}
	if authenticated {
		c.applyHeaders(req)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, &BackendError{Op: op, StatusCode: resp.StatusCode, Body: snippet(raw)}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxArtifactBytes))
	if err != nil {
		return nil, fmt.Errorf("%s: read artifact: %w", op, err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyArtifact
	}
	return data, nil
}

func (c backendClient) applyHeaders(req *http.Request) {
	for key, value := range c.headers {
		if value != "" {
			req.Header.Set(key, value)
		}
	}
}

func snippet(raw []byte) string {
	clean := strings.Join(strings.Fields(string(raw)), " ")
	const limit = 200
	if runes := []rune(clean); len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return clean
}

func httpClientOrDefault(client *http.Client) *http.Client {
	if client != nil {
		return client
	}
	return http.DefaultClient
}
