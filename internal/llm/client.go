// Package llm talks to an OpenAI-compatible chat completions endpoint. It backs the
// taxonomy classifier (text) and object detection (vision).
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/googleapis/gax-go/v2"
)

const (
	defaultTimeout    = 60 * time.Second
	defaultMaxRetries = 2
	maxResponseBytes  = 4 << 20
)

var (
	// ErrNotConfigured is returned when the client has no endpoint or credentials.
	ErrNotConfigured = errors.New("llm: client not configured")
	// ErrEmptyContent is returned when the model answered without any text.
	ErrEmptyContent = errors.New("llm: empty completion content")
)

// Config captures the runtime settings required to talk to the model service.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	VisionModel string
	Timeout     time.Duration
	MaxRetries  int
}

// StatusError reports a non-2xx response from the completion endpoint.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("llm: http %d: %s", e.StatusCode, e.Body)
}

// Client issues chat completion requests.
type Client struct {
	cfg        Config
	endpoint   string
	httpClient *http.Client
	backoff    gax.Backoff
	sleep      func(context.Context, time.Duration) error
}

// Option customises the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithSleeper overrides how retry pauses are performed.
func WithSleeper(sleep func(context.Context, time.Duration) error) Option {
	return func(c *Client) {
		if sleep != nil {
			c.sleep = sleep
		}
	}
}

// NewClient constructs a client for the chat completions endpoint under cfg.BaseURL.
func NewClient(cfg Config, opts ...Option) (*Client, error) {
	cfg.BaseURL = strings.TrimSpace(cfg.BaseURL)
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	cfg.Model = strings.TrimSpace(cfg.Model)
	cfg.VisionModel = strings.TrimSpace(cfg.VisionModel)
	if cfg.BaseURL == "" || cfg.Model == "" {
		return nil, fmt.Errorf("%w: base url and model are required", ErrNotConfigured)
	}
	if cfg.VisionModel == "" {
		cfg.VisionModel = cfg.Model
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	endpoint, err := url.JoinPath(cfg.BaseURL, "chat/completions")
	if err != nil {
		return nil, fmt.Errorf("llm: build endpoint: %w", err)
	}

	client := &Client{
		cfg:        cfg,
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		backoff: gax.Backoff{
			Initial:    500 * time.Millisecond,
			Max:        5 * time.Second,
			Multiplier: 2,
		},
		sleep: gax.Sleep,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Model returns the text model name.
func (c *Client) Model() string { return c.cfg.Model }

// SingleAttempt returns a client sharing c's transport that never retries a failed call.
func (c *Client) SingleAttempt() *Client {
	if c == nil {
		return nil
	}
	single := *c
	single.cfg.MaxRetries = 0
	return &single
}

// CompleteText sends a system and user prompt to the text model at temperature 0 and
// returns the raw content of the first choice.
func (c *Client) CompleteText(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	userPrompt = strings.TrimSpace(userPrompt)
	if userPrompt == "" {
		return "", errors.New("llm: user prompt required")
	}
	messages := make([]chatMessage, 0, 2)
	if s := strings.TrimSpace(systemPrompt); s != "" {
		messages = append(messages, chatMessage{Role: "system", Content: s})
	}
	messages = append(messages, chatMessage{Role: "user", Content: userPrompt})
	return c.complete(ctx, chatRequest{Model: c.cfg.Model, Messages: messages, Temperature: 0})
}

// DescribeImage sends an image as a data URL together with an instruction to the
// vision model and returns the model's text answer.
func (c *Client) DescribeImage(ctx context.Context, instruction, contentType string, image []byte) (string, error) {
	if len(image) == 0 {
		return "", errors.New("llm: image required")
	}
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		contentType = http.DetectContentType(image)
	}
	dataURL := "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(image)
	parts := []contentPart{
		{Type: "image_url", ImageURL: &imageURL{URL: dataURL}},
		{Type: "text", Text: strings.TrimSpace(instruction)},
	}
	return c.complete(ctx, chatRequest{
		Model:       c.cfg.VisionModel,
		Messages:    []chatMessage{{Role: "user", Content: parts}},
		Temperature: 0,
	})
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) complete(ctx context.Context, payload chatRequest) (string, error) {
	if c == nil {
		return "", ErrNotConfigured
	}
	if c.cfg.APIKey == "" {
		return "", fmt.Errorf("%w: api key required", ErrNotConfigured)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("llm: encode request: %w", err)
	}

	backoff := c.backoff
	attempts := c.cfg.MaxRetries + 1
	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		content, err := c.send(ctx, body)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if attempt == attempts || !retryable(ctx, err) {
			break
		}
		if err := c.sleep(ctx, backoff.Pause()); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

func (c *Client) send(ctx context.Context, body []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm: request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("llm: read response: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return "", &StatusError{StatusCode: resp.StatusCode, Body: snippet(string(raw))}
	}

	var decoded chatResponse
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", fmt.Errorf("llm: decode response: %w", err)
	}
	if decoded.Error != nil {
		return "", fmt.Errorf("llm: api error: %s", strings.TrimSpace(decoded.Error.Message))
	}
	for _, choice := range decoded.Choices {
		if content := strings.TrimSpace(choice.Message.Content); content != "" {
			return content, nil
		}
	}
	return "", ErrEmptyContent
}

func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode == http.StatusRequestTimeout ||
			statusErr.StatusCode == http.StatusTooManyRequests ||
			statusErr.StatusCode >= http.StatusInternalServerError
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

func snippet(value string) string {
	clean := strings.Join(strings.Fields(value), " ")
	const limit = 200
	if runes := []rune(clean); len(runes) > limit {
		return string(runes[:limit]) + "..."
	}
	return clean
}
