// ABOUTME: Stateless HTTP adapter for OpenAI-style chat completion endpoints
// ABOUTME: Sends a single prompt and returns generated text or a typed upstream error

package inference

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"
)

// Upstream failure sentinels. Callers decide retry policy; this layer
// never retries.
var (
	// ErrUnavailable means the endpoint could not be reached at all.
	ErrUnavailable = errors.New("upstream unavailable")

	// ErrTimeout means the call exceeded the configured timeout.
	ErrTimeout = errors.New("upstream timeout")
)

// UpstreamError is returned when the endpoint responds with a non-success
// status. It carries the HTTP status and a snippet of the response body.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream error: status %d: %s", e.Status, e.Body)
}

// Options selects the model and generation parameters for a single call.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// Client is a stateless adapter for a chat-completions endpoint.
// It holds no per-request state; a single Client is shared by all agents.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a client for the given endpoint. Pass nil logger for
// default. The API key may be empty for unauthenticated local endpoints.
func NewClient(endpoint, apiKey string, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		endpoint:   endpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{},
		logger:     logger.With("component", "inference"),
	}
}

// chatRequest is the JSON request body for the completions endpoint.
// Temperature is always sent: 0 is a meaningful (deterministic) setting.
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// chatResponse is the subset of the completions response we read.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Complete sends a single-turn prompt and returns the generated text.
// Returns ErrUnavailable on connection failure, ErrTimeout when the
// configured timeout elapses, and *UpstreamError on a non-2xx response.
func (c *Client) Complete(ctx context.Context, prompt string, opts Options) (string, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	body, err := json.Marshal(chatRequest{
		Model:       opts.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		c.logger.Warn("upstream returned error status",
			"status", resp.StatusCode,
			"model", opts.Model)
		return "", &UpstreamError{Status: resp.StatusCode, Body: string(snippet)}
	}

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", &UpstreamError{Status: resp.StatusCode, Body: "response contained no choices"}
	}

	c.logger.Debug("completion finished",
		"model", opts.Model,
		"duration", time.Since(start))

	return parsed.Choices[0].Message.Content, nil
}

// classifyTransportError maps a transport-level failure onto the package
// sentinels so callers can branch with errors.Is.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
