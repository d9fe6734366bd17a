// internal/llm/client.go
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/victor045/Agente-financiero/internal/common/errors"
	"github.com/victor045/Agente-financiero/internal/common/logger"
)

// Sentinel errors for model call failures
var (
	ErrTimeout         = errors.New("LLM_TIMEOUT")
	ErrRateLimited     = errors.New("LLM_RATE_LIMITED")
	ErrInvalidResponse = errors.New("LLM_INVALID_RESPONSE")
)

// Config carries the model endpoint settings.
type Config struct {
	BaseURL     string
	APIKey      string
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
	MaxRetries  int
}

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	config     Config
	httpClient *http.Client
	log        logger.Logger
}

// NewClient creates a model client from config.
func NewClient(cfg Config, log logger.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		log:        log,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete sends a system+user prompt pair and returns the model's text.
// Transient failures (timeouts, rate limits) are retried with exponential
// backoff up to the configured budget.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	var lastErr error
	attempts := c.config.MaxRetries + 1

	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			backoff := time.Duration(100*(1<<(attempt-2))) * time.Millisecond
			c.log.Warn("Retrying model call", map[string]interface{}{
				"attempt": attempt,
				"backoff": backoff.String(),
				"error":   lastErr.Error(),
			})
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		content, err := c.complete(ctx, system, user)
		if err == nil {
			return content, nil
		}
		lastErr = err
		if !isRetryable(err) {
			return "", wrapModelError(err)
		}
	}
	return "", wrapModelError(lastErr)
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	payload := chatRequest{
		Model:       c.config.Model,
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := strings.TrimSuffix(c.config.BaseURL, "/") + "/v1/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("%w: %v", ErrTimeout, ctx.Err())
		}
		return "", fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: reading body: %v", ErrInvalidResponse, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", fmt.Errorf("%w: status %d", ErrRateLimited, resp.StatusCode)
	case resp.StatusCode >= 500:
		return "", fmt.Errorf("%w: status %d", ErrTimeout, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return "", fmt.Errorf("%w: status %d: %s", ErrInvalidResponse, resp.StatusCode, truncate(string(raw), 200))
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidResponse, parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 || strings.TrimSpace(parsed.Choices[0].Message.Content) == "" {
		return "", fmt.Errorf("%w: no content in response", ErrInvalidResponse)
	}

	c.log.Debug("Model call completed", map[string]interface{}{
		"model":    c.config.Model,
		"duration": time.Since(start).String(),
	})
	return parsed.Choices[0].Message.Content, nil
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrRateLimited)
}

// wrapModelError types a sentinel failure once the retry budget is spent,
// keeping the sentinel reachable through the error chain.
func wrapModelError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrRateLimited):
		return apperrors.NewLLMRateLimitedError(err.Error()).WithCause(err)
	case errors.Is(err, ErrTimeout):
		return apperrors.NewLLMTimeoutError(err.Error()).WithCause(err)
	case errors.Is(err, ErrInvalidResponse):
		return apperrors.NewLLMInvalidResponseError(err.Error()).WithCause(err)
	}
	return err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
