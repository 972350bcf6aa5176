// Package modelclient talks to the configured LLM for package
// grouping and fix-generation prompts.
package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// ModelClient is the collaborator the Grouper and Fixer call to turn a
// structured prompt into a structured, JSON-bearing response.
type ModelClient interface {
	// Complete sends prompt to the model and returns its raw text
	// response. Callers are responsible for extracting JSON from it.
	Complete(ctx context.Context, prompt string) (string, error)
	Health(ctx context.Context) error
}

// Config holds HTTP model-client configuration.
type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	Timeout      time.Duration
	MaxRetries   int
	RetryDelay   time.Duration
	RetryBackoff float64
}

// DefaultConfig returns default model client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:      "https://generativelanguage.googleapis.com/v1beta",
		Model:        "gemini-1.5-pro",
		Timeout:      30 * time.Second,
		MaxRetries:   3,
		RetryDelay:   1 * time.Second,
		RetryBackoff: 2.0,
	}
}

type completionRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type completionResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *apiError `json:"error,omitempty"`
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

// HTTPModelClient implements ModelClient over the model's HTTP API.
type HTTPModelClient struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
	breaker    *CircuitBreaker
}

// NewHTTPModelClient creates a new HTTP model client. A circuit
// breaker guards the model endpoint across the many calls one run can
// make, so a single misconfigured key or a sustained outage fails
// every subsequent call immediately instead of burning the retry
// budget on each one.
func NewHTTPModelClient(config Config, logger *slog.Logger) *HTTPModelClient {
	if logger == nil {
		logger = slog.Default()
	}
	breaker, err := NewCircuitBreaker(DefaultCircuitBreakerConfig(), logger)
	if err != nil {
		breaker = nil
	}
	return &HTTPModelClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     logger,
		breaker:    breaker,
	}
}

// Complete sends prompt to the model with retry/backoff: rate-limit
// responses (429) wait the full backoff delay, other retryable errors
// wait a short fixed delay, and a 4xx other than 429 is not retried.
func (c *HTTPModelClient) Complete(ctx context.Context, prompt string) (string, error) {
	var result string
	err := c.withBreaker(ctx, func(ctx context.Context) error {
		text, err := c.completeWithRetry(ctx, prompt)
		if err != nil {
			return err
		}
		result = text
		return nil
	})
	return result, err
}

// withBreaker routes operation through the circuit breaker when one
// is configured, otherwise runs it directly.
func (c *HTTPModelClient) withBreaker(ctx context.Context, operation func(context.Context) error) error {
	if c.breaker == nil {
		return operation(ctx)
	}
	return c.breaker.Call(ctx, operation)
}

// completeWithRetry is the retry/backoff loop: rate-limit responses
// (429) wait the full backoff delay, other retryable errors wait a
// short fixed delay, and a 4xx other than 429 is not retried.
func (c *HTTPModelClient) completeWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	var lastStatus int
	backoffDelay := c.config.RetryDelay

	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.config.RetryDelay
			if lastStatus == http.StatusTooManyRequests {
				delay = backoffDelay
				backoffDelay = time.Duration(float64(backoffDelay) * c.config.RetryBackoff)
			}
			c.logger.Debug("retrying model request", "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		text, status, err := c.completeOnce(ctx, prompt)
		if err == nil {
			return text, nil
		}

		lastErr = err
		lastStatus = status
		c.logger.Warn("model request attempt failed", "attempt", attempt+1, "error", err)

		if status >= 400 && status < 500 && status != http.StatusTooManyRequests {
			break
		}
	}

	return "", fmt.Errorf("model request failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func (c *HTTPModelClient) completeOnce(ctx context.Context, prompt string) (string, int, error) {
	reqBody := completionRequest{Contents: []content{{Parts: []part{{Text: prompt}}}}}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", 0, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.config.BaseURL, c.config.Model, c.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", resp.StatusCode, fmt.Errorf("model API error: status %d, body: %s", resp.StatusCode, string(respBody))
	}

	var parsed completionResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", resp.StatusCode, fmt.Errorf("parse response: %w", err)
	}
	if parsed.Error != nil {
		return "", parsed.Error.Code, fmt.Errorf("model API error: %s", parsed.Error.Message)
	}
	if len(parsed.Candidates) == 0 || len(parsed.Candidates[0].Content.Parts) == 0 {
		return "", resp.StatusCode, fmt.Errorf("model returned no candidates")
	}

	var out strings.Builder
	for _, p := range parsed.Candidates[0].Content.Parts {
		out.WriteString(p.Text)
	}
	return out.String(), resp.StatusCode, nil
}

// Health checks whether the model endpoint is reachable.
func (c *HTTPModelClient) Health(ctx context.Context) error {
	url := fmt.Sprintf("%s/models/%s?key=%s", c.config.BaseURL, c.config.Model, c.config.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create health request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("model service unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

// MockModelClient implements ModelClient for testing.
type MockModelClient struct {
	CompleteFunc func(ctx context.Context, prompt string) (string, error)
	HealthFunc   func(ctx context.Context) error
}

// Complete implements ModelClient.
func (m *MockModelClient) Complete(ctx context.Context, prompt string) (string, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt)
	}
	return "", fmt.Errorf("CompleteFunc not implemented")
}

// Health implements ModelClient.
func (m *MockModelClient) Health(ctx context.Context) error {
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// ExtractJSON pulls the first fenced ```json ... ``` block out of a
// model response, falling back to the raw text if no fence is found —
// models are inconsistent about wrapping structured output in markdown.
func ExtractJSON(response string) string {
	const fence = "```"
	start := strings.Index(response, fence)
	if start == -1 {
		return strings.TrimSpace(response)
	}
	rest := response[start+len(fence):]
	rest = strings.TrimPrefix(rest, "json")
	rest = strings.TrimPrefix(rest, "JSON")
	end := strings.Index(rest, fence)
	if end == -1 {
		return strings.TrimSpace(rest)
	}
	return strings.TrimSpace(rest[:end])
}
