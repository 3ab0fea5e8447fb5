// Package assistant answers natural-language questions about a user's billing
// data through an external chat-completion service, feeding it anonymized
// aggregates only.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"

	maxAnswerTokens = 1000
	temperature     = 0.7
)

// ExternalServiceError marks a collaborator failure: timeout, missing
// credential, malformed response. It is always recoverable; the ingestion
// pipeline never depends on this service.
type ExternalServiceError struct {
	Reason string
	Err    error
}

func (e *ExternalServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("assistant unavailable: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("assistant unavailable: %s", e.Reason)
}

func (e *ExternalServiceError) Unwrap() error { return e.Err }

// Client talks to an OpenAI-compatible chat-completions endpoint over plain
// net/http; no vendor SDK required.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
}

func NewClient(apiKey, model, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		apiKey:     apiKey,
		model:      model,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Complete sends one system+user exchange and returns the assistant text.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	if c.apiKey == "" {
		return "", &ExternalServiceError{Reason: "API key not configured"}
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   maxAnswerTokens,
		Temperature: temperature,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", &ExternalServiceError{Reason: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", &ExternalServiceError{Reason: "failed to read response", Err: err}
	}

	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", &ExternalServiceError{Reason: "malformed response", Err: err}
	}
	if parsed.Error != nil {
		return "", &ExternalServiceError{Reason: parsed.Error.Message}
	}
	if resp.StatusCode != http.StatusOK || len(parsed.Choices) == 0 {
		return "", &ExternalServiceError{Reason: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
	}

	return parsed.Choices[0].Message.Content, nil
}
