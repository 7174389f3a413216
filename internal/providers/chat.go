package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/storymill/storymill/internal/resilient"
)

const (
	defaultChatBaseURL = "https://openrouter.ai/api/v1"
	defaultChatTimeout = 120 * time.Second
)

// ChatConfig configures a ChatClient.
type ChatConfig struct {
	APIKey            string
	Model             string
	BaseURL           string // OpenAI-compatible endpoint; OpenRouter by default
	RequestsPerMinute int    // token bucket for the chat endpoint (60/min default)
	Timeout           time.Duration
	HTTPClient        *http.Client // optional (tests)
}

// ChatClient is a minimal OpenAI-compatible chat completion client.
type ChatClient struct {
	apiKey  string
	model   string
	baseURL string
	limiter *RateLimiter
	client  *http.Client
}

// ChatMessage is one message in a chat request.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []ChatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat json.RawMessage `json:"response_format,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Code    any    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewChatClient creates a chat client.
func NewChatClient(cfg ChatConfig) *ChatClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultChatBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultChatTimeout
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &ChatClient{
		apiKey:  cfg.APIKey,
		model:   cfg.Model,
		baseURL: strings.TrimRight(baseURL, "/"),
		limiter: NewRateLimiter(cfg.RequestsPerMinute),
		client:  client,
	}
}

// Model returns the configured model identifier.
func (c *ChatClient) Model() string {
	return c.model
}

// Complete sends a chat completion request and returns the first choice
// content. Transport errors and retryable statuses surface as retryable
// errors for the resilient layer.
func (c *ChatClient) Complete(ctx context.Context, messages []ChatMessage, responseFormat json.RawMessage) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:          c.model,
		Messages:       messages,
		ResponseFormat: responseFormat,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal chat request: %w", err)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read chat response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		c.limiter.Record429(retryAfter)
		return "", &resilient.RateLimitError{
			Message:    fmt.Sprintf("chat backend rate limited: %s", strings.TrimSpace(string(respBody))),
			RetryAfter: retryAfter,
			StatusCode: resp.StatusCode,
		}
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("chat backend error (status %d): %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("failed to unmarshal chat response: %w", err)
	}
	if parsed.Error != nil {
		return "", fmt.Errorf("chat backend API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("empty choices in chat response (model=%s, id=%s)", parsed.Model, parsed.ID)
	}

	return parsed.Choices[0].Message.Content, nil
}

func parseRetryAfter(header string) time.Duration {
	header = strings.TrimSpace(header)
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(header); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}
