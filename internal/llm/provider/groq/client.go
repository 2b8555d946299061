package groq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sre-agent/qos-advisor/internal/llm/types"
)

// Package groq provides the Groq provider implementation for the LLM adapter.
//
// Responsibilities:
//   - Implement the provider interface against Groq's OpenAI-compatible
//     chat completions API
//   - Carry Bearer authentication from GROQ_API_KEY
//   - Surface HTTP and API errors with enough context to log
//
// Groq serves open-weight models (Llama, Mixtral) behind the OpenAI wire
// format, so the request and response shapes here mirror that API.

const (
	DefaultBaseURL   = "https://api.groq.com/openai/v1"
	DefaultModel     = "llama-3.3-70b-versatile"
	DefaultMaxTokens = 2048
	DefaultTimeout   = 60 * time.Second
)

// ClientImpl implements the provider interface for Groq.
type ClientImpl struct {
	apiKey      string
	model       string
	maxTokens   int
	temperature float64
	baseURL     string
	httpClient  *http.Client
}

// Groq API structures (OpenAI chat completions wire format)
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
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Options configures a Groq client beyond its defaults.
type Options struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Timeout     time.Duration
}

// NewClient creates a Groq client.
func NewClient(apiKey string, opts Options) (*ClientImpl, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("Groq API key is required")
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = DefaultMaxTokens
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	return &ClientImpl{
		apiKey:      apiKey,
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: opts.Temperature,
		baseURL:     DefaultBaseURL,
		httpClient: &http.Client{
			Timeout: opts.Timeout,
		},
	}, nil
}

// Complete sends one chat completion request and returns the assistant text.
func (c *ClientImpl) Complete(ctx context.Context, messages []types.Message) (string, error) {
	chatMessages := make([]chatMessage, len(messages))
	for i, msg := range messages {
		chatMessages[i] = chatMessage{Role: msg.Role, Content: msg.Content}
	}

	request := chatRequest{
		Model:       c.model,
		Messages:    chatMessages,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
	}

	response, err := c.makeRequest(ctx, "/chat/completions", request)
	if err != nil {
		return "", fmt.Errorf("Groq API request failed: %w", err)
	}

	var parsed chatResponse
	if err := json.Unmarshal(response, &parsed); err != nil {
		return "", fmt.Errorf("failed to parse Groq response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("no choices in Groq response")
	}

	return parsed.Choices[0].Message.Content, nil
}

// Model returns the configured model identifier.
func (c *ClientImpl) Model() string { return c.model }

// makeRequest makes an HTTP request to the Groq API.
func (c *ClientImpl) makeRequest(ctx context.Context, endpoint string, payload interface{}) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := c.baseURL + endpoint
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Groq API error (status %d): %s", resp.StatusCode, string(responseBody))
	}

	return responseBody, nil
}

// SetBaseURL overrides the Groq API base URL.  Used in tests.
func (c *ClientImpl) SetBaseURL(url string) { c.baseURL = url }
