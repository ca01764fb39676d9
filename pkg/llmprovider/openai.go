package llmprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ashvinar/memory-layer/internal/apperr"
)

// openAIRequest represents the request body for an OpenAI-compatible
// chat completions API.
type openAIRequest struct {
	Model       string    `json:"model"`
	Messages    []chatMsg `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream"`
}

// openAIResponse represents the response from the completions API.
type openAIResponse struct {
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

// OpenAIConfig holds connection settings for an OpenAI-compatible API.
type OpenAIConfig struct {
	BaseURL string // e.g. https://api.openai.com/v1
	Model   string
	APIKey  string
	Timeout time.Duration
}

// OpenAI talks to an OpenAI-compatible chat completions endpoint.
type OpenAI struct {
	config OpenAIConfig
	client *http.Client
}

// NewOpenAI creates an OpenAI provider adapter.
func NewOpenAI(config OpenAIConfig) *OpenAI {
	return &OpenAI{config: config, client: newHTTPClient(config.Timeout)}
}

// Complete makes a non-streaming chat completion request and returns the
// assistant's text.
func (o *OpenAI) Complete(ctx context.Context, userPrompt, systemPrompt string) (string, error) {
	messages := make([]chatMsg, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, chatMsg{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, chatMsg{Role: "user", Content: userPrompt})

	req := openAIRequest{
		Model:       o.config.Model,
		Messages:    messages,
		Temperature: 0.3,
		MaxTokens:   4096,
		Stream:      false, // EXPLICITLY NO STREAMING
	}
	reqBody, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("llmprovider: failed to marshal openai request: %w", err)
	}

	url := strings.TrimRight(o.config.BaseURL, "/") + "/chat/completions"
	raw, err := postJSON(ctx, o.client, url, reqBody, o.config.APIKey)
	if err != nil {
		return "", apperr.WrapUpstream(err, "openai request failed")
	}

	var resp openAIResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return "", apperr.WrapUpstream(err, "failed to parse openai response")
	}
	if resp.Error != nil {
		return "", apperr.WrapUpstream(nil, "openai error %s: %s", resp.Error.Type, resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", apperr.WrapUpstream(nil, "empty response from openai")
	}
	text := resp.Choices[0].Message.Content
	if text == "" {
		return "", apperr.WrapUpstream(nil, "empty content in openai response")
	}
	return text, nil
}
